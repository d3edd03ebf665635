package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Validation reasons recorded in the delivery log. A validation failure may
// indicate a compromised or malformed upstream response, so it is flagged
// distinctly from ordinary fetch errors.
const (
	ReasonScheme   = "scheme"
	ReasonHost     = "host"
	ReasonAddress  = "address"
	ReasonRedirect = "redirect"
	ReasonMagic    = "magic"
	ReasonSize     = "size"
)

// ValidationError is a hard rejection; the item must never be retried.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document: rejected (%s): %s", e.Reason, e.Detail)
}

// Document is a fetched and validated receipt. Bytes live only for the
// duration of the delivery attempt and are never persisted.
type Document struct {
	Bytes    []byte
	Filename string
	SHA256   string
}

var pdfMagic = []byte("%PDF")

// Fetcher retrieves receipt documents over HTTPS from an explicit allow-list
// of hosts, with redirects disabled and size/signature checks on the payload.
type Fetcher struct {
	httpClient   *http.Client
	allowedHosts []string
	lookupIP     func(ctx context.Context, host string) ([]netip.Addr, error)
	minBytes     int64
	maxBytes     int64
	timeout      time.Duration
}

// NewFetcher builds a fetcher for the given allowed hosts and size bounds.
func NewFetcher(allowedHosts []string, timeout time.Duration, minBytes, maxBytes int64) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		allowedHosts: allowedHosts,
		lookupIP: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
		minBytes: minBytes,
		maxBytes: maxBytes,
		timeout:  timeout,
	}
}

// WithHTTPClient overrides the transport. Redirect handling is preserved.
func (f *Fetcher) WithHTTPClient(hc *http.Client) *Fetcher {
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	f.httpClient = hc
	return f
}

// WithLookup overrides hostname resolution.
func (f *Fetcher) WithLookup(lookup func(ctx context.Context, host string) ([]netip.Addr, error)) *Fetcher {
	f.lookupIP = lookup
	return f
}

// Validate rejects a document URL before any network call: the scheme must be
// https, the host must belong to the allow-list, and an IP-literal host must
// not point at a loopback, private, or otherwise non-global address.
func (f *Fetcher) Validate(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Reason: ReasonHost, Detail: "empty url"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Reason: ReasonHost, Detail: fmt.Sprintf("unparseable url: %v", err)}
	}
	if u.Scheme != "https" {
		return &ValidationError{Reason: ReasonScheme, Detail: fmt.Sprintf("scheme %q is not https", u.Scheme)}
	}

	host := u.Hostname()
	if host == "" {
		return &ValidationError{Reason: ReasonHost, Detail: "url has no host"}
	}
	if addr, err := netip.ParseAddr(host); err == nil && !addrAllowed(addr) {
		return &ValidationError{Reason: ReasonAddress, Detail: fmt.Sprintf("address %s is not globally routable", addr)}
	}
	if !f.hostAllowed(host) {
		return &ValidationError{Reason: ReasonHost, Detail: fmt.Sprintf("host %q is not allow-listed", host)}
	}
	return nil
}

// Fetch validates the URL, resolves the host, and retrieves the receipt.
// Redirect responses are rejected rather than followed. The payload must carry
// the PDF signature and fall within the configured size bounds.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if err := f.Validate(rawURL); err != nil {
		return nil, err
	}

	host := mustHostname(rawURL)
	if _, err := netip.ParseAddr(host); err != nil {
		addrs, err := f.lookupIP(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("document: resolve %s: %w", host, err)
		}
		for _, addr := range addrs {
			if !addrAllowed(addr) {
				return nil, &ValidationError{Reason: ReasonAddress, Detail: fmt.Sprintf("%s resolves to non-global address %s", host, addr)}
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("document: build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, &ValidationError{Reason: ReasonRedirect, Detail: fmt.Sprintf("redirect to %q refused", resp.Header.Get("Location"))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document: fetch status %s", resp.Status)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("document: read body: %w", err)
	}
	if int64(len(payload)) > f.maxBytes {
		return nil, &ValidationError{Reason: ReasonSize, Detail: fmt.Sprintf("payload exceeds %d bytes", f.maxBytes)}
	}
	if int64(len(payload)) < f.minBytes {
		return nil, &ValidationError{Reason: ReasonSize, Detail: fmt.Sprintf("payload of %d bytes below minimum %d", len(payload), f.minBytes)}
	}
	if !bytes.HasPrefix(payload, pdfMagic) {
		return nil, &ValidationError{Reason: ReasonMagic, Detail: "payload is not a PDF"}
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	return &Document{
		Bytes:    payload,
		Filename: fmt.Sprintf("receipt_%s.pdf", hash[:8]),
		SHA256:   hash,
	}, nil
}

func (f *Fetcher) hostAllowed(host string) bool {
	for _, allowed := range f.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// addrAllowed rejects every address class that could reach internal networks
// or cloud metadata endpoints.
func addrAllowed(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() {
		return false
	}
	if addr.IsMulticast() {
		return false
	}
	return true
}

func mustHostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsValidation reports whether err is a hard validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
