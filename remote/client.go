package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"receiptflow/credential"
)

// ErrThrottled signals the remote API kept answering 429 after all retries.
var ErrThrottled = errors.New("remote: throttled")

// StatusError is returned for any non-2xx response other than 429.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %s", e.Status)
}

// Permanent reports whether the status indicates a non-retryable client fault.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

const (
	maxAttempts    = 5
	backoffInitial = time.Second
	backoffCap     = 16 * time.Second
)

// Client talks to the accounting API. A process-wide minimum interval between
// requests is enforced ahead of every call, retries included, so the remote
// budget (10 req/s, 600 req/min) holds no matter how many tenants are polled.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the given API base URL with the configured
// minimum spacing between outbound requests.
func NewClient(baseURL string, minInterval time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
		sleep:      sleepCtx,
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithSleep overrides the backoff sleep function.
func (c *Client) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Client {
	c.sleep = sleep
	return c
}

// ListReceivables queries receivables changed since the given instant,
// optionally filtered by status.
func (c *Client) ListReceivables(ctx context.Context, cred credential.Credential, since time.Time, status string) ([]Receivable, error) {
	query := url.Values{}
	query.Set("changedSince", since.UTC().Format(time.RFC3339))
	if status != "" {
		query.Set("status", status)
	}

	var page receivablePage
	if err := c.get(ctx, cred, "/receivables", query, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// GetReceivable fetches the full receivable including its installments.
func (c *Client) GetReceivable(ctx context.Context, cred credential.Credential, receivableID string) (ReceivableDetails, error) {
	var details ReceivableDetails
	err := c.get(ctx, cred, "/receivables/"+url.PathEscape(receivableID), nil, &details)
	return details, err
}

// GetInstallment fetches one installment including its attachments.
func (c *Client) GetInstallment(ctx context.Context, cred credential.Credential, installmentID string) (InstallmentDetails, error) {
	var details InstallmentDetails
	err := c.get(ctx, cred, "/installments/"+url.PathEscape(installmentID), nil, &details)
	return details, err
}

// get performs a rate-limited GET with typed decoding. Only 429 is retried,
// with waits of 1, 2, 4, 8 seconds between attempts; every other fault
// surfaces immediately so permanent errors are never masked as transient.
func (c *Client) get(ctx context.Context, cred credential.Credential, path string, query url.Values, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, backoffWait(attempt-1)); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("remote: rate limiter: %w", err)
		}

		throttled, err := c.doOnce(ctx, cred, path, query, out)
		if err == nil {
			return nil
		}
		if !throttled {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("remote: giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, cred credential.Credential, path string, query url.Values, out any) (throttled bool, err error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("remote: %s %s: %w", http.MethodGet, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("remote: %s (retry-after %s): %w", path, resp.Header.Get("Retry-After"), ErrThrottled)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return false, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("remote: decode %s response: %w", path, err)
	}
	return false, nil
}

// backoffWait returns the exponential wait before the given retry, capped so a
// long ladder never exceeds 16s.
func backoffWait(retry int) time.Duration {
	wait := backoffInitial << (retry - 1)
	if wait > backoffCap {
		wait = backoffCap
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
