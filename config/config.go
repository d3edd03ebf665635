package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all worker settings, populated from environment variables.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	RemoteBaseURL      string        `env:"REMOTE_API_BASE_URL" envDefault:"https://api.contaazul.com/v1"`
	MinRequestInterval time.Duration `env:"REMOTE_MIN_REQUEST_INTERVAL" envDefault:"100ms"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"300s"`
	InitialLookback time.Duration `env:"POLL_INITIAL_LOOKBACK" envDefault:"720h"`
	SafetyWindow    time.Duration `env:"POLL_SAFETY_WINDOW" envDefault:"10m"`

	FetchTimeout         time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	AllowedDocumentHosts []string      `env:"DOCUMENT_ALLOWED_HOSTS" envDefault:"api.contaazul.com,attachments.contaazul.com,cdn.contaazul.com,static.contaazul.com"`
	MinDocumentBytes     int64         `env:"DOCUMENT_MIN_BYTES" envDefault:"1024"`
	MaxDocumentBytes     int64         `env:"DOCUMENT_MAX_BYTES" envDefault:"104857600"`
	MaxAttachmentBytes   int64         `env:"ATTACHMENT_MAX_BYTES" envDefault:"10485760"`

	RecipientFallbackJSON string `env:"RECIPIENT_FALLBACK_JSON" envDefault:"{}"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.MinDocumentBytes <= 0 || cfg.MaxDocumentBytes <= cfg.MinDocumentBytes {
		return Config{}, fmt.Errorf("config: invalid document size bounds [%d, %d]", cfg.MinDocumentBytes, cfg.MaxDocumentBytes)
	}
	return cfg, nil
}

// RecipientFallback decodes the customer-name to email fallback mapping.
func (c Config) RecipientFallback() (map[string]string, error) {
	m := map[string]string{}
	if c.RecipientFallbackJSON == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(c.RecipientFallbackJSON), &m); err != nil {
		return nil, fmt.Errorf("config: decode recipient fallback: %w", err)
	}
	return m, nil
}
