package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"receiptflow/audit"
	"receiptflow/checkpoint"
	"receiptflow/config"
	"receiptflow/credential"
	"receiptflow/db"
	"receiptflow/document"
	"receiptflow/ledger"
	"receiptflow/notifier"
	"receiptflow/pipeline"
	"receiptflow/recipient"
	"receiptflow/remote"
	"receiptflow/tenant"
	"receiptflow/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	fallbackMap, err := cfg.RecipientFallback()
	if err != nil {
		logger.Error("load recipient fallback", "error", err)
		os.Exit(1)
	}

	// Credential acquisition and outbound mail belong to the surrounding
	// application. Until those are wired in, a static bearer and a dry-run
	// notifier keep the worker runnable end to end.
	bearer := os.Getenv("REMOTE_BEARER_TOKEN")
	if bearer == "" {
		logger.Warn("REMOTE_BEARER_TOKEN is empty; cycles will abort per tenant until credentials are wired")
	}
	creds := allTenants{token: bearer}

	processor := pipeline.NewProcessor(pipeline.Deps{
		Tenants:         tenant.NewRepository(pool),
		Credentials:     creds,
		Client:          remote.NewClient(cfg.RemoteBaseURL, cfg.MinRequestInterval),
		Fetcher:         document.NewFetcher(cfg.AllowedDocumentHosts, cfg.FetchTimeout, cfg.MinDocumentBytes, cfg.MaxDocumentBytes),
		Checkpoints:     checkpoint.NewStore(pool),
		Ledger:          ledger.NewLedger(pool),
		Audit:           audit.NewLog(pool),
		Notifier:        notifier.NewSizeLimited(notifier.NewLogNotifier(logger), cfg.MaxAttachmentBytes),
		Fallback:        recipient.NewFallbackResolver(fallbackMap),
		InitialLookback: cfg.InitialLookback,
		SafetyWindow:    cfg.SafetyWindow,
		Logger:          logger,
		Metrics:         pipeline.NewMetrics(nil),
	})

	runner := worker.NewRunner(cfg.PollInterval, processor, logger)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

// allTenants applies one bearer token to every active tenant. Expiry is
// derived from the token itself.
type allTenants struct {
	token string
}

func (a allTenants) Valid(_ context.Context, _ string) (credential.Credential, error) {
	if a.token == "" {
		return credential.Credential{}, credential.ErrUnavailable
	}
	return credential.Credential{Token: a.token}, nil
}
