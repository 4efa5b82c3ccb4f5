package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ent0n29/docbot/internal/config"
	"github.com/ent0n29/docbot/internal/conversions"
	"github.com/ent0n29/docbot/internal/dedupe"
	"github.com/ent0n29/docbot/internal/flow"
	"github.com/ent0n29/docbot/internal/httpapi"
	"github.com/ent0n29/docbot/internal/messages"
	"github.com/ent0n29/docbot/internal/observability"
	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/reliability"
	"github.com/ent0n29/docbot/internal/session"
	"github.com/ent0n29/docbot/internal/transform"
	"github.com/ent0n29/docbot/internal/whatsapp"
)

type BuildResult struct {
	Config     config.Config
	Logger     *slog.Logger
	API        *httpapi.Server
	Sessions   *session.Manager
	Dispatcher *flow.Dispatcher
	Queue      *flow.Queue
	Metrics    *observability.Metrics
	StoreMode  string
	DedupeMode string

	// Cleanup drains queued messages and releases external resources (DB,
	// Redis). ctx bounds how long draining may take.
	Cleanup func(ctx context.Context) error
}

// Build wires the service. ctx scopes background work (session janitor,
// message handling) and should be cancelled after Cleanup returns.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	logger := NewLogger(cfg)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	text, err := messages.Load(cfg.DefaultLang)
	if err != nil {
		return nil, fmt.Errorf("message catalog load failed: %w", err)
	}

	store, storeMode, err := conversions.NewStore(ctx, conversions.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Limit:       cfg.ConversionLogLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversion store init failed: %w", err)
	}
	feed := conversions.NewFeed(store)

	seen, dedupeMode, err := newDedupe(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionTTL, session.WithLogger(logger))
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
	})
	sessions.StartJanitor(ctx, cfg.SessionSweepInterval)

	retry := reliability.DefaultRetryPolicy()
	retry.MaxRetries = cfg.WhatsAppMaxRetries
	chat := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Retry:         retry,
	}, logger)
	chat.SetErrorHook(metrics.ChatAPIError)

	engine := transform.NewLimited(transform.NewHTTPEngine(cfg.TransformURL, cfg.TransformTimeout), cfg.TransformConcurrency)

	dispatcher := flow.NewDispatcher(sessions, chat, engine, feed, text, flow.Options{
		MaxFileBytes:    cfg.MaxFileBytes,
		MaxMergeBytes:   cfg.MaxMergeBytes,
		PipelineTimeout: cfg.PipelineTimeout,
		Logger:          logger,
		Metrics:         metrics,
	})
	queue := flow.NewQueue(ctx, dispatcher, logger)

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:    sessions,
		Queue:       queue,
		Seen:        seen,
		Conversions: feed,
		Metrics:     metrics,
		Logger:      logger,
		StoreMode:   storeMode,
		DedupeMode:  dedupeMode,
	})

	logger.Info("service wired",
		"conversion_store", storeMode,
		"dedupe_store", dedupeMode,
		"whatsapp_configured", cfg.WhatsAppConfigured(),
		"whatsapp_token", policy.MaskSecret(cfg.WhatsAppAccessToken),
		"transform_url", cfg.TransformURL,
		"lang", text.Lang(),
	)
	if !cfg.WhatsAppConfigured() {
		logger.Warn("whatsapp credentials missing; replies will fail")
	}
	if cfg.TransformURL == "" {
		logger.Warn("TRANSFORM_URL not set; every conversion will fail")
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain queue: %w", err))
		}
		if err := seen.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dedupe store: %w", err))
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close conversion store: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:     cfg,
		Logger:     logger,
		API:        api,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Queue:      queue,
		Metrics:    metrics,
		StoreMode:  storeMode,
		DedupeMode: dedupeMode,
		Cleanup:    cleanup,
	}, nil
}

// newDedupe prefers Redis so redelivered webhooks are caught across
// replicas, and falls back to a process-local cache.
func newDedupe(ctx context.Context, cfg config.Config) (dedupe.Store, string, error) {
	if cfg.RedisURL == "" {
		return dedupe.New(cfg.DedupeTTL, cfg.DedupeMaxEntries), "in-memory", nil
	}
	store, err := dedupe.NewRedisStore(ctx, cfg.RedisURL, cfg.DedupeTTL)
	if err != nil {
		return nil, "", fmt.Errorf("redis dedupe init failed: %w", err)
	}
	return store, "redis", nil
}
