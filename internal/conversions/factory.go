package conversions

import (
	"context"
	"strings"
)

type Options struct {
	DatabaseURL string
	SQLitePath  string
	// Limit bounds the in-memory store only.
	Limit int
}

// NewStore picks postgres when a database URL is configured, then sqlite when
// a file path is set, otherwise an in-memory ring.
func NewStore(ctx context.Context, opts Options) (Store, string, error) {
	if url := strings.TrimSpace(opts.DatabaseURL); url != "" {
		store, err := NewPostgresStore(ctx, url)
		return store, "postgres", err
	}
	if path := strings.TrimSpace(opts.SQLitePath); path != "" {
		store, err := NewSQLiteStore(ctx, path)
		return store, "sqlite", err
	}
	return NewInMemoryStore(opts.Limit), "in-memory", nil
}
