package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ent0n29/docbot/internal/config"
)

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "json").Debug("hello", "k", "v")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("json log line = %q, err = %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Fatalf("log line = %v, want msg=hello k=v", line)
	}

	buf.Reset()
	newLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildWiresInMemoryStack(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:     "test_app_" + strconv.FormatInt(time.Now().UnixNano(), 10),
		LogLevel:             "error",
		LogFormat:            "text",
		SessionTTL:           time.Minute,
		SessionSweepInterval: time.Second,
		PipelineTimeout:      time.Second,
		DefaultLang:          "en",
		TransformConcurrency: 1,
		ConversionLogLimit:   10,
		DedupeTTL:            time.Minute,
		DedupeMaxEntries:     10,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	built, err := Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := built.Cleanup(context.Background()); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if built.StoreMode != "in-memory" || built.DedupeMode != "in-memory" {
		t.Fatalf("modes = %s/%s, want in-memory/in-memory", built.StoreMode, built.DedupeMode)
	}

	ts := httptest.NewServer(built.API.Router())
	defer ts.Close()
	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}
