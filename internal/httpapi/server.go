package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/docbot/internal/config"
	"github.com/ent0n29/docbot/internal/conversions"
	"github.com/ent0n29/docbot/internal/dedupe"
	"github.com/ent0n29/docbot/internal/observability"
	"github.com/ent0n29/docbot/internal/protocol"
	"github.com/ent0n29/docbot/internal/session"
)

// Queue accepts normalized inbound messages for asynchronous handling.
type Queue interface {
	Enqueue(in protocol.Inbound) bool
	Depth() int
}

// ConversionFeed is the read side of the conversion log.
type ConversionFeed interface {
	Recent(ctx context.Context, limit int) ([]conversions.Record, error)
	Subscribe() (<-chan conversions.Record, func())
}

type Deps struct {
	Sessions    *session.Manager
	Queue       Queue
	Seen        dedupe.Store
	Conversions ConversionFeed
	Metrics     *observability.Metrics
	Logger      *slog.Logger

	// Gatherer serves /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer

	// StoreMode and DedupeMode are reported by the health endpoints.
	StoreMode  string
	DedupeMode string
}

type Server struct {
	cfg      config.Config
	deps     Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may open the live feed.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	metrics := observability.MetricsHandler()
	if s.deps.Gatherer != nil {
		metrics = observability.HandlerFor(s.deps.Gatherer)
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Get("/webhook/whatsapp", s.handleVerifyWebhook)
	r.Post("/webhook/whatsapp", s.handleWebhook)

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/conversions", s.handleListConversions)
		r.Get("/conversions/export", s.handleExportConversions)
		r.Get("/conversions/ws", s.handleConversionsWS)
		r.Get("/stats", s.handleStats)
		r.Get("/sessions/{sender}", s.handleGetSession)
		r.Patch("/sessions/{sender}", s.handlePatchSession)
		r.Delete("/sessions/{sender}", s.handleResetSession)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"conversion_store":    modeOr(s.deps.StoreMode, "disabled"),
		"dedupe_store":        modeOr(s.deps.DedupeMode, "disabled"),
		"whatsapp_configured": s.cfg.WhatsAppConfigured(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil || s.deps.Queue == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "message pipeline not wired")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ready",
		"active_sessions":     s.deps.Sessions.ActiveCount(),
		"session_ttl_seconds": int(s.deps.Sessions.TTL().Seconds()),
		"queue_depth":         s.deps.Queue.Depth(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func modeOr(mode, fallback string) string {
	if strings.TrimSpace(mode) == "" {
		return fallback
	}
	return mode
}
