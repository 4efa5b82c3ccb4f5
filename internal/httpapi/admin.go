package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/docbot/internal/conversions"
	"github.com/ent0n29/docbot/internal/policy"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	// Stats and exports look at this many of the newest records.
	statsWindow = 5000

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// requireAdmin guards the operator API with a static bearer token. Browsers
// cannot set headers on websocket upgrades, so ?token= is accepted as well.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.cfg.AdminToken
		if want == "" {
			respondError(w, http.StatusNotFound, "admin_disabled", "admin api is not enabled")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Conversions == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "conversion log not configured")
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	records, err := s.deps.Conversions.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list conversions failed", "error", err)
		respondError(w, http.StatusInternalServerError, "store_error", "unable to read conversion log")
		return
	}
	for i := range records {
		records[i] = masked(records[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversions": records,
		"count":       len(records),
	})
}

type statsResponse struct {
	conversions.Stats
	ActiveSessions int `json:"active_sessions"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Conversions == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "conversion log not configured")
		return
	}
	records, err := s.deps.Conversions.Recent(r.Context(), statsWindow)
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "store_error", "unable to read conversion log")
		return
	}
	resp := statsResponse{Stats: conversions.Summarize(records, time.Now())}
	if s.deps.Sessions != nil {
		resp.ActiveSessions = s.deps.Sessions.ActiveCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportConversions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Conversions == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "conversion log not configured")
		return
	}
	records, err := s.deps.Conversions.Recent(r.Context(), statsWindow)
	if err != nil {
		s.logger.Error("export query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "store_error", "unable to read conversion log")
		return
	}
	for i := range records {
		if records[i].Error != "" {
			records[i].Error, _ = policy.RedactPII(records[i].Error)
		}
	}
	filename := "conversions_" + time.Now().UTC().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if err := conversions.WriteCSV(w, records, policy.MaskSender); err != nil {
		s.logger.Warn("export write failed", "error", err)
	}
}

// handleConversionsWS streams every conversion record as it is written.
func (s *Server) handleConversionsWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Conversions == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "conversion log not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.deps.Conversions.Subscribe()
	defer unsubscribe()
	s.deps.Metrics.SessionEvent("feed_connected")

	// The read loop only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case rec, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(masked(rec)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func masked(rec conversions.Record) conversions.Record {
	rec.Sender = policy.MaskSender(rec.Sender)
	if rec.Error != "" {
		rec.Error, _ = policy.RedactPII(rec.Error)
	}
	return rec
}
