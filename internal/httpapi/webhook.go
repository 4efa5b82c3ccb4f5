package httpapi

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/protocol"
	"github.com/ent0n29/docbot/internal/whatsapp"
)

// Webhook deliveries are small JSON envelopes; media is fetched separately.
const maxWebhookBody = 1 << 20

// handleVerifyWebhook answers the subscription handshake Meta performs when
// the webhook URL is registered.
func (s *Server) handleVerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := s.cfg.WhatsAppVerifyToken
	if q.Get("hub.mode") != "subscribe" || token == "" ||
		subtle.ConstantTimeCompare([]byte(q.Get("hub.verify_token")), []byte(token)) != 1 {
		s.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
		respondError(w, http.StatusForbidden, "verification_failed", "verify token mismatch")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// handleWebhook acknowledges every authentic delivery immediately and hands
// its messages to the queue. Payloads that cannot be parsed are still
// acknowledged so Meta does not keep redelivering them.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return
	}
	if secret := s.cfg.WhatsAppAppSecret; secret != "" {
		if !whatsapp.VerifySignature(secret, body, r.Header.Get("X-Hub-Signature-256")) {
			s.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_signature", "signature mismatch")
			return
		}
	}

	inbound, err := protocol.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("webhook payload ignored", "error", err)
		respondJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	accepted := 0
	for _, in := range inbound {
		if s.duplicate(r, in) {
			continue
		}
		if s.deps.Queue == nil || !s.deps.Queue.Enqueue(in) {
			s.logger.Warn("inbound message dropped", "sender", policy.MaskSender(in.From), "message_id", in.ID)
			s.release(r, in)
			continue
		}
		accepted++
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "accepted": accepted})
}

// release lets a redelivery of a dropped message through.
func (s *Server) release(r *http.Request, in protocol.Inbound) {
	if s.deps.Seen == nil || in.ID == "" {
		return
	}
	if err := s.deps.Seen.Forget(r.Context(), in.ID); err != nil {
		s.logger.Warn("dedupe release failed", "message_id", in.ID, "error", err)
	}
}

// duplicate reports whether in was already seen. Lookup errors let the
// message through: a rare double reply beats a lost message.
func (s *Server) duplicate(r *http.Request, in protocol.Inbound) bool {
	if s.deps.Seen == nil || in.ID == "" {
		return false
	}
	dup, err := s.deps.Seen.CheckAndMark(r.Context(), in.ID)
	if err != nil {
		s.logger.Warn("dedupe lookup failed", "message_id", in.ID, "error", err)
		return false
	}
	if dup {
		s.deps.Metrics.Deduped()
		s.logger.Debug("duplicate delivery dropped", "message_id", in.ID)
	}
	return dup
}
