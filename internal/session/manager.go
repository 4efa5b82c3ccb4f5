package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/docbot/internal/intent"
)

const DefaultTTL = 10 * time.Minute

// Manager keeps one conversation record per sender in memory. A record idle
// for longer than the TTL is treated as absent on every access.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onExpire func(*Session)
}

type Option func(*Manager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// GetOrCreate returns the live record for senderID, creating a fresh one when
// none exists or the stored one has expired.
func (m *Manager) GetOrCreate(senderID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.liveLocked(senderID))
}

func (m *Manager) Update(senderID string, patch Patch) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveLocked(senderID)
	m.applyLocked(s, patch)
	return clone(s)
}

func (m *Manager) applyLocked(s *Session, patch Patch) {
	if patch.State != nil {
		s.State = *patch.State
	}
	if patch.Intent != nil {
		s.Intent = *patch.Intent
	}
	if patch.Files != nil {
		s.Files = append([]FileRef(nil), (*patch.Files)...)
	}
	if patch.Pending != nil {
		s.Pending = *patch.Pending
	}
	if patch.Params != nil {
		s.Params = *patch.Params
	}
	s.UpdatedAt = m.now().UTC()
}

// ApplyFields is the untyped form of Update. Keys that do not name a session
// field, or carry a value of the wrong type or outside the known states and
// intents, are skipped. A state or intent change that would leave the record
// inconsistent is dropped; the remaining fields still apply.
func (m *Manager) ApplyFields(senderID string, fields map[string]any) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveLocked(senderID)

	var patch Patch
	params := s.Params
	paramsTouched := false
	for key, value := range fields {
		switch key {
		case "state":
			if v, ok := value.(string); ok && State(v).Valid() {
				patch.State = StatePtr(State(v))
				continue
			}
		case "intent":
			if v, ok := value.(string); ok && intent.Intent(v).Valid() {
				patch.Intent = IntentPtr(intent.Intent(v))
				continue
			}
		case "rotation_angle":
			// JSON decoding yields float64 for every number.
			switch v := value.(type) {
			case int:
				params.RotationAngle = v
				paramsTouched = true
				continue
			case float64:
				params.RotationAngle = int(v)
				paramsTouched = true
				continue
			}
		case "quality":
			if v, ok := value.(string); ok {
				params.Quality = v
				paramsTouched = true
				continue
			}
		case "watermark_text":
			if v, ok := value.(string); ok {
				params.WatermarkText = v
				paramsTouched = true
				continue
			}
		case "password":
			if v, ok := value.(string); ok {
				params.Password = v
				paramsTouched = true
				continue
			}
		case "page_spec":
			if v, ok := value.(string); ok {
				params.PageSpec = v
				paramsTouched = true
				continue
			}
		}
		m.logger.Debug("ignoring session field", "field", key)
	}
	if paramsTouched {
		patch.Params = ParamsPtr(params)
	}

	if patch.State != nil || patch.Intent != nil {
		candidate := clone(s)
		m.applyLocked(candidate, patch)
		if !consistent(candidate) {
			m.logger.Debug("ignoring inconsistent session change",
				"state", candidate.State, "intent", candidate.Intent)
			patch.State, patch.Intent = nil, nil
		}
	}
	m.applyLocked(s, patch)
	return clone(s)
}

func (m *Manager) AddFile(senderID string, ref FileRef) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveLocked(senderID)
	s.Files = append(s.Files, ref)
	s.UpdatedAt = m.now().UTC()
	return clone(s)
}

// Clear resets the record to idle defaults, keeping the sender identity.
func (m *Manager) Clear(senderID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.fresh(senderID)
	m.sessions[senderID] = s
	return clone(s)
}

// Sweep drops expired records and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt) <= m.ttl {
			continue
		}
		expired = append(expired, clone(s))
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	return len(expired)
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Debug("expired sessions swept", "count", n)
				}
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if now.Sub(s.UpdatedAt) <= m.ttl {
			count++
		}
	}
	return count
}

// liveLocked must be called with m.mu held for writing.
func (m *Manager) liveLocked(senderID string) *Session {
	s, ok := m.sessions[senderID]
	if ok && m.now().Sub(s.UpdatedAt) <= m.ttl {
		return s
	}
	s = m.fresh(senderID)
	m.sessions[senderID] = s
	return s
}

func (m *Manager) fresh(senderID string) *Session {
	now := m.now().UTC()
	return &Session{
		SenderID:  senderID,
		State:     StateIdle,
		Intent:    intent.None,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func clone(s *Session) *Session {
	c := *s
	if s.Files != nil {
		c.Files = append([]FileRef(nil), s.Files...)
	}
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	return &c
}
