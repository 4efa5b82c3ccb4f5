package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/docbot/internal/intent"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(ttl time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(ttl, WithClock(clock.Now)), clock
}

func TestManagerGetOrCreateDefaults(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	s := m.GetOrCreate("u1")
	if s.SenderID != "u1" || s.State != StateIdle || s.Intent != intent.None {
		t.Fatalf("unexpected fresh session: %+v", s)
	}
	if len(s.Files) != 0 || s.Pending != nil {
		t.Fatalf("fresh session should carry no files or pending payload: %+v", s)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}
}

func TestManagerUpdateAppliesOnlySetFields(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.Update("u1", Patch{Intent: IntentPtr(intent.Watermark)})
	got := m.Update("u1", Patch{
		State:   StatePtr(StateAwaitingInput),
		Pending: PendingPtr(&Payload{Data: []byte("%PDF"), Filename: "a.pdf", MimeType: "application/pdf"}),
	})
	if got.Intent != intent.Watermark {
		t.Fatalf("Intent = %q, want %q", got.Intent, intent.Watermark)
	}
	if got.State != StateAwaitingInput || got.Pending == nil || got.Pending.Filename != "a.pdf" {
		t.Fatalf("unexpected session after update: %+v", got)
	}

	cleared := m.Update("u1", Patch{Pending: PendingPtr(nil)})
	if cleared.Pending != nil {
		t.Fatalf("Pending = %+v, want nil", cleared.Pending)
	}
}

func TestManagerApplyFieldsIgnoresUnknown(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	got := m.ApplyFields("u1", map[string]any{
		"intent":         "rotate",
		"rotation_angle": 180,
		"colour":         "blue",
		"quality":        7,
	})
	if got.Intent != intent.Rotate || got.Params.RotationAngle != 180 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Params.Quality != "" {
		t.Fatalf("Quality = %q, want empty for mistyped value", got.Params.Quality)
	}
}

func TestManagerAddFileKeepsOrder(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.AddFile("u1", FileRef{MediaID: "m1", MimeType: "image/jpeg"})
	m.AddFile("u1", FileRef{MediaID: "m2", MimeType: "application/pdf"})
	got := m.AddFile("u1", FileRef{MediaID: "m3", MimeType: "image/png"})
	if len(got.Files) != 3 {
		t.Fatalf("len(Files) = %d, want 3", len(got.Files))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got.Files[i].MediaID != want {
			t.Fatalf("Files[%d] = %q, want %q", i, got.Files[i].MediaID, want)
		}
	}
}

func TestManagerReturnsCopies(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	s := m.AddFile("u1", FileRef{MediaID: "m1"})
	s.Files[0].MediaID = "mutated"
	s.State = StateProcessing

	got := m.GetOrCreate("u1")
	if got.Files[0].MediaID != "m1" || got.State != StateIdle {
		t.Fatalf("caller mutation leaked into store: %+v", got)
	}
}

func TestManagerClearResetsToDefaults(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.Update("u1", Patch{State: StatePtr(StateCollectingFiles), Intent: IntentPtr(intent.Merge)})
	m.AddFile("u1", FileRef{MediaID: "m1"})

	got := m.Clear("u1")
	if got.State != StateIdle || got.Intent != intent.None || len(got.Files) != 0 {
		t.Fatalf("Clear() left state behind: %+v", got)
	}
	if got.SenderID != "u1" {
		t.Fatalf("SenderID = %q, want u1", got.SenderID)
	}
}

func TestManagerExpiredSessionIsReplaced(t *testing.T) {
	m, clock := newTestManager(10 * time.Minute)
	m.Update("u1", Patch{State: StatePtr(StateCollectingFiles), Intent: IntentPtr(intent.Merge)})
	m.AddFile("u1", FileRef{MediaID: "m1"})

	clock.Advance(10*time.Minute + time.Second)
	got := m.GetOrCreate("u1")
	if got.State != StateIdle || got.Intent != intent.None || len(got.Files) != 0 {
		t.Fatalf("expired session was returned: %+v", got)
	}
}

func TestManagerTouchWithinTTLKeepsSession(t *testing.T) {
	m, clock := newTestManager(10 * time.Minute)
	m.Update("u1", Patch{Intent: IntentPtr(intent.Compress)})
	clock.Advance(9 * time.Minute)
	m.Update("u1", Patch{})
	clock.Advance(9 * time.Minute)

	if got := m.GetOrCreate("u1"); got.Intent != intent.Compress {
		t.Fatalf("Intent = %q, want %q", got.Intent, intent.Compress)
	}
}

func TestManagerSweepRemovesExpired(t *testing.T) {
	m, clock := newTestManager(time.Minute)
	var hooked []string
	m.SetExpireHook(func(s *Session) { hooked = append(hooked, s.SenderID) })

	m.GetOrCreate("old")
	clock.Advance(2 * time.Minute)
	m.GetOrCreate("new")

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if len(hooked) != 1 || hooked[0] != "old" {
		t.Fatalf("expire hook calls = %v, want [old]", hooked)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}
}

func TestManagerJanitorSweeps(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	m.GetOrCreate("u1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.RLock()
		n := len(m.sessions)
		m.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("janitor did not remove expired session")
}

func TestManagerApplyFieldsAcceptsJSONNumbers(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	got := m.ApplyFields("u1", map[string]any{"rotation_angle": float64(270)})
	if got.Params.RotationAngle != 270 {
		t.Fatalf("RotationAngle = %d, want 270", got.Params.RotationAngle)
	}
}

func TestManagerApplyFieldsRejectsUnknownStateAndIntent(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	got := m.ApplyFields("u1", map[string]any{"state": "bogus", "intent": "nope", "quality": "low"})
	if got.State != StateIdle || got.Intent != intent.None {
		t.Fatalf("state/intent = %q/%q, want idle/none", got.State, got.Intent)
	}
	if got.Params.Quality != "low" {
		t.Fatalf("Quality = %q, want low", got.Params.Quality)
	}
}

func TestManagerApplyFieldsKeepsInvariants(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	got := m.ApplyFields("u1", map[string]any{"state": "collecting_files", "intent": "compress"})
	if got.State != StateIdle || got.Intent != intent.None {
		t.Fatalf("collecting with compress: state/intent = %q/%q, want unchanged", got.State, got.Intent)
	}

	got = m.ApplyFields("u1", map[string]any{"state": "awaiting_input", "intent": "watermark"})
	if got.State != StateIdle || got.Pending != nil {
		t.Fatalf("awaiting input without pending: state = %q, want idle", got.State)
	}

	got = m.ApplyFields("u1", map[string]any{"state": "collecting_files", "intent": "merge"})
	if got.State != StateCollectingFiles || got.Intent != intent.Merge {
		t.Fatalf("merge collection: state/intent = %q/%q, want collecting_files/merge", got.State, got.Intent)
	}

	got = m.ApplyFields("u1", map[string]any{"intent": "rotate", "rotation_angle": 90})
	if got.Intent != intent.Merge || got.Params.RotationAngle != 90 {
		t.Fatalf("intent change mid-merge = %q (angle %d), want merge kept and angle applied", got.Intent, got.Params.RotationAngle)
	}

	m.Update("u2", Patch{Intent: IntentPtr(intent.Split), Pending: PendingPtr(&Payload{Data: []byte("%PDF"), MimeType: "application/pdf"})})
	got = m.ApplyFields("u2", map[string]any{"state": "awaiting_input"})
	if got.State != StateAwaitingInput || got.Intent != intent.Split {
		t.Fatalf("awaiting input with pending split: state/intent = %q/%q", got.State, got.Intent)
	}
}
