package session

import (
	"time"

	"github.com/ent0n29/docbot/internal/intent"
)

type State string

const (
	StateIdle            State = "idle"
	StateCollectingFiles State = "collecting_files"
	StateAwaitingInput   State = "awaiting_input"
	StateProcessing      State = "processing"
)

func (s State) Valid() bool {
	switch s {
	case StateIdle, StateCollectingFiles, StateAwaitingInput, StateProcessing:
		return true
	}
	return false
}

// consistent reports whether the state agrees with the rest of the record:
// collecting files is only for a merge, and awaiting input needs a held
// document and a feature that takes a typed parameter.
func consistent(s *Session) bool {
	switch s.State {
	case StateCollectingFiles:
		return s.Intent == intent.Merge
	case StateAwaitingInput:
		return s.Pending != nil && s.Intent.Deferred()
	}
	return true
}

// FileRef points at a remote media object that has not been fetched yet.
type FileRef struct {
	MediaID  string `json:"media_id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
}

// Payload is a fetched document held between turns.
type Payload struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

type Params struct {
	RotationAngle int    `json:"rotation_angle,omitempty"`
	Quality       string `json:"quality,omitempty"`
	WatermarkText string `json:"watermark_text,omitempty"`
	Password      string `json:"-"`
	PageSpec      string `json:"page_spec,omitempty"`
}

type Session struct {
	SenderID  string        `json:"sender_id"`
	State     State         `json:"state"`
	Intent    intent.Intent `json:"intent,omitempty"`
	Files     []FileRef     `json:"files"`
	Pending   *Payload      `json:"pending,omitempty"`
	Params    Params        `json:"params"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	State   *State
	Intent  *intent.Intent
	Files   *[]FileRef
	Pending **Payload
	Params  *Params
}

func StatePtr(s State) *State { return &s }

func IntentPtr(i intent.Intent) *intent.Intent { return &i }

// PendingPtr wraps p for Patch.Pending; PendingPtr(nil) clears the payload.
func PendingPtr(p *Payload) **Payload { return &p }

func ParamsPtr(p Params) *Params { return &p }
