// Package conversions keeps an operator-facing log of pipeline attempts.
package conversions

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusDeliveryFailed Status = "delivery_failed"
)

// Record is one pipeline attempt. Writing a record whose ID already exists
// replaces the earlier entry, so an attempt moves from pending to its final
// status in place.
type Record struct {
	ID           string    `json:"id"`
	Sender       string    `json:"sender"`
	Status       Status    `json:"status"`
	Feature      string    `json:"feature"`
	InputType    string    `json:"input_type,omitempty"`
	OutputType   string    `json:"output_type,omitempty"`
	InputBytes   int64     `json:"input_bytes"`
	OutputBytes  int64     `json:"output_bytes"`
	ProcessingMS int64     `json:"processing_ms"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists conversion records.
type Store interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
