package conversions

import (
	"time"

	"github.com/google/uuid"
)

func normalize(rec Record, now time.Time) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	return rec
}

// merge applies a later write for the same attempt on top of an earlier one.
// Empty fields in next keep the previous value; identity and creation time
// never change.
func merge(prev, next Record) Record {
	out := prev
	out.Status = next.Status
	out.UpdatedAt = next.UpdatedAt
	if next.Feature != "" {
		out.Feature = next.Feature
	}
	if next.InputType != "" {
		out.InputType = next.InputType
	}
	if next.OutputType != "" {
		out.OutputType = next.OutputType
	}
	if next.InputBytes > 0 {
		out.InputBytes = next.InputBytes
	}
	if next.OutputBytes > 0 {
		out.OutputBytes = next.OutputBytes
	}
	if next.ProcessingMS > 0 {
		out.ProcessingMS = next.ProcessingMS
	}
	if next.Error != "" {
		out.Error = next.Error
	}
	return out
}
