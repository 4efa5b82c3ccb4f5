package conversions

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"
)

type FeatureUsage struct {
	Feature   string `json:"feature"`
	Total     int    `json:"total"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
}

type Stats struct {
	Total            int            `json:"total_conversions"`
	Today            int            `json:"today_conversions"`
	SuccessRate      float64        `json:"success_rate"`
	Pending          int            `json:"pending"`
	Failed           int            `json:"failed"`
	ActiveUsers      int            `json:"active_users"`
	AvgProcessingMS  int64          `json:"avg_processing_time_ms"`
	TopFeature       string         `json:"top_feature"`
	TotalBandwidthMB float64        `json:"total_bandwidth_mb"`
	Features         []FeatureUsage `json:"features"`
}

// Summarize aggregates records into dashboard figures. now decides what
// counts as today.
func Summarize(records []Record, now time.Time) Stats {
	var st Stats
	st.Total = len(records)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	senders := make(map[string]struct{})
	byFeature := make(map[string]*FeatureUsage)
	var success int
	var timed, timeSum int64
	var bytes int64

	for _, r := range records {
		if !r.CreatedAt.Before(todayStart) {
			st.Today++
		}
		senders[r.Sender] = struct{}{}
		bytes += r.InputBytes
		if r.ProcessingMS > 0 {
			timed++
			timeSum += r.ProcessingMS
		}

		fu := byFeature[r.Feature]
		if fu == nil {
			fu = &FeatureUsage{Feature: r.Feature}
			byFeature[r.Feature] = fu
		}
		fu.Total++

		switch r.Status {
		case StatusSuccess:
			success++
			fu.Successes++
		case StatusPending:
			st.Pending++
		case StatusFailed, StatusDeliveryFailed:
			st.Failed++
			fu.Failures++
		}
	}

	if st.Total > 0 {
		st.SuccessRate = float64(success*1000/st.Total) / 10
	}
	st.ActiveUsers = len(senders)
	if timed > 0 {
		st.AvgProcessingMS = timeSum / timed
	}
	st.TotalBandwidthMB = float64(bytes*100/(1<<20)) / 100

	for _, fu := range byFeature {
		st.Features = append(st.Features, *fu)
	}
	sort.Slice(st.Features, func(i, j int) bool {
		if st.Features[i].Successes != st.Features[j].Successes {
			return st.Features[i].Successes > st.Features[j].Successes
		}
		return st.Features[i].Feature < st.Features[j].Feature
	})
	st.TopFeature = "-"
	if len(st.Features) > 0 && st.Features[0].Successes > 0 {
		st.TopFeature = st.Features[0].Feature
	}
	return st
}

var csvHeader = []string{
	"id", "sender", "status", "feature", "input_type", "output_type",
	"input_bytes", "output_bytes", "processing_ms", "error", "created_at",
}

// WriteCSV exports records with a header row. mask is applied to sender ids.
func WriteCSV(w io.Writer, records []Record, mask func(string) string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		sender := r.Sender
		if mask != nil {
			sender = mask(sender)
		}
		row := []string{
			r.ID, sender, string(r.Status), r.Feature, r.InputType, r.OutputType,
			strconv.FormatInt(r.InputBytes, 10),
			strconv.FormatInt(r.OutputBytes, 10),
			strconv.FormatInt(r.ProcessingMS, 10),
			r.Error,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
