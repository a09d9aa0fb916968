package domain

import (
	"fmt"
	"time"
)

// ResultRecord is one extracted row. Field order is the serialization order.
type ResultRecord struct {
	Name   string `json:"name"`
	Price  string `json:"price"`
	Rating string `json:"rating"`
	URL    string `json:"url"`
}

// Run represents a single submitted prompt and its outcome
type Run struct {
	ID          string
	Prompt      string
	Status      RunStatus
	Progress    int
	Preview     string
	ResultCount *int
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// PhaseEntry is one phase line recorded for a run
type PhaseEntry struct {
	RunID     string
	Seq       int
	Timestamp time.Time
	Phase     ExecutionPhase
}

// HistoryEntry is the display form of a past run
type HistoryEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Prompt      string    `json:"prompt"`
	Status      RunStatus `json:"status"`
	Preview     string    `json:"preview"`
	ResultCount *int      `json:"result_count,omitempty"`
}

// HistoryEntry converts a run into its history form
func (r *Run) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		ID:          r.ID,
		Timestamp:   r.StartedAt,
		Prompt:      r.Prompt,
		Status:      r.Status,
		Preview:     r.Preview,
		ResultCount: r.ResultCount,
	}
}

// Duration returns how long the run took, or has been running
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// ResultPreview is the preview text stored for a successful run
func ResultPreview(n int) string {
	return fmt.Sprintf("Found %d results", n)
}

// CancelledPreview is the preview text stored for a cancelled run
const CancelledPreview = "Cancelled"

// FormatAge renders the age of ts relative to now as "Xm ago", "Xh ago" or "Xd ago"
func FormatAge(now, ts time.Time) string {
	diff := now.Sub(ts)
	if diff < 0 {
		diff = 0
	}
	hours := int(diff / time.Hour)
	switch {
	case hours < 1:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	default:
		return fmt.Sprintf("%dd ago", hours/24)
	}
}
