package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

// Observer monitors run execution and collects metrics
type Observer struct {
	stuckThreshold time.Duration

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	RunID       string
	Duration    time.Duration
	Results     int
	Cancelled   bool
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalCompleted  int           `json:"total_completed"`
	TotalCancelled  int           `json:"total_cancelled"`
	TotalResults    int           `json:"total_results"`
	AvgDuration     time.Duration `json:"avg_duration_ns"`
	LastCompletedAt *time.Time    `json:"last_completed_at,omitempty"`
}

// New creates a new Observer
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
	}
}

// IsStuck returns true if a run has been running longer than the threshold
func (o *Observer) IsStuck(run *domain.Run) bool {
	if run.Status != domain.RunRunning {
		return false
	}
	if run.StartedAt.IsZero() {
		return false
	}
	return time.Since(run.StartedAt) > o.stuckThreshold
}

// RecordCompletion records a successful run
func (o *Observer) RecordCompletion(runID string, duration time.Duration, results int) {
	o.record(completion{RunID: runID, Duration: duration, Results: results})
}

// RecordCancellation records a run that was cancelled or superseded
func (o *Observer) RecordCancellation(runID string, duration time.Duration) {
	o.record(completion{RunID: runID, Duration: duration, Cancelled: true})
}

func (o *Observer) record(c completion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c.CompletedAt = time.Now()
	o.completions = append(o.completions, c)
}

// GetMetrics returns aggregated metrics. AvgDuration only counts
// successful runs.
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration

	for _, c := range o.completions {
		if c.Cancelled {
			metrics.TotalCancelled++
			continue
		}
		metrics.TotalCompleted++
		metrics.TotalResults += c.Results
		totalDuration += c.Duration
		at := c.CompletedAt
		metrics.LastCompletedAt = &at
	}

	if metrics.TotalCompleted > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(metrics.TotalCompleted)
	}

	return metrics
}

// GetRecentCompletions returns run IDs completed within the last duration
func (o *Observer) GetRecentCompletions(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var result []string

	for _, c := range o.completions {
		if !c.Cancelled && c.CompletedAt.After(cutoff) {
			result = append(result, c.RunID)
		}
	}

	return result
}
