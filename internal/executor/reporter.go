package executor

import (
	"context"
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

// Default timings of the simulated run
const (
	DefaultPhaseInterval = 800 * time.Millisecond
	DefaultResultDelay   = 1000 * time.Millisecond
)

// UpdateKind identifies what an Update carries
type UpdateKind string

const (
	UpdateReset     UpdateKind = "reset"
	UpdatePhase     UpdateKind = "phase"
	UpdateResults   UpdateKind = "results"
	UpdateCancelled UpdateKind = "cancelled"
)

// Update is one step of a run as seen by the consumer. Report is a copy.
type Update struct {
	Kind    UpdateKind
	Phase   domain.ExecutionPhase
	Report  domain.ExecutionReport
	Results []domain.ResultRecord
}

// Reporter plays the fixed phase sequence for a prompt and then delivers
// the demo result set.
type Reporter struct {
	PhaseInterval time.Duration
	ResultDelay   time.Duration

	phases  []domain.ExecutionPhase
	results []domain.ResultRecord
}

// NewReporter creates a reporter with the given timings
func NewReporter(phaseInterval, resultDelay time.Duration) *Reporter {
	return &Reporter{
		PhaseInterval: phaseInterval,
		ResultDelay:   resultDelay,
		phases:        domain.Phases(),
		results:       DemoResults(),
	}
}

// DemoResults returns the fixed result set every run delivers
func DemoResults() []domain.ResultRecord {
	return []domain.ResultRecord{
		{Name: "Sony WH-1000XM4", Price: "$249.99", Rating: "4.6", URL: "https://amazon.com"},
		{Name: "Bose QuietComfort 45", Price: "$329.99", Rating: "4.5", URL: "https://amazon.com"},
		{Name: "Apple AirPods Max", Price: "$479.99", Rating: "4.4", URL: "https://amazon.com"},
		{Name: "Sennheiser HD 450BT", Price: "$149.99", Rating: "4.3", URL: "https://amazon.com"},
	}
}

// Run emits a reset, then each phase after PhaseInterval, then the results
// after ResultDelay. emit is called synchronously from the calling
// goroutine. Once ctx is done nothing more is emitted and ctx.Err() is
// returned.
func (r *Reporter) Run(ctx context.Context, prompt domain.Prompt, emit func(Update)) ([]domain.ResultRecord, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	sleep := func(d time.Duration) bool {
		if d <= 0 {
			return ctx.Err() == nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return ctx.Err() == nil
		}
	}

	var report domain.ExecutionReport
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	emit(Update{Kind: UpdateReset, Report: report.Clone()})

	total := len(r.phases)
	for _, phase := range r.phases {
		if !sleep(r.PhaseInterval) {
			return nil, ctx.Err()
		}
		report.Append(phase, total)
		emit(Update{Kind: UpdatePhase, Phase: phase, Report: report.Clone()})
	}

	if !sleep(r.ResultDelay) {
		return nil, ctx.Err()
	}

	results := make([]domain.ResultRecord, len(r.results))
	copy(results, r.results)

	report.Complete = true
	emit(Update{Kind: UpdateResults, Report: report.Clone(), Results: results})

	out := make([]domain.ResultRecord, len(results))
	copy(out, results)
	return out, nil
}
