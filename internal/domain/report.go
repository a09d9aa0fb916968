package domain

import (
	"errors"
	"math"
	"strings"
)

// ErrEmptyPrompt is returned when a prompt is empty or whitespace-only
var ErrEmptyPrompt = errors.New("prompt is empty")

// Prompt is the natural-language description of the data to extract.
// It is immutable once submitted.
type Prompt string

// Validate returns ErrEmptyPrompt if the prompt has no visible content
func (p Prompt) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// String returns the prompt text
func (p Prompt) String() string {
	return string(p)
}

// ExecutionReport is the append-only phase log of the live run
type ExecutionReport struct {
	Phases   []ExecutionPhase `json:"phases"`
	Progress int              `json:"progress"`
	Complete bool             `json:"complete"`
}

// Progress computes round(100 * emitted / total), clamped to [0, 100]
func Progress(emitted, total int) int {
	if total <= 0 || emitted <= 0 {
		return 0
	}
	if emitted >= total {
		return 100
	}
	return int(math.Round(100 * float64(emitted) / float64(total)))
}

// Append adds the next phase and recomputes progress against total
func (r *ExecutionReport) Append(phase ExecutionPhase, total int) {
	r.Phases = append(r.Phases, phase)
	r.Progress = Progress(len(r.Phases), total)
}

// Reset clears the report to empty/zero
func (r *ExecutionReport) Reset() {
	r.Phases = nil
	r.Progress = 0
	r.Complete = false
}

// Clone returns a deep copy safe to hand to another goroutine
func (r ExecutionReport) Clone() ExecutionReport {
	c := r
	if r.Phases != nil {
		c.Phases = make([]ExecutionPhase, len(r.Phases))
		copy(c.Phases, r.Phases)
	}
	return c
}

// KindOf classifies a log line by its phase keyword
func KindOf(line string) PhaseKind {
	switch {
	case strings.Contains(line, "Initializing"):
		return KindInitializing
	case strings.Contains(line, "Analyzing"):
		return KindAnalyzing
	case strings.Contains(line, "Setting up"):
		return KindAutomation
	case strings.Contains(line, "Processing"):
		return KindProcessing
	default:
		return KindOther
	}
}
