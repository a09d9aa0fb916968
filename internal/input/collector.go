// Package input holds the prompt text being edited before submission.
package input

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

var (
	// ErrRunInProgress is returned when submitting while a run is executing
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrExampleOutOfRange is returned for an example index outside the list
	ErrExampleOutOfRange = errors.New("example index out of range")
)

// Collector holds the current prompt text and the example prompts.
// It is safe for concurrent use.
type Collector struct {
	mu       sync.RWMutex
	text     string
	examples []string
}

// NewCollector creates a collector with the given examples
func NewCollector(examples []string) *Collector {
	ex := make([]string, len(examples))
	copy(ex, examples)
	return &Collector{examples: ex}
}

// Text returns the current prompt text
func (c *Collector) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// SetText replaces the current prompt text
func (c *Collector) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

// Examples returns a copy of the example prompts
func (c *Collector) Examples() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ex := make([]string, len(c.examples))
	copy(ex, c.examples)
	return ex
}

// SelectExample overwrites the current text with example i
func (c *Collector) SelectExample(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.examples) {
		return fmt.Errorf("%w: %d (have %d)", ErrExampleOutOfRange, i, len(c.examples))
	}
	c.text = c.examples[i]
	return nil
}

// CanSubmit reports whether Submit would succeed
func (c *Collector) CanSubmit(running bool) bool {
	if running {
		return false
	}
	return domain.Prompt(c.Text()).Validate() == nil
}

// Submit returns the current text as a prompt. The text is passed through
// untrimmed.
func (c *Collector) Submit(running bool) (domain.Prompt, error) {
	if running {
		return "", ErrRunInProgress
	}
	p := domain.Prompt(c.Text())
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}
