// Package schedule submits configured prompts on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a standard five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Validate checks a schedule entry
func Validate(e config.ScheduleEntry) error {
	if e.Name == "" {
		return errors.New("schedule name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("schedule %s: cron expression is required", e.Name)
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", e.Name, err)
	}
	if err := domain.Prompt(e.Prompt).Validate(); err != nil {
		return fmt.Errorf("schedule %s: %w", e.Name, err)
	}
	return nil
}

type entry struct {
	cfg   config.ScheduleEntry
	sched cron.Schedule
}

// Scheduler fires scheduled prompts. A schedule whose previous run is still
// in flight is skipped until it finishes.
type Scheduler struct {
	entries  map[string]entry
	lastRun  map[string]time.Time
	running  map[string]bool
	started  time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler validates entries and creates a scheduler
func NewScheduler(entries []config.ScheduleEntry) (*Scheduler, error) {
	s := &Scheduler{
		entries:  make(map[string]entry),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		interval: time.Minute,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.started = s.now()

	for _, e := range entries {
		if err := Validate(e); err != nil {
			return nil, err
		}
		if _, dup := s.entries[e.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule name %q", e.Name)
		}
		sched, _ := ParseCron(e.Cron)
		s.entries[e.Name] = entry{cfg: e, sched: sched}
	}

	return s, nil
}

// NextRun returns the next scheduled time for a schedule
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return e.sched.Next(s.now())
}

// ShouldRun returns true if a schedule is due and not already running.
// Schedules never fire for times before the scheduler was created.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok || s.running[name] {
		return false
	}

	last := s.lastRun[name]
	if last.IsZero() {
		last = s.started
	}
	return !s.now().Before(e.sched.Next(last))
}

// MarkRunning marks a schedule as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a schedule as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// Get returns the config for a schedule
func (s *Scheduler) Get(name string) (config.ScheduleEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e.cfg, ok
}

// Names returns all schedule names, sorted
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunFunc submits a scheduled prompt and blocks until it finishes
type RunFunc func(ctx context.Context, e config.ScheduleEntry) error

// Tick starts every due schedule once
func (s *Scheduler) Tick(ctx context.Context, run RunFunc) {
	for _, name := range s.Names() {
		if !s.ShouldRun(name) {
			continue
		}
		cfg, _ := s.Get(name)
		s.MarkRunning(name)
		go func(c config.ScheduleEntry) {
			defer s.MarkComplete(c.Name)
			if err := run(ctx, c); err != nil {
				log.Printf("Schedule %s failed: %v", c.Name, err)
			}
		}(cfg)
	}
}

// Start runs the scheduler loop until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Tick(ctx, run)
		}
	}
}

// Stop stops the scheduler loop
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
