package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := config.ScheduleEntry{Name: "nightly", Cron: "0 2 * * *", Prompt: "Scrape product prices"}
	if err := Validate(valid); err != nil {
		t.Errorf("valid entry: %v", err)
	}

	tests := []struct {
		name  string
		entry config.ScheduleEntry
	}{
		{"no name", config.ScheduleEntry{Cron: "0 2 * * *", Prompt: "p"}},
		{"no cron", config.ScheduleEntry{Name: "n", Prompt: "p"}},
		{"bad cron", config.ScheduleEntry{Name: "n", Cron: "every day", Prompt: "p"}},
		{"blank prompt", config.ScheduleEntry{Name: "n", Cron: "0 2 * * *", Prompt: "  "}},
	}
	for _, tt := range tests {
		if err := Validate(tt.entry); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestNewScheduler_DuplicateName(t *testing.T) {
	e := config.ScheduleEntry{Name: "dup", Cron: "* * * * *", Prompt: "p"}
	if _, err := NewScheduler([]config.ScheduleEntry{e, e}); err == nil {
		t.Error("expected error for duplicate names")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	sched, err := NewScheduler([]config.ScheduleEntry{{Name: "test", Cron: "0 22 * * *", Prompt: "p"}})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}
	if next.Hour() != 22 || next.Minute() != 0 {
		t.Errorf("NextRun = %v, want 22:00", next)
	}
	if !sched.NextRun("missing").IsZero() {
		t.Error("unknown schedule should have no next run")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	sched, err := NewScheduler([]config.ScheduleEntry{{Name: "minutely", Cron: "* * * * *", Prompt: "p"}})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	sched.now = func() time.Time { return now }
	sched.started = now

	if sched.ShouldRun("minutely") {
		t.Error("should not run before the next minute boundary")
	}

	now = now.Add(time.Minute)
	if !sched.ShouldRun("minutely") {
		t.Error("should run after the next minute boundary")
	}

	sched.MarkRunning("minutely")
	if sched.ShouldRun("minutely") {
		t.Error("should not run while already running")
	}

	sched.MarkComplete("minutely")
	if sched.ShouldRun("minutely") {
		t.Error("should not run again in the same minute")
	}
}

func TestScheduler_Tick(t *testing.T) {
	sched, err := NewScheduler([]config.ScheduleEntry{
		{Name: "a", Cron: "* * * * *", Prompt: "Scrape product prices"},
		{Name: "b", Cron: "0 0 1 1 *", Prompt: "Extract job listings"},
	})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	sched.started = now
	sched.now = func() time.Time { return now.Add(time.Minute) }

	var mu sync.Mutex
	var fired []string
	done := make(chan struct{})
	sched.Tick(context.Background(), func(ctx context.Context, e config.ScheduleEntry) error {
		mu.Lock()
		fired = append(fired, e.Name)
		mu.Unlock()
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("due schedule did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "a" {
		t.Errorf("fired = %v, want [a]", fired)
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	sched, _ := NewScheduler(nil)
	done := make(chan struct{})
	go func() {
		sched.Start(context.Background(), func(context.Context, config.ScheduleEntry) error { return nil })
		close(done)
	}()

	sched.Stop()
	sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loop did not stop")
	}
}
