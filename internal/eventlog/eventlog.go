// Package eventlog writes structured run events as JSON lines, keeping one
// rotated file once the log grows past its size cap.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventPhase        EventType = "phase"
	EventRunComplete  EventType = "run_complete"
	EventRunCancelled EventType = "run_cancelled"
	EventExport       EventType = "export"
	EventSchedule     EventType = "schedule"
)

// DefaultMaxSize is the size at which the log is rotated.
const DefaultMaxSize = 10 * 1024 * 1024

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger appends events to a JSONL file. A nil *Logger discards events.
type Logger struct {
	path    string
	maxSize int64
	mu      sync.Mutex
}

// New creates a logger writing to path
func New(path string) *Logger {
	return &Logger{
		path:    path,
		maxSize: DefaultMaxSize,
	}
}

// SetMaxSize changes the rotation threshold
func (l *Logger) SetMaxSize(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxSize = n
}

// Path returns the active log file path
func (l *Logger) Path() string {
	return l.path
}

// Log writes one event. Failures are reported via the standard logger and
// never returned; run execution must not depend on the event log.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("eventlog: marshal %s: %v", evt.Type, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeToFile(data)
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		log.Printf("eventlog: create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.path)
	if err == nil && info.Size() > l.maxSize {
		l.rotate()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("eventlog: open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("eventlog: write log file: %v", err)
	}
}

// rotate keeps a single .old file
func (l *Logger) rotate() {
	oldPath := l.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.path, oldPath)
}

// LogRunStarted records a submitted prompt
func (l *Logger) LogRunStarted(runID, prompt string) {
	l.Log(Event{
		Type:  EventRunStarted,
		RunID: runID,
		Data:  map[string]string{"prompt": prompt},
	})
}

// LogPhase records one emitted phase
func (l *Logger) LogPhase(runID, phase string, progress int) {
	l.Log(Event{
		Type:  EventPhase,
		RunID: runID,
		Data: map[string]any{
			"phase":    phase,
			"progress": progress,
		},
	})
}

// LogRunComplete records a run that delivered results
func (l *Logger) LogRunComplete(runID string, results int, duration time.Duration) {
	l.Log(Event{
		Type:  EventRunComplete,
		RunID: runID,
		Data: map[string]any{
			"results":     results,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// LogRunCancelled records a run stopped before delivering results
func (l *Logger) LogRunCancelled(runID string, reason string) {
	l.Log(Event{
		Type:  EventRunCancelled,
		RunID: runID,
		Data:  map[string]string{"reason": reason},
	})
}

// LogExport records a results export to the clipboard or a file
func (l *Logger) LogExport(runID, target string) {
	l.Log(Event{
		Type:  EventExport,
		RunID: runID,
		Data:  map[string]string{"target": target},
	})
}

// LogSchedule records a scheduled prompt firing
func (l *Logger) LogSchedule(name, prompt string) {
	l.Log(Event{
		Type: EventSchedule,
		Data: map[string]string{"name": name, "prompt": prompt},
	})
}

// rawEvent decodes Data as raw JSON so callers can inspect it lazily
type rawEvent struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReadRecent returns up to limit of the newest events in the active log,
// oldest first. Malformed lines are skipped. limit <= 0 returns all.
func ReadRecent(path string, limit int) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var raw rawEvent
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			continue
		}
		evt := Event{Type: raw.Type, RunID: raw.RunID, Timestamp: raw.Timestamp}
		if len(raw.Data) > 0 {
			var data map[string]any
			if json.Unmarshal(raw.Data, &data) == nil {
				evt.Data = data
			}
		}
		events = append(events, evt)
		if limit > 0 && len(events) > limit {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}
