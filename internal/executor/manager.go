package executor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/eventlog"
	"github.com/hochfrequenz/prompt-scraper/internal/input"
	"github.com/hochfrequenz/prompt-scraper/internal/notify"
	"github.com/hochfrequenz/prompt-scraper/internal/observer"
)

var (
	// ErrNoActiveRun is returned by Cancel when nothing is running
	ErrNoActiveRun = errors.New("no active run")
	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("run manager closed")
)

// Status is the lifecycle state of the live run
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// Snapshot is a copy of the live run state. Event names the update that
// produced it.
type Snapshot struct {
	RunID      string                 `json:"run_id,omitempty"`
	Prompt     string                 `json:"prompt"`
	Status     Status                 `json:"status"`
	Report     domain.ExecutionReport `json:"report"`
	Results    []domain.ResultRecord  `json:"results"`
	Generation uint64                 `json:"generation"`
	Event      UpdateKind             `json:"event,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// Running reports whether the snapshot is of an executing run
func (s Snapshot) Running() bool {
	return s.Status == StatusRunning
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Report = s.Report.Clone()
	if s.Results != nil {
		c.Results = make([]domain.ResultRecord, len(s.Results))
		copy(c.Results, s.Results)
	}
	return c
}

// RunStore defines the interface for persisting runs
type RunStore interface {
	CreateRun(run *domain.Run) error
	AppendPhase(entry domain.PhaseEntry) error
	FinishRun(run *domain.Run) error
	SaveResults(runID string, records []domain.ResultRecord) error
}

// Handle controls one started run
type Handle struct {
	runID  string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// RunID returns the id of the run
func (h *Handle) RunID() string { return h.runID }

// Cancel stops the run. It is safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the run has finished and its outcome is recorded
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns nil on success or the
// context error if it was cancelled or superseded.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// dbOp represents a database operation to be executed by the write queue
type dbOp struct {
	opType  string
	run     *domain.Run
	phase   domain.PhaseEntry
	runID   string
	records []domain.ResultRecord
}

// RunManager owns the single live run. Starting a new run supersedes the
// previous one; updates from a superseded run are discarded.
type RunManager struct {
	reporter *Reporter
	store    RunStore
	observer *observer.Observer
	notifier notify.Notifier
	events   *eventlog.Logger
	settings func() config.Settings

	mu      sync.RWMutex
	state   Snapshot
	gen     uint64
	current *Handle
	closed  bool
	subs    map[int]chan Snapshot
	nextSub int
	wg      sync.WaitGroup

	// Database write queue for serializing DB operations
	dbWriteChan chan dbOp
	dbWriteDone chan struct{}
}

// NewRunManager creates a manager that plays runs with reporter
func NewRunManager(reporter *Reporter) *RunManager {
	m := &RunManager{
		reporter:    reporter,
		state:       Snapshot{Status: StatusIdle},
		subs:        make(map[int]chan Snapshot),
		settings:    func() config.Settings { return config.Default().Settings },
		dbWriteChan: make(chan dbOp, 100),
		dbWriteDone: make(chan struct{}),
	}
	go m.dbWriter()
	return m
}

// SetReporter replaces the reporter used by subsequent runs
func (m *RunManager) SetReporter(r *Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporter = r
}

// SetStore sets the persistence store
func (m *RunManager) SetStore(store RunStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
}

// SetObserver sets the metrics observer
func (m *RunManager) SetObserver(o *observer.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// SetNotifier sets the completion notifier
func (m *RunManager) SetNotifier(n notify.Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// SetEventLog sets the structured event log
func (m *RunManager) SetEventLog(l *eventlog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = l
}

// SetSettings sets the function consulted for the current settings at
// the end of each run
func (m *RunManager) SetSettings(fn func() config.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = fn
}

// dbWriter processes database operations sequentially
func (m *RunManager) dbWriter() {
	for op := range m.dbWriteChan {
		m.execDBOp(op)
	}
	close(m.dbWriteDone)
}

func (m *RunManager) execDBOp(op dbOp) {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()
	if store == nil {
		return
	}

	var err error
	switch op.opType {
	case "create":
		err = store.CreateRun(op.run)
	case "phase":
		err = store.AppendPhase(op.phase)
	case "finish":
		err = store.FinishRun(op.run)
	case "results":
		err = store.SaveResults(op.runID, op.records)
	}
	if err != nil {
		log.Printf("Warning: run store %s failed for %s: %v", op.opType, op.runKey(), err)
	}
}

func (op dbOp) runKey() string {
	switch {
	case op.run != nil:
		return op.run.ID
	case op.phase.RunID != "":
		return op.phase.RunID
	default:
		return op.runID
	}
}

// queueDBOp queues a database operation for async execution
func (m *RunManager) queueDBOp(op dbOp) {
	select {
	case m.dbWriteChan <- op:
	default:
		// Channel full, execute synchronously as fallback
		m.execDBOp(op)
	}
}

// Snapshot returns a copy of the live run state
func (m *RunManager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Running reports whether a run is executing
func (m *RunManager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status == StatusRunning
}

// Subscribe returns a channel receiving a snapshot after every applied
// update, and a function that releases it. Slow subscribers miss updates
// rather than blocking the run.
func (m *RunManager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 64)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// broadcast must be called with m.mu held
func (m *RunManager) broadcast() {
	for _, ch := range m.subs {
		select {
		case ch <- m.state.clone():
		default:
		}
	}
}

// Start validates prompt and begins a new run, cancelling any run in
// progress. The live state is reset before Start returns.
func (m *RunManager) Start(ctx context.Context, prompt domain.Prompt) (*Handle, error) {
	return m.start(ctx, prompt, false)
}

// StartIfIdle is Start for callers that must not supersede a live run. The
// idle check and the start happen under one lock, so of two concurrent
// callers only one succeeds; the other gets input.ErrRunInProgress.
func (m *RunManager) StartIfIdle(ctx context.Context, prompt domain.Prompt) (*Handle, error) {
	return m.start(ctx, prompt, true)
}

func (m *RunManager) start(ctx context.Context, prompt domain.Prompt, ifIdle bool) (*Handle, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	now := time.Now()
	h := &Handle{
		runID:  uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	if ifIdle && m.state.Status == StatusRunning {
		m.mu.Unlock()
		cancel()
		return nil, input.ErrRunInProgress
	}
	if m.current != nil {
		m.current.cancel()
	}
	m.gen++
	gen := m.gen
	m.current = h
	m.state = Snapshot{
		RunID:      h.runID,
		Prompt:     prompt.String(),
		Status:     StatusRunning,
		Generation: gen,
		Event:      UpdateReset,
		StartedAt:  &now,
	}
	events := m.events
	reporter := m.reporter
	m.wg.Add(1)
	m.mu.Unlock()

	run := &domain.Run{
		ID:        h.runID,
		Prompt:    prompt.String(),
		Status:    domain.RunRunning,
		StartedAt: now,
	}
	m.queueDBOp(dbOp{opType: "create", run: run})
	events.LogRunStarted(run.ID, run.Prompt)

	go m.execute(runCtx, reporter, gen, h, prompt, run)

	return h, nil
}

func (m *RunManager) execute(ctx context.Context, reporter *Reporter, gen uint64, h *Handle, prompt domain.Prompt, run *domain.Run) {
	defer m.wg.Done()
	defer close(h.done)
	defer h.cancel()

	var seq int
	results, err := reporter.Run(ctx, prompt, func(u Update) {
		if !m.apply(gen, u) {
			return
		}
		if u.Kind == UpdatePhase {
			seq++
			m.queueDBOp(dbOp{opType: "phase", phase: domain.PhaseEntry{
				RunID:     run.ID,
				Seq:       seq,
				Timestamp: time.Now(),
				Phase:     u.Phase,
			}})
			m.mu.RLock()
			events := m.events
			m.mu.RUnlock()
			events.LogPhase(run.ID, string(u.Phase), u.Report.Progress)
		}
	})
	h.err = err

	m.mu.RLock()
	obs, notifier, events, settingsFn := m.observer, m.notifier, m.events, m.settings
	m.mu.RUnlock()
	settings := settingsFn()

	finished := time.Now()
	run.FinishedAt = &finished

	if err != nil {
		run.Status = domain.RunFailed
		run.Preview = domain.CancelledPreview
		run.Progress = m.progressFor(gen)
		m.queueDBOp(dbOp{opType: "finish", run: run})

		superseded := !m.markCancelled(gen, finished)
		reason := "cancelled"
		if superseded {
			reason = "superseded"
		}
		events.LogRunCancelled(run.ID, reason)
		if obs != nil {
			obs.RecordCancellation(run.ID, run.Duration())
		}
		return
	}

	count := len(results)
	run.Status = domain.RunSuccess
	run.Progress = 100
	run.Preview = domain.ResultPreview(count)
	run.ResultCount = &count
	m.queueDBOp(dbOp{opType: "finish", run: run})
	if settings.SaveResults {
		m.queueDBOp(dbOp{opType: "results", runID: run.ID, records: results})
	}

	events.LogRunComplete(run.ID, count, run.Duration())
	if obs != nil {
		obs.RecordCompletion(run.ID, run.Duration(), count)
	}
	if settings.Notifications && notifier != nil {
		if err := notifier.Send(notify.ForRun(run)); err != nil {
			log.Printf("Warning: notification for run %s failed: %v", run.ID, err)
		}
	}
}

// apply folds u into the live state if gen is still current. It returns
// false for updates from a superseded run.
func (m *RunManager) apply(gen uint64, u Update) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}

	m.state.Event = u.Kind
	switch u.Kind {
	case UpdateReset:
		m.state.Report = domain.ExecutionReport{}
		m.state.Results = nil
	case UpdatePhase:
		m.state.Report = u.Report.Clone()
	case UpdateResults:
		m.state.Report = u.Report.Clone()
		m.state.Results = make([]domain.ResultRecord, len(u.Results))
		copy(m.state.Results, u.Results)
		m.state.Status = StatusComplete
		now := time.Now()
		m.state.FinishedAt = &now
	}
	m.broadcast()
	return true
}

// markCancelled records cancellation on the live state if gen is current
func (m *RunManager) markCancelled(gen uint64, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}
	m.state.Status = StatusCancelled
	m.state.Event = UpdateCancelled
	m.state.FinishedAt = &at
	m.broadcast()
	return true
}

func (m *RunManager) progressFor(gen uint64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if gen != m.gen {
		return 0
	}
	return m.state.Report.Progress
}

// Cancel stops the live run
func (m *RunManager) Cancel() error {
	m.mu.RLock()
	h := m.current
	running := m.state.Status == StatusRunning
	m.mu.RUnlock()

	if h == nil || !running {
		return ErrNoActiveRun
	}
	h.Cancel()
	return nil
}

// Current returns the handle of the most recently started run, or nil
func (m *RunManager) Current() *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Close cancels the live run, waits for all runs to record their outcome,
// releases subscribers and drains the write queue.
func (m *RunManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.current != nil {
		m.current.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	close(m.dbWriteChan)
	<-m.dbWriteDone
}
