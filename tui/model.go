package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/eventlog"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/input"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
)

// Tabs in display order
const (
	TabPrompt = iota
	TabResults
	TabHistory
	TabSettings
	tabCount
)

var tabNames = []string{"Prompt", "Results", "History", "Settings"}

const historyLimit = 50

// HistoryStore is the subset of the run store the history tab needs
type HistoryStore interface {
	History(limit int) ([]domain.HistoryEntry, error)
	GetRun(id string) (*domain.Run, error)
	ListPhases(runID string) ([]domain.PhaseEntry, error)
	GetResults(runID string) ([]domain.ResultRecord, error)
	ClearHistory() (int64, error)
}

// RunDetail is a past run shown in the history tab
type RunDetail struct {
	Run     *domain.Run
	Phases  []domain.PhaseEntry
	Results []domain.ResultRecord
}

// Model is the TUI application model
type Model struct {
	// Collaborators
	runs      *executor.RunManager
	store     HistoryStore
	settings  *config.Holder
	events    *eventlog.Logger
	collector *input.Collector
	exportDir string

	// Live run
	updates     <-chan executor.Snapshot
	unsubscribe func()
	snap        executor.Snapshot
	stamps      []time.Time

	// Widgets
	textarea textarea.Model
	progress progress.Model
	spinner  spinner.Model
	viewport viewport.Model

	// History
	history []domain.HistoryEntry
	detail  *RunDetail

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	exampleIdx  int
	resultView  presenter.View
	showKey     bool
	status      string
	statusIsErr bool
}

// ModelConfig holds the collaborators of the TUI model
type ModelConfig struct {
	Runs      *executor.RunManager
	Store     HistoryStore
	Settings  *config.Holder
	EventLog  *eventlog.Logger
	Examples  []string
	ExportDir string
}

// NewModel creates a new TUI model subscribed to the run manager
func NewModel(cfg ModelConfig) Model {
	ta := textarea.New()
	ta.Placeholder = "Describe the data you want to scrape..."
	ta.ShowLineNumbers = false
	ta.SetHeight(4)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = "."
	}

	m := Model{
		runs:       cfg.Runs,
		store:      cfg.Store,
		settings:   cfg.Settings,
		events:     cfg.EventLog,
		collector:  input.NewCollector(cfg.Examples),
		exportDir:  exportDir,
		textarea:   ta,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:    sp,
		viewport:   viewport.New(80, 12),
		resultView: presenter.ViewPreview,
		exampleIdx: -1,
	}
	if cfg.Runs != nil {
		m.updates, m.unsubscribe = cfg.Runs.Subscribe()
		m.snap = cfg.Runs.Snapshot()
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitForUpdate(m.updates),
		loadHistory(m.store),
	)
}

// Close releases the run subscription
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// SnapshotMsg carries a live run update
type SnapshotMsg executor.Snapshot

// HistoryMsg carries a reloaded history list
type HistoryMsg struct {
	Entries []domain.HistoryEntry
	Err     error
}

// DetailMsg carries a loaded past run
type DetailMsg struct {
	Detail *RunDetail
	Err    error
}

// StatusMsg sets the status line
type StatusMsg struct {
	Text string
	Err  error
}

func waitForUpdate(updates <-chan executor.Snapshot) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return SnapshotMsg(snap)
	}
}

func loadHistory(store HistoryStore) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		entries, err := store.History(historyLimit)
		return HistoryMsg{Entries: entries, Err: err}
	}
}

func loadDetail(store HistoryStore, id string) tea.Cmd {
	return func() tea.Msg {
		run, err := store.GetRun(id)
		if err != nil {
			return DetailMsg{Err: err}
		}
		phases, err := store.ListPhases(id)
		if err != nil {
			return DetailMsg{Err: err}
		}
		results, err := store.GetResults(id)
		if err != nil {
			return DetailMsg{Err: err}
		}
		return DetailMsg{Detail: &RunDetail{Run: run, Phases: phases, Results: results}}
	}
}
