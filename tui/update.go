package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/eventlog"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
)

// Settings tab rows
const (
	rowAPIKey = iota
	rowRunInContainer
	rowSaveResults
	rowNotifications
	settingsRows
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancelRun()
			return m, tea.Quit
		case "tab":
			return m.switchTab((m.activeTab + 1) % tabCount)
		case "shift+tab":
			return m.switchTab((m.activeTab + tabCount - 1) % tabCount)
		case "esc":
			if m.snap.Running() {
				m.cancelRun()
				m.setStatus("Cancelling run...")
				return m, nil
			}
			if m.detail != nil {
				m.detail = nil
				return m, nil
			}
		}

		switch m.activeTab {
		case TabPrompt:
			return m.updatePrompt(msg)
		case TabResults:
			return m.updateResults(msg)
		case TabHistory:
			return m.updateHistory(msg)
		case TabSettings:
			return m.updateSettings(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(max(msg.Width-4, 20))
		m.viewport.Width = max(msg.Width-4, 20)
		m.viewport.Height = max(msg.Height-12, 5)
		m.progress.Width = min(max(msg.Width-24, 10), 60)
		m.refreshViewport()

	case SnapshotMsg:
		m.applySnapshot(executor.Snapshot(msg))
		cmds := []tea.Cmd{waitForUpdate(m.updates)}
		if msg.Event == executor.UpdateResults || msg.Event == executor.UpdateCancelled {
			cmds = append(cmds, loadHistory(m.store))
		}
		return m, tea.Batch(cmds...)

	case HistoryMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("load history: %w", msg.Err))
			return m, nil
		}
		m.history = msg.Entries
		if m.activeTab == TabHistory && m.selectedRow >= len(m.history) {
			m.selectedRow = max(len(m.history)-1, 0)
		}

	case DetailMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
			return m, nil
		}
		m.detail = msg.Detail

	case StatusMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
		} else {
			m.setStatus(msg.Text)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) switchTab(tab int) (tea.Model, tea.Cmd) {
	m.activeTab = tab
	m.selectedRow = 0
	m.detail = nil
	if tab == TabPrompt {
		return m, m.textarea.Focus()
	}
	m.textarea.Blur()
	if tab == TabHistory {
		return m, loadHistory(m.store)
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		return m.submit()
	case "ctrl+n":
		examples := m.collector.Examples()
		if len(examples) == 0 {
			return m, nil
		}
		m.exampleIdx = (m.exampleIdx + 1) % len(examples)
		if err := m.collector.SelectExample(m.exampleIdx); err != nil {
			m.setError(err)
			return m, nil
		}
		m.textarea.SetValue(m.collector.Text())
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.collector.SetText(m.textarea.Value())
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.runs == nil {
		return m, nil
	}
	m.collector.SetText(m.textarea.Value())
	prompt, err := m.collector.Submit(m.runs.Running())
	if err != nil {
		m.setError(err)
		return m, nil
	}
	if _, err := m.runs.StartIfIdle(context.Background(), prompt); err != nil {
		m.setError(err)
		return m, nil
	}
	m.applySnapshot(m.runs.Snapshot())
	m.setStatus("Run started")
	return m, nil
}

func (m Model) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.cancelRun()
		return m, tea.Quit
	case "v":
		m.resultView = m.resultView.Next()
		m.refreshViewport()
		return m, nil
	case "c":
		return m, copyResults(m.snap.RunID, m.snap.Results, m.events)
	case "d":
		return m, downloadResults(m.snap.RunID, m.exportDir, m.snap.Results, m.events)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.cancelRun()
		return m, tea.Quit
	case "j", "down":
		if m.selectedRow < len(m.history)-1 {
			m.selectedRow++
		}
	case "k", "up":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "enter":
		if m.store != nil && m.selectedRow < len(m.history) {
			return m, loadDetail(m.store, m.history[m.selectedRow].ID)
		}
	case "r":
		return m, loadHistory(m.store)
	case "x":
		if m.store == nil {
			return m, nil
		}
		store := m.store
		m.detail = nil
		m.selectedRow = 0
		return m, func() tea.Msg {
			if _, err := store.ClearHistory(); err != nil {
				return StatusMsg{Err: fmt.Errorf("clear history: %w", err)}
			}
			entries, err := store.History(historyLimit)
			return HistoryMsg{Entries: entries, Err: err}
		}
	}
	return m, nil
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.cancelRun()
		return m, tea.Quit
	case "j", "down":
		if m.selectedRow < settingsRows-1 {
			m.selectedRow++
		}
	case "k", "up":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "s":
		m.showKey = !m.showKey
	case "x":
		m.updateSetting(func(s *config.Settings) { s.ClearAPIKey() }, "API key cleared")
	case "enter", " ", "space":
		switch m.selectedRow {
		case rowRunInContainer:
			m.updateSetting(func(s *config.Settings) { s.RunInContainer = !s.RunInContainer }, "Settings saved")
		case rowSaveResults:
			m.updateSetting(func(s *config.Settings) { s.SaveResults = !s.SaveResults }, "Settings saved")
		case rowNotifications:
			m.updateSetting(func(s *config.Settings) { s.Notifications = !s.Notifications }, "Settings saved")
		case rowAPIKey:
			m.showKey = !m.showKey
		}
	}
	return m, nil
}

func (m *Model) updateSetting(fn func(*config.Settings), done string) {
	if m.settings == nil {
		return
	}
	_, err := m.settings.UpdateSettings(func(s *config.Settings) error {
		fn(s)
		return nil
	})
	if err != nil {
		m.setError(fmt.Errorf("save settings: %w", err))
		return
	}
	m.setStatus(done)
}

// applySnapshot folds a live update into the model and stamps new phases
func (m *Model) applySnapshot(s executor.Snapshot) {
	// Buffered updates from a superseded run
	if s.Generation < m.snap.Generation {
		return
	}
	if s.Generation != m.snap.Generation || s.Event == executor.UpdateReset {
		m.stamps = nil
	}
	now := time.Now()
	for len(m.stamps) < len(s.Report.Phases) {
		m.stamps = append(m.stamps, now)
	}
	m.snap = s
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	content, err := presenter.Render(m.resultView, m.snap.Results, presenter.Options{})
	if err != nil {
		content = err.Error()
	}
	m.viewport.SetContent(content)
}

func (m *Model) cancelRun() {
	if m.runs != nil && m.runs.Running() {
		m.runs.Cancel()
	}
}

func (m *Model) setStatus(text string) {
	m.status = text
	m.statusIsErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusIsErr = true
}

func copyResults(runID string, records []domain.ResultRecord, events *eventlog.Logger) tea.Cmd {
	return func() tea.Msg {
		if err := presenter.Copy(records); err != nil {
			return StatusMsg{Err: err}
		}
		events.LogExport(runID, "clipboard")
		return StatusMsg{Text: fmt.Sprintf("Copied %d results to clipboard", len(records))}
	}
}

func downloadResults(runID, dir string, records []domain.ResultRecord, events *eventlog.Logger) tea.Cmd {
	return func() tea.Msg {
		path, err := presenter.Download(dir, records)
		if err != nil {
			return StatusMsg{Err: err}
		}
		events.LogExport(runID, path)
		return StatusMsg{Text: "Saved " + path}
	}
}
