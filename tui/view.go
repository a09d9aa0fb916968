package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	sectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	errorBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("52")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	header := fmt.Sprintf(" Prompt Scraper │ %s │ History: %d ", m.runState(), len(m.history))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case TabPrompt:
		section = m.renderPrompt()
	case TabResults:
		section = m.renderResults()
	case TabHistory:
		section = m.renderHistory()
	case TabSettings:
		section = m.renderSettings()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) runState() string {
	switch {
	case m.snap.Running():
		return runningStyle.Render("Running " + presenter.ProgressLabel(m.snap.Report.Progress))
	case m.snap.Report.Complete:
		return successStyle.Render(domain.ResultPreview(len(m.snap.Results)))
	case m.snap.Status == executor.StatusCancelled:
		return failedStyle.Render(domain.CancelledPreview)
	default:
		return "Idle"
	}
}

func (m Model) renderTabs() string {
	var tabs []string
	for i, name := range tabNames {
		if i == m.activeTab {
			tabs = append(tabs, tabActiveStyle.Render(name))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(name))
		}
	}
	return " " + strings.Join(tabs, "  │  ")
}

func (m Model) renderPrompt() string {
	var b strings.Builder

	b.WriteString(sectionTitleStyle.Render("What do you want to scrape?"))
	b.WriteString("\n")
	b.WriteString(m.textarea.View())
	b.WriteString("\n\n")

	b.WriteString(dimmedStyle.Render("Examples (ctrl+n):"))
	b.WriteString("\n")
	for i, ex := range m.collector.Examples() {
		line := fmt.Sprintf("  %d. %s", i+1, ex)
		if i == m.exampleIdx {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.snap.Running() || len(m.snap.Report.Phases) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderExecution())
	}
	return b.String()
}

func (m Model) renderExecution() string {
	var b strings.Builder

	running := m.snap.Running()
	title := presenter.ExecutionHeader(running)
	if running {
		title = m.spinner.View() + " " + title
	}
	b.WriteString(sectionTitleStyle.Render(title))
	b.WriteString("\n")

	progress := m.snap.Report.Progress
	b.WriteString(m.progress.ViewAs(float64(progress) / 100))
	b.WriteString("  ")
	b.WriteString(presenter.ProgressLabel(progress))
	b.WriteString("\n\n")

	for i, phase := range m.snap.Report.Phases {
		stamp := time.Now()
		if i < len(m.stamps) {
			stamp = m.stamps[i]
		}
		b.WriteString(presenter.StyledLogLine(stamp.Format("15:04:05"), string(phase)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderResults() string {
	var b strings.Builder

	if len(m.snap.Results) == 0 {
		b.WriteString(dimmedStyle.Render("No results yet. Submit a prompt on the Prompt tab."))
		return b.String()
	}

	var tabs []string
	for _, v := range presenter.Views {
		if v == m.resultView {
			tabs = append(tabs, tabActiveStyle.Render(v.Title()))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(v.Title()))
		}
	}
	b.WriteString(sectionTitleStyle.Render(domain.ResultPreview(len(m.snap.Results))))
	b.WriteString("   ")
	b.WriteString(strings.Join(tabs, " · "))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	return b.String()
}

func (m Model) renderHistory() string {
	if m.detail != nil {
		return m.renderDetail()
	}

	var b strings.Builder
	b.WriteString(sectionTitleStyle.Render("History"))
	b.WriteString("\n")

	if len(m.history) == 0 {
		b.WriteString(dimmedStyle.Render("No runs yet"))
		return b.String()
	}

	now := time.Now()
	promptWidth := uint(max(m.width-40, 20))
	for i, e := range m.history {
		line := fmt.Sprintf("%s %-*s  %-16s %s",
			statusIcon(e.Status),
			promptWidth, truncate.StringWithTail(e.Prompt, promptWidth, "…"),
			e.Preview,
			domain.FormatAge(now, e.Timestamp))
		if i == m.selectedRow {
			line = selectedStyle.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDetail() string {
	var b strings.Builder
	run := m.detail.Run

	b.WriteString(sectionTitleStyle.Render("Run " + run.ID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", statusIcon(run.Status), run.Prompt)
	fmt.Fprintf(&b, "Started %s · %s · %s\n\n",
		run.StartedAt.Local().Format("2006-01-02 15:04:05"),
		run.Duration().Round(time.Millisecond),
		run.Preview)

	for _, p := range m.detail.Phases {
		b.WriteString(presenter.StyledLogLine(p.Timestamp.Local().Format("15:04:05"), string(p.Phase)))
		b.WriteString("\n")
	}

	if len(m.detail.Results) > 0 {
		b.WriteString("\n")
		table, _ := presenter.Render(presenter.ViewTable, m.detail.Results, presenter.Options{})
		b.WriteString(table)
	}
	return b.String()
}

func statusIcon(s domain.RunStatus) string {
	switch s {
	case domain.RunSuccess:
		return successStyle.Render("✓")
	case domain.RunFailed:
		return failedStyle.Render("✗")
	default:
		return runningStyle.Render("●")
	}
}

func (m Model) renderSettings() string {
	var b strings.Builder
	b.WriteString(sectionTitleStyle.Render("Settings"))
	b.WriteString("\n")

	if m.settings == nil {
		b.WriteString(dimmedStyle.Render("Settings unavailable"))
		return b.String()
	}
	s := m.settings.Settings()

	key := config.MaskKey(s.APIKey)
	if m.showKey {
		key = s.APIKey
	}
	if key == "" {
		key = dimmedStyle.Render("(not set)")
	}

	rows := []string{
		"API key:          " + key,
		"Run in container: " + checkbox(s.RunInContainer),
		"Save results:     " + checkbox(s.SaveResults),
		"Notifications:    " + checkbox(s.Notifications),
	}
	for i, row := range rows {
		if i == m.selectedRow {
			b.WriteString(selectedStyle.Render("▸ ") + row)
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func (m Model) renderStatusBar() string {
	if m.status != "" {
		style := statusBarStyle
		if m.statusIsErr {
			style = errorBarStyle
		}
		return style.Width(m.width).Render(" " + m.status)
	}

	var help string
	switch m.activeTab {
	case TabPrompt:
		help = "ctrl+n: example │ esc: cancel │ tab: next │ ctrl+c: quit"
		if m.collector.CanSubmit(m.snap.Running()) {
			help = "ctrl+s: generate │ " + help
		}
	case TabResults:
		help = "v: view │ c: copy │ d: download │ ↑↓: scroll │ tab: next │ q: quit"
	case TabHistory:
		help = "enter: show │ esc: back │ r: refresh │ x: clear history │ q: quit"
	case TabSettings:
		help = "enter: toggle │ s: show key │ x: clear API key │ q: quit"
	}
	return statusBarStyle.Width(m.width).Render(" " + help)
}
