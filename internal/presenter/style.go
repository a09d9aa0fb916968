package presenter

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

// Log line colours by phase keyword
var (
	initializingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80"))
	analyzingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	automationStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FACC15"))
	processingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	otherStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	timestampStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B"))
)

// StyleFor returns the colour used for log lines of the given kind
func StyleFor(kind domain.PhaseKind) lipgloss.Style {
	switch kind {
	case domain.KindInitializing:
		return initializingStyle
	case domain.KindAnalyzing:
		return analyzingStyle
	case domain.KindAutomation:
		return automationStyle
	case domain.KindProcessing:
		return processingStyle
	default:
		return otherStyle
	}
}

// StyledLogLine renders a stamped log line coloured by its phase keyword
func StyledLogLine(stamp, line string) string {
	return timestampStyle.Render("["+stamp+"]") + " " + StyleFor(domain.KindOf(line)).Render(line)
}
