package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Fields  []Field
	At      time.Time
}

// Field is a labelled detail shown by channels that support structured
// messages
type Field struct {
	Label string
	Value string
	Short bool
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// FromConfig builds the notifier chain for the configured channels
func FromConfig(cfg config.NotificationsConfig) Notifier {
	var ns []Notifier
	if cfg.Desktop {
		ns = append(ns, NewDesktopNotifier(true))
	}
	if cfg.SlackWebhook != "" {
		ns = append(ns, NewSlackNotifier(cfg.SlackWebhook))
	}
	if len(ns) == 0 {
		return NoopNotifier{}
	}
	return NewMultiNotifier(ns...)
}

// ForRun builds the notification announcing a finished run
func ForRun(run *domain.Run) Notification {
	n := Notification{
		RunID: run.ID,
		At:    run.StartedAt,
	}
	if run.FinishedAt != nil {
		n.At = *run.FinishedAt
	}
	switch run.Status {
	case domain.RunSuccess:
		n.Title = "Scraping complete"
		n.Type = NotifySuccess
		n.Message = fmt.Sprintf("%s: %s", run.Prompt, run.Preview)
	case domain.RunFailed:
		n.Title = "Scraping cancelled"
		n.Type = NotifyWarning
		n.Message = run.Prompt
	default:
		n.Title = "Scraping started"
		n.Type = NotifyInfo
		n.Message = run.Prompt
	}

	n.Fields = append(n.Fields, Field{Label: "Prompt", Value: run.Prompt})
	if run.ResultCount != nil {
		n.Fields = append(n.Fields, Field{Label: "Results", Value: strconv.Itoa(*run.ResultCount), Short: true})
	}
	if run.FinishedAt != nil {
		n.Fields = append(n.Fields, Field{Label: "Duration", Value: run.Duration().Round(100 * time.Millisecond).String(), Short: true})
	}
	n.Fields = append(n.Fields, Field{Label: "Progress", Value: fmt.Sprintf("%d%%", run.Progress), Short: true})
	return n
}
