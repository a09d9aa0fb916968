package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts run outcomes to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// SlackMessage is the incoming-webhook payload. The notification title is
// the fallback text; the run details go into one coloured attachment.
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment carries the run summary and its fields
type SlackAttachment struct {
	Fallback  string       `json:"fallback"`
	Color     string       `json:"color"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField is one labelled value of an attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates a notifier for webhookURL. An empty URL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackColor maps a notification type to an attachment colour
func SlackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "#22c55e"
	case NotifyWarning:
		return "#eab308"
	case NotifyError:
		return "#ef4444"
	default:
		return "#3b82f6"
	}
}

// BuildSlackMessage renders n as a webhook payload
func BuildSlackMessage(n Notification) SlackMessage {
	att := SlackAttachment{
		Fallback: n.Title + ": " + n.Message,
		Color:    SlackColor(n.Type),
		Text:     n.Message,
		Footer:   "prompt-scraper",
	}
	if n.RunID != "" {
		att.Title = "Run " + n.RunID
	}
	if !n.At.IsZero() {
		att.Timestamp = n.At.Unix()
	}
	for _, f := range n.Fields {
		att.Fields = append(att.Fields, SlackField{Title: f.Label, Value: f.Value, Short: f.Short})
	}
	return SlackMessage{Text: n.Title, Attachments: []SlackAttachment{att}}
}

// Send posts the notification to the webhook
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(BuildSlackMessage(n))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
