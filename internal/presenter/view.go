// Package presenter projects a result set into the preview, table, JSON and
// log views, and exports it to the clipboard or a file.
package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

// View is one projection of the result set
type View string

const (
	ViewPreview View = "preview"
	ViewTable   View = "table"
	ViewJSON    View = "json"
	ViewLogs    View = "logs"
)

// Views lists the views in tab order
var Views = []View{ViewPreview, ViewTable, ViewJSON, ViewLogs}

// ParseView parses a view name, case-insensitively
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Views {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q (want preview, table, json or logs)", s)
}

// Next returns the following view in tab order, wrapping around
func (v View) Next() View {
	for i, known := range Views {
		if v == known {
			return Views[(i+1)%len(Views)]
		}
	}
	return ViewPreview
}

// Title returns the tab label
func (v View) Title() string {
	switch v {
	case ViewJSON:
		return "JSON"
	case "":
		return ""
	default:
		return strings.ToUpper(string(v[:1])) + string(v[1:])
	}
}

// Options tweak rendering
type Options struct {
	// Now stamps the logs view. Zero means time.Now().
	Now time.Time
}

// Render projects records into view. Nothing is rendered for an empty
// result set. Records are shown in order without filtering.
func Render(view View, records []domain.ResultRecord, opts Options) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	switch view {
	case ViewPreview:
		return renderPreview(records), nil
	case ViewTable:
		return renderTable(records), nil
	case ViewJSON:
		data, err := Serialize(records)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ViewLogs:
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		return LogLine(now, "Starting scraping process...") + "\n", nil
	default:
		return "", fmt.Errorf("unknown view %q", view)
	}
}

func renderPreview(records []domain.ResultRecord) string {
	var b strings.Builder
	b.WriteString(domain.ResultPreview(len(records)))
	b.WriteString("\n")
	for _, r := range records {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", r.Name)
		fmt.Fprintf(&b, "  Rating: %s/5\n", r.Rating)
		fmt.Fprintf(&b, "  %s\n", r.Price)
		fmt.Fprintf(&b, "  %s\n", r.URL)
	}
	return b.String()
}

var tableHeader = []string{"Name", "Price", "Rating", "URL"}

func renderTable(records []domain.ResultRecord) string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, tableHeader)
	for _, r := range records {
		rows = append(rows, []string{r.Name, r.Price, r.Rating + "/5", r.URL})
	}

	widths := make([]int, len(tableHeader))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		for i, cell := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
			} else {
				b.WriteString(runewidth.FillRight(cell, widths[i]))
			}
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	b.WriteString(strings.Join(sep, "-+-"))
	b.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return b.String()
}

// LogLine prefixes line with an [HH:MM:SS] stamp
func LogLine(at time.Time, line string) string {
	return fmt.Sprintf("[%s] %s", at.Format("15:04:05"), line)
}

// ExecutionHeader is the heading shown above the phase log
func ExecutionHeader(running bool) string {
	if running {
		return "Executing Script..."
	}
	return "Execution Complete"
}

// ProgressLabel renders progress as "N% complete"
func ProgressLabel(progress int) string {
	return fmt.Sprintf("%d%% complete", progress)
}
