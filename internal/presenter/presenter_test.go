package presenter

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

var demo = []domain.ResultRecord{
	{Name: "Sony WH-1000XM4", Price: "$249.99", Rating: "4.6", URL: "https://amazon.com"},
	{Name: "Bose QuietComfort 45", Price: "$329.99", Rating: "4.5", URL: "https://amazon.com"},
	{Name: "Apple AirPods Max", Price: "$479.99", Rating: "4.4", URL: "https://amazon.com"},
	{Name: "Sennheiser HD 450BT", Price: "$149.99", Rating: "4.3", URL: "https://amazon.com"},
}

func TestParseView(t *testing.T) {
	tests := []struct {
		input   string
		want    View
		wantErr bool
	}{
		{"preview", ViewPreview, false},
		{"TABLE", ViewTable, false},
		{" json ", ViewJSON, false},
		{"logs", ViewLogs, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseView(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseView(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseView(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestView_NextAndTitle(t *testing.T) {
	v := ViewPreview
	var titles []string
	for i := 0; i < len(Views); i++ {
		titles = append(titles, v.Title())
		v = v.Next()
	}
	if v != ViewPreview {
		t.Errorf("Next() did not wrap around, got %q", v)
	}
	if strings.Join(titles, ",") != "Preview,Table,JSON,Logs" {
		t.Errorf("titles = %v", titles)
	}
}

func TestRender_Preview(t *testing.T) {
	out, err := Render(ViewPreview, demo, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Found 4 results\n") {
		t.Errorf("preview should start with the count:\n%s", out)
	}
	for _, want := range []string{"Sony WH-1000XM4", "Rating: 4.6/5", "$249.99", "https://amazon.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("preview missing %q", want)
		}
	}
	// Order preserved
	if strings.Index(out, "Sony") > strings.Index(out, "Sennheiser") {
		t.Error("preview reordered records")
	}
}

func TestRender_TableAligned(t *testing.T) {
	records := append([]domain.ResultRecord{}, demo...)
	records = append(records, domain.ResultRecord{Name: "ソニー ヘッドホン", Price: "¥30000", Rating: "4.0", URL: "https://amazon.co.jp"})

	out, err := Render(ViewTable, records, Options{})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != len(records)+2 {
		t.Fatalf("table has %d lines, want %d:\n%s", len(lines), len(records)+2, out)
	}
	if !strings.HasPrefix(lines[0], "Name") || !strings.Contains(lines[0], "| Price") || !strings.Contains(lines[0], "| URL") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(out, "4.6/5") {
		t.Error("table rating should render as x/5")
	}

	// The URL column starts at the same display column on every row
	col := -1
	for _, line := range append([]string{lines[0]}, lines[2:]...) {
		idx := strings.LastIndex(line, " | ")
		w := runewidth.StringWidth(line[:idx])
		if col == -1 {
			col = w
		} else if w != col {
			t.Errorf("misaligned row %q: URL at %d, want %d", line, w, col)
		}
	}
}

func TestRender_Logs(t *testing.T) {
	now := time.Date(2026, 1, 2, 14, 23, 1, 0, time.UTC)
	out, err := Render(ViewLogs, demo, Options{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if out != "[14:23:01] Starting scraping process...\n" {
		t.Errorf("logs = %q", out)
	}
}

func TestRender_EmptyRendersNothing(t *testing.T) {
	for _, v := range Views {
		out, err := Render(v, nil, Options{})
		if err != nil || out != "" {
			t.Errorf("Render(%s, nil) = %q, %v", v, out, err)
		}
	}
}

func TestSerialize_Format(t *testing.T) {
	data, err := Serialize(demo[:1])
	if err != nil {
		t.Fatal(err)
	}
	want := `[
  {
    "name": "Sony WH-1000XM4",
    "price": "$249.99",
    "rating": "4.6",
    "url": "https://amazon.com"
  }
]`
	if string(data) != want {
		t.Errorf("Serialize =\n%s\nwant\n%s", data, want)
	}

	empty, _ := Serialize(nil)
	if string(empty) != "[]" {
		t.Errorf("Serialize(nil) = %q, want []", empty)
	}
}

func TestSerialize_NoHTMLEscaping(t *testing.T) {
	data, err := Serialize([]domain.ResultRecord{{Name: "A & B <x>", URL: "https://example.com/?a=1&b=2"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "A & B <x>") || !strings.Contains(string(data), "a=1&b=2") {
		t.Errorf("HTML characters were escaped: %s", data)
	}
}

func TestSerializeParse_RoundTrip(t *testing.T) {
	cases := [][]domain.ResultRecord{
		demo,
		{},
		{{Name: "Ünïcödé ✓", Price: "", Rating: "0", URL: "not a url"}},
	}
	for _, records := range cases {
		data, err := Serialize(records)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Parse(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(records) {
			t.Fatalf("round trip length %d, want %d", len(got), len(records))
		}
		for i := range records {
			if got[i] != records[i] {
				t.Errorf("round trip record %d = %+v, want %+v", i, got[i], records[i])
			}
		}
	}
}

func TestCopy(t *testing.T) {
	var copied string
	clipboardWrite = func(s string) error {
		copied = s
		return nil
	}
	defer func() { clipboardWrite = defaultClipboardWrite }()

	if err := Copy(demo); err != nil {
		t.Fatal(err)
	}
	want, _ := Serialize(demo)
	if copied != string(want) {
		t.Errorf("clipboard = %q", copied)
	}

	if err := Copy(nil); !errors.Is(err, ErrNoResults) {
		t.Errorf("Copy(nil) = %v, want ErrNoResults", err)
	}

	clipboardWrite = func(string) error { return errors.New("no clipboard") }
	if err := Copy(demo); err == nil {
		t.Error("expected clipboard failure to be returned")
	}
}

func TestDownload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := Download(dir, demo)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "scraping-results.json" {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[3].Name != "Sennheiser HD 450BT" {
		t.Errorf("downloaded records = %+v", got)
	}

	if _, err := Download(dir, nil); !errors.Is(err, ErrNoResults) {
		t.Errorf("Download(nil) = %v, want ErrNoResults", err)
	}
}

func TestServeDownload(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := ServeDownload(rec, demo); err != nil {
		t.Fatal(err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="scraping-results.json"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if _, err := Parse(rec.Body.Bytes()); err != nil {
		t.Errorf("body is not valid results JSON: %v", err)
	}

	if err := ServeDownload(httptest.NewRecorder(), nil); !errors.Is(err, ErrNoResults) {
		t.Errorf("ServeDownload(nil) = %v, want ErrNoResults", err)
	}
}

func TestExecutionLabels(t *testing.T) {
	if ExecutionHeader(true) != "Executing Script..." || ExecutionHeader(false) != "Execution Complete" {
		t.Error("unexpected execution headers")
	}
	if ProgressLabel(75) != "75% complete" {
		t.Errorf("ProgressLabel(75) = %q", ProgressLabel(75))
	}
	line := StyledLogLine("12:00:00", string(domain.PhaseAnalyzing))
	if !strings.Contains(line, string(domain.PhaseAnalyzing)) {
		t.Errorf("styled line lost its text: %q", line)
	}
}
