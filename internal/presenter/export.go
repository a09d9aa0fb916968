package presenter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

// DownloadName is the file name used for exported results
const DownloadName = "scraping-results.json"

// ErrNoResults is returned when exporting an empty result set
var ErrNoResults = errors.New("no results to export")

// Serialize encodes records as 2-space indented JSON without HTML escaping.
// An empty set encodes as [].
func Serialize(records []domain.ResultRecord) ([]byte, error) {
	if records == nil {
		records = []domain.ResultRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	// Encoder appends a newline
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Parse decodes the output of Serialize
func Parse(data []byte) ([]domain.ResultRecord, error) {
	var records []domain.ResultRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if records == nil {
		records = []domain.ResultRecord{}
	}
	return records, nil
}

// clipboardWrite is replaced in tests
var (
	defaultClipboardWrite = clipboard.WriteAll
	clipboardWrite        = defaultClipboardWrite
)

// Copy writes the serialized records to the system clipboard
func Copy(records []domain.ResultRecord) error {
	if len(records) == 0 {
		return ErrNoResults
	}
	data, err := Serialize(records)
	if err != nil {
		return err
	}
	if err := clipboardWrite(string(data)); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// Download writes the serialized records to dir/scraping-results.json and
// returns the path written
func Download(dir string, records []domain.ResultRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrNoResults
	}
	data, err := Serialize(records)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, DownloadName)
	if err := AtomicWrite(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ServeDownload writes the records as a JSON attachment
func ServeDownload(w http.ResponseWriter, records []domain.ResultRecord) error {
	if len(records) == 0 {
		return ErrNoResults
	}
	data, err := Serialize(records)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadName))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	return err
}

// AtomicWrite writes data to a temp file in the same directory and renames
// it over path
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".scraping-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
