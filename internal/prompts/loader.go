package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Loader manages example prompts and report templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	mu           sync.RWMutex
}

// Meta holds frontmatter metadata for example prompts.
type Meta struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Source string `yaml:"source" json:"source"`
}

// Example is one selectable example prompt.
type Example struct {
	Meta
	Text string `json:"text"`
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
	}
}

// DefaultLoader creates a loader that checks ~/.config/prompt-scraper/prompts/
// before the embedded files.
func DefaultLoader() *Loader {
	home, _ := os.UserHomeDir()
	return NewLoader(filepath.Join(home, ".config", "prompt-scraper", "prompts"))
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(name string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name))); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, name)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*Meta, string, error) {
	str := strings.ReplaceAll(string(content), "\r\n", "\n")

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // Malformed, treat as no frontmatter
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta Meta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}

// exampleNames lists example file names from the embedded FS and any
// override directory, sorted so the numeric prefix sets display order.
func (l *Loader) exampleNames() ([]string, error) {
	seen := make(map[string]bool)

	entries, err := fs.ReadDir(embeddedFS, "examples")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			seen[e.Name()] = true
		}
	}

	for _, dir := range l.overrideDirs {
		entries, err := os.ReadDir(filepath.Join(dir, "examples"))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				seen[e.Name()] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Examples returns the example prompts in display order.
func (l *Loader) Examples() ([]Example, error) {
	names, err := l.exampleNames()
	if err != nil {
		return nil, err
	}

	result := make([]Example, 0, len(names))
	for _, name := range names {
		p := path.Join("examples", name)
		content, err := l.loadContent(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		meta, body, err := parseFrontmatter(content)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}

		ex := Example{Text: strings.TrimSpace(body)}
		if meta != nil {
			ex.Meta = *meta
		}
		if ex.ID == "" {
			ex.ID = strings.TrimSuffix(name, ".md")
		}
		if ex.Text == "" {
			continue
		}
		result = append(result, ex)
	}
	return result, nil
}

// ExampleTexts returns just the prompt text of each example.
func (l *Loader) ExampleTexts() ([]string, error) {
	examples, err := l.Examples()
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(examples))
	for i, ex := range examples {
		texts[i] = ex.Text
	}
	return texts, nil
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// LoadTemplate loads and parses a template by path (e.g., "report/summary.md").
func (l *Loader) LoadTemplate(name string) (*template.Template, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[name]; ok {
		l.mu.RUnlock()
		return tmpl, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	_, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	tmpl, err := template.New(name).Funcs(funcs).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("compile template %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(name string, data any) (string, error) {
	tmpl, err := l.LoadTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}

	return buf.String(), nil
}

// SummaryData holds template variables for the run summary.
type SummaryData struct {
	ID       string
	Status   string
	Duration string
	Prompt   string
	Preview  string
	Phases   []string
}

// RenderSummary executes the run summary template.
func (l *Loader) RenderSummary(data SummaryData) (string, error) {
	return l.Execute("report/summary.md", data)
}

// ClearCache clears the template cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.mu.Unlock()
}
