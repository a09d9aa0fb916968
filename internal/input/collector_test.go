package input

import (
	"errors"
	"testing"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

var testExamples = []string{
	"Scrape product prices from Amazon search results",
	"Extract job listings from LinkedIn",
}

func TestCollector_Submit(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		running bool
		wantErr error
	}{
		{"valid", "Scrape product prices from Amazon search results", false, nil},
		{"empty", "", false, domain.ErrEmptyPrompt},
		{"whitespace", "   \n\t", false, domain.ErrEmptyPrompt},
		{"running", "Extract job listings", true, ErrRunInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(testExamples)
			c.SetText(tt.text)

			p, err := c.Submit(tt.running)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && string(p) != tt.text {
				t.Errorf("Submit() = %q, want %q", p, tt.text)
			}
			if got := c.CanSubmit(tt.running); got != (tt.wantErr == nil) {
				t.Errorf("CanSubmit() = %v", got)
			}
		})
	}
}

func TestCollector_SubmitDoesNotTrim(t *testing.T) {
	c := NewCollector(nil)
	c.SetText("  padded prompt  ")

	p, err := c.Submit(false)
	if err != nil {
		t.Fatal(err)
	}
	if p != "  padded prompt  " {
		t.Errorf("Submit() = %q, want untrimmed text", p)
	}
}

func TestCollector_SelectExample(t *testing.T) {
	c := NewCollector(testExamples)
	c.SetText("something typed")

	if err := c.SelectExample(1); err != nil {
		t.Fatal(err)
	}
	if c.Text() != testExamples[1] {
		t.Errorf("Text() = %q, want %q", c.Text(), testExamples[1])
	}

	for _, i := range []int{-1, 2} {
		if err := c.SelectExample(i); !errors.Is(err, ErrExampleOutOfRange) {
			t.Errorf("SelectExample(%d) error = %v, want ErrExampleOutOfRange", i, err)
		}
	}
	if c.Text() != testExamples[1] {
		t.Error("failed selection should not change the text")
	}
}

func TestCollector_ExamplesIsCopy(t *testing.T) {
	c := NewCollector(testExamples)
	ex := c.Examples()
	ex[0] = "changed"
	if c.Examples()[0] != testExamples[0] {
		t.Error("Examples() returned shared slice")
	}
}
