package runstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var demo = []domain.ResultRecord{
	{Name: "Sony WH-1000XM4", Price: "$249.99", Rating: "4.6", URL: "https://amazon.com"},
	{Name: "Bose QuietComfort 45", Price: "$329.99", Rating: "4.5", URL: "https://amazon.com"},
}

func insertRun(t *testing.T, store *Store, id, prompt string, startedAt time.Time) *domain.Run {
	t.Helper()
	run := &domain.Run{ID: id, Prompt: prompt, Status: domain.RunRunning, StartedAt: startedAt}
	if err := store.CreateRun(run); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestStore_CreateAndGetRun(t *testing.T) {
	store := newTestStore(t)
	started := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	insertRun(t, store, "r1", "Scrape product prices from Amazon search results", started)

	got, err := store.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != "Scrape product prices from Amazon search results" {
		t.Errorf("Prompt = %q", got.Prompt)
	}
	if got.Status != domain.RunRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt != nil || got.ResultCount != nil {
		t.Errorf("unfinished run has FinishedAt=%v ResultCount=%v", got.FinishedAt, got.ResultCount)
	}
}

func TestStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestStore_ResolveID(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	insertRun(t, store, "3f2a1b9c-0000-4000-8000-000000000001", "a", now)
	insertRun(t, store, "3f2a77aa-0000-4000-8000-000000000002", "b", now)
	insertRun(t, store, "3f2a", "c", now)

	tests := []struct {
		name    string
		prefix  string
		want    string
		wantErr error
	}{
		{"full id", "3f2a1b9c-0000-4000-8000-000000000001", "3f2a1b9c-0000-4000-8000-000000000001", nil},
		{"short id", "3f2a1b9c", "3f2a1b9c-0000-4000-8000-000000000001", nil},
		{"exact match beats prefix", "3f2a", "3f2a", nil},
		{"ambiguous", "3f2", "", ErrAmbiguousID},
		{"unknown", "ffff", "", ErrRunNotFound},
		{"wildcards are literal", "3f2a_", "", ErrRunNotFound},
		{"empty", "", "", ErrRunNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ResolveID(tt.prefix)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ResolveID(%q) error = %v, want %v", tt.prefix, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ResolveID(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestStore_FinishRunWithResults(t *testing.T) {
	store := newTestStore(t)
	run := insertRun(t, store, "r1", "prompt", time.Now())

	for i, p := range domain.Phases() {
		if err := store.AppendPhase(domain.PhaseEntry{RunID: "r1", Seq: i + 1, Timestamp: time.Now(), Phase: p}); err != nil {
			t.Fatal(err)
		}
	}

	count := len(demo)
	finished := time.Now()
	run.Status = domain.RunSuccess
	run.Progress = 100
	run.Preview = domain.ResultPreview(count)
	run.ResultCount = &count
	run.FinishedAt = &finished
	if err := store.FinishRun(run); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveResults("r1", demo); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunSuccess || got.Progress != 100 || got.Preview != "Found 2 results" {
		t.Errorf("run = %+v", got)
	}
	if got.ResultCount == nil || *got.ResultCount != 2 {
		t.Errorf("ResultCount = %v, want 2", got.ResultCount)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}

	phases, err := store.ListPhases("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(phases) != 4 || phases[0].Phase != domain.PhaseInitializing || phases[3].Phase != domain.PhaseProcessing {
		t.Errorf("phases = %+v", phases)
	}

	records, err := store.GetResults("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0] != demo[0] || records[1] != demo[1] {
		t.Errorf("results = %+v", records)
	}

	// Saving again replaces rather than appends
	if err := store.SaveResults("r1", demo[:1]); err != nil {
		t.Fatal(err)
	}
	records, _ = store.GetResults("r1")
	if len(records) != 1 {
		t.Errorf("results after replace = %d, want 1", len(records))
	}
}

func TestStore_FinishRunMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.FinishRun(&domain.Run{ID: "ghost", Status: domain.RunFailed})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun(ghost) = %v, want ErrRunNotFound", err)
	}
}

func TestStore_HistoryNewestFirst(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	insertRun(t, store, "old", "Extract job listings from LinkedIn", now.Add(-2*time.Hour))
	insertRun(t, store, "new", "Scrape product prices from Amazon search results", now)
	insertRun(t, store, "mid", "Get restaurant reviews from Yelp", now.Add(-time.Hour))

	history, err := store.History(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d entries, want 3", len(history))
	}
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if history[i].ID != id {
			t.Errorf("history[%d] = %s, want %s", i, history[i].ID, id)
		}
	}

	limited, _ := store.History(2)
	if len(limited) != 2 {
		t.Errorf("History(2) = %d entries", len(limited))
	}
}

func TestStore_LatestResults(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.LatestResults(); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("LatestResults on empty store = %v, want ErrRunNotFound", err)
	}

	now := time.Now()
	ok := insertRun(t, store, "ok", "prompt", now.Add(-time.Hour))
	ok.Status = domain.RunSuccess
	store.FinishRun(ok)
	store.SaveResults("ok", demo)

	// Newer cancelled run has no results and is skipped
	cancelled := insertRun(t, store, "cancelled", "prompt", now)
	cancelled.Status = domain.RunFailed
	cancelled.Preview = domain.CancelledPreview
	store.FinishRun(cancelled)

	run, records, err := store.LatestResults()
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != "ok" || len(records) != 2 {
		t.Errorf("LatestResults = %s with %d records", run.ID, len(records))
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	store := newTestStore(t)
	insertRun(t, store, "a", "p", time.Now())
	insertRun(t, store, "b", "p", time.Now())
	store.AppendPhase(domain.PhaseEntry{RunID: "a", Seq: 1, Timestamp: time.Now(), Phase: domain.PhaseInitializing})
	store.SaveResults("a", demo)

	if err := store.DeleteRun("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetRun("a"); !errors.Is(err, ErrRunNotFound) {
		t.Error("deleted run still present")
	}
	if phases, _ := store.ListPhases("a"); len(phases) != 0 {
		t.Error("phases not removed with run")
	}
	if records, _ := store.GetResults("a"); len(records) != 0 {
		t.Error("results not removed with run")
	}
	if err := store.DeleteRun("a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second delete = %v, want ErrRunNotFound", err)
	}

	n, err := store.ClearHistory()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ClearHistory removed %d, want 1", n)
	}
	if history, _ := store.History(0); len(history) != 0 {
		t.Errorf("history not empty after clear: %v", history)
	}
}

func TestStore_MarkInterrupted(t *testing.T) {
	store := newTestStore(t)
	insertRun(t, store, "stale", "p", time.Now())

	n, err := store.MarkInterrupted()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("MarkInterrupted = %d, want 1", n)
	}
	run, _ := store.GetRun("stale")
	if run.Status != domain.RunFailed || run.Preview != domain.CancelledPreview {
		t.Errorf("run = %+v", run)
	}
}

func TestStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "runs.db")
	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	insertRun(t, store, "persisted", "p", time.Now())
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.GetRun("persisted"); err != nil {
		t.Errorf("run not persisted: %v", err)
	}
}
