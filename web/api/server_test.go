package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/observer"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
	"github.com/hochfrequenz/prompt-scraper/internal/protocol"
	"github.com/hochfrequenz/prompt-scraper/internal/runstore"
)

func newTestServer(t *testing.T, reporter *executor.Reporter) (*Server, *executor.RunManager, *runstore.Store) {
	t.Helper()

	store, err := runstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	m := executor.NewRunManager(reporter)
	m.SetStore(store)
	t.Cleanup(m.Close)

	s := NewServer(store, m, ":0")
	s.SetObserver(observer.New(time.Minute))
	return s, m, store
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestStatusHandler(t *testing.T) {
	s, _, _ := newTestServer(t, executor.NewReporter(0, 0))

	w := do(t, s, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if status.State.Status != executor.StatusIdle {
		t.Errorf("State = %s, want idle", status.State.Status)
	}
	if status.Metrics == nil {
		t.Error("Metrics missing")
	}
}

func TestStatusHandler_StuckAndRecent(t *testing.T) {
	s, m, _ := newTestServer(t, executor.NewReporter(0, 0))
	obs := observer.New(time.Millisecond)
	m.SetObserver(obs)
	s.SetObserver(obs)

	h, err := m.Start(context.Background(), "first prompt")
	if err != nil {
		t.Fatal(err)
	}
	h.Wait()

	m.SetReporter(executor.NewReporter(time.Hour, time.Hour))
	if _, err := m.Start(context.Background(), "second prompt"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	var status StatusResponse
	json.NewDecoder(do(t, s, http.MethodGet, "/api/status", nil).Body).Decode(&status)

	if !status.Stuck {
		t.Error("run older than the threshold should be reported stuck")
	}
	if len(status.Recent) != 1 || status.Recent[0] != h.RunID() {
		t.Errorf("Recent = %v, want [%s]", status.Recent, h.RunID())
	}
}

func TestStartRun_CompletesAndIsRecorded(t *testing.T) {
	s, m, store := newTestServer(t, executor.NewReporter(0, 0))

	w := do(t, s, http.MethodPost, "/api/runs", StartRunRequest{Prompt: "Scrape product prices from Amazon search results"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202: %s", w.Code, w.Body)
	}
	var started StartRunResponse
	json.NewDecoder(w.Body).Decode(&started)
	if started.RunID == "" {
		t.Fatal("run_id missing")
	}

	if err := m.Current().Wait(); err != nil {
		t.Fatal(err)
	}

	w = do(t, s, http.MethodGet, "/api/results?view=table", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d", w.Code)
	}
	var results ResultsResponse
	json.NewDecoder(w.Body).Decode(&results)
	if results.View != presenter.ViewTable || len(results.Results) != 4 {
		t.Errorf("results = %+v", results)
	}
	if !strings.Contains(results.Content, "Sony WH-1000XM4") {
		t.Errorf("table content = %q", results.Content)
	}

	w = do(t, s, http.MethodGet, "/api/results/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, presenter.DownloadName) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	records, err := presenter.Parse(w.Body.Bytes())
	if err != nil || len(records) != 4 {
		t.Errorf("downloaded %d records, err %v", len(records), err)
	}

	// Flush the write queue
	m.Close()

	w = do(t, s, http.MethodGet, "/api/history", nil)
	var entries []domain.HistoryEntry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].ID != started.RunID || entries[0].Preview != "Found 4 results" {
		t.Fatalf("history = %+v", entries)
	}

	w = do(t, s, http.MethodGet, "/api/history/"+started.RunID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history entry status = %d", w.Code)
	}
	var run RunResponse
	json.NewDecoder(w.Body).Decode(&run)
	if run.Status != string(domain.RunSuccess) || len(run.Phases) != 4 || len(run.Results) != 4 {
		t.Errorf("run = %+v", run)
	}

	w = do(t, s, http.MethodDelete, "/api/history/"+started.RunID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if _, err := store.GetRun(started.RunID); err == nil {
		t.Error("run still present after delete")
	}
}

func TestStartRun_Rejections(t *testing.T) {
	s, m, _ := newTestServer(t, executor.NewReporter(time.Hour, time.Hour))

	if w := do(t, s, http.MethodPost, "/api/runs", StartRunRequest{Prompt: "  \n"}); w.Code != http.StatusBadRequest {
		t.Errorf("empty prompt status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}

	if w := do(t, s, http.MethodPost, "/api/runs", StartRunRequest{Prompt: "first"}); w.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/runs", StartRunRequest{Prompt: "second"}); w.Code != http.StatusConflict {
		t.Errorf("second run status = %d, want 409", w.Code)
	}

	if w := do(t, s, http.MethodDelete, "/api/runs/current", nil); w.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", w.Code)
	}
	m.Current().Wait()

	if got := m.Snapshot().Status; got != executor.StatusCancelled {
		t.Errorf("Status after cancel = %s", got)
	}
	if w := do(t, s, http.MethodDelete, "/api/runs/current", nil); w.Code != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", w.Code)
	}
}

func TestResultsHandler_Errors(t *testing.T) {
	s, _, _ := newTestServer(t, executor.NewReporter(0, 0))

	if w := do(t, s, http.MethodGet, "/api/results", nil); w.Code != http.StatusNotFound {
		t.Errorf("no results status = %d, want 404", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/results?view=chart", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad view status = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/results/download", nil); w.Code != http.StatusNotFound {
		t.Errorf("empty download status = %d, want 404", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/results", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST results status = %d, want 405", w.Code)
	}
}

func TestHistoryHandler_UnknownAndClear(t *testing.T) {
	s, _, store := newTestServer(t, executor.NewReporter(0, 0))

	if w := do(t, s, http.MethodGet, "/api/history/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("GET unknown = %d, want 404", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/api/history/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown = %d, want 404", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/history?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}

	for _, id := range []string{"a", "b"} {
		store.CreateRun(&domain.Run{ID: id, Prompt: "p", Status: domain.RunRunning, StartedAt: time.Now()})
	}
	w := do(t, s, http.MethodDelete, "/api/history", nil)
	var body map[string]int64
	json.NewDecoder(w.Body).Decode(&body)
	if body["deleted"] != 2 {
		t.Errorf("deleted = %d, want 2", body["deleted"])
	}

	w = do(t, s, http.MethodGet, "/api/history", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("history after clear = %s", w.Body)
	}
}

func TestExamplesHandler(t *testing.T) {
	s, _, _ := newTestServer(t, executor.NewReporter(0, 0))

	w := do(t, s, http.MethodGet, "/api/examples", nil)
	var examples []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	json.NewDecoder(w.Body).Decode(&examples)

	if len(examples) != 5 {
		t.Fatalf("examples = %d, want 5", len(examples))
	}
	if examples[0].Text != "Scrape product prices from Amazon search results" {
		t.Errorf("first example = %q", examples[0].Text)
	}
}

func TestSettingsHandler(t *testing.T) {
	s, _, _ := newTestServer(t, executor.NewReporter(0, 0))

	if w := do(t, s, http.MethodGet, "/api/settings", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without holder = %d, want 503", w.Code)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	s.SetSettings(config.NewHolder(config.Default(), path))

	key := "sk-abcdef123456"
	off := false
	w := do(t, s, http.MethodPut, "/api/settings", SettingsRequest{APIKey: &key, SaveResults: &off})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body)
	}
	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.APIKey == key || !strings.HasSuffix(resp.APIKey, "3456") || !resp.HasAPIKey {
		t.Errorf("api key not masked: %+v", resp)
	}
	if resp.SaveResults || resp.Notifications {
		t.Errorf("toggles = %+v", resp)
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Settings.APIKey != key {
		t.Errorf("saved key = %q", saved.Settings.APIKey)
	}

	w = do(t, s, http.MethodPut, "/api/settings", SettingsRequest{ClearAPIKey: true})
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.HasAPIKey || resp.APIKey != "" {
		t.Errorf("key not cleared: %+v", resp)
	}
}

func TestSSEHandler_StreamsRun(t *testing.T) {
	s, m, _ := newTestServer(t, executor.NewReporter(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.sseHub.Run(ctx)
	s.startForwarding(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	reqCtx, reqCancel := context.WithCancel(context.Background())
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE event")
			return ""
		}
	}

	if e := next(); e != protocol.TypeSnapshot {
		t.Fatalf("first event = %q, want snapshot", e)
	}

	if _, err := m.Start(context.Background(), "Scrape product prices"); err != nil {
		t.Fatal(err)
	}

	want := []string{"reset", "phase", "phase", "phase", "phase", "results"}
	for i, w := range want {
		if got := next(); got != w {
			t.Fatalf("event %d = %q, want %q", i, got, w)
		}
	}
}

func TestWSHandler_StartAndStream(t *testing.T) {
	s, _, _ := newTestServer(t, executor.NewReporter(0, 0))

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() protocol.EnvelopeRaw {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var env protocol.EnvelopeRaw
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		return env
	}

	if env := read(); env.Type != protocol.TypeSnapshot {
		t.Fatalf("first message = %q, want snapshot", env.Type)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","payload":{"prompt":"   "}}`))
	if env := read(); env.Type != protocol.TypeError {
		t.Fatalf("empty prompt reply = %q, want error", env.Type)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","payload":{"prompt":"Extract job listings from LinkedIn"}}`))

	var progress []int
	for {
		env := read()
		if env.Type == protocol.TypePhase {
			var p protocol.PhaseMessage
			json.Unmarshal(env.Payload, &p)
			progress = append(progress, p.Progress)
		}
		if env.Type == protocol.TypeResults {
			var r protocol.ResultsMessage
			json.Unmarshal(env.Payload, &r)
			if len(r.Results) != 4 {
				t.Errorf("results = %d, want 4", len(r.Results))
			}
			break
		}
	}

	want := []int{25, 50, 75, 100}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress = %v, want %v", progress, want)
			break
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyPrompt, http.StatusBadRequest},
		{executor.ErrNoActiveRun, http.StatusNotFound},
		{runstore.ErrRunNotFound, http.StatusNotFound},
		{presenter.ErrNoResults, http.StatusNotFound},
		{executor.ErrClosed, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSSEHub_ClosesClientsOnShutdown(t *testing.T) {
	hub := NewSSEHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := make(chan protocol.Envelope, 1)
	if !hub.add(client) {
		t.Fatal("add failed on a running hub")
	}

	hub.Broadcast(protocol.Envelope{Type: protocol.TypeReset})
	if env := <-client; env.Type != protocol.TypeReset {
		t.Errorf("received %q, want reset", env.Type)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}

	cancel()
	<-done

	if _, ok := <-client; ok {
		t.Error("client channel should be closed on shutdown")
	}
	if hub.add(make(chan protocol.Envelope)) {
		t.Error("add should fail after shutdown")
	}
	hub.Broadcast(protocol.Envelope{Type: protocol.TypePhase})
}
