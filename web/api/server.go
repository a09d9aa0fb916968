package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/eventlog"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/input"
	"github.com/hochfrequenz/prompt-scraper/internal/observer"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
	"github.com/hochfrequenz/prompt-scraper/internal/prompts"
	"github.com/hochfrequenz/prompt-scraper/internal/protocol"
	"github.com/hochfrequenz/prompt-scraper/internal/runstore"
)

// Store interface for history operations
type Store interface {
	History(limit int) ([]domain.HistoryEntry, error)
	GetRun(id string) (*domain.Run, error)
	ListPhases(runID string) ([]domain.PhaseEntry, error)
	GetResults(runID string) ([]domain.ResultRecord, error)
	DeleteRun(id string) error
	ClearHistory() (int64, error)
}

// Server is the HTTP API server
type Server struct {
	store    Store
	runs     *executor.RunManager
	observer *observer.Observer
	settings *config.Holder
	loader   *prompts.Loader
	events   *eventlog.Logger
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
	upgrader websocket.Upgrader

	// runCtx parents runs started through the API, so they outlive the
	// request that submitted them
	runCtx context.Context
}

// NewServer creates a new API server
func NewServer(store Store, runs *executor.RunManager, addr string) *Server {
	s := &Server{
		store:  store,
		runs:   runs,
		loader: prompts.NewLoader(),
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		runCtx: context.Background(),
	}
	s.setupRoutes()
	return s
}

// SetObserver sets the metrics observer reported by /api/status
func (s *Server) SetObserver(o *observer.Observer) {
	s.observer = o
}

// SetSettings sets the settings holder served by /api/settings
func (s *Server) SetSettings(h *config.Holder) {
	s.settings = h
}

// SetLoader sets the loader for example prompts
func (s *Server) SetLoader(l *prompts.Loader) {
	s.loader = l
}

// SetEventLog sets the event log used to record exports
func (s *Server) SetEventLog(l *eventlog.Logger) {
	s.events = l
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.startRunHandler())
	s.mux.HandleFunc("/api/runs/current", s.currentRunHandler())
	s.mux.HandleFunc("/api/results", s.resultsHandler())
	s.mux.HandleFunc("/api/results/download", s.downloadHandler())
	s.mux.HandleFunc("/api/history", s.historyHandler())
	s.mux.HandleFunc("/api/history/{id}", s.historyEntryHandler())
	s.mux.HandleFunc("/api/examples", s.examplesHandler())
	s.mux.HandleFunc("/api/settings", s.settingsHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	go s.sseHub.Run(ctx)
	s.startForwarding(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// startForwarding subscribes to run updates and relays them to SSE
// clients until ctx is done
func (s *Server) startForwarding(ctx context.Context) {
	updates, unsubscribe := s.runs.Subscribe()
	go s.forward(ctx, updates, unsubscribe)
}

func (s *Server) forward(ctx context.Context, updates <-chan executor.Snapshot, unsubscribe func()) {
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			s.Broadcast(protocol.FromSnapshot(snap))
		}
	}
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(env protocol.Envelope) {
	s.sseHub.Broadcast(env)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, input.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, executor.ErrNoActiveRun),
		errors.Is(err, runstore.ErrRunNotFound),
		errors.Is(err, presenter.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, executor.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
