package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/input"
	"github.com/hochfrequenz/prompt-scraper/internal/observer"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
	"github.com/hochfrequenz/prompt-scraper/internal/prompts"
)

const defaultHistoryLimit = 50

// StatusResponse is the API response for overall status
type StatusResponse struct {
	State   executor.Snapshot `json:"state"`
	Metrics *observer.Metrics `json:"metrics,omitempty"`
	Clients int               `json:"stream_clients"`
	Stuck   bool              `json:"stuck"`
	Recent  []string          `json:"recent_runs,omitempty"`
}

// StartRunRequest is the body of POST /api/runs
type StartRunRequest struct {
	Prompt string `json:"prompt"`
}

// StartRunResponse is returned when a run is accepted
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// ResultsResponse is one rendered view of the live results
type ResultsResponse struct {
	View    presenter.View        `json:"view"`
	Title   string                `json:"title"`
	Content string                `json:"content"`
	Results []domain.ResultRecord `json:"results"`
}

// RunResponse is the API response for a past run
type RunResponse struct {
	ID          string                `json:"id"`
	Prompt      string                `json:"prompt"`
	Status      string                `json:"status"`
	Progress    int                   `json:"progress"`
	Preview     string                `json:"preview"`
	ResultCount *int                  `json:"result_count,omitempty"`
	StartedAt   string                `json:"started_at"`
	FinishedAt  *string               `json:"finished_at,omitempty"`
	Duration    string                `json:"duration"`
	Phases      []PhaseResponse       `json:"phases"`
	Results     []domain.ResultRecord `json:"results"`
}

// PhaseResponse is one recorded phase line
type PhaseResponse struct {
	Timestamp string `json:"timestamp"`
	Phase     string `json:"phase"`
}

// SettingsRequest is the body of PUT /api/settings. Omitted fields are
// left unchanged.
type SettingsRequest struct {
	APIKey         *string `json:"api_key,omitempty"`
	RunInContainer *bool   `json:"run_in_container,omitempty"`
	SaveResults    *bool   `json:"save_results,omitempty"`
	Notifications  *bool   `json:"notifications,omitempty"`
	ClearAPIKey    bool    `json:"clear_api_key,omitempty"`
}

// SettingsResponse shows the settings with the API key masked
type SettingsResponse struct {
	APIKey         string `json:"api_key"`
	HasAPIKey      bool   `json:"has_api_key"`
	RunInContainer bool   `json:"run_in_container"`
	SaveResults    bool   `json:"save_results"`
	Notifications  bool   `json:"notifications"`
}

func settingsToResponse(s config.Settings) SettingsResponse {
	return SettingsResponse{
		APIKey:         config.MaskKey(s.APIKey),
		HasAPIKey:      s.APIKey != "",
		RunInContainer: s.RunInContainer,
		SaveResults:    s.SaveResults,
		Notifications:  s.Notifications,
	}
}

func runToResponse(r *domain.Run, phases []domain.PhaseEntry, results []domain.ResultRecord) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		Prompt:      r.Prompt,
		Status:      string(r.Status),
		Progress:    r.Progress,
		Preview:     r.Preview,
		ResultCount: r.ResultCount,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		Duration:    r.Duration().Round(time.Millisecond).String(),
		Phases:      make([]PhaseResponse, 0, len(phases)),
		Results:     results,
	}
	if r.FinishedAt != nil {
		t := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	for _, p := range phases {
		resp.Phases = append(resp.Phases, PhaseResponse{
			Timestamp: p.Timestamp.Format(time.RFC3339),
			Phase:     string(p.Phase),
		})
	}
	if resp.Results == nil {
		resp.Results = []domain.ResultRecord{}
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		status := StatusResponse{
			State:   s.runs.Snapshot(),
			Clients: s.sseHub.ClientCount(),
		}
		if s.observer != nil {
			m := s.observer.GetMetrics()
			status.Metrics = &m
			status.Recent = s.observer.GetRecentCompletions(time.Hour)
			if status.State.Running() && status.State.StartedAt != nil {
				status.Stuck = s.observer.IsStuck(&domain.Run{
					ID:        status.State.RunID,
					Status:    domain.RunRunning,
					StartedAt: *status.State.StartedAt,
				})
			}
		}
		writeJSON(w, status)
	}
}

func (s *Server) startRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req StartRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		runID, err := s.submit(req.Prompt)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSONStatus(w, http.StatusAccepted, StartRunResponse{RunID: runID})
	}
}

// submit validates text the way the input panel does and starts a run
func (s *Server) submit(text string) (string, error) {
	c := input.NewCollector(nil)
	c.SetText(text)
	prompt, err := c.Submit(s.runs.Running())
	if err != nil {
		return "", err
	}
	h, err := s.runs.StartIfIdle(s.runCtx, prompt)
	if err != nil {
		return "", err
	}
	return h.RunID(), nil
}

func (s *Server) currentRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, s.runs.Snapshot())
		case http.MethodDelete:
			snap := s.runs.Snapshot()
			if err := s.runs.Cancel(); err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeJSONStatus(w, http.StatusAccepted, map[string]string{"cancelled": snap.RunID})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) resultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		view := presenter.ViewPreview
		if v := r.URL.Query().Get("view"); v != "" {
			parsed, err := presenter.ParseView(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			view = parsed
		}

		results := s.runs.Snapshot().Results
		if len(results) == 0 {
			writeError(w, http.StatusNotFound, presenter.ErrNoResults.Error())
			return
		}

		content, err := presenter.Render(view, results, presenter.Options{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, ResultsResponse{
			View:    view,
			Title:   view.Title(),
			Content: content,
			Results: results,
		})
	}
}

func (s *Server) downloadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		snap := s.runs.Snapshot()
		if err := presenter.ServeDownload(w, snap.Results); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		s.events.LogExport(snap.RunID, "download")
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			limit := defaultHistoryLimit
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					writeError(w, http.StatusBadRequest, "invalid limit")
					return
				}
				limit = n
			}

			entries, err := s.store.History(limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if entries == nil {
				entries = []domain.HistoryEntry{}
			}
			writeJSON(w, entries)

		case http.MethodDelete:
			n, err := s.store.ClearHistory()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, map[string]int64{"deleted": n})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) historyEntryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			run, err := s.store.GetRun(id)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			phases, err := s.store.ListPhases(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			results, err := s.store.GetResults(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, runToResponse(run, phases, results))

		case http.MethodDelete:
			if err := s.store.DeleteRun(id); err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) examplesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		examples, err := s.loader.Examples()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if examples == nil {
			examples = []prompts.Example{}
		}
		writeJSON(w, examples)
	}
}

func (s *Server) settingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.settings == nil {
			writeError(w, http.StatusServiceUnavailable, "settings not available")
			return
		}

		switch r.Method {
		case http.MethodGet:
			writeJSON(w, settingsToResponse(s.settings.Settings()))

		case http.MethodPut:
			var req SettingsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			updated, err := s.settings.UpdateSettings(func(st *config.Settings) error {
				if req.APIKey != nil {
					st.APIKey = *req.APIKey
				}
				if req.ClearAPIKey {
					st.ClearAPIKey()
				}
				if req.RunInContainer != nil {
					st.RunInContainer = *req.RunInContainer
				}
				if req.SaveResults != nil {
					st.SaveResults = *req.SaveResults
				}
				if req.Notifications != nil {
					st.Notifications = *req.Notifications
				}
				return nil
			})
			if err != nil {
				log.Printf("Warning: failed to save settings: %v", err)
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, settingsToResponse(updated))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}
