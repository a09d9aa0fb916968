package config

import (
	"os"
	"sync"
)

// Holder guards a loaded Config shared by the server, the scheduler and the
// config watcher. Settings changes are written back to the file.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps cfg, which was loaded from path
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Path returns the config file location
func (h *Holder) Path() string {
	return h.path
}

// Config returns a shallow copy of the current configuration
func (h *Holder) Config() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := *h.cfg
	c.Schedules = append([]ScheduleEntry(nil), h.cfg.Schedules...)
	return c
}

// Settings returns the current settings
func (h *Holder) Settings() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.Settings
}

// UpdateSettings applies fn to a copy of the settings and saves the file.
// The in-memory settings only change if fn and the save succeed.
func (h *Holder) UpdateSettings(fn func(*Settings) error) (Settings, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.cfg.Settings
	if err := fn(&next); err != nil {
		return h.cfg.Settings, err
	}

	updated := *h.cfg
	updated.Settings = next
	if h.path != "" {
		if err := updated.Save(h.path); err != nil {
			return h.cfg.Settings, err
		}
	}
	h.cfg.Settings = next
	return next, nil
}

// Reload re-reads the config file. On a parse error the previous
// configuration is kept and the error returned. A missing file keeps the
// current configuration.
func (h *Holder) Reload() error {
	if _, err := os.Stat(h.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cfg, err := Load(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
	return nil
}
