package main

import (
	"time"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/eventlog"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/notify"
	"github.com/hochfrequenz/prompt-scraper/internal/observer"
	"github.com/hochfrequenz/prompt-scraper/internal/prompts"
	"github.com/hochfrequenz/prompt-scraper/internal/runstore"
)

// stuckThreshold flags runs that have been executing far longer than the
// phase sequence takes
const stuckThreshold = 5 * time.Minute

func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	return runstore.New(cfg.General.DatabasePath)
}

func exampleTexts() ([]string, error) {
	return prompts.DefaultLoader().ExampleTexts()
}

// app bundles the collaborators shared by the run, serve and tui commands
type app struct {
	cfg      *config.Config
	store    *runstore.Store
	events   *eventlog.Logger
	observer *observer.Observer
	runs     *executor.RunManager
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	events := eventlog.New(cfg.General.EventLogPath)
	obs := observer.New(stuckThreshold)

	runs := executor.NewRunManager(executor.NewReporter(
		cfg.Execution.PhaseInterval.Duration,
		cfg.Execution.ResultDelay.Duration,
	))
	runs.SetStore(store)
	runs.SetEventLog(events)
	runs.SetObserver(obs)
	runs.SetNotifier(notify.FromConfig(cfg.Notifications))
	settings := cfg.Settings
	runs.SetSettings(func() config.Settings { return settings })

	return &app{
		cfg:      cfg,
		store:    store,
		events:   events,
		observer: obs,
		runs:     runs,
	}, nil
}

// Close waits for the live run to be recorded, then closes the store
func (a *app) Close() {
	a.runs.Close()
	a.store.Close()
}
