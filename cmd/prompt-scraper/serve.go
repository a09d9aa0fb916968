package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/observer"
	"github.com/hochfrequenz/prompt-scraper/internal/prompts"
	"github.com/hochfrequenz/prompt-scraper/internal/schedule"
	"github.com/hochfrequenz/prompt-scraper/web/api"
)

var servePort int

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and run scheduled prompts",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	holder := config.NewHolder(cfg, path)

	sched, err := schedule.NewScheduler(cfg.Schedules)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Settings may change through the API or the config file while serving
	a.runs.SetSettings(holder.Settings)

	if n, err := a.store.MarkInterrupted(); err != nil {
		log.Printf("Warning: failed to mark interrupted runs: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d interrupted runs as failed", n)
	}

	port := cfg.Web.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	server := api.NewServer(a.store, a.runs, addr)
	server.SetObserver(a.observer)
	server.SetSettings(holder)
	server.SetEventLog(a.events)
	server.SetLoader(prompts.DefaultLoader())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := observer.NewConfigWatcher(path, reloadOnChange(holder))
	if err != nil {
		log.Printf("Warning: not watching %s: %v", path, err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Serving on http://%s", addr)
		return server.Start(gctx)
	})
	if names := sched.Names(); len(names) > 0 {
		for _, name := range names {
			log.Printf("Schedule %s: next run %s", name, sched.NextRun(name).Format(time.RFC3339))
		}
		g.Go(func() error {
			sched.Start(gctx, scheduledRun(a))
			return nil
		})
	}

	return g.Wait()
}

// reloadOnChange refreshes the shared settings when the config file changes
func reloadOnChange(holder *config.Holder) observer.ConfigChangeCallback {
	return func(path string) {
		if err := holder.Reload(); err != nil {
			log.Printf("Warning: config reload failed: %v", err)
			return
		}
		log.Printf("Config reloaded from %s", path)
	}
}

// scheduledRun starts a schedule's prompt unless a run is already live
func scheduledRun(a *app) schedule.RunFunc {
	return func(ctx context.Context, e config.ScheduleEntry) error {
		h, err := a.runs.StartIfIdle(ctx, domain.Prompt(e.Prompt))
		if err != nil {
			return err
		}
		a.events.LogSchedule(e.Name, e.Prompt)
		return h.Wait()
	}
}
