package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
	"github.com/hochfrequenz/prompt-scraper/internal/input"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
	"github.com/hochfrequenz/prompt-scraper/internal/prompts"
)

var (
	runView    string
	runCopy    bool
	runOutput  string
	runExample int
	runSummary bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run [PROMPT]",
		Short: "Run a prompt and show the results",
		Long: `Run submits a prompt, prints each execution phase as it is reported and
then renders the results in the selected view. Press Ctrl+C to cancel.`,
		RunE: runRun,
	}
	runCmd.Flags().StringVar(&runView, "view", "preview", "result view: preview, table, json or logs")
	runCmd.Flags().BoolVar(&runCopy, "copy", false, "copy the results to the clipboard as JSON")
	runCmd.Flags().StringVar(&runOutput, "output", "", "directory to write "+presenter.DownloadName+" to")
	runCmd.Flags().IntVar(&runExample, "example", 0, "use example prompt N (see 'examples')")
	runCmd.Flags().BoolVar(&runSummary, "summary", false, "print a run summary after the results")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	view, err := presenter.ParseView(runView)
	if err != nil {
		return err
	}

	examples, err := exampleTexts()
	if err != nil {
		return err
	}
	collector := input.NewCollector(examples)
	if runExample > 0 {
		if err := collector.SelectExample(runExample - 1); err != nil {
			return err
		}
	} else {
		collector.SetText(strings.Join(args, " "))
	}
	prompt, err := collector.Submit(false)
	if err != nil {
		return fmt.Errorf("%w: pass a prompt or --example N", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates, unsubscribe := a.runs.Subscribe()
	defer unsubscribe()

	h, err := a.runs.Start(ctx, prompt)
	if err != nil {
		return err
	}

	tty := term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Printf("Prompt: %s\n\n", prompt)
	followRun(ctx, h, updates, tty)

	if err := h.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("run cancelled")
		}
		return err
	}

	snap := a.runs.Snapshot()
	fmt.Println()
	out, err := presenter.Render(view, snap.Results, presenter.Options{})
	if err != nil {
		return err
	}
	fmt.Print(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Println()
	}

	if runCopy {
		if err := presenter.Copy(snap.Results); err != nil {
			return err
		}
		a.events.LogExport(snap.RunID, "clipboard")
		fmt.Fprintf(os.Stderr, "Copied %d results to clipboard\n", len(snap.Results))
	}
	if runOutput != "" {
		path, err := presenter.Download(runOutput, snap.Results)
		if err != nil {
			return err
		}
		a.events.LogExport(snap.RunID, path)
		fmt.Fprintf(os.Stderr, "Saved %s\n", path)
	}

	if runSummary {
		summary, err := renderSummary(snap)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Print(summary)
	}
	return nil
}

// followRun prints phase lines as they arrive until the run finishes. On a
// terminal the progress label is redrawn in place below the log.
func followRun(ctx context.Context, h *executor.Handle, updates <-chan executor.Snapshot, tty bool) {
	for {
		select {
		case <-h.Done():
			drain(updates, h.RunID(), tty)
			if tty {
				fmt.Print("\r\033[K")
			}
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			printUpdate(snap, h.RunID(), tty)
		}
	}
}

func drain(updates <-chan executor.Snapshot, runID string, tty bool) {
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			printUpdate(snap, runID, tty)
		default:
			return
		}
	}
}

func printUpdate(snap executor.Snapshot, runID string, tty bool) {
	if snap.RunID != runID {
		return
	}
	switch snap.Event {
	case executor.UpdatePhase:
		phases := snap.Report.Phases
		line := string(phases[len(phases)-1])
		stamp := time.Now().Format("15:04:05")
		if tty {
			fmt.Printf("\r\033[K%s\n%s", presenter.StyledLogLine(stamp, line), presenter.ProgressLabel(snap.Report.Progress))
		} else {
			fmt.Printf("[%s] %s (%s)\n", stamp, line, presenter.ProgressLabel(snap.Report.Progress))
		}
	case executor.UpdateResults:
		if tty {
			fmt.Print("\r\033[K")
		}
		fmt.Println(presenter.ExecutionHeader(false))
	case executor.UpdateCancelled:
		if tty {
			fmt.Print("\r\033[K")
		}
		fmt.Println(domain.CancelledPreview)
	}
}

func renderSummary(snap executor.Snapshot) (string, error) {
	status := string(domain.RunSuccess)
	if snap.Status != executor.StatusComplete {
		status = string(domain.RunFailed)
	}
	var duration time.Duration
	if snap.StartedAt != nil && snap.FinishedAt != nil {
		duration = snap.FinishedAt.Sub(*snap.StartedAt).Round(time.Millisecond)
	}
	phases := make([]string, len(snap.Report.Phases))
	for i, p := range snap.Report.Phases {
		phases[i] = string(p)
	}
	return prompts.DefaultLoader().RenderSummary(prompts.SummaryData{
		ID:       snap.RunID,
		Status:   status,
		Duration: duration.String(),
		Prompt:   snap.Prompt,
		Preview:  domain.ResultPreview(len(snap.Results)),
		Phases:   phases,
	})
}
