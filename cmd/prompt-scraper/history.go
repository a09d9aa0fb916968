package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
	"github.com/hochfrequenz/prompt-scraper/internal/runstore"
)

var historyLimit int

func init() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		RunE:  runHistoryList,
	}
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List past runs, newest first",
		RunE:  runHistoryList,
	})
	historyCmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Long:  "Show a past run. ID may be the short id printed by history list.",
		Short: "Show the phases and results of a past run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	})
	historyCmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete one run from history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	})
	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all runs from history",
		RunE:  runHistoryClear,
	})
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return printHistory(cmd.OutOrStdout(), store, historyLimit)
}

func printHistory(out io.Writer, store *runstore.Store, limit int) error {
	entries, err := store.History(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No runs yet")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAGE\tRESULT\tPROMPT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID),
			e.Status,
			domain.FormatAge(now, e.Timestamp),
			e.Preview,
			truncate.StringWithTail(e.Prompt, 50, "…"))
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return showRun(cmd.OutOrStdout(), store, args[0])
}

// showRun prints one run. id may be the short form printed by history list.
func showRun(out io.Writer, store *runstore.Store, id string) error {
	id, err := store.ResolveID(id)
	if err != nil {
		return err
	}
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	phases, err := store.ListPhases(run.ID)
	if err != nil {
		return err
	}
	results, err := store.GetResults(run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Prompt:   %s\n", run.Prompt)
	fmt.Fprintf(out, "Status:   %s (%s)\n", run.Status, run.Preview)
	fmt.Fprintf(out, "Started:  %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Duration: %s\n", run.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Progress: %s\n", presenter.ProgressLabel(run.Progress))

	if len(phases) > 0 {
		fmt.Fprintln(out)
		for _, p := range phases {
			fmt.Fprintln(out, presenter.LogLine(p.Timestamp.Local(), string(p.Phase)))
		}
	}

	if len(results) > 0 {
		table, err := presenter.Render(presenter.ViewTable, results, presenter.Options{})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, table)
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return deleteRun(cmd.OutOrStdout(), store, args[0])
}

func deleteRun(out io.Writer, store *runstore.Store, id string) error {
	id, err := store.ResolveID(id)
	if err != nil {
		return err
	}
	if err := store.DeleteRun(id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %s\n", id)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ClearHistory()
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %s from history\n", pluralRuns(n))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func pluralRuns(n int64) string {
	if n == 1 {
		return "1 run"
	}
	return humanize.Comma(n) + " runs"
}
