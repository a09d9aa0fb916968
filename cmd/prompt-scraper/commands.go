package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/prompt-scraper/internal/eventlog"
	"github.com/hochfrequenz/prompt-scraper/internal/presenter"
	"github.com/hochfrequenz/prompt-scraper/internal/prompts"
	"github.com/hochfrequenz/prompt-scraper/internal/runstore"
)

var (
	exportCopy   bool
	exportOutput string
	eventsLimit  int
)

func init() {
	// examples command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "examples",
		Short: "List example prompts",
		RunE:  runExamples,
	})

	// export command
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the results of the latest successful run",
		Long: `Export prints the results of the most recent successful run as JSON, or
copies them to the clipboard or writes them to ` + presenter.DownloadName + `.`,
		RunE: runExport,
	}
	exportCmd.Flags().BoolVar(&exportCopy, "copy", false, "copy to the clipboard")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "directory to write "+presenter.DownloadName+" to")
	rootCmd.AddCommand(exportCmd)

	// events command
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent run events",
		RunE:  runEvents,
	}
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "number of events to show")
	rootCmd.AddCommand(eventsCmd)
}

func runExamples(cmd *cobra.Command, args []string) error {
	examples, err := prompts.DefaultLoader().Examples()
	if err != nil {
		return err
	}
	for i, ex := range examples {
		fmt.Printf("%d. %s\n", i+1, ex.Text)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	run, results, err := store.LatestResults()
	if errors.Is(err, runstore.ErrRunNotFound) {
		return presenter.ErrNoResults
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return presenter.ErrNoResults
	}
	events := eventlog.New(cfg.General.EventLogPath)

	if exportCopy {
		if err := presenter.Copy(results); err != nil {
			return err
		}
		events.LogExport(run.ID, "clipboard")
		fmt.Fprintf(os.Stderr, "Copied %d results from run %s\n", len(results), shortID(run.ID))
	}
	if exportOutput != "" {
		path, err := presenter.Download(exportOutput, results)
		if err != nil {
			return err
		}
		events.LogExport(run.ID, path)
		fmt.Fprintf(os.Stderr, "Saved %s\n", path)
	}
	if !exportCopy && exportOutput == "" {
		data, err := presenter.Serialize(results)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.General.EventLogPath

	events, err := eventlog.ReadRecent(path, eventsLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	if info, err := os.Stat(path); err == nil {
		fmt.Printf("%s (%s)\n\n", path, humanize.Bytes(uint64(info.Size())))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tRUN\tDATA")
	for _, e := range events {
		data := ""
		if e.Data != nil {
			data = fmt.Sprint(e.Data)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Type,
			shortID(e.RunID),
			data)
	}
	return w.Flush()
}
