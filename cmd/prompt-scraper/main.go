package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "prompt-scraper",
		Short: "Prompt Scraper - turn a plain-language prompt into scraped data",
		Long: `Prompt Scraper takes a description of the data you want, reports the
progress of the scraping run phase by phase and presents the results as a
preview, a table, JSON or a log. Runs are kept in a local history.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
