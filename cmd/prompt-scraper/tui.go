package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
	"github.com/hochfrequenz/prompt-scraper/tui"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive dashboard",
		RunE:  runTUI,
	})
}

func runTUI(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	holder := config.NewHolder(cfg, path)

	examples, err := exampleTexts()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.runs.SetSettings(holder.Settings)

	model := tui.NewModel(tui.ModelConfig{
		Runs:      a.runs,
		Store:     a.store,
		Settings:  holder,
		EventLog:  a.events,
		Examples:  examples,
		ExportDir: cfg.Execution.ExportDir,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
