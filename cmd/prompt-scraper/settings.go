package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/prompt-scraper/internal/config"
)

var settingsReveal bool

func init() {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings",
		RunE:  runSettingsShow,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		RunE:  runSettingsShow,
	}
	showCmd.Flags().BoolVar(&settingsReveal, "reveal", false, "show the API key unmasked")
	settingsCmd.AddCommand(showCmd)

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set api_key, run_in_container, save_results or notifications",
		Args:  cobra.ExactArgs(2),
		RunE:  runSettingsSet,
	})
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "clear-api-key",
		Short: "Remove the stored API key",
		RunE:  runSettingsClearKey,
	})
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := cfg.Settings
	if !settingsReveal {
		s = s.Masked()
	}
	key := s.APIKey
	if key == "" {
		key = "(not set)"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "api_key\t%s\n", key)
	fmt.Fprintf(w, "run_in_container\t%t\n", s.RunInContainer)
	fmt.Fprintf(w, "save_results\t%t\n", s.SaveResults)
	fmt.Fprintf(w, "notifications\t%t\n", s.Notifications)
	return w.Flush()
}

func updateSettings(fn func(*config.Settings) error) error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	_, err = config.NewHolder(cfg, path).UpdateSettings(fn)
	return err
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if err := updateSettings(func(s *config.Settings) error {
		return s.Set(args[0], args[1])
	}); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", args[0])
	return nil
}

func runSettingsClearKey(cmd *cobra.Command, args []string) error {
	if err := updateSettings(func(s *config.Settings) error {
		s.ClearAPIKey()
		return nil
	}); err != nil {
		return err
	}
	fmt.Println("API key cleared")
	return nil
}
