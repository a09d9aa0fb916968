package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DataDirEnv overrides the directory holding the database and event log
const DataDirEnv = "PROMPT_SCRAPER_DATA_DIR"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Execution     ExecutionConfig     `toml:"execution"`
	Settings      Settings            `toml:"settings"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Schedules     []ScheduleEntry     `toml:"schedule"`
}

// GeneralConfig holds storage locations
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	EventLogPath string `toml:"event_log_path"`
}

// ExecutionConfig controls the timing of the simulated run
type ExecutionConfig struct {
	PhaseInterval Duration `toml:"phase_interval"`
	ResultDelay   Duration `toml:"result_delay"`
	ExportDir     string   `toml:"export_dir"`
}

// Settings are the user-editable options shown in the settings panel.
// None of them alter the phase sequence or the result set.
type Settings struct {
	APIKey         string `toml:"api_key"`
	RunInContainer bool   `toml:"run_in_container"`
	SaveResults    bool   `toml:"save_results"`
	Notifications  bool   `toml:"notifications"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ScheduleEntry is a prompt submitted on a cron schedule
type ScheduleEntry struct {
	Name   string `toml:"name"`
	Cron   string `toml:"cron"`
	Prompt string `toml:"prompt"`
}

// Duration is a time.Duration written as a string ("800ms") in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(dataDir, "runs.db"),
			EventLogPath: filepath.Join(dataDir, "events.jsonl"),
		},
		Execution: ExecutionConfig{
			PhaseInterval: Duration{800 * time.Millisecond},
			ResultDelay:   Duration{1000 * time.Millisecond},
			ExportDir:     ".",
		},
		Settings: Settings{
			RunInContainer: true,
			SaveResults:    true,
			Notifications:  false,
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.EventLogPath = ExpandPath(cfg.General.EventLogPath)
	cfg.Execution.ExportDir = ExpandPath(cfg.Execution.ExportDir)

	return cfg, nil
}

// Save writes the configuration to path, creating parent directories
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Set updates a single settings key from its string form.
// Keys are the TOML names under [settings].
func (s *Settings) Set(key, value string) error {
	switch key {
	case "api_key":
		s.APIKey = value
		return nil
	case "run_in_container", "save_results", "notifications":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "run_in_container":
			s.RunInContainer = b
		case "save_results":
			s.SaveResults = b
		default:
			s.Notifications = b
		}
		return nil
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

// ClearAPIKey empties the stored API key
func (s *Settings) ClearAPIKey() {
	s.APIKey = ""
}

// Masked returns a copy of the settings safe for display
func (s Settings) Masked() Settings {
	s.APIKey = MaskKey(s.APIKey)
	return s
}

// MaskKey hides all but the last four characters of a secret
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("•", len(key))
	}
	return strings.Repeat("•", len(key)-4) + key[len(key)-4:]
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DataDir returns the data directory, honouring PROMPT_SCRAPER_DATA_DIR
func DataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return ExpandPath(dir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".prompt-scraper")
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "prompt-scraper", "config.toml")
}
