package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDir holds state and config when no paths are given.
const DefaultDir = ".qa-sync"

// Config defines qasync configuration.
type Config struct {
	State      StateConfig      `yaml:"state"`
	Sync       SyncConfig       `yaml:"sync"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Source     SourceConfig     `yaml:"source"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Log        LogConfig        `yaml:"log"`
}

type StateConfig struct {
	// Backend is "file" (JSON state file) or "sqlite".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type SyncConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
	IntentLog      bool          `yaml:"intent_log"`
	TitleMax       int           `yaml:"title_max"`
	FetchLimit     int           `yaml:"fetch_limit"`
	MaxWorkers     int           `yaml:"max_workers"`
}

type DedupConfig struct {
	Threshold     float64       `yaml:"threshold"`
	SearchTimeout time.Duration `yaml:"search_timeout"`
}

type ClassifierConfig struct {
	KeywordsPath string `yaml:"keywords_path"`
}

type SourceConfig struct {
	// Kind is "slack" or "jsonl".
	Kind  string      `yaml:"kind"`
	Slack SlackConfig `yaml:"slack"`
	JSONL JSONLConfig `yaml:"jsonl"`
}

type SlackConfig struct {
	Token         string  `yaml:"token"`
	BaseURL       string  `yaml:"base_url"`
	WorkspaceURL  string  `yaml:"workspace_url"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type JSONLConfig struct {
	Dir string `yaml:"dir"`
}

type TrackerConfig struct {
	// Kind is "linear" or "local".
	Kind   string       `yaml:"kind"`
	Linear LinearConfig `yaml:"linear"`
	Local  LocalConfig  `yaml:"local"`
}

type LinearConfig struct {
	APIKey        string            `yaml:"api_key"`
	Endpoint      string            `yaml:"endpoint"`
	TeamID        string            `yaml:"team_id"`
	LabelIDs      map[string]string `yaml:"label_ids"`
	RatePerSecond float64           `yaml:"rate_per_second"`
}

type LocalConfig struct {
	Path      string `yaml:"path"`
	KeyPrefix string `yaml:"key_prefix"`
	BaseURL   string `yaml:"base_url"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type TransportConfig struct {
	// Mode is "stdio" or "http".
	Mode string `yaml:"mode"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Default returns the built-in configuration rooted at home.
func Default(home string) Config {
	dir := filepath.Join(home, DefaultDir)
	return Config{
		State: StateConfig{
			Backend: "file",
			Path:    filepath.Join(dir, "state.json"),
		},
		Sync: SyncConfig{
			PollInterval:   30 * time.Second,
			CallTimeout:    30 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			LeaseTTL:       2 * time.Minute,
			IntentLog:      true,
			TitleMax:       30,
		},
		Dedup: DedupConfig{
			Threshold:     0.6,
			SearchTimeout: 10 * time.Second,
		},
		Source: SourceConfig{
			Kind:  "slack",
			Slack: SlackConfig{RatePerSecond: 1},
			JSONL: JSONLConfig{Dir: filepath.Join(dir, "events")},
		},
		Tracker: TrackerConfig{
			Kind:   "linear",
			Linear: LinearConfig{RatePerSecond: 2},
			Local:  LocalConfig{Path: filepath.Join(dir, "tracker.db"), KeyPrefix: "QA"},
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Transport: TransportConfig{Mode: "stdio"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration: defaults, then the YAML file at path (or
// QASYNC_CONFIG_PATH, or ~/.qa-sync/config.yaml when present), then
// environment overrides. An explicitly named file must exist.
func Load(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg := Default(home)

	explicit := path != ""
	if path == "" {
		path = os.Getenv("QASYNC_CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = filepath.Join(home, DefaultDir, "config.yaml")
	}
	if err := loadFromFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("QASYNC_STATE_BACKEND", &cfg.State.Backend)
	setString("QASYNC_STATE_PATH", &cfg.State.Path)
	setString("QASYNC_LOG_LEVEL", &cfg.Log.Level)
	setString("QASYNC_LOG_FORMAT", &cfg.Log.Format)
	setString("QASYNC_SOURCE", &cfg.Source.Kind)
	setString("QASYNC_SLACK_TOKEN", &cfg.Source.Slack.Token)
	setString("QASYNC_TRACKER", &cfg.Tracker.Kind)
	setString("QASYNC_LINEAR_API_KEY", &cfg.Tracker.Linear.APIKey)
	setString("QASYNC_SERVER_HOST", &cfg.Server.Host)
	setString("QASYNC_API_KEY", &cfg.Server.APIKey)
	setString("QASYNC_TRANSPORT", &cfg.Transport.Mode)

	if portStr := os.Getenv("QASYNC_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid QASYNC_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch c.State.Backend {
	case "file", "json", "sqlite":
	default:
		return fmt.Errorf("invalid state.backend %q", c.State.Backend)
	}
	if c.State.Path == "" {
		return errors.New("state.path is required")
	}
	switch c.Source.Kind {
	case "slack", "jsonl":
	default:
		return fmt.Errorf("invalid source.kind %q", c.Source.Kind)
	}
	switch c.Tracker.Kind {
	case "linear", "local":
	default:
		return fmt.Errorf("invalid tracker.kind %q", c.Tracker.Kind)
	}
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport.mode %q", c.Transport.Mode)
	}
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be within [0, 1], got %v", c.Dedup.Threshold)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
