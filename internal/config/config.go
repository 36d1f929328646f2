// Load envs from .env
// Load YAML config
// Validate config
// Provide default values

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// persistence; empty means in-memory store
	DatabaseURL string `yaml:"database_url"`

	// optional telegram digest of new jobs
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	// crawl request defaults
	Source      string   `yaml:"source"`
	Keywords    []string `yaml:"keywords"`
	Areas       []string `yaml:"areas"`
	MaxPages    int      `yaml:"max_pages"`
	Parallelism int      `yaml:"parallelism"`

	// browser
	Headless      bool     `yaml:"headless"`
	UserAgents    []string `yaml:"user_agents"`
	CookiesPath   string   `yaml:"cookies_path"`
	ScreenshotDir string   `yaml:"screenshot_dir"`
	FetchDetails  bool     `yaml:"fetch_details"`

	// paths
	SelectorsPath string `yaml:"selectors_path"`
	OutputDir     string `yaml:"output_dir"`

	// maintenance
	RetentionDays int    `yaml:"retention_days"`
	MarkOldDays   int    `yaml:"mark_old_days"`
	CleanupSpec   string `yaml:"cleanup_spec"` // cron spec for the maintenance job
	CrawlSpec     string `yaml:"crawl_spec"`   // cron spec for scheduled crawls, empty disables
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// config file is optional; env vars and defaults still apply
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// env overrides
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// defaults
	if cfg.Source == "" {
		cfg.Source = "townwork"
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 5
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 5
	}
	if cfg.SelectorsPath == "" {
		cfg.SelectorsPath = "configs/selectors.yaml"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "data/output"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 90
	}
	if cfg.MarkOldDays == 0 {
		cfg.MarkOldDays = 7
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = "@daily"
	}

	if cfg.Parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be >= 1, got %d", cfg.Parallelism)
	}
	return cfg, nil
}
