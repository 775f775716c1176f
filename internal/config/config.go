// Package config loads and validates the sweeper configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/osmike/sweeper/internal/asset"
	"github.com/osmike/sweeper/internal/domain"
	"github.com/osmike/sweeper/internal/driver"
	errs "github.com/osmike/sweeper/internal/error"
	"github.com/osmike/sweeper/internal/ledger"
	"github.com/osmike/sweeper/internal/logging"
	"github.com/osmike/sweeper/internal/scheduler"
	"github.com/osmike/sweeper/internal/window"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no --config flag is given.
	DefaultPath = "sweeper.yaml"

	// DefaultCron ticks at 06:01, 07:01 and 08:01 every day. It applies when neither
	// schedule.every nor schedule.cron is set.
	DefaultCron = "1 6-8 * * *"
)

// Config is the root of sweeper.yaml. Durations are Go duration strings ("20m", "24h").
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Real     PoolConfig     `yaml:"real"`
	Probe    PoolConfig     `yaml:"probe"`
	Confirm  ConfirmConfig  `yaml:"confirm"`
	Driver   DriverConfig   `yaml:"driver"`
	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`
}

// ScheduleConfig sets when ticks happen.
type ScheduleConfig struct {
	CheckInterval  string `yaml:"check_interval"`
	Every          string `yaml:"every"`
	Cron           string `yaml:"cron"`
	RunImmediately bool   `yaml:"run_immediately"`
	WindowStart    string `yaml:"window_start"`
	WindowEnd      string `yaml:"window_end"`
}

// PoolConfig describes one identity table and its receipts.
type PoolConfig struct {
	Table          string `yaml:"table"`
	KeyColumn      string `yaml:"key_column"`
	UsageColumn    string `yaml:"usage_column"`
	LastUsedColumn string `yaml:"last_used_column"`
	TimeLayout     string `yaml:"time_layout"`

	// MaxUses and Cooldown only apply to the real pool.
	MaxUses  int    `yaml:"max_uses"`
	Cooldown string `yaml:"cooldown"`

	ReceiptsDir     string `yaml:"receipts_dir"`
	UsedReceiptsDir string `yaml:"used_receipts_dir"`
}

// ConfirmConfig bounds the real submissions that follow a winning probe.
type ConfirmConfig struct {
	Backoff       string `yaml:"backoff"`
	Retries       int    `yaml:"retries"`
	SubmitTimeout string `yaml:"submit_timeout"`
}

// DriverConfig is driver.Config plus its timeouts in string form.
type DriverConfig struct {
	driver.Config `yaml:",inline"`

	LoadTimeout   string `yaml:"load_timeout"`
	ResultTimeout string `yaml:"result_timeout"`
	Settle        string `yaml:"settle"`
}

// LoggingConfig sets where and how much to log.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// HistoryConfig locates the attempt history database. An empty Path keeps history in memory.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig mirrors the layout of a fresh checkout: tables and receipts under data/.
func DefaultConfig() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			CheckInterval: domain.DEFAULT_CHECK_INTERVAL.String(),
		},
		Real: PoolConfig{
			Table:           "data/addresses.csv",
			KeyColumn:       "Email",
			UsageColumn:     "TimesUsed",
			LastUsedColumn:  "LastUsedDate",
			MaxUses:         domain.DEFAULT_MAX_USES,
			Cooldown:        "24h",
			ReceiptsDir:     "data/receipts/fresh",
			UsedReceiptsDir: "data/receipts/used",
		},
		Probe: PoolConfig{
			Table:          "data/dummy_addresses.csv",
			KeyColumn:      "Email",
			LastUsedColumn: "LastUsedDate",
			ReceiptsDir:    "data/dummy_receipts",
		},
		Confirm: ConfirmConfig{
			Backoff:       "20m",
			Retries:       domain.DEFAULT_CONFIRM_RETRIES,
			SubmitTimeout: "5m",
		},
		Driver: DriverConfig{
			Config: driver.Config{
				Headless:      true,
				EmailColumn:   "Email",
				ScreenshotDir: "screenshots",
			},
			LoadTimeout:   "25s",
			ResultTimeout: "30s",
			Settle:        "3s",
		},
		Logging: LoggingConfig{Dir: "logs", Level: "info"},
		History: HistoryConfig{Path: "data/history.db"},
	}
}

// Load reads path over the defaults, then applies a .env file next to it and SWEEPER_* variables.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("parse %s: %v", path, err))
		}
	}

	// Variables already set in the environment win over the file.
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets operators adjust the most common knobs without editing the file.
func (c *Config) applyEnvOverrides() error {
	if v, ok := os.LookupEnv("SWEEPER_WINDOW_START"); ok {
		c.Schedule.WindowStart = v
	}
	if v, ok := os.LookupEnv("SWEEPER_WINDOW_END"); ok {
		c.Schedule.WindowEnd = v
	}
	if v := os.Getenv("SWEEPER_CRON"); v != "" {
		c.Schedule.Cron, c.Schedule.Every = v, ""
	}
	if v := os.Getenv("SWEEPER_EVERY"); v != "" {
		c.Schedule.Every, c.Schedule.Cron = v, ""
	}
	if v := os.Getenv("SWEEPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SWEEPER_CONTROL_URL"); v != "" {
		c.Driver.ControlURL = v
	}
	if v := os.Getenv("SWEEPER_FORM_URL"); v != "" {
		c.Driver.URL = v
	}
	if v := os.Getenv("SWEEPER_HISTORY_DB"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("SWEEPER_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.New(errs.ErrInvalidConfig, fmt.Sprintf("SWEEPER_HEADLESS=%q", v))
		}
		c.Driver.Headless = b
	}
	return nil
}

// Validate checks everything the loop needs before it starts.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if _, err := c.Window(); err != nil {
		add("%v", err)
	}
	if _, err := c.SchedulerConfig(); err != nil {
		add("%v", err)
	}
	if c.Real.MaxUses <= 0 {
		add("real.max_uses must be positive")
	}
	if d, err := parseDuration("real.cooldown", c.Real.Cooldown); err != nil {
		add("%v", err)
	} else if d <= 0 {
		add("real.cooldown must be positive")
	}
	if d, err := parseDuration("confirm.backoff", c.Confirm.Backoff); err != nil {
		add("%v", err)
	} else if d < 0 {
		add("confirm.backoff must not be negative")
	}
	if c.Confirm.Retries < 0 {
		add("confirm.retries must not be negative")
	}
	for name, p := range map[string]PoolConfig{"real": c.Real, "probe": c.Probe} {
		if p.Table == "" || p.KeyColumn == "" || p.LastUsedColumn == "" {
			add("%s: table, key_column and last_used_column are required", name)
		}
		if p.ReceiptsDir == "" {
			add("%s.receipts_dir is required", name)
		}
	}
	if c.Real.UsageColumn == "" {
		add("real.usage_column is required")
	}
	if c.Real.UsedReceiptsDir == "" {
		add("real.used_receipts_dir is required")
	}
	if _, err := c.DriverConfig(); err != nil {
		add("%v", err)
	}
	if c.Driver.URL == "" {
		add("driver.url is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return errs.New(errs.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Window returns the parsed daily window.
func (c *Config) Window() (window.Window, error) {
	return window.Parse(c.Schedule.WindowStart, c.Schedule.WindowEnd)
}

// SchedulerConfig returns the cadence in scheduler form. Window, Now and Log are left for the caller.
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	check, err := parseDuration("schedule.check_interval", c.Schedule.CheckInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	every, err := parseDuration("schedule.every", c.Schedule.Every)
	if err != nil {
		return scheduler.Config{}, err
	}
	if every < 0 {
		return scheduler.Config{}, errs.New(errs.ErrInvalidConfig, "schedule.every must not be negative")
	}
	// Left empty, the scheduler falls back to its default.
	if c.Schedule.CheckInterval != "" && check <= 0 {
		return scheduler.Config{}, errs.New(errs.ErrInvalidConfig, "schedule.check_interval must be positive")
	}
	if c.Schedule.Cron != "" && every > 0 {
		return scheduler.Config{}, errs.New(errs.ErrMixedScheduleType, "set schedule.every or schedule.cron, not both")
	}
	cron := c.Schedule.Cron
	if cron == "" && every == 0 {
		cron = DefaultCron
	}
	if cron != "" {
		if _, err := scheduler.ParseCron(cron); err != nil {
			return scheduler.Config{}, err
		}
	}
	return scheduler.Config{
		CheckInterval:  check,
		Interval:       domain.Interval{Time: every, CronExpr: cron},
		RunImmediately: c.Schedule.RunImmediately,
	}, nil
}

// Columns returns the table layout of p.
func (p PoolConfig) Columns() ledger.Columns {
	return ledger.Columns{Key: p.KeyColumn, Usage: p.UsageColumn, LastUsed: p.LastUsedColumn, TimeLayout: p.TimeLayout}
}

// CooldownDuration returns the parsed cool-down, or the default if unset or invalid.
func (p PoolConfig) CooldownDuration() time.Duration {
	return durationOr(p.Cooldown, domain.DEFAULT_COOLDOWN)
}

// RealReceipts describes the real receipts: first by listing, committed once used.
func (c *Config) RealReceipts() asset.Config {
	return asset.Config{FreshDir: c.Real.ReceiptsDir, UsedDir: c.Real.UsedReceiptsDir, Order: asset.First, Create: true}
}

// ProbeReceipts describes the dummy receipts: random, never committed.
func (c *Config) ProbeReceipts() asset.Config {
	return asset.Config{FreshDir: c.Probe.ReceiptsDir, Order: asset.Random, Create: true}
}

// Retry returns the confirm retry policy.
func (c *Config) Retry() domain.Retry {
	return domain.Retry{Count: c.Confirm.Retries, Backoff: durationOr(c.Confirm.Backoff, domain.DEFAULT_CONFIRM_BACKOFF)}
}

// SubmitTimeout bounds each submission.
func (c *Config) SubmitTimeout() time.Duration {
	return durationOr(c.Confirm.SubmitTimeout, domain.DEFAULT_SUBMIT_TIMEOUT)
}

// DriverConfig returns the driver configuration with its timeouts parsed.
func (c *Config) DriverConfig() (driver.Config, error) {
	out := c.Driver.Config
	var err error
	if out.LoadTimeout, err = parseDuration("driver.load_timeout", c.Driver.LoadTimeout); err != nil {
		return driver.Config{}, err
	}
	if out.ResultTimeout, err = parseDuration("driver.result_timeout", c.Driver.ResultTimeout); err != nil {
		return driver.Config{}, err
	}
	if out.Settle, err = parseDuration("driver.settle", c.Driver.Settle); err != nil {
		return driver.Config{}, err
	}
	return out, nil
}

// parseDuration treats an empty value as zero.
func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("%s: %v", field, err))
	}
	return d, nil
}

func durationOr(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
