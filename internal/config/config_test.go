package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/osmike/sweeper/internal/asset"
	errs "github.com/osmike/sweeper/internal/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
schedule:
  every: 1h
  window_start: "22:00"
  window_end: "06:00"
real:
  table: data/real.csv
  max_uses: 5
  cooldown: 12h
confirm:
  backoff: 1m
  retries: 0
driver:
  url: https://contest.example/Enter
  submit_selector: "#Continue"
  result_selector: button
  win_text: NEXT STEPS
  lose_text: LEARN MORE
  result_timeout: 45s
  fields:
    - selector: "#FirstName"
      column: FirstName
    - selector: "#PostalCode"
      column: PostalCode
      format: postal_code
logging:
  level: debug
history:
  path: ""
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "data/real.csv", cfg.Real.Table)
	assert.Equal(t, "TimesUsed", cfg.Real.UsageColumn, "unset keys keep their defaults")
	assert.Equal(t, 5, cfg.Real.MaxUses)
	assert.Equal(t, 12*time.Hour, cfg.Real.CooldownDuration())
	assert.Equal(t, 0, cfg.Retry().Count)
	assert.Equal(t, time.Minute, cfg.Retry().Backoff)
	assert.Equal(t, 5*time.Minute, cfg.SubmitTimeout())
	assert.Empty(t, cfg.History.Path)

	sc, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, sc.Interval.Time)
	assert.Empty(t, sc.Interval.CronExpr)
	assert.Equal(t, 5*time.Second, sc.CheckInterval)

	w, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, "22:00-06:00", w.String())

	dc, err := cfg.DriverConfig()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, dc.ResultTimeout)
	assert.Equal(t, 25*time.Second, dc.LoadTimeout)
	assert.Len(t, dc.Fields, 2)
	assert.Equal(t, "postal_code", dc.Fields[1].Format)
	assert.True(t, dc.Headless)

	assert.Equal(t, asset.First, cfg.RealReceipts().Order)
	assert.Equal(t, asset.Random, cfg.ProbeReceipts().Order)
	assert.Empty(t, cfg.ProbeReceipts().UsedDir)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	sc, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultCron, sc.Interval.CronExpr)

	err = cfg.Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "driver.url is required")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "schedule: [oops"))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("window and cadence", func(t *testing.T) {
		t.Setenv("SWEEPER_WINDOW_START", "06:00")
		t.Setenv("SWEEPER_WINDOW_END", "09:00")
		t.Setenv("SWEEPER_CRON", "*/30 * * * *")

		cfg, err := Load(writeConfig(t, sample))
		require.NoError(t, err)
		assert.Equal(t, "06:00", cfg.Schedule.WindowStart)
		assert.Empty(t, cfg.Schedule.Every, "cron from the environment replaces the file's interval")
		require.NoError(t, cfg.Validate())
	})

	t.Run("headless must be a bool", func(t *testing.T) {
		t.Setenv("SWEEPER_HEADLESS", "maybe")
		_, err := Load(writeConfig(t, sample))
		assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	})

	t.Run("headless off", func(t *testing.T) {
		t.Setenv("SWEEPER_HEADLESS", "false")
		cfg, err := Load(writeConfig(t, sample))
		require.NoError(t, err)
		assert.False(t, cfg.Driver.Headless)
	})
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	require.NoError(t, os.Unsetenv("SWEEPER_CONTROL_URL"))
	t.Cleanup(func() { _ = os.Unsetenv("SWEEPER_CONTROL_URL") })

	path := writeConfig(t, sample)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte("SWEEPER_CONTROL_URL=ws://127.0.0.1:9222\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222", cfg.Driver.ControlURL)
}

func TestValidate_Problems(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	cfg.Schedule.Cron = "1 6-8 * * *"
	cfg.Real.MaxUses = 0
	cfg.Real.Cooldown = "soon"
	cfg.Schedule.WindowEnd = "25:00"

	err = cfg.Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	for _, want := range []string{"not both", "max_uses", "real.cooldown", "invalid time window"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg.Schedule.Every = ""
	cfg.Schedule.Cron = "61 * * * *"
	_, err = cfg.SchedulerConfig()
	assert.ErrorIs(t, err, errs.ErrInvalidCronExpression)
}

func TestValidate_CheckInterval(t *testing.T) {
	for _, v := range []string{"0s", "-1s"} {
		cfg, err := Load(writeConfig(t, sample))
		require.NoError(t, err)
		cfg.Schedule.CheckInterval = v

		err = cfg.Validate()
		assert.ErrorIs(t, err, errs.ErrInvalidConfig, v)
		assert.Contains(t, err.Error(), "check_interval must be positive", v)
	}

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cfg.Schedule.CheckInterval = ""
	require.NoError(t, cfg.Validate())
	sc, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Zero(t, sc.CheckInterval, "left to the scheduler default")
}
