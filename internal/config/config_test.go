package config

import (
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	var cfg Config
	require.NoError(t, envconfig.Process("STATEDGE_CONFIG_TEST", &cfg))
	cfg.Season = 2025
	cfg.DatabasePassword = "secret"
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "https://baseballsavant.mlb.com", cfg.SavantBaseURL)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 10, cfg.BatchSizeDays)
	assert.Equal(t, 25, cfg.SampleSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.InDelta(t, 99.5, cfg.SampleThreshold, 1e-9)
	assert.InDelta(t, 95.0, cfg.EntityThreshold, 1e-9)
	assert.Equal(t, []int64{592450, 545361, 666176, 592518, 608369}, cfg.KeyEntityIDs)
	assert.Equal(t, "0 6 * * *", cfg.ScheduleCron)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateStore())
}

func TestSeasonRange(t *testing.T) {
	cfg := validConfig(t)

	start, end, err := cfg.SeasonRange()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", start.Format("2006-01-02"))
	assert.Equal(t, "2025-11-15", end.Format("2006-01-02"))

	cfg.SeasonStart = "04-01"
	cfg.SeasonEnd = "2025-04-03"
	start, end, err = cfg.SeasonRange()
	require.NoError(t, err)
	assert.Equal(t, "2025-04-01", start.Format("2006-01-02"))
	assert.Equal(t, "2025-04-03", end.Format("2006-01-02"))
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":      func(c *Config) { c.StoreDriver = "mysql" },
		"unknown lease":       func(c *Config) { c.LeaseBackend = "etcd" },
		"pre-statcast season": func(c *Config) { c.Season = 2007 },
		"start after end":     func(c *Config) { c.SeasonStart = "10-01"; c.SeasonEnd = "04-01" },
		"bad start":           func(c *Config) { c.SeasonStart = "opening day" },
		"zero threshold":      func(c *Config) { c.SampleThreshold = 0 },
		"threshold over 100":  func(c *Config) { c.EntityThreshold = 100.1 },
		"negative retries":    func(c *Config) { c.MaxRetries = -1 },
		"zero batch":          func(c *Config) { c.BatchSizeDays = 0 },
		"zero sample":         func(c *Config) { c.SampleSize = 0 },
		"zero concurrency":    func(c *Config) { c.WorkerConcurrency = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateStore(t *testing.T) {
	cfg := validConfig(t)
	cfg.DatabasePassword = ""
	assert.NoError(t, cfg.Validate(), "commands that never open the store need no password")
	assert.Error(t, cfg.ValidateStore())

	cfg.StoreDriver = DriverSQLite
	assert.NoError(t, cfg.ValidateStore())

	cfg.SQLitePath = ""
	assert.Error(t, cfg.ValidateStore())
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	t.Setenv("SEASON", "2007")
	t.Setenv("DATABASE_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
	assert.False(t, cfg.FollowsCurrentSeason())

	cfg.PinSeason(2024)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DefaultSeasonFollowsCalendar(t *testing.T) {
	t.Setenv("SEASON", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.FollowsCurrentSeason())
	assert.GreaterOrEqual(t, cfg.Season, FirstStatcastSeason)

	cfg.PinSeason(2023)
	assert.False(t, cfg.FollowsCurrentSeason())
}

func TestForSeason(t *testing.T) {
	cfg := validConfig(t)
	cfg.SeasonStart = "04-01"

	next, err := cfg.ForSeason(2026)
	require.NoError(t, err)
	assert.Equal(t, 2026, next.Season)
	assert.Equal(t, 2025, cfg.Season, "original untouched")

	start, _, err := next.SeasonRange()
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01", start.Format("2006-01-02"))

	_, err = cfg.ForSeason(2001)
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	cfg := validConfig(t)
	cfg.RedisHost = "cache"
	cfg.RedisPort = 6380

	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.True(t, cfg.IsDevelopment())

	cfg.AppEnv = "production"
	assert.False(t, cfg.IsDevelopment())
}
