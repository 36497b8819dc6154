package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/models"
)

// FirstStatcastSeason is the earliest season Baseball Savant serves pitch-level data for
const FirstStatcastSeason = 2008

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Lease backends
const (
	LeaseLocal = "local"
	LeaseRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// Baseball Savant
	SavantBaseURL       string        `envconfig:"SAVANT_BASE_URL" default:"https://baseballsavant.mlb.com"`
	SavantTimeout       time.Duration `envconfig:"SAVANT_TIMEOUT" default:"120s"`
	SavantMaxConcurrent int           `envconfig:"SAVANT_MAX_CONCURRENT" default:"4"`
	SavantUserAgent     string        `envconfig:"SAVANT_USER_AGENT" default:"StatEdge-Backfill/1.0"`

	// Store
	StoreDriver      string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"statedge"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"statedge_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	SQLitePath       string `envconfig:"SQLITE_PATH" default:"statedge.db"`

	// Date leases
	LeaseBackend string        `envconfig:"LEASE_BACKEND" default:"local"`
	LeaseTTL     time.Duration `envconfig:"LEASE_TTL" default:"15m"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Season window (0 / empty means derive from the season year)
	Season      int    `envconfig:"SEASON" default:"0"`
	SeasonStart string `envconfig:"SEASON_START" default:""`
	SeasonEnd   string `envconfig:"SEASON_END" default:""`

	// Collection policy
	BatchSizeDays     int           `envconfig:"BATCH_SIZE_DAYS" default:"10"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"1"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"RETRY_BASE_DELAY" default:"5s"`
	RetryMaxDelay     time.Duration `envconfig:"RETRY_MAX_DELAY" default:"60s"`

	// Validation policy
	SampleSize      int     `envconfig:"SAMPLE_SIZE" default:"25"`
	SampleThreshold float64 `envconfig:"SAMPLE_THRESHOLD" default:"99.5"`
	EntityThreshold float64 `envconfig:"ENTITY_THRESHOLD" default:"95.0"`
	KeyEntityIDs    []int64 `envconfig:"KEY_ENTITY_IDS" default:"592450,545361,666176,592518,608369"`

	// Files
	CheckpointDir string `envconfig:"CHECKPOINT_DIR" default:"state"`
	ReportDir     string `envconfig:"REPORT_DIR" default:"reports"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Scheduler
	ScheduleCron string `envconfig:"SCHEDULE_CRON" default:"0 6 * * *"`

	// Monitoring
	EnableMetrics  bool   `envconfig:"ENABLE_METRICS" default:"false"`
	MetricsPort    int    `envconfig:"METRICS_PORT" default:"9090"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" default:""`

	// set when SEASON was left unset
	followSeason bool
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode.
// The result is not validated: callers apply overrides first, then call Validate.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if cfg.Season == 0 {
		cfg.Season = daterange.CurrentSeason(time.Now().UTC())
		cfg.followSeason = true
	}

	return &cfg, nil
}

// PinSeason fixes the season, overriding SEASON and the current-season default
func (c *Config) PinSeason(season int) {
	c.Season = season
	c.followSeason = false
}

// FollowsCurrentSeason reports whether the season came from the calendar
// rather than SEASON or a flag, so long-running processes should re-derive it
func (c *Config) FollowsCurrentSeason() bool {
	return c.followSeason
}

// ForSeason returns a copy of the configuration for another season
func (c *Config) ForSeason(season int) (*Config, error) {
	next := *c
	next.Season = season
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// Validate validates everything except store credentials, which only
// commands that open the store need (see ValidateStore)
func (c *Config) Validate() error {
	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverSQLite {
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.LeaseBackend != LeaseLocal && c.LeaseBackend != LeaseRedis {
		return fmt.Errorf("unknown LEASE_BACKEND %q", c.LeaseBackend)
	}

	if c.Season < FirstStatcastSeason {
		return fmt.Errorf("SEASON %d is before %d", c.Season, FirstStatcastSeason)
	}
	start, end, err := c.SeasonRange()
	if err != nil {
		return err
	}
	if start.After(end) {
		return fmt.Errorf("season start %s is after season end %s", daterange.Key(start), daterange.Key(end))
	}

	if c.SampleThreshold <= 0 || c.SampleThreshold > 100 {
		return fmt.Errorf("SAMPLE_THRESHOLD must be in (0, 100], got %v", c.SampleThreshold)
	}
	if c.EntityThreshold <= 0 || c.EntityThreshold > 100 {
		return fmt.Errorf("ENTITY_THRESHOLD must be in (0, 100], got %v", c.EntityThreshold)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.BatchSizeDays < 1 {
		return fmt.Errorf("BATCH_SIZE_DAYS must be at least 1, got %d", c.BatchSizeDays)
	}
	if c.SampleSize < 1 {
		return fmt.Errorf("SAMPLE_SIZE must be at least 1, got %d", c.SampleSize)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.SavantMaxConcurrent < 1 {
		return fmt.Errorf("SAVANT_MAX_CONCURRENT must be at least 1, got %d", c.SavantMaxConcurrent)
	}

	return nil
}

// ValidateStore checks the settings needed to open the configured store
func (c *Config) ValidateStore() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabasePassword == "" {
			return errors.New("DATABASE_PASSWORD is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// SeasonRange returns the configured season window. SEASON_START and
// SEASON_END accept either YYYY-MM-DD or MM-DD within the season year.
func (c *Config) SeasonRange() (start, end time.Time, err error) {
	start, end = daterange.SeasonBounds(c.Season)

	if c.SeasonStart != "" {
		if start, err = c.seasonDate(c.SeasonStart); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid SEASON_START: %w", err)
		}
	}
	if c.SeasonEnd != "" {
		if end, err = c.seasonDate(c.SeasonEnd); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid SEASON_END: %w", err)
		}
	}

	return start, end, nil
}

func (c *Config) seasonDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("01-02") {
		s = strconv.Itoa(c.Season) + "-" + s
	}
	return time.Parse(models.DateLayout, s)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
