package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"session-scheduler-backend/internal/engine"
)

// Config represents the overall application configuration.
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Scheduling  SchedulingConfig `yaml:"scheduling"`
	Push        PushConfig       `yaml:"push"`
	WorkerPool  WorkerPoolConfig `yaml:"worker_pool"`
	Redis       RedisConfig      `yaml:"redis"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// SchedulingConfig configures the scheduling engine and the pass loop.
type SchedulingConfig struct {
	SlotDurationHours      float64           `yaml:"slot_duration_hours"`
	WorkingHours           engine.HourWindow `yaml:"working_hours"`
	FullDay                bool              `yaml:"full_day"`
	MaxDays                int               `yaml:"max_days"`
	Timezone               string            `yaml:"timezone"`
	AutoRunIntervalSeconds int               `yaml:"auto_run_interval_seconds"`
	AutoRunInterval        time.Duration     `yaml:"-"`
	PassTimeoutSeconds     int               `yaml:"pass_timeout_seconds"`
	PassTimeout            time.Duration     `yaml:"-"`
	MissingAvailability    string            `yaml:"missing_availability"`
	MissingInventory       string            `yaml:"missing_inventory"`
}

// RedisConfig enables the cross-instance pass lock.
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	LockKey      string `yaml:"lock_key"`
	LeaseSeconds int    `yaml:"lease_seconds"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// tests and for running against a local sqlite file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 30
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "scheduler.db"
	}

	s := &c.Scheduling
	if s.SlotDurationHours <= 0 {
		s.SlotDurationHours = engine.DefaultSlotDurationHours
	}
	if s.WorkingHours == (engine.HourWindow{}) {
		s.WorkingHours = engine.HourWindow{Start: engine.DefaultWorkStartHour, End: engine.DefaultWorkEndHour}
	}
	if s.MaxDays <= 0 {
		s.MaxDays = engine.DefaultMaxDays
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.AutoRunIntervalSeconds < 0 {
		s.AutoRunIntervalSeconds = 0
	}
	s.AutoRunInterval = time.Duration(s.AutoRunIntervalSeconds) * time.Second
	if s.PassTimeoutSeconds <= 0 {
		s.PassTimeoutSeconds = 60
	}
	s.PassTimeout = time.Duration(s.PassTimeoutSeconds) * time.Second
	if s.MissingAvailability == "" {
		s.MissingAvailability = string(engine.AvailabilityUnconstrained)
	}
	if s.MissingInventory == "" {
		s.MissingInventory = string(engine.InventorySingleUnit)
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.WorkerPool.Size <= 0 {
		log.Warn().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		c.WorkerPool.Size = 1
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "scheduler:pass"
	}
	if c.Redis.LeaseSeconds <= 0 {
		c.Redis.LeaseSeconds = c.Scheduling.PassTimeoutSeconds + 30
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		err = multierr.Append(err, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		err = multierr.Append(err, fmt.Errorf("database.dsn is required"))
	}
	if _, lerr := time.LoadLocation(c.Scheduling.Timezone); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("scheduling.timezone: %w", lerr))
	}
	if _, oerr := c.EngineOptions(); oerr != nil {
		err = multierr.Append(err, fmt.Errorf("scheduling: %w", oerr))
	}
	if c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return err
}

// EngineOptions derives the engine options from the scheduling section.
func (c *Config) EngineOptions() (engine.Options, error) {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		loc = time.UTC
	}
	opts := engine.Options{
		SlotDurationHours:   c.Scheduling.SlotDurationHours,
		WorkingHours:        c.Scheduling.WorkingHours,
		FullDay:             c.Scheduling.FullDay,
		MaxDays:             c.Scheduling.MaxDays,
		Location:            loc,
		MissingAvailability: engine.AvailabilityPolicy(c.Scheduling.MissingAvailability),
		MissingInventory:    engine.InventoryPolicy(c.Scheduling.MissingInventory),
	}
	return opts, opts.Validate()
}
