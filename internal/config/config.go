// Package config holds the regbot application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"

	coreconfig "github.com/m3rciful/regbot/core/config"
	coredatabase "github.com/m3rciful/regbot/core/database"
)

// Storage drivers.
const (
	StoragePostgres = coredatabase.DriverPostgres
	StorageSQLite   = coredatabase.DriverSQLite
	StorageMemory   = "memory"
)

const (
	defaultLocale     = "ru"
	defaultSessionTTL = 60
	defaultSQLitePath = "regbot.db"
)

// StorageConfig selects the registration store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// RegistrationConfig tunes the registration dialog.
type RegistrationConfig struct {
	Locale            string `yaml:"locale" envconfig:"BOT_LOCALE"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
	// Timezone names the IANA zone used for "today" and event times. Empty means local time.
	Timezone string `yaml:"timezone" envconfig:"BOT_TIMEZONE"`
}

// SeedEvent is a demo event loaded on first start.
type SeedEvent struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Date        string `yaml:"date"`
	Location    string `yaml:"location"`
}

// SeedConfig controls demo data.
type SeedConfig struct {
	DemoEvents bool        `yaml:"demo_events" envconfig:"SEED_DEMO_EVENTS"`
	Events     []SeedEvent `yaml:"events" ignored:"true"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage      StorageConfig       `yaml:"storage"`
	Database     coredatabase.Config `yaml:"database"`
	Registration RegistrationConfig  `yaml:"registration"`
	Seed         SeedConfig          `yaml:"seed"`

	location *time.Location
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// SessionTTL returns the idle timeout of registration dialogs.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Registration.SessionTTLMinutes) * time.Minute
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// UsesDatabase reports whether the storage driver needs a SQL connection.
func (c *Config) UsesDatabase() bool {
	return c.Storage.Driver != StorageMemory
}

// Load reads .env files (when present), the YAML file at path and the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates the application sections.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	}
	switch driver {
	case "":
		driver = StorageSQLite
	case "postgresql", "pg":
		driver = StoragePostgres
	case "sqlite3":
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
	case StoragePostgres, StorageSQLite:
		cfg.Database.Driver = driver
		if driver == StorageSQLite && strings.TrimSpace(cfg.Database.Path) == "" {
			cfg.Database.Path = defaultSQLitePath
		}
		if err := cfg.Database.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: postgres, sqlite, memory", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if strings.TrimSpace(cfg.Registration.Locale) == "" {
		cfg.Registration.Locale = defaultLocale
	}
	switch {
	case cfg.Registration.SessionTTLMinutes == 0:
		cfg.Registration.SessionTTLMinutes = defaultSessionTTL
	case cfg.Registration.SessionTTLMinutes < 0:
		return fmt.Errorf("registration.session_ttl_minutes must be >= 0")
	}

	if tz := strings.TrimSpace(cfg.Registration.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid registration.timezone %q: %w", tz, err)
		}
		cfg.location = loc
	}

	for i, ev := range cfg.Seed.Events {
		if strings.TrimSpace(ev.Title) == "" || strings.TrimSpace(ev.Date) == "" {
			return fmt.Errorf("seed.events[%d]: title and date are required", i)
		}
	}
	return nil
}
