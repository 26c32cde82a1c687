// Package config loads noticeboard settings from an optional YAML file,
// NOTICEBOARD_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/noticeboard/internal/jobs"
)

// EnvPrefix is the prefix of environment variable overrides.
// engine.timezone is read from NOTICEBOARD_ENGINE_TIMEZONE.
const EnvPrefix = "NOTICEBOARD"

// Config is the full service configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Engine        EngineConfig        `mapstructure:"engine" yaml:"engine"`
	Retention     RetentionConfig     `mapstructure:"retention" yaml:"retention"`
	Directory     DirectoryConfig     `mapstructure:"directory" yaml:"directory"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// EngineConfig controls the occurrence cycle.
type EngineConfig struct {
	// Timezone decides which calendar date an instant falls on.
	Timezone      string `mapstructure:"timezone" yaml:"timezone"`
	CycleSchedule string `mapstructure:"cycle_schedule" yaml:"cycle_schedule"`
}

// RetentionConfig controls the retention cleanup job.
type RetentionConfig struct {
	Days     int    `mapstructure:"days" yaml:"days"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// DirectoryConfig controls user directory caching. Zero disables the cache.
type DirectoryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// NotificationsConfig holds authoring defaults.
type NotificationsConfig struct {
	// DefaultLifetime is applied to drafts without an expiry. Zero means
	// such notifications never expire.
	DefaultLifetime time.Duration `mapstructure:"default_lifetime" yaml:"default_lifetime"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Location resolves Engine.Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone %q: %w", c.Engine.Timezone, err)
	}
	return loc, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: "noticeboard.db"},
		Engine:    EngineConfig{Timezone: "UTC", CycleSchedule: "0 * * * *"},
		Retention: RetentionConfig{Days: 30, Schedule: "0 2 * * *"},
		Directory: DirectoryConfig{CacheTTL: time.Minute},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"db":             "database.path",
	"timezone":       "engine.timezone",
	"retention-days": "retention.days",
	"log-level":      "log.level",
	"format":         "log.format",
}

// Load reads configuration. path may be empty, in which case only defaults,
// environment and flags apply. A named file that does not exist is an error.
// flags may be nil; only flags the user changed override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("engine.timezone", d.Engine.Timezone)
	v.SetDefault("engine.cycle_schedule", d.Engine.CycleSchedule)
	v.SetDefault("retention.days", d.Retention.Days)
	v.SetDefault("retention.schedule", d.Retention.Schedule)
	v.SetDefault("directory.cache_ttl", d.Directory.CacheTTL)
	v.SetDefault("notifications.default_lifetime", d.Notifications.DefaultLifetime)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := jobs.ValidateSchedule(c.Engine.CycleSchedule); err != nil {
		return fmt.Errorf("engine.cycle_schedule: %w", err)
	}
	if err := jobs.ValidateSchedule(c.Retention.Schedule); err != nil {
		return fmt.Errorf("retention.schedule: %w", err)
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention.days must be >= 0, got %d", c.Retention.Days)
	}
	if c.Directory.CacheTTL < 0 {
		return fmt.Errorf("directory.cache_ttl must be >= 0, got %s", c.Directory.CacheTTL)
	}
	if c.Notifications.DefaultLifetime < 0 {
		return fmt.Errorf("notifications.default_lifetime must be >= 0, got %s", c.Notifications.DefaultLifetime)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}
	return nil
}
