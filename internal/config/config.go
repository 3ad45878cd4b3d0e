package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config holds all configuration for medtab
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Retention     RetentionConfig     `mapstructure:"retention"`

	mu   sync.RWMutex
	path string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// NotificationsConfig holds the user-facing notification settings.
// These are the settings-store booleans the scheduling core reads.
type NotificationsConfig struct {
	Enabled              bool `mapstructure:"enabled" json:"enabled"`
	RemindersEnabled     bool `mapstructure:"reminders_enabled" json:"reminders_enabled"`
	ReminderDelayMinutes int  `mapstructure:"reminder_delay_minutes" json:"reminder_delay_minutes"`
	HorizonDays          int  `mapstructure:"horizon_days" json:"horizon_days"`
	LookaheadDays        int  `mapstructure:"lookahead_days" json:"lookahead_days"`
}

// RetentionConfig holds history cleanup settings
type RetentionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Days    int  `mapstructure:"days"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medtab.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "alarms"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medtab.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDTAB_SERVER_PORT, MEDTAB_RETENTION_DAYS, etc.)
	v.SetEnvPrefix("MEDTAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.path = configPath

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8217)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.reminders_enabled", true)
	v.SetDefault("notifications.reminder_delay_minutes", 15)
	v.SetDefault("notifications.horizon_days", 3)
	v.SetDefault("notifications.lookahead_days", 2)

	// Retention defaults
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.days", 90)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medtab")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medtab")
}

// loadEnvOverrides loads specific env vars that Viper doesn't map reliably
// once defaults and files are merged
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Server.Address = getEnv("MEDTAB_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("MEDTAB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Storage.DataDir = getEnv("MEDTAB_STORAGE_DATA_DIR", cfg.Storage.DataDir)

	if days := os.Getenv("MEDTAB_RETENTION_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			cfg.Retention.Days = d
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Notifications.ReminderDelayMinutes <= 0 {
		cfg.Notifications.ReminderDelayMinutes = 15
	}
	if cfg.Notifications.HorizonDays <= 0 {
		cfg.Notifications.HorizonDays = 3
	}
	if cfg.Notifications.LookaheadDays <= 0 {
		cfg.Notifications.LookaheadDays = 2
	}
	if cfg.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive, got %d", cfg.Retention.Days)
	}
	return nil
}

// Settings returns a snapshot of the mutable notification settings.
func (c *Config) Settings() NotificationsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications
}

// UpdateSettings replaces the notification settings and persists them to the
// config file so they survive a restart.
func (c *Config) UpdateSettings(n NotificationsConfig) error {
	c.mu.Lock()
	if n.ReminderDelayMinutes <= 0 {
		n.ReminderDelayMinutes = c.Notifications.ReminderDelayMinutes
	}
	if n.HorizonDays <= 0 {
		n.HorizonDays = c.Notifications.HorizonDays
	}
	if n.LookaheadDays <= 0 {
		n.LookaheadDays = c.Notifications.LookaheadDays
	}
	c.Notifications = n
	c.mu.Unlock()

	return c.save()
}

func (c *Config) save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := viper.New()
	v.Set("server", map[string]interface{}{
		"address":       c.Server.Address,
		"port":          c.Server.Port,
		"read_timeout":  c.Server.ReadTimeout,
		"write_timeout": c.Server.WriteTimeout,
	})
	v.Set("notifications", map[string]interface{}{
		"enabled":                c.Notifications.Enabled,
		"reminders_enabled":      c.Notifications.RemindersEnabled,
		"reminder_delay_minutes": c.Notifications.ReminderDelayMinutes,
		"horizon_days":           c.Notifications.HorizonDays,
		"lookahead_days":         c.Notifications.LookaheadDays,
	})
	v.Set("retention", map[string]interface{}{
		"enabled": c.Retention.Enabled,
		"days":    c.Retention.Days,
	})

	if err := v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
