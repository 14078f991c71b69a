package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// EnvPrefix prefixes every environment override, e.g. APPROVALS_SERVER_PORT.
const EnvPrefix = "APPROVALS"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Versioning VersioningConfig `mapstructure:"versioning"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SLA        SLAConfig        `mapstructure:"sla"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ApprovalConfig holds the threshold table and engine tuning.
type ApprovalConfig struct {
	Tiers      []TierConfig `mapstructure:"tiers"`
	MaxRetries int          `mapstructure:"max_retries"`
}

// TierConfig is one row of the threshold table. MaxAmount is exclusive and
// may be omitted on the last tier.
type TierConfig struct {
	Name       string   `mapstructure:"name"`
	MinAmount  int64    `mapstructure:"min_amount"`
	MaxAmount  *int64   `mapstructure:"max_amount"`
	Roles      []string `mapstructure:"roles"`
	Sequential bool     `mapstructure:"sequential"`
	SLAHours   int      `mapstructure:"sla_hours"`
}

// VersioningConfig selects what a failed snapshot write does.
type VersioningConfig struct {
	Policy string `mapstructure:"policy"`
}

// DirectoryConfig selects where user roles come from.
type DirectoryConfig struct {
	// Driver is "static" (roles listed in Users) or "postgres".
	Driver          string       `mapstructure:"driver"`
	Users           []UserConfig `mapstructure:"users"`
	DSN             string       `mapstructure:"dsn"`
	ConnectAttempts int          `mapstructure:"connect_attempts"`
}

// UserConfig grants roles to a user id. A list is used rather than a map
// because viper lowercases map keys.
type UserConfig struct {
	ID    string   `mapstructure:"id"`
	Roles []string `mapstructure:"roles"`
}

// RedisConfig holds the optional role cache settings.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	TTL         time.Duration `mapstructure:"ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// SLAConfig controls the background overdue scan.
type SLAConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// Load loads configuration from file and environment variables. An empty
// configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadDotEnv exports the variables in path into the process environment.
// A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("approval.max_retries", 3)
	v.SetDefault("versioning.policy", string(versioning.PolicyBestEffort))

	v.SetDefault("directory.driver", "static")
	v.SetDefault("directory.connect_attempts", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("sla.enabled", false)
	v.SetDefault("sla.scan_interval", 15*time.Minute)
}

// bindEnvVars binds the secrets that conventionally live under their own
// names, in addition to the prefixed form.
func bindEnvVars(v *viper.Viper) error {
	bindings := [][]string{
		{"directory.dsn", EnvPrefix + "_DIRECTORY_DSN", "DATABASE_URL"},
		{"redis.addr", EnvPrefix + "_REDIS_ADDR", "REDIS_ADDR"},
		{"redis.password", EnvPrefix + "_REDIS_PASSWORD", "REDIS_PASSWORD"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Approval.Tiers) == 0 {
		return fmt.Errorf("approval.tiers is required")
	}
	if _, err := approval.NewThresholdTable(c.ThresholdTiers()); err != nil {
		return fmt.Errorf("approval.tiers: %w", err)
	}
	if c.Approval.MaxRetries < 0 {
		return fmt.Errorf("approval.max_retries must not be negative")
	}

	if _, err := versioning.ParsePolicy(c.Versioning.Policy); err != nil {
		return fmt.Errorf("versioning.policy: %w", err)
	}

	switch c.Directory.Driver {
	case "static":
		for i, u := range c.Directory.Users {
			if strings.TrimSpace(u.ID) == "" {
				return fmt.Errorf("directory.users[%d].id is required", i)
			}
		}
	case "postgres":
		if c.Directory.DSN == "" {
			return fmt.Errorf("directory.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("directory.driver must be static or postgres, got %q", c.Directory.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.SLA.Enabled && c.SLA.ScanInterval < time.Second {
		return fmt.Errorf("sla.scan_interval must be at least 1s")
	}

	return nil
}

// ThresholdTiers converts the configured tiers to domain tiers.
func (c *Config) ThresholdTiers() []entity.ThresholdTier {
	tiers := make([]entity.ThresholdTier, 0, len(c.Approval.Tiers))
	for _, t := range c.Approval.Tiers {
		tier := entity.ThresholdTier{
			Name:       t.Name,
			MinAmount:  t.MinAmount,
			Roles:      append([]string(nil), t.Roles...),
			Sequential: t.Sequential,
			SLAHours:   t.SLAHours,
		}
		if t.MaxAmount != nil {
			upper := *t.MaxAmount
			tier.MaxAmount = &upper
		}
		tiers = append(tiers, tier)
	}
	return tiers
}

// DirectoryUsers returns the static role assignments keyed by user id.
func (c *Config) DirectoryUsers() map[string][]string {
	users := make(map[string][]string, len(c.Directory.Users))
	for _, u := range c.Directory.Users {
		id := strings.TrimSpace(u.ID)
		users[id] = append(users[id], u.Roles...)
	}
	return users
}
