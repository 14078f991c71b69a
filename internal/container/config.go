// Package container provides dependency injection and lifecycle management
// for the budget approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/application/workflow"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// Directory drivers.
const (
	DirectoryStatic   = "static"
	DirectoryPostgres = "postgres"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Server configuration
	Server ServerConfig

	// Approval routing and engine tuning
	Approval ApprovalConfig

	// Versioning policy for project snapshots
	Versioning VersioningConfig

	// Role directory configuration
	Directory DirectoryConfig

	// Redis role cache configuration
	Redis RedisConfig

	// Overdue scan configuration
	SLA SLAConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// ApprovalConfig holds the threshold table and retry budget.
type ApprovalConfig struct {
	Tiers      []entity.ThresholdTier
	MaxRetries int
}

// VersioningConfig holds the snapshot policy.
type VersioningConfig struct {
	Policy versioning.Policy
}

// DirectoryConfig holds role directory settings.
type DirectoryConfig struct {
	// Driver is DirectoryStatic or DirectoryPostgres
	Driver string

	// Users seeds the static directory, or the postgres table when it is empty
	Users map[string][]string

	// DSN of the postgres role table
	DSN string

	// ConnectAttempts bounds the postgres startup retries
	ConnectAttempts int
}

// RedisConfig holds the optional role cache settings.
type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	DialTimeout time.Duration
}

// SLAConfig holds the background overdue scan settings.
type SLAConfig struct {
	Enabled      bool
	ScanInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults. Tiers are left
// empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approvals.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Approval: ApprovalConfig{
			MaxRetries: workflow.DefaultMaxRetries,
		},
		Versioning: VersioningConfig{
			Policy: versioning.PolicyBestEffort,
		},
		Directory: DirectoryConfig{
			Driver:          DirectoryStatic,
			Users:           map[string][]string{},
			ConnectAttempts: 5,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			TTL:         5 * time.Minute,
			DialTimeout: 5 * time.Second,
		},
		SLA: SLAConfig{
			Enabled:      false,
			ScanInterval: 15 * time.Minute,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Approval.Tiers) == 0 {
		return fmt.Errorf("approval.tiers is required")
	}
	if c.Approval.MaxRetries < 0 {
		return fmt.Errorf("approval.max_retries must not be negative")
	}

	if _, err := versioning.ParsePolicy(string(c.Versioning.Policy)); err != nil {
		return err
	}

	switch c.Directory.Driver {
	case DirectoryStatic:
	case DirectoryPostgres:
		if c.Directory.DSN == "" {
			return fmt.Errorf("directory.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown directory driver %q", c.Directory.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	return nil
}
