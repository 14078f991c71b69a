package config

import (
	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	// Validate has already accepted the policy string.
	policy, _ := versioning.ParsePolicy(c.Versioning.Policy)

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Approval: container.ApprovalConfig{
			Tiers:      c.ThresholdTiers(),
			MaxRetries: c.Approval.MaxRetries,
		},
		Versioning: container.VersioningConfig{
			Policy: policy,
		},
		Directory: container.DirectoryConfig{
			Driver:          c.Directory.Driver,
			Users:           c.DirectoryUsers(),
			DSN:             c.Directory.DSN,
			ConnectAttempts: c.Directory.ConnectAttempts,
		},
		Redis: container.RedisConfig{
			Enabled:     c.Redis.Enabled,
			Addr:        c.Redis.Addr,
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			TTL:         c.Redis.TTL,
			DialTimeout: c.Redis.DialTimeout,
		},
		SLA: container.SLAConfig{
			Enabled:      c.SLA.Enabled,
			ScanInterval: c.SLA.ScanInterval,
		},
	}
}
