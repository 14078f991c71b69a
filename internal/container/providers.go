package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/garyjia/budget-approvals/internal/application/dispatcher"
	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/application/service"
	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/application/workflow"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/event"
	"github.com/garyjia/budget-approvals/internal/infrastructure/directory"
	"github.com/garyjia/budget-approvals/internal/infrastructure/export"
	"github.com/garyjia/budget-approvals/internal/infrastructure/persistence/repository"
	"github.com/garyjia/budget-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/budget-approvals/internal/infrastructure/worker"
	httpserver "github.com/garyjia/budget-approvals/internal/interfaces/http"
	"github.com/garyjia/budget-approvals/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// DirectoryBundle holds the role directory and the clients behind it, so
// the container can close them.
type DirectoryBundle struct {
	Directory port.RoleDirectory
	Gorm      *gorm.DB
	Redis     *redis.Client
}

// ServiceDeps holds the dependencies of the application services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Recorder   *versioning.Recorder
	Engine     workflow.WorkflowEngine
	Dispatcher dispatcher.Dispatcher
	Reports    port.ReportWriter
	Logger     *zap.Logger
}

// WorkflowDeps holds the dependencies of the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Recorder   *versioning.Recorder
	Tiers      port.TierResolver
	Directory  port.RoleDirectory
	Dispatcher dispatcher.Dispatcher
	MaxRetries int
	Logger     *zap.Logger
}

// ProvideDatabase opens the SQLite database, applies the embedded
// migrations and wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Project:  repository.NewProjectRepository(db.DB, logger),
		Workflow: repository.NewWorkflowRepository(db.DB, logger),
		Ledger:   repository.NewLedgerRepository(db.DB, logger),
		Version:  repository.NewVersionRepository(db.DB, logger),
	}, nil
}

// ProvideThresholdTable validates the configured tiers. Gaps at either end
// of the amount range are allowed but logged, since such budgets can never
// be submitted.
func ProvideThresholdTable(cfg *ApprovalConfig, logger *zap.Logger) (*approval.ThresholdTable, error) {
	table, err := approval.NewThresholdTable(cfg.Tiers)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold tiers: %w", err)
	}

	startsAtZero, openTop := table.Coverage()
	if !startsAtZero {
		logger.Warn("Threshold tiers do not start at zero; small budgets will be rejected")
	}
	if !openTop {
		logger.Warn("Threshold tiers have no open-ended top tier; large budgets will be rejected")
	}

	logger.Info("Threshold table loaded", zap.Int("tiers", len(table.Tiers())))
	return table, nil
}

// ProvideDirectory builds the role directory named by cfg.Driver and, when
// enabled, puts the Redis cache in front of it.
func ProvideDirectory(ctx context.Context, cfg *DirectoryConfig, redisCfg *RedisConfig, logger *zap.Logger) (*DirectoryBundle, error) {
	bundle := &DirectoryBundle{}

	switch cfg.Driver {
	case DirectoryStatic, "":
		bundle.Directory = directory.NewStaticDirectory(cfg.Users)
		logger.Info("Using static role directory", zap.Int("users", len(cfg.Users)))

	case DirectoryPostgres:
		db, err := directory.OpenPostgres(cfg.DSN, cfg.ConnectAttempts, logger)
		if err != nil {
			return nil, err
		}
		gd := directory.NewGormDirectory(db)
		if len(cfg.Users) > 0 {
			if err := gd.Seed(ctx, cfg.Users); err != nil {
				closeGorm(db)
				return nil, fmt.Errorf("failed to seed role directory: %w", err)
			}
		}
		bundle.Gorm = db
		bundle.Directory = gd
		logger.Info("Using postgres role directory")

	default:
		return nil, fmt.Errorf("unknown directory driver %q", cfg.Driver)
	}

	if redisCfg != nil && redisCfg.Enabled {
		client, err := directory.ConnectRedis(ctx, directory.RedisConfig{
			Addr:        redisCfg.Addr,
			Password:    redisCfg.Password,
			DB:          redisCfg.DB,
			DialTimeout: redisCfg.DialTimeout,
		})
		if err != nil {
			closeGorm(bundle.Gorm)
			return nil, err
		}
		bundle.Redis = client
		bundle.Directory = directory.NewCachedDirectory(bundle.Directory, client, redisCfg.TTL, logger)
		logger.Info("Role directory cache enabled", zap.String("addr", redisCfg.Addr), zap.Duration("ttl", redisCfg.TTL))
	}

	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})), nil
}

// ProvideRecorder creates the project snapshot recorder.
func ProvideRecorder(repos *RepositoryBundle, cfg *VersioningConfig, logger *zap.Logger) *versioning.Recorder {
	recorder := versioning.NewRecorder(repos.Project, repos.Version, cfg.Policy, &zapLoggerAdapter{logger: logger})
	logger.Info("Project versioning enabled", zap.String("policy", string(recorder.Policy())))
	return recorder
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Tiers == nil || deps.Directory == nil {
		return nil, fmt.Errorf("tiers and directory are required")
	}

	return workflow.NewEngine(
		deps.Repos.Project,
		deps.Repos.Workflow,
		deps.Repos.Ledger,
		deps.TxManager,
		deps.Recorder,
		deps.Tiers,
		deps.Directory,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithMaxRetries(deps.MaxRetries),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
	), nil
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Engine == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	return &ServiceBundle{
		Approval: service.NewApprovalService(
			deps.Engine,
			deps.Repos.Project,
			deps.Repos.Workflow,
			deps.Repos.Ledger,
			deps.Repos.Version,
			deps.Reports,
			logger,
		),
		Project: service.NewProjectService(
			deps.Repos.Project,
			deps.TxManager,
			deps.Recorder,
			deps.Dispatcher,
			logger,
		),
	}, nil
}

// ProvideReportWriter creates the xlsx audit exporter.
func ProvideReportWriter(logger *zap.Logger) port.ReportWriter {
	return export.NewAuditWorkbook(logger)
}

// ProvideHTTPServer creates the HTTP server over the application services.
func ProvideHTTPServer(cfg *ServerConfig, services *ServiceBundle, tiers port.TierResolver, health httpserver.HealthCheck, logger *zap.Logger) *httpserver.Server {
	return httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		services.Approval,
		services.Project,
		tiers,
		health,
		&zapLoggerAdapter{logger: logger.Named("http")},
	)
}

// ProvideWorkers creates the background workers. The manager is empty when
// the overdue scan is disabled.
func ProvideWorkers(cfg *SLAConfig, services *ServiceBundle, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	if cfg.Enabled {
		manager.Register(worker.NewSLAWorker(
			worker.SLAWorkerConfig{ScanInterval: cfg.ScanInterval},
			services.Approval,
			logger.Named("sla"),
		))
	}
	return manager
}

// RegisterActivityLog subscribes a handler that writes every event to the
// log, giving operators one structured line per state change.
func RegisterActivityLog(d dispatcher.Dispatcher, logger *zap.Logger) {
	activity := logger.Named("activity")
	for _, t := range event.AllTypes {
		d.SubscribeNamed(t, "activity-log", func(_ context.Context, evt *event.Event) error {
			activity.Info("Workflow activity",
				zap.String("event_id", evt.ID),
				zap.String("event_type", evt.Type.String()),
				zap.Int64("project_id", evt.ProjectID),
				zap.Int64("workflow_id", evt.WorkflowID),
				zap.String("actor_id", evt.ActorID),
				zap.String("correlation_id", evt.CorrelationID),
				zap.Any("payload", evt.Payload),
			)
			return nil
		})
	}
}

func closeGorm(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
