package container

import (
	"context"

	"goexact/adapters/cache"
	"goexact/adapters/postgres"
	"goexact/adapters/resultlog"
	"goexact/app"
	"goexact/internal/config"
	"goexact/internal/errors"
	"goexact/internal/migration"
	"goexact/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	// Infrastructure, each optional
	DB       *sqlx.DB
	Cache    *cache.DistributionCache
	Appender *resultlog.Appender

	// Repositories (data access layer)
	Results ports.ResultRepository

	// Services
	Exact      *app.ExactService
	Comparison *app.ComparisonService
}

// New creates the container. A database is connected and migrated only when
// DATABASE_URL is set; a results file is opened only when RESULTS_FILE is set.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger}

	var err error
	if c.Cache, err = cache.NewDistributionCache(nil); err != nil {
		return nil, errors.Wrap(err, "failed to create distribution cache")
	}
	opts := []app.ExactServiceOption{app.WithDistributionCache(c.Cache)}

	if cfg.Database.URL != "" {
		if err := c.initDatabase(ctx); err != nil {
			c.Shutdown(ctx)
			return nil, err
		}
		opts = append(opts, app.WithResultRepository(c.Results))
	}

	if cfg.Output.ResultsFile != "" {
		if c.Appender, err = resultlog.Open(cfg.Output.ResultsFile, logger); err != nil {
			c.Shutdown(ctx)
			return nil, err
		}
		opts = append(opts, app.WithResultSink(c.Appender))
	}

	c.Exact = app.NewExactService(cfg.Engine, logger, opts...)
	c.Comparison = app.NewComparisonService(c.Exact, cfg.Engine.Tolerance, cfg.Engine.Workers, logger)
	return c, nil
}

// initDatabase connects, migrates and builds the repositories
func (c *Container) initDatabase(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to connect to database"))
	}
	c.DB = db

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "database migration failed"))
	}
	c.Logger.Info("database ready", zap.String("schema_version", migrator.Version()))

	c.Results = postgres.NewResultRepository(db)
	return nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	var first error
	if c.Appender != nil {
		if err := c.Appender.Close(); err != nil {
			first = errors.Wrap(err, "failed to close results file")
		}
	}
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "failed to close database")
		}
	}
	return first
}
