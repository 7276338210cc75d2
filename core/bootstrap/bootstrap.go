// Package bootstrap initializes process infrastructure: logger first,
// then the persistence backend selected by configuration.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"

	coreconfig "numbot/core/config"
	coredatabase "numbot/core/database"
	"numbot/core/logger"
	"numbot/internal/store"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	// Database overrides env-derived settings for the postgres backend.
	Database *coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store store.Store
	// DB is non-nil only for the postgres backend; the caller owns Close.
	DB *sqlx.DB
}

// Run initializes the logger and builds the configured store backend.
// For postgres this connects and applies migrations first.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	switch opts.Config.Store.Backend {
	case coreconfig.StoreBackendFile:
		return &Result{Store: store.NewFileStore(opts.Config.Store.Path)}, nil

	case coreconfig.StoreBackendPostgres:
		dbCfg, err := resolveDatabase(opts.Database)
		if err != nil {
			return nil, err
		}

		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(dbCfg); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}

		return &Result{Store: store.NewPostgresStore(db), DB: db}, nil
	}

	return nil, fmt.Errorf("bootstrap: unknown store backend %q", opts.Config.Store.Backend)
}

func resolveDatabase(override *coredatabase.Config) (coredatabase.Config, error) {
	if override != nil {
		return *override, nil
	}
	var cfg coredatabase.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("bootstrap: database env config: %w", err)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 4
	}
	return cfg, nil
}
