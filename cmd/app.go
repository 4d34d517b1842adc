package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"supabasemcp/config"
	"supabasemcp/logging"
	"supabasemcp/postgresql"
	"supabasemcp/postgrest"
	"supabasemcp/records"
	"supabasemcp/storage"
	"supabasemcp/storage/memory"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	store    storage.Storage
	service  *records.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if backendFlag != "" {
		cfg.Backend = config.Backend(backendFlag)
	}
	return cfg, nil
}

func newApp(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger.Debug("config loaded", slog.Any("config", cfg))

	if cfg.ServiceRoleKey == "" && cfg.UseKeyring {
		store, err := config.OpenKeyStore()
		if err == nil {
			err = cfg.ResolveServiceKey(store)
		}
		if err != nil {
			logger.Warn("keyring lookup failed", slog.String("error", err.Error()))
		}
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		closeLog()
		return nil, err
	}

	store, err := openStorage(ctx, cfg, logger, migrate)
	if err != nil {
		logger.Error("open storage failed", slog.String("error", err.Error()))
		closeLog()
		return nil, err
	}

	service := records.NewService(store,
		records.WithResolveLimit(cfg.ResolveLimit),
		records.WithSchema(cfg.Schema),
		records.WithLogger(logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		store:    store,
		service:  service,
	}, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (storage.Storage, error) {
	switch cfg.Backend {
	case config.BackendPostgREST:
		if migrate {
			logger.Warn("migrations need the postgres backend, skipping")
		}
		return postgrest.NewStorage(postgrest.Config{
			URL:     cfg.URL,
			Key:     cfg.ServiceRoleKey,
			Schema:  cfg.Schema,
			Timeout: cfg.HTTPTimeout,
			Logger:  logger,
		})
	case config.BackendPostgres:
		return postgresql.NewStorage(ctx, &postgresql.Config{
			URL:     cfg.DBURL,
			Schema:  cfg.Schema,
			Migrate: migrate,
			Logger:  logger,
		})
	case config.BackendMemory:
		return memory.New(memoryTables...), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close storage failed", slog.String("error", err.Error()))
	}
	if err := a.closeLog(); err != nil {
		a.logger.Warn("close log file failed", slog.String("error", err.Error()))
	}
}
