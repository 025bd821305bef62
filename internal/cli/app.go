package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"collector/internal/dbclient"
	"collector/internal/etl"
	"collector/internal/etl/sources"
	"collector/internal/secret"
	"collector/internal/service"
	"collector/internal/storage"
)

// app is the wired collector: metadata store, capabilities and services.
type app struct {
	db          *storage.DB
	provider    *dbclient.Provider
	runs        *service.RunService
	connections *service.ConnectionService
	logger      *slog.Logger
}

// open wires the collector against the configured metadata database.
// A nil emitter logs service events at debug level.
func (e *cmdEnv) open(emitter service.EventEmitter) (*app, error) {
	cfg := e.cfg
	logger := slog.Default()

	dbPath := cfg.DatabasePath()
	db, err := storage.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	// Passwords saved by `connections add` live next to the metadata db;
	// COLLECTOR_SECRET_* variables cover the rest.
	secrets := secret.Chain{
		secret.NewFileStore(filepath.Join(filepath.Dir(dbPath), "secrets.yaml")),
		secret.NewEnvStore(secret.EnvPrefix),
	}
	conns := storage.NewDBConnectionStore(db)
	provider := dbclient.NewProvider(conns, secrets, cfg.DBTimeout)

	logs := storage.NewRunLogStore(db)
	registry := sources.NewRegistry(sources.Deps{
		HTTP:     sources.NewHTTPClient(cfg.HTTPTimeout),
		Querier:  provider,
		Executor: provider,
	})
	collector := etl.NewCollector(registry, logs, provider,
		etl.WithLogger(logger),
		etl.WithLimits(cfg.Limits()),
	)

	runs := service.NewRunService(storage.NewRunStore(db), logs, collector, emitter, service.Options{
		RunTimeout: cfg.RunTimeout,
		Debounce:   cfg.Debounce,
		Logger:     logger,
	})
	return &app{
		db:          db,
		provider:    provider,
		runs:        runs,
		connections: service.NewConnectionService(conns, secrets, provider),
		logger:      logger,
	}, nil
}

func (a *app) Close() error {
	a.runs.Stop()
	return a.db.Close()
}
