// Package adapters resolves the configured backend modes into one
// cached instance each of the execution and persistence adapters.
package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"toolflow/internal/config"
	"toolflow/internal/execution"
	"toolflow/internal/logging"
	"toolflow/internal/repository"
)

// Factory builds and caches the adapter singletons. Safe for
// concurrent use; construction happens at most once per adapter and a
// construction failure is returned to every caller.
type Factory struct {
	cfg    *config.Config
	logger *logging.Logger

	execOnce sync.Once
	exec     execution.ToolExecutor
	execErr  error

	storeOnce sync.Once
	store     repository.Store
	storeErr  error
}

// New creates a Factory for the given configuration.
func New(cfg *config.Config, logger *logging.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Executor returns the cached tool executor, constructing it on first use.
func (f *Factory) Executor(ctx context.Context) (execution.ToolExecutor, error) {
	f.execOnce.Do(func() {
		switch f.cfg.Execution.Mode {
		case config.ExecutionModeLocal:
			f.exec = execution.NewLocalClient(f.cfg.Execution.LocalURL, f.cfg.Execution.Timeout)
		case config.ExecutionModeRemote:
			f.exec = execution.NewGatewayClient(f.cfg.Execution.GatewayURL, f.cfg.Execution.APIKey, f.cfg.Execution.Timeout)
		default:
			f.execErr = fmt.Errorf("unknown execution mode %q", f.cfg.Execution.Mode)
			return
		}
		f.logger.Info("execution adapter ready", "mode", f.cfg.Execution.Mode)
	})
	return f.exec, f.execErr
}

// Store returns the cached persistence store, constructing it on first
// use. The Postgres backend is pinged and migrated during construction.
func (f *Factory) Store(ctx context.Context) (repository.Store, error) {
	f.storeOnce.Do(func() {
		switch f.cfg.Storage.Mode {
		case config.StorageModePostgres:
			pool, err := pgxpool.New(ctx, f.cfg.DBConnString())
			if err != nil {
				f.storeErr = fmt.Errorf("create connection pool: %w", err)
				return
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				f.storeErr = fmt.Errorf("ping database: %w", err)
				return
			}
			pg := repository.NewPostgresStore(pool)
			if err := pg.Migrate(ctx); err != nil {
				pool.Close()
				f.storeErr = err
				return
			}
			f.store = pg
		case config.StorageModeRemote:
			f.store = repository.NewRemoteStore(f.cfg.RemoteStore.URL, f.cfg.RemoteStore.APIKey)
		default:
			f.storeErr = fmt.Errorf("unknown storage mode %q", f.cfg.Storage.Mode)
			return
		}
		f.logger.Info("persistence adapter ready", "mode", f.cfg.Storage.Mode)
	})
	return f.store, f.storeErr
}

// Health is the aggregated adapter health report.
type Health struct {
	StorageMode   string `json:"storage_mode"`
	ExecutionMode string `json:"execution_mode"`
	StoreOK       bool   `json:"store_ok"`
	ExecutorOK    bool   `json:"executor_ok"`
	OK            bool   `json:"ok"`
}

// HealthCheck probes both adapters and ANDs the results.
func (f *Factory) HealthCheck(ctx context.Context) Health {
	h := Health{
		StorageMode:   f.cfg.Storage.Mode,
		ExecutionMode: f.cfg.Execution.Mode,
	}
	if store, err := f.Store(ctx); err == nil {
		h.StoreOK = store.Ping(ctx) == nil
	}
	if exec, err := f.Executor(ctx); err == nil {
		h.ExecutorOK = exec.HealthCheck(ctx)
	}
	h.OK = h.StoreOK && h.ExecutorOK
	return h
}
