package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 30 * time.Second
	readyPollingInterval = 500 * time.Millisecond
)

// Config selects the engine and the bootstrap steps to run.
type Config struct {
	Engine       store.Engine
	Path         string
	DSN          string
	SeedEnabled  bool
	ReadyTimeout time.Duration
	Clock        func() time.Time
}

// Open connects to the configured engine, waits until it answers, ensures the
// schema, applies pending migrations and seeds an empty database. The returned
// store is ready for use.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (store.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	st, err := store.Open(store.Config{
		Engine: cfg.Engine,
		Path:   cfg.Path,
		DSN:    cfg.DSN,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	if err := bootstrap(ctx, st, cfg, clock, logger); err != nil {
		_ = st.Close()
		return nil, err
	}

	logger.Info("database initialized",
		zap.String("engine", string(st.Engine())),
		zap.String("path", cfg.Path),
	)
	return st, nil
}

func bootstrap(ctx context.Context, st store.Store, cfg Config, clock func() time.Time, logger *zap.Logger) error {
	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if err := waitReady(ctx, st, timeout); err != nil {
		return err
	}
	if err := EnsureSchema(ctx, st); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := applyMigrations(ctx, st, clock, logger); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if !cfg.SeedEnabled {
		return nil
	}
	applied, err := Seed(ctx, st, logger, clock().UTC())
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if applied > 0 {
		logger.Info("database seeded", zap.Int("statements", applied))
	}
	return nil
}

// waitReady pings until the engine answers or the timeout elapses.
func waitReady(ctx context.Context, st store.Store, timeout time.Duration) error {
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollingInterval)
	defer ticker.Stop()

	for {
		err := st.Ping(readyCtx)
		if err == nil {
			return nil
		}
		select {
		case <-readyCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for database: %w", ctx.Err())
			}
			return errors.Join(fmt.Errorf("database not ready after %s", timeout), err)
		case <-ticker.C:
		}
	}
}

// EnsureSchema creates any missing table, index or constraint. Existing tables
// are left untouched.
func EnsureSchema(ctx context.Context, st store.Store) error {
	return st.Gorm().WithContext(ctx).AutoMigrate(Models()...)
}
