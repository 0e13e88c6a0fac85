package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	pingAttempts = 5
	pingBackoff  = 250 * time.Millisecond
	pingTimeout  = 5 * time.Second
)

// Postgres wraps DB connectivity.
// Keep transaction helpers here to support outbox + state consistency.
type Postgres struct {
	DB *gorm.DB
}

// Connect opens the pool and pings it with exponential backoff, so the service can
// start alongside a database that is still booting.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	backoff, err := retry.NewExponential(pingBackoff)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	attempt := 0
	err = retry.Do(ctx, retry.WithMaxRetries(pingAttempts, backoff), func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			logger.Warn("postgres ping failed",
				"event", "postgres_ping_failed",
				"module", "internal/platform/db",
				"layer", "platform",
				"attempt", attempt,
				"error", err.Error(),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
