// Package retry wraps a phase operation with bounded exponential backoff
// (spec.md §5 "Retry discipline"), adapted from the connection-error
// classification logic in internal/data/retry.go onto
// github.com/cenkalti/backoff/v4 instead of a hand-rolled sleep loop.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"go.uber.org/zap"

	pipeerr "fileingest/internal/errors"
)

// Config controls the backoff schedule. Zero values fall back to spec.md
// §5's defaults: 3 attempts, 0.25s initial delay, 2x multiplier.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 250 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	return c
}

// Do runs fn with exponential backoff. A notifiable PipelineError
// propagates immediately without retry, per spec.md §5. Non-retriable
// database errors (undefined column, syntax error) also propagate
// immediately, mirroring internal/data/retry.go's fast-fail classification.
func Do(ctx context.Context, cfg Config, log *zap.Logger, op string, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.Multiplier = cfg.Multiplier
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts instead of wall-clock
	bounded := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if pipeerr.IsNotifiable(err) {
			return backoff.Permanent(err)
		}
		if isNonRetriablePgError(err) {
			return backoff.Permanent(err)
		}
		if log != nil {
			log.Warn("phase operation failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}, withCtx)
}

// isNonRetriablePgError matches internal/data/retry.go's carve-out for
// undefined-column (42703) and similarly unambiguous schema errors that no
// amount of retrying will resolve.
func isNonRetriablePgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42703", "42P01", "42601": // undefined column, undefined table, syntax error
			return true
		}
	}
	return false
}

// IsConnectionError classifies transient connectivity failures, grounded on
// internal/data/retry.go's isConnectionError.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		if strings.HasPrefix(code, "08") || code == "57P01" || code == "57P02" || code == "57P03" {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{
		"connection refused", "connection reset", "connection closed",
		"unexpected eof", "broken pipe", "no such host",
		"network is unreachable", "timeout", "connection lost",
		"server closed the connection",
	} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
