package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds how often a conflicting transaction is retried
type RetryConfig struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultRetryConfig returns the default conflict retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  10 * time.Millisecond,
	}
}

// Postgres conflict codes that are safe to retry
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// IsConflict reports whether err is a retryable write conflict
func IsConflict(err error) bool {
	if errors.Is(err, ErrTransactionConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}

// withConflictRetry runs attempt until it succeeds, fails with a
// non-conflict error, or the retry budget is spent. An exhausted budget
// surfaces as ErrTransactionConflict.
func withConflictRetry(ctx context.Context, cfg RetryConfig, op string, attempt func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(cfg.MaxRetries, retry.WithJitterPercent(20, retry.NewExponential(cfg.BaseDelay)))

	tries := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		err := attempt(ctx)
		if err != nil && IsConflict(err) {
			monitoring.RecordLedgerConflict(op)
			log.Debug().Err(err).Str("operation", op).Int("attempt", tries).Msg("Ledger transaction conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && IsConflict(err) && !errors.Is(err, ErrTransactionConflict) {
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransactionConflict, op, tries, err)
	}
	return err
}
