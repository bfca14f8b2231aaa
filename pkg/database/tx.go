package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

// Postgres error codes that indicate the transaction was rolled back by the
// server and can be replayed from scratch.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"

	codeForeignKeyViolation = "23503"
)

// Beginner opens transactions. *sqlx.DB satisfies it.
type Beginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// RetryPolicy bounds how often and how patiently a transaction is replayed.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 25 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay * 20
	}
	return p
}

// Ceiling returns the upper bound of the backoff window after the given failed attempt.
func (p RetryPolicy) Ceiling(attempt int) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// TxRunner runs a function inside a transaction and replays it when Postgres
// reports a serialization failure, a deadlock or a lock timeout.
type TxRunner struct {
	db      Beginner
	policy  RetryPolicy
	opts    *sql.TxOptions
	logger  *zap.Logger
	onRetry func(attempt int, err error)

	mu   sync.Mutex
	rand *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// TxRunnerOption configures a TxRunner.
type TxRunnerOption func(*TxRunner)

// WithTxOptions sets the isolation level and read-only flag used for every attempt.
func WithTxOptions(opts *sql.TxOptions) TxRunnerOption {
	return func(r *TxRunner) { r.opts = opts }
}

// WithTxLogger attaches a logger for retry diagnostics.
func WithTxLogger(logger *zap.Logger) TxRunnerOption {
	return func(r *TxRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetryHook is invoked before every replay.
func WithRetryHook(fn func(attempt int, err error)) TxRunnerOption {
	return func(r *TxRunner) { r.onRetry = fn }
}

// NewTxRunner constructs a runner over db.
func NewTxRunner(db Beginner, policy RetryPolicy, opts ...TxRunnerOption) *TxRunner {
	r := &TxRunner{
		db:     db,
		policy: policy.normalized(),
		logger: zap.NewNop(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run executes fn in a fresh transaction per attempt. fn must not keep state
// across attempts. Non-retryable errors are returned as-is; an exhausted retry
// budget yields TRANSACTION_CONFLICT.
func (r *TxRunner) Run(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = r.runOnce(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		if r.onRetry != nil {
			r.onRetry(attempt, lastErr)
		}
		delay := r.jitter(attempt)
		r.logger.Debug("transaction retry",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return appErrors.WrapAs(lastErr, appErrors.ErrTransactionConflict, "")
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// jitter draws a full-jitter delay in [0, ceiling].
func (r *TxRunner) jitter(attempt int) time.Duration {
	ceiling := r.policy.Ceiling(attempt)
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.rand.Int63n(int64(ceiling) + 1))
}

// IsRetryable reports whether err is a Postgres error class the server resolves
// by aborting the whole transaction.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// IsForeignKeyViolation reports whether err is a write referencing a missing row.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeForeignKeyViolation
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
