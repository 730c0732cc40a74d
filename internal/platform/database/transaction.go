package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

type txContextKey struct{}

// TxFunc is executed within a database transaction. Repositories resolve the transaction
// from ctx through Conn.
type TxFunc func(ctx context.Context) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts  int
	timeout   time.Duration
	isolation sql.IsolationLevel
}

// WithTxAttempts overrides the retry attempts for serialization failures.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithIsolation selects the isolation level used for the transaction.
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(cfg *txConfig) {
		cfg.isolation = level
	}
}

// Conn returns the transaction bound to ctx or the base pool when none is active.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// InTx reports whether ctx carries an active transaction.
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txContextKey{}).(*gorm.DB)
	return ok && tx != nil
}

// RunTransaction executes fn within a transaction on db, retrying serialization failures.
// Nested calls join the outer transaction.
func RunTransaction(ctx context.Context, db *gorm.DB, fn TxFunc, opts ...TxOption) error {
	if db == nil {
		return WrapError("transaction", errors.New("database: db is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("database: transaction function is nil"))
	}
	if InTx(ctx) {
		return fn(ctx)
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txnCtx := ctx
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		}
	}
	if cancel != nil {
		defer cancel()
	}

	var sqlOpts *sql.TxOptions
	if cfg.isolation != sql.LevelDefault {
		sqlOpts = &sql.TxOptions{Isolation: cfg.isolation}
	}

	var err error
	var fnFailed bool
	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		fnFailed = false
		err = db.WithContext(txnCtx).Transaction(func(tx *gorm.DB) error {
			fnErr := fn(context.WithValue(txnCtx, txContextKey{}, tx))
			fnFailed = fnErr != nil
			return fnErr
		}, sqlOpts)
		if err == nil || !IsRetryable(err) || txnCtx.Err() != nil {
			break
		}
	}
	return transactionError(err, fnFailed)
}

// transactionError returns callback errors unchanged and annotates begin or commit failures.
func transactionError(err error, fromCallback bool) error {
	if err == nil || fromCallback {
		return err
	}
	return WrapError("transaction", err)
}

// UnitOfWork adapts RunTransaction to the repositories.UnitOfWork contract.
type UnitOfWork struct {
	db   *gorm.DB
	opts []TxOption
}

// NewUnitOfWork binds a UnitOfWork to db.
func NewUnitOfWork(db *gorm.DB, opts ...TxOption) *UnitOfWork {
	return &UnitOfWork{db: db, opts: opts}
}

// RunInTx runs fn inside a transaction.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunTransaction(ctx, u.db, fn, u.opts...)
}
