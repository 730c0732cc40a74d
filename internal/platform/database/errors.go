package database

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes mapped onto repository semantics.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
	pgTooManyConnections   = "53300"
)

// Error implements repositories.RepositoryError for PostgreSQL backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
	constraint  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing row.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict reports whether the error represents a constraint violation or a lost update.
func (e *Error) IsConflict() bool {
	return e != nil && e.conflict
}

// IsUnavailable reports whether the error represents a transient database outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// Constraint returns the violated constraint name when PostgreSQL reported one.
func (e *Error) Constraint() string {
	if e == nil {
		return ""
	}
	return e.constraint
}

// NotFound builds a not-found error for lookups that bypass gorm's First semantics.
func NotFound(op string) error {
	return &Error{op: op, err: gorm.ErrRecordNotFound, notFound: true}
}

// Conflict builds a conflict error, typically for guarded updates that matched no rows.
func Conflict(op, message string) error {
	return &Error{op: op, err: errors.New(message), conflict: true}
}

func newError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		e.notFound = true
		return e
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		e.conflict = true
		return e
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.constraint = pgErr.ConstraintName
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			e.conflict = true
		case pgQueryCanceled, pgAdminShutdown, pgCannotConnectNow, pgTooManyConnections:
			e.unavailable = true
		}
		return e
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		e.unavailable = true
	}
	return e
}

// WrapError annotates database errors with repository semantics. Context cancellations are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if op != "" && repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return newError(op, err)
}

// IsRetryable reports whether err is a serialization or deadlock failure worth retrying.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}
