package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestWrapErrorCategorises(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, notFound: true},
		{name: "duplicated key", err: gorm.ErrDuplicatedKey, conflict: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_order_number"}, conflict: true},
		{name: "serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), conflict: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, unavailable: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapError("orders.insert", tc.err)
			var repoErr *Error
			if !errors.As(wrapped, &repoErr) {
				t.Fatalf("expected *Error, got %T", wrapped)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected flags notFound=%v conflict=%v unavailable=%v", repoErr.IsNotFound(), repoErr.IsConflict(), repoErr.IsUnavailable())
			}
			if !errors.Is(wrapped, tc.err) {
				t.Fatalf("expected wrapped error to unwrap to original")
			}
		})
	}
}

func TestWrapErrorKeepsConstraintName(t *testing.T) {
	wrapped := WrapError("orders.insert", &pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_order_number"})
	var repoErr *Error
	if !errors.As(wrapped, &repoErr) || repoErr.Constraint() != "idx_orders_order_number" {
		t.Fatalf("expected constraint name, got %v", wrapped)
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if got := WrapError("op", context.Canceled); got != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", got)
	}
	if got := WrapError("op", fmt.Errorf("query: %w", context.DeadlineExceeded)); !errors.Is(got, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", got)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapErrorPreservesExisting(t *testing.T) {
	original := Conflict("", "status changed")
	wrapped := WrapError("orders.transition", original)
	var repoErr *Error
	if !errors.As(wrapped, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict error, got %v", wrapped)
	}
	if repoErr.Error() != "orders.transition: status changed" {
		t.Fatalf("unexpected message %q", repoErr.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("expected deadlock to be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation must not be retried")
	}
	if IsRetryable(errors.New("boom")) {
		t.Fatalf("plain errors must not be retried")
	}
}

func TestTransactionErrorPassesCallbackErrorsThrough(t *testing.T) {
	callbackErr := errors.New("order: invalid status transition: DELIVERED -> PENDING")
	if got := transactionError(callbackErr, true); got != callbackErr {
		t.Fatalf("expected callback error unchanged, got %v", got)
	}

	commitErr := &pgconn.PgError{Code: "40001"}
	got := transactionError(commitErr, false)
	var repoErr *Error
	if !errors.As(got, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected commit failure classified as conflict, got %v", got)
	}
	if !IsRetryable(got) {
		t.Fatalf("expected commit serialization failure to stay retryable")
	}
	if transactionError(nil, false) != nil {
		t.Fatal("expected nil for nil error")
	}
}
