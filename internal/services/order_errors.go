package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tienda-delivery/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals malformed or incomplete input. Field detail is available via *ValidationError.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a status transition is not allowed from the current state.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent modification or duplicate record.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store could not be reached.
	ErrOrderUnavailable = errors.New("order: storage unavailable")
	// ErrOrderPermissionDenied indicates the caller may not perform the operation.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
	// ErrProductsUnavailable indicates one or more cart products are missing or inactive.
	ErrProductsUnavailable = errors.New("order: products unavailable")
	// ErrInsufficientStock indicates a cart line exceeds the remaining stock.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrInvalidPaymentMethod indicates the payment method is outside the accepted set.
	ErrInvalidPaymentMethod = errors.New("order: invalid payment method")
	// ErrOrderNumberExhausted indicates no free order number was found within the retry bound.
	ErrOrderNumberExhausted = errors.New("order: order number space exhausted")

	// ErrNoPendingReceipt indicates there is no PENDING receipt to approve or reject.
	ErrNoPendingReceipt = errors.New("payment: no pending receipt")
	// ErrRejectionRequiresNotes indicates a rejection was attempted without notes.
	ErrRejectionRequiresNotes = errors.New("payment: rejection requires notes")
	// ErrReceiptNotRejected indicates a resubmission was attempted while the latest receipt is not REJECTED.
	ErrReceiptNotRejected = errors.New("payment: latest receipt is not rejected")
)

// ValidationError carries field-level detail for ErrOrderInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.empty() {
		return ErrOrderInvalidInput.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", key, e.Fields[key]))
	}
	return fmt.Sprintf("%s: %s", ErrOrderInvalidInput.Error(), strings.Join(parts, "; "))
}

// Is matches ErrOrderInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrOrderInvalidInput
}

// ProductsUnavailableError lists products that are missing or inactive.
type ProductsUnavailableError struct {
	ProductIDs []string
}

// Error implements the error interface.
func (e *ProductsUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductsUnavailable.Error(), strings.Join(e.ProductIDs, ", "))
}

// Is matches ErrProductsUnavailable.
func (e *ProductsUnavailableError) Is(target error) bool {
	return target == ErrProductsUnavailable
}

// InsufficientStockError names the product that cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("%s: %s has %d available, %d requested", ErrInsufficientStock.Error(), name, e.Available, e.Requested)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// mapRepositoryError classifies err under an order sentinel and keeps the driver cause in the chain.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("order: repository error: %w", err)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
