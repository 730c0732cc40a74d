package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock means a product holds fewer units than a line asks for.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockProductMissing means the product row vanished before its stock was taken.
	ErrStockProductMissing = errors.New("product missing from inventory")
)

// StockError describes a failed stock decrement. It matches one of the
// sentinels above through errors.Is.
type StockError struct {
	Op        string
	ProductID string
	Available int
	Requested int
	Err       error
}

func (e *StockError) Error() string {
	if errors.Is(e.Err, ErrStockProductMissing) {
		return fmt.Sprintf("%s: product %s not found", e.Op, e.ProductID)
	}
	return fmt.Sprintf("%s: product %s has %d units, %d requested", e.Op, e.ProductID, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return e.Err }

// NewInsufficientStockError reports that productID holds fewer than requested units.
func NewInsufficientStockError(op, productID string, available, requested int) *StockError {
	return &StockError{Op: op, ProductID: productID, Available: available, Requested: requested, Err: ErrInsufficientStock}
}

// NewStockProductMissingError keeps cause reachable alongside ErrStockProductMissing.
func NewStockProductMissingError(op, productID string, requested int, cause error) *StockError {
	err := ErrStockProductMissing
	if cause != nil {
		err = errors.Join(ErrStockProductMissing, cause)
	}
	return &StockError{Op: op, ProductID: productID, Requested: requested, Err: err}
}
