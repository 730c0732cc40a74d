package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/tienda-delivery/api/internal/repositories"
)

const (
	defaultOrderNumberAttempts = 50
	orderNumberSuffixSpace     = 1000
)

// OrderNumberGeneratorDeps bundles collaborators for the order number generator.
type OrderNumberGeneratorDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	Location    *time.Location
	MaxAttempts int
	// Suffix returns a value in [0, 1000). Defaults to math/rand/v2.
	Suffix func() int
}

// OrderNumberGenerator produces ORD-YYYYMMDD-NNN identifiers that are free at the time of the check.
// The orders table unique constraint remains the final authority.
type OrderNumberGenerator struct {
	orders      repositories.OrderRepository
	clock       func() time.Time
	location    *time.Location
	maxAttempts int
	suffix      func() int
}

// NewOrderNumberGenerator validates dependencies and applies defaults.
func NewOrderNumberGenerator(deps OrderNumberGeneratorDeps) (*OrderNumberGenerator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order number generator: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}
	suffix := deps.Suffix
	if suffix == nil {
		suffix = func() int { return rand.IntN(orderNumberSuffixSpace) }
	}
	return &OrderNumberGenerator{
		orders:      deps.Orders,
		clock:       clock,
		location:    location,
		maxAttempts: attempts,
		suffix:      suffix,
	}, nil
}

// Next returns an unused order number for the current day or ErrOrderNumberExhausted.
func (g *OrderNumberGenerator) Next(ctx context.Context) (string, error) {
	day := g.clock().In(g.location)
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := FormatOrderNumber(day, g.suffix())
		exists, err := g.orders.ExistsByNumber(ctx, candidate)
		if err != nil {
			return "", mapRepositoryError(err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %d attempts for %s", ErrOrderNumberExhausted, g.maxAttempts, day.Format("20060102"))
}

// FormatOrderNumber renders the date-scoped identifier. suffix is reduced into [0, 1000).
func FormatOrderNumber(day time.Time, suffix int) string {
	suffix %= orderNumberSuffixSpace
	if suffix < 0 {
		suffix += orderNumberSuffixSpace
	}
	return fmt.Sprintf("ORD-%s-%03d", day.Format("20060102"), suffix)
}
