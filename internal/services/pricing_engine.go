package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/textutil"
	"github.com/tienda-delivery/api/internal/repositories"
)

const moneyScale = 2

var hundred = decimal.NewFromInt(100)

// DeliveryFeePolicy charges a flat fee unless the discounted total reaches the threshold.
type DeliveryFeePolicy struct {
	FlatFee               decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
}

// FeeFor returns the delivery fee applicable to the discounted total.
func (p DeliveryFeePolicy) FeeFor(discounted decimal.Decimal) decimal.Decimal {
	if discounted.GreaterThanOrEqual(p.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	if p.FlatFee.IsNegative() {
		return decimal.Zero
	}
	return p.FlatFee
}

// PricingEngine computes order totals from live catalog prices and promotion rules.
type PricingEngine struct {
	promotions repositories.PromotionRepository
	policy     DeliveryFeePolicy
	currency   string
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles collaborators for the pricing engine.
type PricingEngineDeps struct {
	Promotions repositories.PromotionRepository
	Policy     DeliveryFeePolicy
	Currency   string
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// NewPricingEngine validates dependencies and returns a pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Promotions == nil {
		return nil, errors.New("pricing engine: promotion repository is required")
	}
	if deps.Policy.FlatFee.IsNegative() || deps.Policy.FreeDeliveryThreshold.IsNegative() {
		return nil, errors.New("pricing engine: delivery policy amounts must be non-negative")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "PEN"
	}
	return &PricingEngine{
		promotions: deps.Promotions,
		policy:     deps.Policy,
		currency:   currency,
		now:        func() time.Time { return now().UTC() },
		logger:     logger,
	}, nil
}

// PriceLine is a product and quantity requested by the customer.
type PriceLine struct {
	ProductID string
	Quantity  int
}

// PriceCartCommand prices lines against a server-side product snapshot.
type PriceCartCommand struct {
	Lines         []PriceLine
	Products      map[string]domain.Product
	PromotionCode string
}

// Price resolves the optional promotion code and computes the breakdown.
func (e *PricingEngine) Price(ctx context.Context, cmd PriceCartCommand) (domain.PricingBreakdown, error) {
	var promotion *domain.Promotion
	if code := textutil.NormalizeCode(cmd.PromotionCode); code != "" {
		resolved, err := e.ResolvePromotion(ctx, code)
		if err != nil {
			return domain.PricingBreakdown{}, err
		}
		promotion = &resolved
	}

	breakdown, err := CalculateBreakdown(cmd.Lines, cmd.Products, promotion, e.policy)
	if err != nil {
		return domain.PricingBreakdown{}, err
	}
	breakdown.Currency = e.currency
	return breakdown, nil
}

// ResolvePromotion looks up a redemption code and checks it can be used right now.
func (e *PricingEngine) ResolvePromotion(ctx context.Context, code string) (domain.Promotion, error) {
	promotion, err := e.promotions.FindByCode(ctx, code)
	if err != nil {
		if isRepositoryNotFound(err) {
			return domain.Promotion{}, fmt.Errorf("%w: %s", ErrInvalidPromotion, code)
		}
		return domain.Promotion{}, mapRepositoryError(err)
	}
	if !promotion.IsRedeemableAt(e.now()) {
		return domain.Promotion{}, fmt.Errorf("%w: %s", ErrPromotionNotActive, code)
	}
	if promotion.Type != domain.PromotionTypeDiscount {
		return domain.Promotion{}, fmt.Errorf("%w: %s", ErrPromotionWrongType, code)
	}
	return promotion, nil
}

// CalculateBreakdown is the pure pricing step: subtotal from snapshot prices, discount over the
// promotion's product set, then the delivery fee on the discounted total.
func CalculateBreakdown(lines []PriceLine, products map[string]domain.Product, promotion *domain.Promotion, policy DeliveryFeePolicy) (domain.PricingBreakdown, error) {
	if len(lines) == 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: cart has no items", ErrOrderInvalidInput)
	}

	breakdown := domain.PricingBreakdown{
		Items: make([]domain.ItemPricingBreakdown, 0, len(lines)),
	}
	subtotal := decimal.Zero
	discountBase := decimal.Zero

	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, line.ProductID)
		}
		product, ok := products[line.ProductID]
		if !ok {
			return domain.PricingBreakdown{}, &ProductsUnavailableError{ProductIDs: []string{line.ProductID}}
		}
		if product.Price.IsNegative() {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: product %s has a negative price", ErrOrderInvalidInput, product.ID)
		}

		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(moneyScale)
		subtotal = subtotal.Add(lineSubtotal)

		discounted := promotion != nil && promotion.AppliesTo(product.ID)
		if discounted {
			discountBase = discountBase.Add(lineSubtotal)
		}

		breakdown.Items = append(breakdown.Items, domain.ItemPricingBreakdown{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    lineSubtotal,
			Discounted:  discounted,
		})
	}

	discount := decimal.Zero
	if promotion != nil {
		if !discountBase.IsPositive() {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: %s", ErrPromotionNotApplicable, promotion.Code)
		}
		discount = discountBase.Mul(promotion.Discount).Div(hundred).Round(moneyScale)
		if discount.GreaterThan(discountBase) {
			discount = discountBase
		}
		if discount.IsNegative() {
			discount = decimal.Zero
		}
		promo := *promotion
		breakdown.Promotion = &promo
	}

	discounted := decimal.Max(decimal.Zero, subtotal.Sub(discount))
	fee := policy.FeeFor(discounted)

	breakdown.Subtotal = subtotal
	breakdown.DiscountBase = discountBase
	breakdown.Discount = discount
	breakdown.DeliveryFee = fee
	breakdown.Total = discounted.Add(fee)
	return breakdown, nil
}
