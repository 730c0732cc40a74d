package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the fulfillment lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state for every new order.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed indicates the store accepted the order.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusPreparing indicates the kitchen is preparing the order.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusOutForDelivery indicates a courier picked up the order.
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	// OrderStatusDelivered is terminal; the customer received the order.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled is terminal and reachable from any non-terminal state.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses lists fulfillment states in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus normalises raw input into a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range OrderStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ReceiptStatus enumerates the verification lifecycle of a payment receipt.
type ReceiptStatus string

const (
	ReceiptStatusPending  ReceiptStatus = "PENDING"
	ReceiptStatusVerified ReceiptStatus = "VERIFIED"
	ReceiptStatusRejected ReceiptStatus = "REJECTED"
)

// PaymentMethod is the closed set of payment options offered at checkout.
type PaymentMethod string

const (
	PaymentMethodYape     PaymentMethod = "yape"
	PaymentMethodPlin     PaymentMethod = "plin"
	PaymentMethodCulqi    PaymentMethod = "culqi"
	PaymentMethodEfectivo PaymentMethod = "efectivo"
)

// PaymentMethods lists every accepted payment method.
var PaymentMethods = []PaymentMethod{
	PaymentMethodYape,
	PaymentMethodPlin,
	PaymentMethodCulqi,
	PaymentMethodEfectivo,
}

// ParsePaymentMethod normalises raw input into a known payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	candidate := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	for _, method := range PaymentMethods {
		if method == candidate {
			return method, true
		}
	}
	return "", false
}

// PromotionType distinguishes promotions redeemable by code at checkout from display-only campaigns.
type PromotionType string

const (
	PromotionTypeDiscount PromotionType = "DISCOUNT"
	PromotionTypeBanner   PromotionType = "BANNER"
	PromotionTypeCombo    PromotionType = "COMBO"
)

// ParsePromotionType normalises raw input into a known promotion type.
func ParsePromotionType(raw string) (PromotionType, bool) {
	switch candidate := PromotionType(strings.ToUpper(strings.TrimSpace(raw))); candidate {
	case PromotionTypeDiscount, PromotionTypeBanner, PromotionTypeCombo:
		return candidate, true
	}
	return "", false
}

// Product is a catalog entry that can be ordered.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Stock      int
	Active     bool
	CategoryID string
	ImageURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Promotion describes a time-boxed percentage discount over a product set.
type Promotion struct {
	ID          string
	Code        string
	Title       string
	Type        PromotionType
	Discount    decimal.Decimal
	Active      bool
	StartDate   time.Time
	EndDate     time.Time
	ProductIDs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Description string
}

// IsRedeemableAt reports whether the promotion is active and within its validity window.
func (p Promotion) IsRedeemableAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	if !p.EndDate.IsZero() && now.After(p.EndDate) {
		return false
	}
	return true
}

// AppliesTo reports whether productID belongs to the promotion's product set.
func (p Promotion) AppliesTo(productID string) bool {
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// AddressDetail holds the structured part of a delivery address.
type AddressDetail struct {
	Street    string   `json:"street,omitempty"`
	Number    string   `json:"number,omitempty"`
	District  string   `json:"district,omitempty"`
	City      string   `json:"city,omitempty"`
	Reference string   `json:"reference,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Customer is the contact snapshot captured on an order.
type Customer struct {
	Name          string
	Phone         string
	Email         string
	Address       string
	AddressDetail AddressDetail
}

// OrderTotals is the monetary snapshot fixed at creation time.
type OrderTotals struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// Order is a persisted, priced purchase with its own fulfillment lifecycle.
type Order struct {
	ID                    string
	OrderNumber           string
	UserID                string
	Customer              Customer
	Totals                OrderTotals
	Currency              string
	PaymentMethod         PaymentMethod
	Status                OrderStatus
	PromotionCode         string
	Notes                 string
	ReceiptImageURL       string
	EstimatedDeliveryTime time.Time
	ConfirmedAt           *time.Time
	PreparingAt           *time.Time
	OutForDeliveryAt      *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time

	Items    []OrderItem
	Receipts []PaymentReceipt
}

// LatestReceipt returns the most recently created receipt, which is the authoritative payment status.
func (o Order) LatestReceipt() (PaymentReceipt, bool) {
	if len(o.Receipts) == 0 {
		return PaymentReceipt{}, false
	}
	latest := o.Receipts[0]
	for _, receipt := range o.Receipts[1:] {
		if receipt.CreatedAt.After(latest.CreatedAt) ||
			(receipt.CreatedAt.Equal(latest.CreatedAt) && receipt.ID > latest.ID) {
			latest = receipt
		}
	}
	return latest, true
}

// OrderItem is a snapshotted line of an order.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	CreatedAt   time.Time
}

// PaymentReceipt is an uploaded proof-of-payment with an independent verification lifecycle.
type PaymentReceipt struct {
	ID         string
	OrderID    string
	ImageURL   string
	Status     ReceiptStatus
	Notes      string
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// CursorPage is a generic page of results with an opaque continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Pagination carries page size and token for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}
