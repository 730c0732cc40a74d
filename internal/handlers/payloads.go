package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienda-delivery/api/internal/domain"
)

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

type totalsPayload struct {
	Subtotal    string `json:"subtotal"`
	Discount    string `json:"discount"`
	DeliveryFee string `json:"deliveryFee"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
}

type orderItemPayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Subtotal    string `json:"subtotal"`
}

type receiptPayload struct {
	ID          string `json:"id,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Status      string `json:"status"`
	StatusLabel string `json:"statusLabel"`
	Notes       string `json:"notes,omitempty"`
	VerifiedAt  string `json:"verifiedAt,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

type timelinePayload struct {
	ConfirmedAt      string `json:"confirmedAt,omitempty"`
	PreparingAt      string `json:"preparingAt,omitempty"`
	OutForDeliveryAt string `json:"outForDeliveryAt,omitempty"`
	DeliveredAt      string `json:"deliveredAt,omitempty"`
	CancelledAt      string `json:"cancelledAt,omitempty"`
}

// trackingPayload is the customer-facing projection. It never exposes internal ids.
type trackingPayload struct {
	OrderNumber           string             `json:"orderNumber"`
	Status                string             `json:"status"`
	StatusLabel           string             `json:"statusLabel"`
	PaymentMethod         string             `json:"paymentMethod"`
	PaymentMethodLabel    string             `json:"paymentMethodLabel"`
	CustomerName          string             `json:"customerName"`
	Address               string             `json:"address"`
	Items                 []orderItemPayload `json:"items"`
	Totals                totalsPayload      `json:"totals"`
	PromotionCode         string             `json:"promotionCode,omitempty"`
	Notes                 string             `json:"notes,omitempty"`
	Payment               *receiptPayload    `json:"payment,omitempty"`
	EstimatedDeliveryTime string             `json:"estimatedDeliveryTime"`
	Timeline              timelinePayload    `json:"timeline"`
	CreatedAt             string             `json:"createdAt"`
}

// confirmationPayload answers a successful checkout. Tracking lookups never include the email.
type confirmationPayload struct {
	trackingPayload
	CustomerEmail string `json:"customerEmail,omitempty"`
	Total         string `json:"total"`
}

type customerPayload struct {
	Name          string               `json:"name"`
	Phone         string               `json:"phone"`
	Email         string               `json:"email,omitempty"`
	Address       string               `json:"address"`
	AddressDetail domain.AddressDetail `json:"addressDetail"`
}

type adminOrderPayload struct {
	trackingPayload
	ID        string           `json:"id"`
	UserID    string           `json:"userId,omitempty"`
	Customer  customerPayload  `json:"customer"`
	Receipts  []receiptPayload `json:"receipts"`
	UpdatedAt string           `json:"updatedAt"`
}

type productPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
	CategoryID string `json:"categoryId,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

type promotionPayload struct {
	ID          string   `json:"id"`
	Code        string   `json:"code,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Discount    string   `json:"discount"`
	Active      bool     `json:"active"`
	StartDate   string   `json:"startDate,omitempty"`
	EndDate     string   `json:"endDate,omitempty"`
	ProductIDs  []string `json:"productIds"`
}

type pagePayload[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func buildTrackingPayload(order domain.Order) trackingPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   formatMoney(item.UnitPrice),
			Subtotal:    formatMoney(item.Subtotal),
		})
	}
	payload := trackingPayload{
		OrderNumber:        order.OrderNumber,
		Status:             string(order.Status),
		StatusLabel:        order.Status.Label(),
		PaymentMethod:      string(order.PaymentMethod),
		PaymentMethodLabel: order.PaymentMethod.Label(),
		CustomerName:       order.Customer.Name,
		Address:            order.Customer.Address,
		Items:              items,
		Totals: totalsPayload{
			Subtotal:    formatMoney(order.Totals.Subtotal),
			Discount:    formatMoney(order.Totals.Discount),
			DeliveryFee: formatMoney(order.Totals.DeliveryFee),
			Total:       formatMoney(order.Totals.Total),
			Currency:    order.Currency,
		},
		PromotionCode:         order.PromotionCode,
		Notes:                 order.Notes,
		EstimatedDeliveryTime: formatTime(order.EstimatedDeliveryTime),
		Timeline: timelinePayload{
			ConfirmedAt:      formatTimePtr(order.ConfirmedAt),
			PreparingAt:      formatTimePtr(order.PreparingAt),
			OutForDeliveryAt: formatTimePtr(order.OutForDeliveryAt),
			DeliveredAt:      formatTimePtr(order.DeliveredAt),
			CancelledAt:      formatTimePtr(order.CancelledAt),
		},
		CreatedAt: formatTime(order.CreatedAt),
	}
	if latest, ok := order.LatestReceipt(); ok {
		receipt := buildReceiptPayload(latest)
		receipt.ID = ""
		payload.Payment = &receipt
	}
	return payload
}

func buildConfirmationPayload(order domain.Order) confirmationPayload {
	return confirmationPayload{
		trackingPayload: buildTrackingPayload(order),
		CustomerEmail:   order.Customer.Email,
		Total:           formatMoney(order.Totals.Total),
	}
}

func buildAdminOrderPayload(order domain.Order) adminOrderPayload {
	receipts := make([]receiptPayload, 0, len(order.Receipts))
	for _, receipt := range order.Receipts {
		receipts = append(receipts, buildReceiptPayload(receipt))
	}
	payload := adminOrderPayload{
		trackingPayload: buildTrackingPayload(order),
		ID:              order.ID,
		UserID:          order.UserID,
		Customer: customerPayload{
			Name:          order.Customer.Name,
			Phone:         order.Customer.Phone,
			Email:         order.Customer.Email,
			Address:       order.Customer.Address,
			AddressDetail: order.Customer.AddressDetail,
		},
		Receipts:  receipts,
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if latest, ok := order.LatestReceipt(); ok {
		receipt := buildReceiptPayload(latest)
		payload.Payment = &receipt
	}
	return payload
}

func buildReceiptPayload(receipt domain.PaymentReceipt) receiptPayload {
	return receiptPayload{
		ID:          receipt.ID,
		ImageURL:    receipt.ImageURL,
		Status:      string(receipt.Status),
		StatusLabel: receipt.Status.Label(),
		Notes:       receipt.Notes,
		VerifiedAt:  formatTimePtr(receipt.VerifiedAt),
		CreatedAt:   formatTime(receipt.CreatedAt),
	}
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:         product.ID,
		Name:       product.Name,
		Price:      formatMoney(product.Price),
		Stock:      product.Stock,
		Active:     product.Active,
		CategoryID: product.CategoryID,
		ImageURL:   product.ImageURL,
		UpdatedAt:  formatTime(product.UpdatedAt),
	}
}

func buildPromotionPayload(promotion domain.Promotion) promotionPayload {
	productIDs := promotion.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}
	return promotionPayload{
		ID:          promotion.ID,
		Code:        promotion.Code,
		Title:       promotion.Title,
		Description: promotion.Description,
		Type:        string(promotion.Type),
		Discount:    promotion.Discount.String(),
		Active:      promotion.Active,
		StartDate:   formatTime(promotion.StartDate),
		EndDate:     formatTime(promotion.EndDate),
		ProductIDs:  productIDs,
	}
}

func buildPage[S any, T any](page domain.CursorPage[S], convert func(S) T) pagePayload[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pagePayload[T]{Items: items, NextPageToken: page.NextPageToken}
}
