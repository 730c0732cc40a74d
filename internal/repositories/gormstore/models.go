package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/tienda-delivery/api/internal/domain"
)

type productRow struct {
	ID         string          `gorm:"primaryKey;size:64"`
	Name       string          `gorm:"size:160;not null"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock      int             `gorm:"not null;check:chk_products_stock_non_negative,stock >= 0"`
	Active     bool            `gorm:"not null;default:true;index"`
	CategoryID string          `gorm:"size:64;index"`
	ImageURL   string          `gorm:"size:2048"`
	CreatedAt  time.Time       `gorm:"not null;index:idx_products_keyset,priority:1"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

func (productRow) TableName() string { return "products" }

type promotionRow struct {
	ID          string          `gorm:"primaryKey;size:64"`
	Code        *string         `gorm:"size:64;uniqueIndex:idx_promotions_code"`
	Title       string          `gorm:"size:160;not null"`
	Description string          `gorm:"type:text"`
	Type        string          `gorm:"size:16;not null"`
	Discount    decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	Active      bool            `gorm:"not null;index"`
	StartDate   *time.Time
	EndDate     *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`

	Products []promotionProductRow `gorm:"foreignKey:PromotionID;constraint:OnDelete:CASCADE"`
}

func (promotionRow) TableName() string { return "promotions" }

type promotionProductRow struct {
	PromotionID string `gorm:"primaryKey;size:64"`
	ProductID   string `gorm:"primaryKey;size:64;index"`
}

func (promotionProductRow) TableName() string { return "promotion_products" }

type orderRow struct {
	ID                    string          `gorm:"primaryKey;size:64"`
	OrderNumber           string          `gorm:"size:32;not null;uniqueIndex:idx_orders_order_number"`
	UserID                string          `gorm:"size:128;index"`
	CustomerName          string          `gorm:"size:120;not null"`
	CustomerPhone         string          `gorm:"size:32;not null"`
	CustomerEmail         string          `gorm:"size:254"`
	Address               string          `gorm:"size:300;not null"`
	AddressDetail         datatypes.JSONType[domain.AddressDetail]
	Subtotal              decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Discount              decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DeliveryFee           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total                 decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency              string          `gorm:"size:3;not null"`
	PaymentMethod         string          `gorm:"size:16;not null"`
	Status                string          `gorm:"size:24;not null;index"`
	PromotionCode         string          `gorm:"size:64"`
	Notes                 string          `gorm:"type:text"`
	ReceiptImageURL       string          `gorm:"size:2048"`
	EstimatedDeliveryTime time.Time       `gorm:"not null"`
	ConfirmedAt           *time.Time
	PreparingAt           *time.Time
	OutForDeliveryAt      *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	CreatedAt             time.Time `gorm:"not null;index"`
	UpdatedAt             time.Time `gorm:"not null"`

	Items []orderItemRow `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderRow) TableName() string { return "orders" }

type orderItemRow struct {
	ID          string          `gorm:"primaryKey;size:64"`
	OrderID     string          `gorm:"size:64;not null;index"`
	ProductID   string          `gorm:"size:64;not null;index"`
	ProductName string          `gorm:"size:160;not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

func (orderItemRow) TableName() string { return "order_items" }

type receiptRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	OrderID    string `gorm:"size:64;not null;index:idx_receipts_order_created,priority:1"`
	ImageURL   string `gorm:"size:2048;not null"`
	Status     string `gorm:"size:16;not null"`
	Notes      string `gorm:"type:text"`
	VerifiedAt *time.Time
	CreatedAt  time.Time `gorm:"not null;index:idx_receipts_order_created,priority:2"`
}

func (receiptRow) TableName() string { return "payment_receipts" }

// Models lists every table managed by the store, in dependency order.
func Models() []any {
	return []any{
		&productRow{},
		&promotionRow{},
		&promotionProductRow{},
		&orderRow{},
		&orderItemRow{},
		&receiptRow{},
	}
}

func productFromRow(row productRow) domain.Product {
	return domain.Product{
		ID:         row.ID,
		Name:       row.Name,
		Price:      row.Price,
		Stock:      row.Stock,
		Active:     row.Active,
		CategoryID: row.CategoryID,
		ImageURL:   row.ImageURL,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func productToRow(product domain.Product) productRow {
	return productRow{
		ID:         product.ID,
		Name:       product.Name,
		Price:      product.Price,
		Stock:      product.Stock,
		Active:     product.Active,
		CategoryID: product.CategoryID,
		ImageURL:   product.ImageURL,
		CreatedAt:  product.CreatedAt,
		UpdatedAt:  product.UpdatedAt,
	}
}

func promotionFromRow(row promotionRow) domain.Promotion {
	promotion := domain.Promotion{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Type:        domain.PromotionType(row.Type),
		Discount:    row.Discount,
		Active:      row.Active,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.Code != nil {
		promotion.Code = *row.Code
	}
	if row.StartDate != nil {
		promotion.StartDate = row.StartDate.UTC()
	}
	if row.EndDate != nil {
		promotion.EndDate = row.EndDate.UTC()
	}
	for _, product := range row.Products {
		promotion.ProductIDs = append(promotion.ProductIDs, product.ProductID)
	}
	return promotion
}

func promotionToRow(promotion domain.Promotion) promotionRow {
	row := promotionRow{
		ID:          promotion.ID,
		Title:       promotion.Title,
		Description: promotion.Description,
		Type:        string(promotion.Type),
		Discount:    promotion.Discount,
		Active:      promotion.Active,
		CreatedAt:   promotion.CreatedAt,
		UpdatedAt:   promotion.UpdatedAt,
	}
	if promotion.Code != "" {
		code := promotion.Code
		row.Code = &code
	}
	if !promotion.StartDate.IsZero() {
		start := promotion.StartDate
		row.StartDate = &start
	}
	if !promotion.EndDate.IsZero() {
		end := promotion.EndDate
		row.EndDate = &end
	}
	for _, productID := range promotion.ProductIDs {
		row.Products = append(row.Products, promotionProductRow{PromotionID: promotion.ID, ProductID: productID})
	}
	return row
}

func orderFromRow(row orderRow) domain.Order {
	order := domain.Order{
		ID:          row.ID,
		OrderNumber: row.OrderNumber,
		UserID:      row.UserID,
		Customer: domain.Customer{
			Name:          row.CustomerName,
			Phone:         row.CustomerPhone,
			Email:         row.CustomerEmail,
			Address:       row.Address,
			AddressDetail: row.AddressDetail.Data(),
		},
		Totals: domain.OrderTotals{
			Subtotal:    row.Subtotal,
			Discount:    row.Discount,
			DeliveryFee: row.DeliveryFee,
			Total:       row.Total,
		},
		Currency:              row.Currency,
		PaymentMethod:         domain.PaymentMethod(row.PaymentMethod),
		Status:                domain.OrderStatus(row.Status),
		PromotionCode:         row.PromotionCode,
		Notes:                 row.Notes,
		ReceiptImageURL:       row.ReceiptImageURL,
		EstimatedDeliveryTime: row.EstimatedDeliveryTime.UTC(),
		ConfirmedAt:           utcPtr(row.ConfirmedAt),
		PreparingAt:           utcPtr(row.PreparingAt),
		OutForDeliveryAt:      utcPtr(row.OutForDeliveryAt),
		DeliveredAt:           utcPtr(row.DeliveredAt),
		CancelledAt:           utcPtr(row.CancelledAt),
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
	for _, item := range row.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			CreatedAt:   item.CreatedAt.UTC(),
		})
	}
	return order
}

func orderToRow(order domain.Order) orderRow {
	row := orderRow{
		ID:                    order.ID,
		OrderNumber:           order.OrderNumber,
		UserID:                order.UserID,
		CustomerName:          order.Customer.Name,
		CustomerPhone:         order.Customer.Phone,
		CustomerEmail:         order.Customer.Email,
		Address:               order.Customer.Address,
		AddressDetail:         datatypes.NewJSONType(order.Customer.AddressDetail),
		Subtotal:              order.Totals.Subtotal,
		Discount:              order.Totals.Discount,
		DeliveryFee:           order.Totals.DeliveryFee,
		Total:                 order.Totals.Total,
		Currency:              order.Currency,
		PaymentMethod:         string(order.PaymentMethod),
		Status:                string(order.Status),
		PromotionCode:         order.PromotionCode,
		Notes:                 order.Notes,
		ReceiptImageURL:       order.ReceiptImageURL,
		EstimatedDeliveryTime: order.EstimatedDeliveryTime,
		ConfirmedAt:           order.ConfirmedAt,
		PreparingAt:           order.PreparingAt,
		OutForDeliveryAt:      order.OutForDeliveryAt,
		DeliveredAt:           order.DeliveredAt,
		CancelledAt:           order.CancelledAt,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
	for _, item := range order.Items {
		row.Items = append(row.Items, orderItemRow{
			ID:          item.ID,
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			CreatedAt:   item.CreatedAt,
		})
	}
	return row
}

func receiptFromRow(row receiptRow) domain.PaymentReceipt {
	return domain.PaymentReceipt{
		ID:         row.ID,
		OrderID:    row.OrderID,
		ImageURL:   row.ImageURL,
		Status:     domain.ReceiptStatus(row.Status),
		Notes:      row.Notes,
		VerifiedAt: utcPtr(row.VerifiedAt),
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

func receiptToRow(receipt domain.PaymentReceipt) receiptRow {
	return receiptRow{
		ID:         receipt.ID,
		OrderID:    receipt.OrderID,
		ImageURL:   receipt.ImageURL,
		Status:     string(receipt.Status),
		Notes:      receipt.Notes,
		VerifiedAt: receipt.VerifiedAt,
		CreatedAt:  receipt.CreatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
