package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/database"
	"github.com/tienda-delivery/api/internal/repositories"
)

var transitionColumns = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed:      "confirmed_at",
	domain.OrderStatusPreparing:      "preparing_at",
	domain.OrderStatusOutForDelivery: "out_for_delivery_at",
	domain.OrderStatusDelivered:      "delivered_at",
	domain.OrderStatusCancelled:      "cancelled_at",
}

// OrderRepository persists orders and their items in PostgreSQL.
type OrderRepository struct {
	db *gorm.DB
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository binds the repository to db.
func NewOrderRepository(db *gorm.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository: db is required")
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	row := orderToRow(order)
	return database.WrapError("orders.insert", database.Conn(ctx, r.db).Create(&row).Error)
}

func (r *OrderRepository) ExistsByNumber(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&orderRow{}).Where("order_number = ?", orderNumber).Limit(1).Count(&count).Error
	if err != nil {
		return false, database.WrapError("orders.exists_by_number", err)
	}
	return count > 0, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string, opts repositories.OrderLoadOptions) (domain.Order, error) {
	return r.find(ctx, "orders.find_by_id", "id = ?", orderID, opts)
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string, opts repositories.OrderLoadOptions) (domain.Order, error) {
	return r.find(ctx, "orders.find_by_number", "order_number = ?", orderNumber, opts)
}

func (r *OrderRepository) find(ctx context.Context, op, where string, arg any, opts repositories.OrderLoadOptions) (domain.Order, error) {
	conn := database.Conn(ctx, r.db)
	query := conn.Where(where, arg)
	if opts.IncludeItems {
		query = query.Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC").Order("order_items.id ASC")
		})
	}

	var row orderRow
	if err := query.Take(&row).Error; err != nil {
		return domain.Order{}, database.WrapError(op, err)
	}
	order := orderFromRow(row)

	if opts.IncludeReceipts {
		var receipts []receiptRow
		err := conn.Where("order_id = ?", order.ID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&receipts).Error
		if err != nil {
			return domain.Order{}, database.WrapError(op, err)
		}
		for _, receipt := range receipts {
			order.Receipts = append(order.Receipts, receiptFromRow(receipt))
		}
	}
	return order, nil
}

func (r *OrderRepository) LockByID(ctx context.Context, orderID string) (domain.Order, error) {
	var row orderRow
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		Take(&row).Error
	if err != nil {
		return domain.Order{}, database.WrapError("orders.lock", err)
	}
	return orderFromRow(row), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	size := normalisePageSize(filter.PageSize)
	query := database.Conn(ctx, r.db).Model(&orderRow{})
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status IN ?", statuses)
	}

	var rows []orderRow
	if err := keyset(query, "orders", filter.Cursor, size).Find(&rows).Error; err != nil {
		return domain.CursorPage[domain.Order]{}, database.WrapError("orders.list", err)
	}
	rows, next, err := trimPage(rows, size, func(row orderRow) (time.Time, string) { return row.CreatedAt, row.ID })
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{NextPageToken: next}
	for _, row := range rows {
		page.Items = append(page.Items, orderFromRow(row))
	}
	return page, nil
}

func (r *OrderRepository) Transition(ctx context.Context, transition repositories.OrderTransition) error {
	updates := map[string]any{
		"status":     string(transition.To),
		"updated_at": transition.At,
	}
	if column, ok := transitionColumns[transition.To]; ok {
		updates[column] = transition.At
	}

	conn := database.Conn(ctx, r.db)
	result := conn.Model(&orderRow{}).
		Where("id = ? AND status = ?", transition.OrderID, string(transition.From)).
		Updates(updates)
	if result.Error != nil {
		return database.WrapError("orders.transition", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var current orderRow
	if err := conn.Select("id", "status").Where("id = ?", transition.OrderID).Take(&current).Error; err != nil {
		return database.WrapError("orders.transition", err)
	}
	return database.Conflict("orders.transition", fmt.Sprintf("order %s is %s, expected %s", current.ID, current.Status, transition.From))
}

func (r *OrderRepository) UpdateReceiptImage(ctx context.Context, orderID string, imageURL string, at time.Time) error {
	result := database.Conn(ctx, r.db).Model(&orderRow{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"receipt_image_url": imageURL,
			"updated_at":        at,
		})
	if result.Error != nil {
		return database.WrapError("orders.update_receipt_image", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NotFound("orders.update_receipt_image")
	}
	return nil
}
