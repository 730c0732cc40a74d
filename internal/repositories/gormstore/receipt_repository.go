package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/database"
	"github.com/tienda-delivery/api/internal/repositories"
)

// ReceiptRepository persists the payment receipt history in PostgreSQL.
type ReceiptRepository struct {
	db *gorm.DB
}

var _ repositories.PaymentReceiptRepository = (*ReceiptRepository)(nil)

// NewReceiptRepository binds the repository to db.
func NewReceiptRepository(db *gorm.DB) (*ReceiptRepository, error) {
	if db == nil {
		return nil, errors.New("receipt repository: db is required")
	}
	return &ReceiptRepository{db: db}, nil
}

func (r *ReceiptRepository) Insert(ctx context.Context, receipt domain.PaymentReceipt) error {
	row := receiptToRow(receipt)
	return database.WrapError("receipts.insert", database.Conn(ctx, r.db).Create(&row).Error)
}

func (r *ReceiptRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentReceipt, error) {
	var rows []receiptRow
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, database.WrapError("receipts.list_by_order", err)
	}
	receipts := make([]domain.PaymentReceipt, 0, len(rows))
	for _, row := range rows {
		receipts = append(receipts, receiptFromRow(row))
	}
	return receipts, nil
}

func (r *ReceiptRepository) Latest(ctx context.Context, orderID string) (domain.PaymentReceipt, error) {
	var row receiptRow
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		Take(&row).Error
	if err != nil {
		return domain.PaymentReceipt{}, database.WrapError("receipts.latest", err)
	}
	return receiptFromRow(row), nil
}

func (r *ReceiptRepository) Resolve(ctx context.Context, resolution repositories.ReceiptResolution) error {
	conn := database.Conn(ctx, r.db)
	result := conn.Model(&receiptRow{}).
		Where("id = ? AND status = ?", resolution.ReceiptID, string(domain.ReceiptStatusPending)).
		Updates(map[string]any{
			"status":      string(resolution.Status),
			"notes":       resolution.Notes,
			"verified_at": resolution.At,
		})
	if result.Error != nil {
		return database.WrapError("receipts.resolve", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var current receiptRow
	if err := conn.Select("id", "status").Where("id = ?", resolution.ReceiptID).Take(&current).Error; err != nil {
		return database.WrapError("receipts.resolve", err)
	}
	return database.Conflict("receipts.resolve", fmt.Sprintf("receipt %s already %s", current.ID, current.Status))
}
