package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/database"
	"github.com/tienda-delivery/api/internal/repositories"
)

// PromotionRepository persists promotions and their product sets in PostgreSQL.
type PromotionRepository struct {
	db *gorm.DB
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository binds the repository to db.
func NewPromotionRepository(db *gorm.DB) (*PromotionRepository, error) {
	if db == nil {
		return nil, errors.New("promotion repository: db is required")
	}
	return &PromotionRepository{db: db}, nil
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	var row promotionRow
	err := database.Conn(ctx, r.db).
		Preload("Products").
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Take(&row).Error
	if err != nil {
		return domain.Promotion{}, database.WrapError("promotions.find_by_code", err)
	}
	return promotionFromRow(row), nil
}

func (r *PromotionRepository) Get(ctx context.Context, promotionID string) (domain.Promotion, error) {
	var row promotionRow
	if err := database.Conn(ctx, r.db).Preload("Products").Where("id = ?", promotionID).Take(&row).Error; err != nil {
		return domain.Promotion{}, database.WrapError("promotions.get", err)
	}
	return promotionFromRow(row), nil
}

func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	size := normalisePageSize(filter.PageSize)
	query := database.Conn(ctx, r.db).Model(&promotionRow{}).Preload("Products")
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var rows []promotionRow
	if err := keyset(query, "promotions", filter.Cursor, size).Find(&rows).Error; err != nil {
		return domain.CursorPage[domain.Promotion]{}, database.WrapError("promotions.list", err)
	}
	rows, next, err := trimPage(rows, size, func(row promotionRow) (time.Time, string) { return row.CreatedAt, row.ID })
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, err
	}

	page := domain.CursorPage[domain.Promotion]{NextPageToken: next}
	for _, row := range rows {
		page.Items = append(page.Items, promotionFromRow(row))
	}
	return page, nil
}

func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	row := promotionToRow(promotion)
	return database.WrapError("promotions.insert", database.Conn(ctx, r.db).Create(&row).Error)
}

func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	row := promotionToRow(promotion)
	err := database.RunTransaction(ctx, r.db, func(ctx context.Context) error {
		conn := database.Conn(ctx, r.db)
		result := conn.Model(&promotionRow{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"code":        row.Code,
				"title":       row.Title,
				"description": row.Description,
				"type":        row.Type,
				"discount":    row.Discount,
				"active":      row.Active,
				"start_date":  row.StartDate,
				"end_date":    row.EndDate,
				"updated_at":  row.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return database.NotFound("promotions.update")
		}
		if err := conn.Where("promotion_id = ?", row.ID).Delete(&promotionProductRow{}).Error; err != nil {
			return err
		}
		if len(row.Products) == 0 {
			return nil
		}
		return conn.Create(&row.Products).Error
	})
	return database.WrapError("promotions.update", err)
}
