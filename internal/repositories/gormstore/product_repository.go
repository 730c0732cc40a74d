package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/database"
	"github.com/tienda-delivery/api/internal/repositories"
)

// ProductRepository persists products in PostgreSQL.
type ProductRepository struct {
	db *gorm.DB
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository binds the repository to db.
func NewProductRepository(db *gorm.DB) (*ProductRepository, error) {
	if db == nil {
		return nil, errors.New("product repository: db is required")
	}
	return &ProductRepository{db: db}, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []productRow
	if err := database.Conn(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, database.WrapError("products.find_by_ids", err)
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, productFromRow(row))
	}
	return products, nil
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	var row productRow
	if err := database.Conn(ctx, r.db).Where("id = ?", productID).Take(&row).Error; err != nil {
		return domain.Product{}, database.WrapError("products.get", err)
	}
	return productFromRow(row), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	size := normalisePageSize(filter.PageSize)
	query := database.Conn(ctx, r.db).Model(&productRow{})
	if !filter.IncludeInactive {
		query = query.Where("active = ?", true)
	}
	if filter.CategoryID != "" {
		query = query.Where("category_id = ?", filter.CategoryID)
	}

	var rows []productRow
	if err := keyset(query, "products", filter.Cursor, size).Find(&rows).Error; err != nil {
		return domain.CursorPage[domain.Product]{}, database.WrapError("products.list", err)
	}
	rows, next, err := trimPage(rows, size, func(row productRow) (time.Time, string) { return row.CreatedAt, row.ID })
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{NextPageToken: next}
	for _, row := range rows {
		page.Items = append(page.Items, productFromRow(row))
	}
	return page, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	row := productToRow(product)
	return database.WrapError("products.insert", database.Conn(ctx, r.db).Create(&row).Error)
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	result := database.Conn(ctx, r.db).Model(&productRow{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":        product.Name,
			"price":       product.Price,
			"stock":       product.Stock,
			"active":      product.Active,
			"category_id": product.CategoryID,
			"image_url":   product.ImageURL,
			"updated_at":  product.UpdatedAt,
		})
	if result.Error != nil {
		return database.WrapError("products.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NotFound("products.update")
	}
	return nil
}

// DecrementStock subtracts quantity only while enough stock remains, so concurrent checkouts
// can never drive the counter negative.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) error {
	conn := database.Conn(ctx, r.db)
	result := conn.Model(&productRow{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", quantity),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return database.WrapError("products.decrement_stock", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var row productRow
	err := conn.Select("id", "stock").Where("id = ?", productID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.NewStockProductMissingError("products.decrement_stock", productID, quantity, err)
	case err != nil:
		return database.WrapError("products.decrement_stock", err)
	}
	return repositories.NewInsufficientStockError("products.decrement_stock", productID, row.Stock, quantity)
}

func (r *ProductRepository) IncrementStock(ctx context.Context, productID string, quantity int) error {
	result := database.Conn(ctx, r.db).Model(&productRow{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", quantity),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return database.WrapError("products.increment_stock", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NotFound("products.increment_stock")
	}
	return nil
}
