package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/platform/textutil"
	"github.com/tienda-delivery/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogProductNotFound indicates the product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &catalogService{
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, cmd ListProductsCommand) (domain.CursorPage[Product], error) {
	if cmd.IncludeInactive && !cmd.Actor.Admin {
		return domain.CursorPage[Product]{}, ErrOrderPermissionDenied
	}
	cursor, err := pagination.DecodeToken(cmd.PageToken)
	if err != nil {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		CategoryID:      strings.TrimSpace(cmd.CategoryID),
		IncludeInactive: cmd.IncludeInactive,
		PageSize:        cmd.PageSize,
		Cursor:          cursor,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if !cmd.Actor.Admin {
		return Product{}, ErrOrderPermissionDenied
	}
	now := s.clock()
	product := Product{
		ID:         s.newID(),
		Name:       textutil.NormalizeName(cmd.Name),
		Price:      cmd.Price.Round(moneyScale),
		Stock:      cmd.Stock,
		Active:     cmd.Active,
		CategoryID: strings.TrimSpace(cmd.CategoryID),
		ImageURL:   strings.TrimSpace(cmd.ImageURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if !cmd.Actor.Admin {
		return Product{}, ErrOrderPermissionDenied
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.products.Get(ctx, productID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Product{}, ErrCatalogProductNotFound
		}
		return Product{}, mapRepositoryError(err)
	}

	existing.Name = textutil.NormalizeName(cmd.Name)
	existing.Price = cmd.Price.Round(moneyScale)
	existing.Stock = cmd.Stock
	existing.Active = cmd.Active
	existing.CategoryID = strings.TrimSpace(cmd.CategoryID)
	existing.ImageURL = strings.TrimSpace(cmd.ImageURL)
	existing.UpdatedAt = s.clock()
	if err := validateProduct(existing); err != nil {
		return Product{}, err
	}
	if err := s.products.Update(ctx, existing); err != nil {
		if isRepositoryNotFound(err) {
			return Product{}, ErrCatalogProductNotFound
		}
		return Product{}, mapRepositoryError(err)
	}
	return existing, nil
}

func validateProduct(product Product) error {
	switch {
	case product.Name == "":
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	case product.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	case product.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	case product.Active && !product.Price.IsPositive():
		return fmt.Errorf("%w: active products require a positive price", ErrCatalogInvalidInput)
	}
	return nil
}
