package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/platform/textutil"
	"github.com/tienda-delivery/api/internal/repositories"
)

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type promotionService struct {
	repo     repositories.PromotionRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
}

// NewPromotionService wires a PromotionService backed by the provided repositories.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &promotionService{
		repo:     deps.Promotions,
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
	}, nil
}

func (s *promotionService) ListPromotions(ctx context.Context, cmd ListPromotionsCommand) (domain.CursorPage[Promotion], error) {
	if !cmd.Actor.Admin {
		return domain.CursorPage[Promotion]{}, ErrOrderPermissionDenied
	}
	cursor, err := pagination.DecodeToken(cmd.PageToken)
	if err != nil {
		return domain.CursorPage[Promotion]{}, fmt.Errorf("%w: %v", ErrPromotionInvalidInput, err)
	}
	page, err := s.repo.List(ctx, repositories.PromotionListFilter{
		ActiveOnly: cmd.ActiveOnly,
		PageSize:   cmd.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		return domain.CursorPage[Promotion]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *promotionService) CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	if !cmd.Actor.Admin {
		return Promotion{}, ErrOrderPermissionDenied
	}
	now := s.clock()
	promotion, err := s.buildPromotion(ctx, Promotion{ID: s.newID(), CreatedAt: now}, cmd, now)
	if err != nil {
		return Promotion{}, err
	}
	if err := s.repo.Insert(ctx, promotion); err != nil {
		if isRepositoryConflict(err) {
			return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionCodeTaken, promotion.Code)
		}
		return Promotion{}, mapRepositoryError(err)
	}
	return promotion, nil
}

func (s *promotionService) UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	if !cmd.Actor.Admin {
		return Promotion{}, ErrOrderPermissionDenied
	}
	existing, err := s.load(ctx, cmd.PromotionID)
	if err != nil {
		return Promotion{}, err
	}
	promotion, err := s.buildPromotion(ctx, existing, cmd, s.clock())
	if err != nil {
		return Promotion{}, err
	}
	if err := s.repo.Update(ctx, promotion); err != nil {
		if isRepositoryConflict(err) {
			return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionCodeTaken, promotion.Code)
		}
		return Promotion{}, mapRepositoryError(err)
	}
	return promotion, nil
}

func (s *promotionService) DeactivatePromotion(ctx context.Context, cmd DeactivatePromotionCommand) (Promotion, error) {
	if !cmd.Actor.Admin {
		return Promotion{}, ErrOrderPermissionDenied
	}
	promotion, err := s.load(ctx, cmd.PromotionID)
	if err != nil {
		return Promotion{}, err
	}
	if !promotion.Active {
		return promotion, nil
	}
	promotion.Active = false
	promotion.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, promotion); err != nil {
		return Promotion{}, mapRepositoryError(err)
	}
	return promotion, nil
}

func (s *promotionService) load(ctx context.Context, promotionID string) (Promotion, error) {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrPromotionInvalidInput)
	}
	promotion, err := s.repo.Get(ctx, promotionID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Promotion{}, ErrPromotionNotFound
		}
		return Promotion{}, mapRepositoryError(err)
	}
	return promotion, nil
}

func (s *promotionService) buildPromotion(ctx context.Context, base Promotion, cmd UpsertPromotionCommand, now time.Time) (Promotion, error) {
	promoType, ok := domain.ParsePromotionType(cmd.Type)
	if !ok {
		return Promotion{}, fmt.Errorf("%w: unknown type %q", ErrPromotionInvalidInput, cmd.Type)
	}
	if cmd.Discount.IsNegative() || cmd.Discount.GreaterThan(hundred) {
		return Promotion{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrPromotionInvalidInput)
	}
	if !cmd.StartDate.IsZero() && !cmd.EndDate.IsZero() && cmd.StartDate.After(cmd.EndDate) {
		return Promotion{}, fmt.Errorf("%w: startDate must not be after endDate", ErrPromotionInvalidInput)
	}
	title := textutil.NormalizeName(cmd.Title)
	if title == "" {
		return Promotion{}, fmt.Errorf("%w: title is required", ErrPromotionInvalidInput)
	}
	code := textutil.NormalizeCode(cmd.Code)
	if promoType == domain.PromotionTypeDiscount && code == "" {
		return Promotion{}, fmt.Errorf("%w: discount promotions require a code", ErrPromotionInvalidInput)
	}

	productIDs := uniqueSorted(cmd.ProductIDs)
	if err := s.ensureProductsExist(ctx, productIDs); err != nil {
		return Promotion{}, err
	}

	base.Code = code
	base.Title = title
	base.Description = textutil.SanitizeNotes(cmd.Description)
	base.Type = promoType
	base.Discount = cmd.Discount.Round(moneyScale)
	base.Active = cmd.Active
	base.StartDate = cmd.StartDate.UTC()
	base.EndDate = cmd.EndDate.UTC()
	base.ProductIDs = productIDs
	base.UpdatedAt = now
	return base, nil
}

func (s *promotionService) ensureProductsExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 || s.products == nil {
		return nil
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return mapRepositoryError(err)
	}
	known := make(map[string]struct{}, len(found))
	for _, product := range found {
		known[product.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: unknown product %s", ErrPromotionInvalidInput, id)
		}
	}
	return nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
