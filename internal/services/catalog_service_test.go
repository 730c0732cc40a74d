package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newCatalogTestService(t *testing.T, store *memoryStore) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    memoryProducts{store: store},
		Clock:       fixedClock(time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)),
		IDGenerator: sequentialIDs("prod_"),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestCatalogServiceListProductsHidesInactive(t *testing.T) {
	store := newMemoryStore(seedProducts()...)
	svc := newCatalogTestService(t, store)

	page, err := svc.ListProducts(context.Background(), ListProductsCommand{})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	for _, product := range page.Items {
		if !product.Active {
			t.Fatalf("inactive product %s leaked into public listing", product.ID)
		}
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 active products, got %d", len(page.Items))
	}

	if _, err := svc.ListProducts(context.Background(), ListProductsCommand{IncludeInactive: true}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected ErrOrderPermissionDenied, got %v", err)
	}
	all, err := svc.ListProducts(context.Background(), ListProductsCommand{IncludeInactive: true, Actor: admin})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(all.Items) != 4 {
		t.Fatalf("expected 4 products for admin, got %d", len(all.Items))
	}
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	store := newMemoryStore()
	svc := newCatalogTestService(t, store)

	product, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:   "  Arroz   con  pollo ",
		Price:  money("18.499"),
		Stock:  12,
		Active: true,
		Actor:  admin,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if product.ID != "prod_0001" || product.Name != "Arroz con pollo" {
		t.Fatalf("unexpected product %+v", product)
	}
	assertMoney(t, "price", product.Price, "18.50")
	if store.stock(product.ID) != 12 {
		t.Fatalf("expected product to be stored")
	}
}

func TestCatalogServiceValidation(t *testing.T) {
	svc := newCatalogTestService(t, newMemoryStore())
	cases := map[string]UpsertProductCommand{
		"missing name":    {Price: money("1"), Active: true, Actor: admin},
		"negative stock":  {Name: "x", Price: money("1"), Stock: -1, Actor: admin},
		"negative price":  {Name: "x", Price: money("-1"), Actor: admin},
		"active for free": {Name: "x", Price: money("0"), Active: true, Actor: admin},
	}
	for name, cmd := range cases {
		if _, err := svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("%s: expected ErrCatalogInvalidInput, got %v", name, err)
		}
	}
	if _, err := svc.CreateProduct(context.Background(), UpsertProductCommand{Name: "x", Price: money("1")}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected ErrOrderPermissionDenied, got %v", err)
	}
}

func TestCatalogServiceUpdateProduct(t *testing.T) {
	store := newMemoryStore(seedProducts()...)
	svc := newCatalogTestService(t, store)

	updated, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ProductID: "prod_off",
		Name:      "Anticucho",
		Price:     money("11.00"),
		Stock:     4,
		Active:    true,
		Actor:     admin,
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if !updated.Active || updated.Stock != 4 {
		t.Fatalf("unexpected product %+v", updated)
	}
	if stored := store.products["prod_off"]; !stored.Price.Equal(money("11.00")) || stored.Name != "Anticucho" {
		t.Fatalf("expected update to be persisted, got %+v", stored)
	}

	_, err = svc.UpdateProduct(context.Background(), UpsertProductCommand{ProductID: "ghost", Name: "x", Price: money("1"), Actor: admin})
	if !errors.Is(err, ErrCatalogProductNotFound) {
		t.Fatalf("expected ErrCatalogProductNotFound, got %v", err)
	}
}
