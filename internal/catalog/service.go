package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/refs"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for products.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, p Product) (int64, error)
	Get(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, req ListProductsRequest) ([]Product, int, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	SoftDelete(ctx context.Context, id int64) error
	AdjustStock(ctx context.Context, id int64, delta int) error
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles catalog business logic.
type Service struct {
	repo     RepositoryPort
	activity ActivityPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, activity ActivityPort) *Service {
	return &Service{repo: repo, activity: activity, now: time.Now}
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, httpx.ErrValidation)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative: %w", field, httpx.ErrValidation)
	}
	return d, nil
}

// Create allocates a kind-tagged PRD reference and persists the product.
func (s *Service) Create(ctx context.Context, req CreateProductRequest, createdBy int64) (*Product, error) {
	if !ValidKind(req.Kind) {
		return nil, fmt.Errorf("unknown product kind %q: %w", req.Kind, httpx.ErrValidation)
	}
	weight, err := parseAmount("weight_grams", req.WeightGrams)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		return nil, err
	}
	cost, err := parseAmount("cost_price", req.CostPrice)
	if err != nil {
		return nil, err
	}

	product := Product{
		Kind:              req.Kind,
		Name:              req.Name,
		Description:       req.Description,
		Metal:             req.Metal,
		WeightGrams:       weight,
		Karat:             req.Karat,
		Price:             price,
		CostPrice:         cost,
		StockQty:          req.StockQty,
		LowStockThreshold: req.LowStockThreshold,
		IsActive:          true,
		CreatedBy:         createdBy,
	}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.AllocateTagged(ctx, refs.PrefixProduct, string(req.Kind), s.now(), func(ctx context.Context, reference string) error {
		product.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, product)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.record(ctx, createdBy, "CREATE", reference, nil)
	return s.repo.Get(ctx, id)
}

// Get retrieves a product by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	return s.repo.List(ctx, req)
}

// Update applies partial changes to a product.
func (s *Service) Update(ctx context.Context, id int64, req UpdateProductRequest, actorID int64) (*Product, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Metal != nil {
		updates["metal"] = *req.Metal
	}
	if req.WeightGrams != nil {
		weight, err := parseAmount("weight_grams", *req.WeightGrams)
		if err != nil {
			return nil, err
		}
		updates["weight_grams"] = weight
	}
	if req.Karat != nil {
		updates["karat"] = *req.Karat
	}
	if req.Price != nil {
		price, err := parseAmount("price", *req.Price)
		if err != nil {
			return nil, err
		}
		updates["price"] = price
	}
	if req.CostPrice != nil {
		cost, err := parseAmount("cost_price", *req.CostPrice)
		if err != nil {
			return nil, err
		}
		updates["cost_price"] = cost
	}
	if req.LowStockThreshold != nil {
		updates["low_stock_threshold"] = *req.LowStockThreshold
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.record(ctx, actorID, "UPDATE", existing.Reference, nil)
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes the product.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "DELETE", existing.Reference, nil)
	return nil
}

// AdjustStock moves stock by delta for receiving and corrections.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int, actorID int64) (*Product, error) {
	if delta == 0 {
		return s.repo.Get(ctx, id)
	}
	if err := s.repo.AdjustStock(ctx, id, delta); err != nil {
		return nil, err
	}
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "STOCK_ADJUST", product.Reference, map[string]any{"delta": delta, "stock_qty": product.StockQty})
	return product, nil
}

// LowStock lists active products at or under their threshold.
func (s *Service) LowStock(ctx context.Context, page, perPage int) ([]Product, int, error) {
	active := true
	return s.repo.List(ctx, ListProductsRequest{IsActive: &active, LowStock: true, Page: page, PerPage: perPage})
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "product",
		Reference: reference,
		Meta:      meta,
	})
}
