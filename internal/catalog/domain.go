package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind partitions the catalog into finished pieces and raw material.
type Kind string

const (
	KindFinished Kind = "FIN"
	KindRaw      Kind = "RAW"
)

// ValidKind reports whether k is a known product kind.
func ValidKind(k Kind) bool {
	return k == KindFinished || k == KindRaw
}

// Product is a catalog entry. Finished pieces are sold as-is; raw
// material (gold, stones) is consumed by repairs and custom work.
type Product struct {
	ID                int64           `json:"id"`
	Reference         string          `json:"reference"`
	Kind              Kind            `json:"kind"`
	Name              string          `json:"name"`
	Description       *string         `json:"description,omitempty"`
	Metal             *string         `json:"metal,omitempty"`
	WeightGrams       decimal.Decimal `json:"weight_grams"`
	Karat             *int            `json:"karat,omitempty"`
	Price             decimal.Decimal `json:"price"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	StockQty          int             `json:"stock_qty"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	IsActive          bool            `json:"is_active"`
	CreatedBy         int64           `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// LowStock reports whether the product is at or under its threshold.
func (p Product) LowStock() bool {
	return p.StockQty <= p.LowStockThreshold
}

// CreateProductRequest carries fields for creating a product.
type CreateProductRequest struct {
	Kind              Kind    `json:"kind" validate:"required,oneof=FIN RAW"`
	Name              string  `json:"name" validate:"required,max=200"`
	Description       *string `json:"description,omitempty"`
	Metal             *string `json:"metal,omitempty" validate:"omitempty,max=50"`
	WeightGrams       string  `json:"weight_grams" validate:"omitempty"`
	Karat             *int    `json:"karat,omitempty" validate:"omitempty,gte=8,lte=24"`
	Price             string  `json:"price" validate:"required"`
	CostPrice         string  `json:"cost_price" validate:"omitempty"`
	StockQty          int     `json:"stock_qty" validate:"gte=0"`
	LowStockThreshold int     `json:"low_stock_threshold" validate:"gte=0"`
}

// UpdateProductRequest carries partial updates. Kind is immutable after
// creation because the reference encodes it.
type UpdateProductRequest struct {
	Name              *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description       *string `json:"description,omitempty"`
	Metal             *string `json:"metal,omitempty" validate:"omitempty,max=50"`
	WeightGrams       *string `json:"weight_grams,omitempty"`
	Karat             *int    `json:"karat,omitempty" validate:"omitempty,gte=8,lte=24"`
	Price             *string `json:"price,omitempty"`
	CostPrice         *string `json:"cost_price,omitempty"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
}

// ListProductsRequest filters the listing.
type ListProductsRequest struct {
	Search   *string `json:"search,omitempty"`
	Kind     *Kind   `json:"kind,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	LowStock bool    `json:"low_stock"`
	Page     int     `json:"page" validate:"gte=0"`
	PerPage  int     `json:"per_page" validate:"gte=0,lte=200"`
}
