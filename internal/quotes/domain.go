package quotes

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
)

// QuoteStatus tracks the quote lifecycle.
type QuoteStatus string

const (
	QuoteDraft     QuoteStatus = "DRAFT"
	QuoteConverted QuoteStatus = "CONVERTED"
	QuoteCancelled QuoteStatus = "CANCELLED"
)

// Sentinel errors raised by quote operations.
var (
	ErrNotFound         = fmt.Errorf("quotes: quote not found: %w", httpx.ErrNotFound)
	ErrLineNotFound     = fmt.Errorf("quotes: line item not found: %w", httpx.ErrNotFound)
	ErrNotEditable      = fmt.Errorf("quotes: quote is not editable: %w", httpx.ErrConflict)
	ErrEmptyDocument    = fmt.Errorf("quotes: quote has no line items: %w", httpx.ErrConflict)
	ErrExpired          = fmt.Errorf("quotes: quote validity has lapsed: %w", httpx.ErrConflict)
	ErrAlreadyConverted = fmt.Errorf("quotes: quote already converted: %w", httpx.ErrConflict)
	ErrUnknownProduct   = fmt.Errorf("quotes: unknown or inactive product: %w", httpx.ErrValidation)
)

// Quote is a priced offer that may later become an invoice.
type Quote struct {
	ID        int64       `json:"id"`
	Reference string      `json:"reference"`
	ClientID  *int64      `json:"client_id,omitempty"`
	Status    QuoteStatus `json:"status"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	InvoiceID  *int64      `json:"invoice_id,omitempty"`
	Notes      *string     `json:"notes,omitempty"`
	Lines      []QuoteLine `json:"lines,omitempty"`
	CreatedBy  int64       `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Expired reports whether the validity date has passed.
func (q Quote) Expired(now time.Time) bool {
	return q.ValidUntil != nil && now.After(*q.ValidUntil)
}

// QuoteLine is one offered item.
type QuoteLine struct {
	ID          int64           `json:"id"`
	QuoteID     int64           `json:"quote_id"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// CreateQuoteRequest opens a draft quote.
type CreateQuoteRequest struct {
	ClientID   *int64     `json:"client_id,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

// AddLineRequest appends a line to a draft quote.
type AddLineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=300"`
	Quantity    string  `json:"quantity" validate:"required"`
	UnitPrice   string  `json:"unit_price" validate:"required"`
	Discount    string  `json:"discount,omitempty"`
}

// UpdateAdjustmentsRequest changes quote-level modifiers while draft.
type UpdateAdjustmentsRequest struct {
	Discount   *string    `json:"discount,omitempty"`
	TaxRate    *string    `json:"tax_rate,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// ListQuotesRequest filters the listing.
type ListQuotesRequest struct {
	ClientID *int64       `json:"client_id,omitempty"`
	Status   *QuoteStatus `json:"status,omitempty"`
	Page     int          `json:"page" validate:"gte=0"`
	PerPage  int          `json:"per_page" validate:"gte=0,lte=200"`
}
