package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
)

// Sentinel errors raised by invoice operations. Each chains to an httpx
// sentinel so handlers map them to status codes without switch ladders.
var (
	ErrNotFound         = fmt.Errorf("sales: invoice not found: %w", httpx.ErrNotFound)
	ErrLineNotFound     = fmt.Errorf("sales: line item not found: %w", httpx.ErrNotFound)
	ErrNotEditable      = fmt.Errorf("sales: document is past draft: %w", httpx.ErrConflict)
	ErrEmptyDocument    = fmt.Errorf("sales: document has no line items: %w", httpx.ErrConflict)
	ErrNotPayable       = fmt.Errorf("sales: document cannot accept payments: %w", httpx.ErrConflict)
	ErrOverpayment      = fmt.Errorf("sales: amount exceeds balance due: %w", httpx.ErrValidation)
	ErrDuplicatePayment = fmt.Errorf("sales: duplicate payment submission: %w", httpx.ErrConflict)
	ErrUnknownProduct   = fmt.Errorf("sales: unknown or inactive product: %w", httpx.ErrValidation)
	ErrAlreadyCancelled = fmt.Errorf("sales: document already cancelled: %w", httpx.ErrConflict)
)

// Invoice is a sale document. ClientID is nil for walk-in sales.
type Invoice struct {
	ID            int64                 `json:"id"`
	Reference     string                `json:"reference"`
	ClientID      *int64                `json:"client_id,omitempty"`
	Status        docmath.Status        `json:"status"`
	DeliveryState docmath.DeliveryState `json:"delivery_state"`
	IsCancelled   bool                  `json:"is_cancelled"`

	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	TradeIn      decimal.Decimal `json:"trade_in"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	DeliveryCost decimal.Decimal `json:"delivery_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	BalanceDue   decimal.Decimal `json:"balance_due"`

	Notes     *string       `json:"notes,omitempty"`
	Lines     []InvoiceLine `json:"lines,omitempty"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ClientLabel renders a display name for exports and reports. Walk-in
// sales have no client row to pull a name from.
func (inv Invoice) ClientLabel(clientName string) string {
	if inv.ClientID == nil {
		return "Walk-in"
	}
	return clientName
}

// InvoiceLine is one sold item on an invoice.
type InvoiceLine struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Payment is a settlement against an invoice.
type Payment struct {
	ID         int64           `json:"id"`
	Reference  string          `json:"reference"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	ReceivedBy int64           `json:"received_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateInvoiceRequest opens a draft invoice.
type CreateInvoiceRequest struct {
	ClientID         *int64  `json:"client_id,omitempty"`
	DeliveryRequired bool    `json:"delivery_required"`
	Notes            *string `json:"notes,omitempty"`
}

// AddItemRequest appends a line to a draft invoice. Amounts travel as
// strings so decimal precision survives JSON.
type AddItemRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=300"`
	Quantity    string  `json:"quantity" validate:"required"`
	UnitPrice   string  `json:"unit_price" validate:"required"`
	Discount    string  `json:"discount,omitempty"`
}

// UpdateAdjustmentsRequest changes document-level modifiers while draft.
type UpdateAdjustmentsRequest struct {
	Discount         *string `json:"discount,omitempty"`
	TradeIn          *string `json:"trade_in,omitempty"`
	TaxRate          *string `json:"tax_rate,omitempty"`
	DeliveryCost     *string `json:"delivery_cost,omitempty"`
	DeliveryRequired *bool   `json:"delivery_required,omitempty"`
}

// RegisterPaymentRequest settles part or all of the balance due.
type RegisterPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=CASH CARD TRANSFER CHEQUE"`
}

// ListInvoicesRequest filters the invoice listing.
type ListInvoicesRequest struct {
	ClientID *int64          `json:"client_id,omitempty"`
	Status   *docmath.Status `json:"status,omitempty"`
	DateFrom *time.Time      `json:"date_from,omitempty"`
	DateTo   *time.Time      `json:"date_to,omitempty"`
	Page     int             `json:"page" validate:"gte=0"`
	PerPage  int             `json:"per_page" validate:"gte=0,lte=200"`
}
