package purchases

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
)

// OrderStatus tracks the purchase order lifecycle. Payment progress is
// carried separately in amount_paid / balance_due.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderReceived  OrderStatus = "RECEIVED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Sentinel errors raised by purchase order operations.
var (
	ErrNotFound         = fmt.Errorf("purchases: order not found: %w", httpx.ErrNotFound)
	ErrLineNotFound     = fmt.Errorf("purchases: line item not found: %w", httpx.ErrNotFound)
	ErrNotEditable      = fmt.Errorf("purchases: order is past draft: %w", httpx.ErrConflict)
	ErrEmptyDocument    = fmt.Errorf("purchases: order has no line items: %w", httpx.ErrConflict)
	ErrNotReceivable    = fmt.Errorf("purchases: order cannot be received: %w", httpx.ErrConflict)
	ErrNotPayable       = fmt.Errorf("purchases: order cannot accept payments: %w", httpx.ErrConflict)
	ErrOverpayment      = fmt.Errorf("purchases: amount exceeds balance due: %w", httpx.ErrValidation)
	ErrDuplicatePayment = fmt.Errorf("purchases: duplicate payment submission: %w", httpx.ErrConflict)
	ErrUnknownProduct   = fmt.Errorf("purchases: unknown or inactive product: %w", httpx.ErrValidation)
	ErrAlreadyCancelled = fmt.Errorf("purchases: order already cancelled: %w", httpx.ErrConflict)
)

// Order is a purchase order placed with a supplier.
type Order struct {
	ID          int64       `json:"id"`
	Reference   string      `json:"reference"`
	SupplierID  int64       `json:"supplier_id"`
	Status      OrderStatus `json:"status"`
	IsCancelled bool        `json:"is_cancelled"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	BalanceDue  decimal.Decimal `json:"balance_due"`

	Notes      *string     `json:"notes,omitempty"`
	Lines      []OrderLine `json:"lines,omitempty"`
	ReceivedAt *time.Time  `json:"received_at,omitempty"`
	CreatedBy  int64       `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderLine is one ordered product. Quantity is a whole unit count so
// receiving can move catalog stock directly.
type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// SupplierPayment is a settlement against a purchase order.
type SupplierPayment struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	OrderID   int64           `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PaidBy    int64           `json:"paid_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateOrderRequest opens a draft purchase order.
type CreateOrderRequest struct {
	SupplierID int64   `json:"supplier_id" validate:"required,gt=0"`
	Notes      *string `json:"notes,omitempty"`
}

// AddLineRequest appends a line to a draft order.
type AddLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitCost  string `json:"unit_cost" validate:"required"`
}

// UpdateAdjustmentsRequest changes order-level modifiers while draft.
type UpdateAdjustmentsRequest struct {
	Discount *string `json:"discount,omitempty"`
	TaxRate  *string `json:"tax_rate,omitempty"`
}

// RegisterPaymentRequest settles part or all of the balance due.
type RegisterPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=CASH CARD TRANSFER CHEQUE"`
}

// ListOrdersRequest filters the order listing.
type ListOrdersRequest struct {
	SupplierID *int64       `json:"supplier_id,omitempty"`
	Status     *OrderStatus `json:"status,omitempty"`
	Page       int          `json:"page" validate:"gte=0"`
	PerPage    int          `json:"per_page" validate:"gte=0,lte=200"`
}
