package repairs

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
)

// TicketStatus tracks a repair through the workshop.
type TicketStatus string

const (
	TicketReceived   TicketStatus = "RECEIVED"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketReady      TicketStatus = "READY"
	TicketDelivered  TicketStatus = "DELIVERED"
	TicketCancelled  TicketStatus = "CANCELLED"
)

// transitions holds the allowed forward moves; cancellation is handled
// separately and is allowed from any non-terminal state.
var transitions = map[TicketStatus]TicketStatus{
	TicketReceived:   TicketInProgress,
	TicketInProgress: TicketReady,
	TicketReady:      TicketDelivered,
}

// Terminal reports whether the status ends the ticket lifecycle.
func (s TicketStatus) Terminal() bool {
	return s == TicketDelivered || s == TicketCancelled
}

// Sentinel errors raised by repair operations.
var (
	ErrNotFound          = fmt.Errorf("repairs: ticket not found: %w", httpx.ErrNotFound)
	ErrBadTransition     = fmt.Errorf("repairs: invalid status transition: %w", httpx.ErrConflict)
	ErrTicketClosed      = fmt.Errorf("repairs: ticket is closed: %w", httpx.ErrConflict)
	ErrDepositExceedsDue = fmt.Errorf("repairs: deposit exceeds amount due: %w", httpx.ErrValidation)
)

// Ticket is a repair job. ClientID is nil for walk-in customers who
// leave only a phone number.
type Ticket struct {
	ID           int64        `json:"id"`
	Reference    string       `json:"reference"`
	ClientID     *int64       `json:"client_id,omitempty"`
	ContactPhone *string      `json:"contact_phone,omitempty"`
	ItemDesc     string       `json:"item_description"`
	ProblemDesc  *string      `json:"problem_description,omitempty"`
	Status       TicketStatus `json:"status"`

	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	FinalCost     decimal.Decimal `json:"final_cost"`
	DepositPaid   decimal.Decimal `json:"deposit_paid"`

	PromisedAt *time.Time `json:"promised_at,omitempty"`
	CreatedBy  int64      `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AmountDue is the final cost when set, otherwise the estimate, minus
// deposits already taken.
func (t Ticket) AmountDue() decimal.Decimal {
	base := t.FinalCost
	if base.IsZero() {
		base = t.EstimatedCost
	}
	return base.Sub(t.DepositPaid).Round(2)
}

// CreateTicketRequest opens a repair ticket.
type CreateTicketRequest struct {
	ClientID      *int64     `json:"client_id,omitempty"`
	ContactPhone  *string    `json:"contact_phone,omitempty" validate:"omitempty,max=50"`
	ItemDesc      string     `json:"item_description" validate:"required,max=300"`
	ProblemDesc   *string    `json:"problem_description,omitempty"`
	EstimatedCost string     `json:"estimated_cost" validate:"required"`
	PromisedAt    *time.Time `json:"promised_at,omitempty"`
}

// UpdateTicketRequest edits descriptions and costs before delivery.
type UpdateTicketRequest struct {
	ItemDesc      *string    `json:"item_description,omitempty" validate:"omitempty,max=300"`
	ProblemDesc   *string    `json:"problem_description,omitempty"`
	EstimatedCost *string    `json:"estimated_cost,omitempty"`
	FinalCost     *string    `json:"final_cost,omitempty"`
	PromisedAt    *time.Time `json:"promised_at,omitempty"`
}

// DepositRequest records a deposit against the ticket.
type DepositRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=CASH CARD TRANSFER CHEQUE"`
}

// ListTicketsRequest filters the listing.
type ListTicketsRequest struct {
	ClientID *int64        `json:"client_id,omitempty"`
	Status   *TicketStatus `json:"status,omitempty"`
	Page     int           `json:"page" validate:"gte=0"`
	PerPage  int           `json:"per_page" validate:"gte=0,lte=200"`
}
