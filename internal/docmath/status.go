package docmath

import "github.com/shopspring/decimal"

// Status enumerates document lifecycle states.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusConfirmed     Status = "CONFIRMED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusDelivered     Status = "DELIVERED"
	StatusCancelled     Status = "CANCELLED"
)

// DeliveryState distinguishes documents with no delivery leg from those
// whose delivery is still pending or already complete. Keeping "not
// required" separate from "completed" stops zero-delivery documents from
// jumping straight to DELIVERED.
type DeliveryState string

const (
	DeliveryNotRequired DeliveryState = "NOT_REQUIRED"
	DeliveryPending     DeliveryState = "PENDING"
	DeliveryCompleted   DeliveryState = "COMPLETED"
)

// DeriveStatus computes the display status from payment progress and the
// delivery state. It is a pure function; callers short-circuit CANCELLED
// for soft-deleted rows before calling.
func DeriveStatus(confirmed bool, amountPaid, total decimal.Decimal, delivery DeliveryState) Status {
	if !confirmed {
		return StatusDraft
	}
	switch {
	case amountPaid.GreaterThanOrEqual(total) && total.IsPositive():
		if delivery == DeliveryCompleted {
			return StatusDelivered
		}
		return StatusPaid
	case amountPaid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusConfirmed
	}
}

// Editable reports whether line items may still be added or removed.
func (s Status) Editable() bool {
	return s == StatusDraft
}

// Terminal reports whether the status ends the document lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}
