package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/refs"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for invoices.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	CountPaymentsOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, inv Invoice) (int64, error)
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	AddLine(ctx context.Context, invoiceID int64, line InvoiceLine) (*Invoice, error)
	RemoveLine(ctx context.Context, invoiceID, lineID int64) (*Invoice, error)
	UpdateAdjustments(ctx context.Context, invoiceID int64, apply func(*Invoice) error) (*Invoice, error)
	Confirm(ctx context.Context, invoiceID int64) (*Invoice, error)
	Cancel(ctx context.Context, invoiceID int64) (*Invoice, error)
	CompleteDelivery(ctx context.Context, invoiceID int64) (*Invoice, error)
	RegisterPayment(ctx context.Context, p Payment, dupWindow time.Duration) (*Invoice, *Payment, error)
	Payments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// BalancePort evicts cached client balances after invoice mutations.
type BalancePort interface {
	Invalidate(ctx context.Context, clientID int64) error
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// LockPort obtains short-lived distributed locks. *redislock.Client
// satisfies it.
type LockPort interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

const paymentLockTTL = 5 * time.Second

// Service handles invoice business logic.
type Service struct {
	repo      RepositoryPort
	balances  BalancePort
	activity  ActivityPort
	locker    LockPort
	dupWindow time.Duration
	now       func() time.Time
}

// NewService builds Service instance. locker may be nil in tests that do
// not exercise payments.
func NewService(repo RepositoryPort, balances BalancePort, activity ActivityPort, locker LockPort, dupWindow time.Duration) *Service {
	return &Service{
		repo:      repo,
		balances:  balances,
		activity:  activity,
		locker:    locker,
		dupWindow: dupWindow,
		now:       time.Now,
	}
}

// Create opens a draft invoice. A nil client means a walk-in sale.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest, createdBy int64) (*Invoice, error) {
	delivery := docmath.DeliveryNotRequired
	if req.DeliveryRequired {
		delivery = docmath.DeliveryPending
	}
	inv := Invoice{
		ClientID:      req.ClientID,
		DeliveryState: delivery,
		Notes:         req.Notes,
		CreatedBy:     createdBy,
	}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.Allocate(ctx, refs.PrefixInvoice, s.now(), func(ctx context.Context, reference string) error {
		inv.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, inv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s.record(ctx, createdBy, "CREATE", reference, nil)
	return s.repo.Get(ctx, id)
}

// Get retrieves an invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.List(ctx, req)
}

// Payments lists payments recorded against an invoice.
func (s *Service) Payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.Payments(ctx, invoiceID)
}

func parsePositive(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, httpx.ErrValidation)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%s must be positive: %w", field, httpx.ErrValidation)
	}
	return d, nil
}

func parseNonNegative(field, raw string) (decimal.Decimal, error) {
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

// AddItem appends a line to a draft invoice and returns the invoice with
// recomputed totals.
func (s *Service) AddItem(ctx context.Context, invoiceID int64, req AddItemRequest, actorID int64) (*Invoice, error) {
	qty, err := parsePositive("quantity", req.Quantity)
	if err != nil {
		return nil, err
	}
	unitPrice, err := parseNonNegative("unit_price", req.UnitPrice)
	if err != nil {
		return nil, err
	}
	discount, err := parseNonNegative("discount", req.Discount)
	if err != nil {
		return nil, err
	}

	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	line := InvoiceLine{
		InvoiceID:   invoiceID,
		ProductID:   req.ProductID,
		Description: description,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		Discount:    discount,
		LineTotal:   docmath.LineTotal(qty, unitPrice, discount),
	}

	inv, err := s.repo.AddLine(ctx, invoiceID, line)
	if err != nil {
		return nil, err
	}
	s.evictBalance(ctx, inv)
	s.record(ctx, actorID, "ADD_ITEM", inv.Reference, map[string]any{"product_id": req.ProductID})
	return inv, nil
}

// RemoveItem deletes a line from a draft invoice.
func (s *Service) RemoveItem(ctx context.Context, invoiceID, lineID int64, actorID int64) (*Invoice, error) {
	inv, err := s.repo.RemoveLine(ctx, invoiceID, lineID)
	if err != nil {
		return nil, err
	}
	s.evictBalance(ctx, inv)
	s.record(ctx, actorID, "REMOVE_ITEM", inv.Reference, map[string]any{"line_id": lineID})
	return inv, nil
}

// UpdateAdjustments changes document-level modifiers while draft. The
// discount may not exceed the subtotal and the trade-in may not exceed
// the discounted amount.
func (s *Service) UpdateAdjustments(ctx context.Context, invoiceID int64, req UpdateAdjustmentsRequest, actorID int64) (*Invoice, error) {
	inv, err := s.repo.UpdateAdjustments(ctx, invoiceID, func(inv *Invoice) error {
		if req.Discount != nil {
			d, err := parseNonNegative("discount", *req.Discount)
			if err != nil {
				return err
			}
			inv.Discount = d
		}
		if req.TradeIn != nil {
			d, err := parseNonNegative("trade_in", *req.TradeIn)
			if err != nil {
				return err
			}
			inv.TradeIn = d
		}
		if req.TaxRate != nil {
			d, err := parseNonNegative("tax_rate", *req.TaxRate)
			if err != nil {
				return err
			}
			inv.TaxRate = d
		}
		if req.DeliveryCost != nil {
			d, err := parseNonNegative("delivery_cost", *req.DeliveryCost)
			if err != nil {
				return err
			}
			inv.DeliveryCost = d
		}
		if req.DeliveryRequired != nil && inv.DeliveryState != docmath.DeliveryCompleted {
			if *req.DeliveryRequired {
				inv.DeliveryState = docmath.DeliveryPending
			} else {
				inv.DeliveryState = docmath.DeliveryNotRequired
			}
		}

		if inv.Discount.GreaterThan(inv.Subtotal) {
			return fmt.Errorf("discount exceeds subtotal: %w", httpx.ErrValidation)
		}
		afterDiscount := inv.Subtotal.Sub(inv.Discount)
		if inv.TradeIn.GreaterThan(afterDiscount) {
			return fmt.Errorf("trade-in exceeds discounted amount: %w", httpx.ErrValidation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.evictBalance(ctx, inv)
	s.record(ctx, actorID, "UPDATE", inv.Reference, nil)
	return inv, nil
}

// Confirm moves a draft to CONFIRMED. Empty documents are rejected with
// no state change.
func (s *Service) Confirm(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	inv, err := s.repo.Confirm(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.evictBalance(ctx, inv)
	s.record(ctx, actorID, "CONFIRM", inv.Reference, nil)
	return inv, nil
}

// Cancel soft-deletes the invoice, preserving the row.
func (s *Service) Cancel(ctx context.Context, invoiceID int64, actorID int64) error {
	inv, err := s.repo.Cancel(ctx, invoiceID)
	if err != nil {
		return err
	}
	s.evictBalance(ctx, inv)
	s.record(ctx, actorID, "DELETE", inv.Reference, nil)
	return nil
}

// CompleteDelivery marks a pending delivery done.
func (s *Service) CompleteDelivery(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	inv, err := s.repo.CompleteDelivery(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "DELIVER", inv.Reference, nil)
	return inv, nil
}

// PaymentResult couples the settled payment with the refreshed invoice.
type PaymentResult struct {
	Invoice *Invoice `json:"invoice"`
	Payment *Payment `json:"payment"`
}

// RegisterPayment settles amount against the invoice. A distributed lock
// plus a recent-duplicate check guard against double submission.
func (s *Service) RegisterPayment(ctx context.Context, invoiceID int64, req RegisterPaymentRequest, actorID int64) (*PaymentResult, error) {
	amount, err := parsePositive("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, shared.PaymentLockKey("invoice", invoiceID), paymentLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, ErrDuplicatePayment
			}
			return nil, fmt.Errorf("obtain payment lock: %w", err)
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	var (
		invoice *Invoice
		payment *Payment
	)
	seq := refs.NewSequencer(s.repo.CountPaymentsOn)
	_, err = seq.Allocate(ctx, refs.PrefixPayment, s.now(), func(ctx context.Context, reference string) error {
		var err error
		invoice, payment, err = s.repo.RegisterPayment(ctx, Payment{
			Reference:  reference,
			InvoiceID:  invoiceID,
			Amount:     amount,
			Method:     req.Method,
			ReceivedBy: actorID,
		}, s.dupWindow)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.evictBalance(ctx, invoice)
	s.record(ctx, actorID, "PAYMENT", payment.Reference, map[string]any{
		"invoice": invoice.Reference,
		"amount":  amount.StringFixed(2),
		"method":  req.Method,
	})
	return &PaymentResult{Invoice: invoice, Payment: payment}, nil
}

func (s *Service) evictBalance(ctx context.Context, inv *Invoice) {
	if s.balances == nil || inv == nil || inv.ClientID == nil {
		return
	}
	_ = s.balances.Invalidate(ctx, *inv.ClientID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "sale_invoice",
		Reference: reference,
		Meta:      meta,
	})
}
