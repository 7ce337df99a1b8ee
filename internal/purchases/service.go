package purchases

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

// RepositoryPort defines data access methods for purchase orders.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	CountPaymentsOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, o Order) (int64, error)
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
	AddLine(ctx context.Context, orderID int64, line OrderLine) (*Order, error)
	RemoveLine(ctx context.Context, orderID, lineID int64) (*Order, error)
	UpdateAdjustments(ctx context.Context, orderID int64, apply func(*Order) error) (*Order, error)
	Confirm(ctx context.Context, orderID int64) (*Order, error)
	Receive(ctx context.Context, orderID int64) (*Order, error)
	Cancel(ctx context.Context, orderID int64) (*Order, error)
	RegisterPayment(ctx context.Context, p SupplierPayment, dupWindow time.Duration) (*Order, *SupplierPayment, error)
	Payments(ctx context.Context, orderID int64) ([]SupplierPayment, error)
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// LockPort obtains short-lived distributed locks.
type LockPort interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

const paymentLockTTL = 5 * time.Second

// Service handles purchase order business logic.
type Service struct {
	repo      RepositoryPort
	activity  ActivityPort
	locker    LockPort
	dupWindow time.Duration
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, activity ActivityPort, locker LockPort, dupWindow time.Duration) *Service {
	return &Service{repo: repo, activity: activity, locker: locker, dupWindow: dupWindow, now: time.Now}
}

// Create opens a draft purchase order.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, createdBy int64) (*Order, error) {
	order := Order{SupplierID: req.SupplierID, Notes: req.Notes, CreatedBy: createdBy}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.Allocate(ctx, refs.PrefixPurchaseOrder, s.now(), func(ctx context.Context, reference string) error {
		order.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, order)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create purchase order: %w", err)
	}

	s.record(ctx, createdBy, "CREATE", reference, nil)
	return s.repo.Get(ctx, id)
}

// Get retrieves an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	return s.repo.List(ctx, req)
}

// Payments lists payments recorded against an order.
func (s *Service) Payments(ctx context.Context, orderID int64) ([]SupplierPayment, error) {
	if _, err := s.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.Payments(ctx, orderID)
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

// AddLine appends a line to a draft order.
func (s *Service) AddLine(ctx context.Context, orderID int64, req AddLineRequest, actorID int64) (*Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", httpx.ErrValidation)
	}
	unitCost, err := parseNonNegative("unit_cost", req.UnitCost)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	line := OrderLine{
		OrderID:   orderID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitCost:  unitCost,
		LineTotal: docmath.LineTotal(qty, unitCost, decimal.Zero),
	}

	order, err := s.repo.AddLine(ctx, orderID, line)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "ADD_ITEM", order.Reference, map[string]any{"product_id": req.ProductID})
	return order, nil
}

// RemoveLine deletes a line from a draft order.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID int64, actorID int64) (*Order, error) {
	order, err := s.repo.RemoveLine(ctx, orderID, lineID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "REMOVE_ITEM", order.Reference, map[string]any{"line_id": lineID})
	return order, nil
}

// UpdateAdjustments changes discount and tax rate while draft.
func (s *Service) UpdateAdjustments(ctx context.Context, orderID int64, req UpdateAdjustmentsRequest, actorID int64) (*Order, error) {
	order, err := s.repo.UpdateAdjustments(ctx, orderID, func(o *Order) error {
		if req.Discount != nil {
			d, err := parseNonNegative("discount", *req.Discount)
			if err != nil {
				return err
			}
			o.Discount = d
		}
		if req.TaxRate != nil {
			d, err := parseNonNegative("tax_rate", *req.TaxRate)
			if err != nil {
				return err
			}
			o.TaxRate = d
		}
		if o.Discount.GreaterThan(o.Subtotal) {
			return fmt.Errorf("discount exceeds subtotal: %w", httpx.ErrValidation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "UPDATE", order.Reference, nil)
	return order, nil
}

// Confirm moves a draft to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, orderID int64, actorID int64) (*Order, error) {
	order, err := s.repo.Confirm(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "CONFIRM", order.Reference, nil)
	return order, nil
}

// Receive moves a confirmed order to RECEIVED and books the stock.
func (s *Service) Receive(ctx context.Context, orderID int64, actorID int64) (*Order, error) {
	order, err := s.repo.Receive(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "RECEIVE", order.Reference, nil)
	return order, nil
}

// Cancel soft-deletes the order.
func (s *Service) Cancel(ctx context.Context, orderID int64, actorID int64) error {
	order, err := s.repo.Cancel(ctx, orderID)
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "DELETE", order.Reference, nil)
	return nil
}

// PaymentResult couples the settled payment with the refreshed order.
type PaymentResult struct {
	Order   *Order           `json:"order"`
	Payment *SupplierPayment `json:"payment"`
}

// RegisterPayment settles amount against the order with the same
// lock-plus-window duplicate guard as sale payments.
func (s *Service) RegisterPayment(ctx context.Context, orderID int64, req RegisterPaymentRequest, actorID int64) (*PaymentResult, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", httpx.ErrValidation)
	}

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, shared.PaymentLockKey("purchase", orderID), paymentLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, ErrDuplicatePayment
			}
			return nil, fmt.Errorf("obtain payment lock: %w", err)
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	var (
		order   *Order
		payment *SupplierPayment
	)
	seq := refs.NewSequencer(s.repo.CountPaymentsOn)
	_, err = seq.Allocate(ctx, refs.PrefixSupplierPayment, s.now(), func(ctx context.Context, reference string) error {
		var err error
		order, payment, err = s.repo.RegisterPayment(ctx, SupplierPayment{
			Reference: reference,
			OrderID:   orderID,
			Amount:    amount,
			Method:    req.Method,
			PaidBy:    actorID,
		}, s.dupWindow)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "PAYMENT", payment.Reference, map[string]any{
		"order":  order.Reference,
		"amount": amount.StringFixed(2),
		"method": req.Method,
	})
	return &PaymentResult{Order: order, Payment: payment}, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "purchase_order",
		Reference: reference,
		Meta:      meta,
	})
}
