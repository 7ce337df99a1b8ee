package purchases

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
)

type fakeOrderRepo struct {
	nextOrderID   int64
	nextLineID    int64
	nextPaymentID int64
	orders        map[int64]*Order
	payments      []SupplierPayment
	stock         map[int64]int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*Order), stock: make(map[int64]int)}
}

func (f *fakeOrderRepo) CountCreatedOn(_ context.Context, _ time.Time) (int, error) {
	return len(f.orders), nil
}

func (f *fakeOrderRepo) CountPaymentsOn(_ context.Context, _ time.Time) (int, error) {
	return len(f.payments), nil
}

func (f *fakeOrderRepo) Insert(_ context.Context, o Order) (int64, error) {
	f.nextOrderID++
	o.ID = f.nextOrderID
	o.Status = OrderDraft
	f.orders[o.ID] = &o
	return o.ID, nil
}

func (f *fakeOrderRepo) Get(_ context.Context, id int64) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) List(_ context.Context, _ ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (f *fakeOrderRepo) recompute(o *Order) {
	lineTotals := make([]decimal.Decimal, len(o.Lines))
	for i, l := range o.Lines {
		lineTotals[i] = l.LineTotal
	}
	totals := docmath.Compute(lineTotals, docmath.Adjustments{Discount: o.Discount, TaxRate: o.TaxRate})
	o.Subtotal = totals.Subtotal
	o.TaxAmount = totals.TaxAmount
	o.TotalAmount = totals.Total
	o.BalanceDue = docmath.BalanceDue(totals.Total, o.AmountPaid)
}

func (f *fakeOrderRepo) AddLine(_ context.Context, orderID int64, line OrderLine) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsCancelled || o.Status != OrderDraft {
		return nil, ErrNotEditable
	}
	f.nextLineID++
	line.ID = f.nextLineID
	o.Lines = append(o.Lines, line)
	f.recompute(o)
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) RemoveLine(_ context.Context, orderID, lineID int64) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsCancelled || o.Status != OrderDraft {
		return nil, ErrNotEditable
	}
	for i, l := range o.Lines {
		if l.ID == lineID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			f.recompute(o)
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrLineNotFound
}

func (f *fakeOrderRepo) UpdateAdjustments(_ context.Context, orderID int64, apply func(*Order) error) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsCancelled || o.Status != OrderDraft {
		return nil, ErrNotEditable
	}
	if err := apply(o); err != nil {
		return nil, err
	}
	f.recompute(o)
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) Confirm(_ context.Context, orderID int64) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	if o.Status != OrderDraft {
		return nil, ErrNotEditable
	}
	if len(o.Lines) == 0 {
		return nil, ErrEmptyDocument
	}
	o.Status = OrderConfirmed
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) Receive(_ context.Context, orderID int64) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	if o.Status != OrderConfirmed {
		return nil, ErrNotReceivable
	}
	for _, l := range o.Lines {
		f.stock[l.ProductID] += l.Quantity
	}
	now := time.Now()
	o.Status = OrderReceived
	o.ReceivedAt = &now
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) Cancel(_ context.Context, orderID int64) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	if o.Status == OrderReceived {
		return nil, ErrNotEditable
	}
	o.IsCancelled = true
	o.Status = OrderCancelled
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) RegisterPayment(_ context.Context, p SupplierPayment, dupWindow time.Duration) (*Order, *SupplierPayment, error) {
	o, ok := f.orders[p.OrderID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if o.IsCancelled || o.Status == OrderDraft {
		return nil, nil, ErrNotPayable
	}
	if p.Amount.GreaterThan(o.BalanceDue) {
		return nil, nil, ErrOverpayment
	}
	now := time.Now()
	for _, prev := range f.payments {
		if prev.OrderID == p.OrderID && prev.PaidBy == p.PaidBy &&
			prev.Amount.Equal(p.Amount) && now.Sub(prev.CreatedAt) < dupWindow {
			return nil, nil, ErrDuplicatePayment
		}
	}
	f.nextPaymentID++
	p.ID = f.nextPaymentID
	p.CreatedAt = now
	f.payments = append(f.payments, p)
	o.AmountPaid = o.AmountPaid.Add(p.Amount).Round(2)
	o.BalanceDue = docmath.BalanceDue(o.TotalAmount, o.AmountPaid)
	cp := *o
	return &cp, &p, nil
}

func (f *fakeOrderRepo) Payments(_ context.Context, orderID int64) ([]SupplierPayment, error) {
	var out []SupplierPayment
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func newPurchaseService(t *testing.T, repo *fakeOrderRepo) *Service {
	t.Helper()
	svc := NewService(repo, nil, nil, 10*time.Second)
	svc.now = func() time.Time { return time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC) }
	return svc
}

func confirmedOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateOrderRequest{SupplierID: 3}, 1)
	require.NoError(t, err)
	o, err = svc.AddLine(context.Background(), o.ID, AddLineRequest{ProductID: 8, Quantity: 5, UnitCost: "60.00"}, 1)
	require.NoError(t, err)
	o, err = svc.Confirm(context.Background(), o.ID, 1)
	require.NoError(t, err)
	return o
}

func TestOrderCreateAssignsReference(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o, err := svc.Create(context.Background(), CreateOrderRequest{SupplierID: 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, "PO-20250520-0001", o.Reference)
	assert.Equal(t, OrderDraft, o.Status)
}

func TestOrderConfirmEmptyRejected(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o, err := svc.Create(context.Background(), CreateOrderRequest{SupplierID: 3}, 1)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), o.ID, 1)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestOrderReceiveMovesStock(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newPurchaseService(t, repo)
	o := confirmedOrder(t, svc)

	received, err := svc.Receive(context.Background(), o.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OrderReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)
	assert.Equal(t, 5, repo.stock[8])

	// Receiving twice is rejected.
	_, err = svc.Receive(context.Background(), o.ID, 1)
	assert.ErrorIs(t, err, ErrNotReceivable)
}

func TestOrderReceiveRequiresConfirmation(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o, err := svc.Create(context.Background(), CreateOrderRequest{SupplierID: 3}, 1)
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), o.ID, 1)
	assert.ErrorIs(t, err, ErrNotReceivable)
}

func TestOrderSupplierPayment(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o := confirmedOrder(t, svc)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("300.00")))

	result, err := svc.RegisterPayment(context.Background(), o.ID, RegisterPaymentRequest{Amount: "120.00", Method: "TRANSFER"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "SUP-PAY-20250520-0001", result.Payment.Reference)
	assert.True(t, result.Order.BalanceDue.Equal(decimal.RequireFromString("180.00")))

	_, err = svc.RegisterPayment(context.Background(), o.ID, RegisterPaymentRequest{Amount: "999.00", Method: "CASH"}, 1)
	assert.ErrorIs(t, err, ErrOverpayment)
}

func TestOrderPaymentOnDraftRejected(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o, err := svc.Create(context.Background(), CreateOrderRequest{SupplierID: 3}, 1)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(context.Background(), o.ID, RegisterPaymentRequest{Amount: "10.00", Method: "CASH"}, 1)
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestOrderAddLineValidation(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o, err := svc.Create(context.Background(), CreateOrderRequest{SupplierID: 3}, 1)
	require.NoError(t, err)

	_, err = svc.AddLine(context.Background(), o.ID, AddLineRequest{ProductID: 1, Quantity: 0, UnitCost: "10"}, 1)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.AddLine(context.Background(), o.ID, AddLineRequest{ProductID: 1, Quantity: 2, UnitCost: "-4"}, 1)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestOrderCancelReceivedRejected(t *testing.T) {
	svc := newPurchaseService(t, newFakeOrderRepo())
	o := confirmedOrder(t, svc)
	_, err := svc.Receive(context.Background(), o.ID, 1)
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), o.ID, 1)
	assert.ErrorIs(t, err, ErrNotEditable)
}
