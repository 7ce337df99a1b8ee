package sales

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// fakeInvoiceRepo mirrors the transactional repository semantics over
// in-memory maps so service rules can be exercised without PostgreSQL.
type fakeInvoiceRepo struct {
	nextInvoiceID int64
	nextLineID    int64
	nextPaymentID int64
	invoices      map[int64]*Invoice
	payments      []Payment
	clock         func() time.Time
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[int64]*Invoice), clock: time.Now}
}

func (f *fakeInvoiceRepo) CountCreatedOn(_ context.Context, _ time.Time) (int, error) {
	return len(f.invoices), nil
}

func (f *fakeInvoiceRepo) CountPaymentsOn(_ context.Context, _ time.Time) (int, error) {
	return len(f.payments), nil
}

func (f *fakeInvoiceRepo) Insert(_ context.Context, inv Invoice) (int64, error) {
	f.nextInvoiceID++
	inv.ID = f.nextInvoiceID
	inv.Status = docmath.StatusDraft
	f.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (f *fakeInvoiceRepo) Get(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) List(_ context.Context, _ ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range f.invoices {
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (f *fakeInvoiceRepo) recompute(inv *Invoice) {
	lineTotals := make([]decimal.Decimal, len(inv.Lines))
	for i, l := range inv.Lines {
		lineTotals[i] = l.LineTotal
	}
	totals := docmath.Compute(lineTotals, docmath.Adjustments{
		Discount:     inv.Discount,
		TradeIn:      inv.TradeIn,
		TaxRate:      inv.TaxRate,
		DeliveryCost: inv.DeliveryCost,
	})
	inv.Subtotal = totals.Subtotal
	inv.TaxAmount = totals.TaxAmount
	inv.TotalAmount = totals.Total
	inv.BalanceDue = docmath.BalanceDue(totals.Total, inv.AmountPaid)
	inv.Status = docmath.DeriveStatus(inv.Status != docmath.StatusDraft, inv.AmountPaid, totals.Total, inv.DeliveryState)
	if inv.IsCancelled {
		inv.Status = docmath.StatusCancelled
	}
}

func (f *fakeInvoiceRepo) AddLine(_ context.Context, invoiceID int64, line InvoiceLine) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsCancelled || !inv.Status.Editable() {
		return nil, ErrNotEditable
	}
	f.nextLineID++
	line.ID = f.nextLineID
	inv.Lines = append(inv.Lines, line)
	f.recompute(inv)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) RemoveLine(_ context.Context, invoiceID, lineID int64) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsCancelled || !inv.Status.Editable() {
		return nil, ErrNotEditable
	}
	for i, l := range inv.Lines {
		if l.ID == lineID {
			inv.Lines = append(inv.Lines[:i], inv.Lines[i+1:]...)
			f.recompute(inv)
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrLineNotFound
}

func (f *fakeInvoiceRepo) UpdateAdjustments(_ context.Context, invoiceID int64, apply func(*Invoice) error) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsCancelled || !inv.Status.Editable() {
		return nil, ErrNotEditable
	}
	if err := apply(inv); err != nil {
		return nil, err
	}
	f.recompute(inv)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) Confirm(_ context.Context, invoiceID int64) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	if inv.Status != docmath.StatusDraft {
		return nil, ErrNotEditable
	}
	if len(inv.Lines) == 0 {
		return nil, ErrEmptyDocument
	}
	inv.Status = docmath.StatusConfirmed
	f.recompute(inv)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) Cancel(_ context.Context, invoiceID int64) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	inv.IsCancelled = true
	inv.Status = docmath.StatusCancelled
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) CompleteDelivery(_ context.Context, invoiceID int64) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	if inv.DeliveryState != docmath.DeliveryPending {
		return nil, ErrNotEditable
	}
	inv.DeliveryState = docmath.DeliveryCompleted
	f.recompute(inv)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) RegisterPayment(_ context.Context, p Payment, dupWindow time.Duration) (*Invoice, *Payment, error) {
	inv, ok := f.invoices[p.InvoiceID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if inv.IsCancelled || inv.Status == docmath.StatusDraft {
		return nil, nil, ErrNotPayable
	}
	if p.Amount.GreaterThan(inv.BalanceDue) {
		return nil, nil, ErrOverpayment
	}
	now := f.clock()
	for _, prev := range f.payments {
		if prev.InvoiceID == p.InvoiceID && prev.ReceivedBy == p.ReceivedBy &&
			prev.Amount.Equal(p.Amount) && now.Sub(prev.CreatedAt) < dupWindow {
			return nil, nil, ErrDuplicatePayment
		}
	}
	f.nextPaymentID++
	p.ID = f.nextPaymentID
	p.CreatedAt = now
	f.payments = append(f.payments, p)

	inv.AmountPaid = inv.AmountPaid.Add(p.Amount).Round(2)
	f.recompute(inv)
	cp := *inv
	return &cp, &p, nil
}

func (f *fakeInvoiceRepo) Payments(_ context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range f.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeBalances struct {
	evicted []int64
}

func (f *fakeBalances) Invalidate(_ context.Context, clientID int64) error {
	f.evicted = append(f.evicted, clientID)
	return nil
}

func newSalesService(t *testing.T, repo *fakeInvoiceRepo, balances BalancePort) *Service {
	t.Helper()
	svc := NewService(repo, balances, nil, nil, 10*time.Second)
	svc.now = func() time.Time { return time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC) }
	return svc
}

func draftWithLine(t *testing.T, svc *Service, clientID *int64) *Invoice {
	t.Helper()
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{ClientID: clientID}, 1)
	require.NoError(t, err)
	inv, err = svc.AddItem(context.Background(), inv.ID, AddItemRequest{
		ProductID: 10, Quantity: "2", UnitPrice: "125.00",
	}, 1)
	require.NoError(t, err)
	return inv
}

func TestInvoiceCreateWalkIn(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-20250410-0001", inv.Reference)
	assert.Nil(t, inv.ClientID)
	assert.Equal(t, docmath.StatusDraft, inv.Status)
	assert.Equal(t, docmath.DeliveryNotRequired, inv.DeliveryState)
	assert.Equal(t, "Walk-in", inv.ClientLabel(""))
}

func TestInvoiceAddItemComputesTotals(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv := draftWithLine(t, svc, nil)

	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("250.00")))
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("250.00")))
	require.Len(t, inv.Lines, 1)
	assert.True(t, inv.Lines[0].LineTotal.Equal(decimal.RequireFromString("250.00")))
}

func TestInvoiceAdjustmentsScenario(t *testing.T) {
	// 250 subtotal, 10 discount, 10% tax: 240 after discount, 24 tax, 264 total.
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv := draftWithLine(t, svc, nil)

	discount, taxRate := "10", "10"
	inv, err := svc.UpdateAdjustments(context.Background(), inv.ID, UpdateAdjustmentsRequest{
		Discount: &discount, TaxRate: &taxRate,
	}, 1)
	require.NoError(t, err)
	assert.True(t, inv.Subtotal.Sub(inv.Discount).Equal(decimal.RequireFromString("240.00")))
	assert.True(t, inv.TaxAmount.Equal(decimal.RequireFromString("24.00")))
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("264.00")))
}

func TestInvoiceAddItemValidation(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{}, 1)
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), inv.ID, AddItemRequest{ProductID: 1, Quantity: "0", UnitPrice: "10"}, 1)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.AddItem(context.Background(), inv.ID, AddItemRequest{ProductID: 1, Quantity: "1", UnitPrice: "-10"}, 1)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestInvoiceLineDiscountClampedAtZero(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{}, 1)
	require.NoError(t, err)

	inv, err = svc.AddItem(context.Background(), inv.ID, AddItemRequest{
		ProductID: 1, Quantity: "1", UnitPrice: "50", Discount: "80",
	}, 1)
	require.NoError(t, err)
	assert.True(t, inv.Lines[0].LineTotal.IsZero())
	assert.True(t, inv.TotalAmount.IsZero())
}

func TestInvoiceItemsLockedPastDraft(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv := draftWithLine(t, svc, nil)

	_, err := svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), inv.ID, AddItemRequest{ProductID: 1, Quantity: "1", UnitPrice: "10"}, 1)
	assert.ErrorIs(t, err, ErrNotEditable)
	_, err = svc.RemoveItem(context.Background(), inv.ID, inv.Lines[0].ID, 1)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestInvoiceConfirmEmptyRejected(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{}, 1)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), inv.ID, 1)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusDraft, got.Status)
}

func TestInvoicePaymentProgression(t *testing.T) {
	repo := newFakeInvoiceRepo()
	clientID := int64(42)
	balances := &fakeBalances{}
	svc := newSalesService(t, repo, balances)
	inv := draftWithLine(t, svc, &clientID)
	_, err := svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	result, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "100.00", Method: "CASH"}, 1)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusPartiallyPaid, result.Invoice.Status)
	assert.Equal(t, "PAY-20250410-0001", result.Payment.Reference)
	assert.True(t, result.Invoice.BalanceDue.Equal(decimal.RequireFromString("150.00")))

	// Different amount escapes the duplicate window.
	result, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "150.00", Method: "CARD"}, 1)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusPaid, result.Invoice.Status)
	assert.True(t, result.Invoice.BalanceDue.IsZero())

	assert.Contains(t, balances.evicted, clientID)
}

func TestInvoiceOverpaymentRejected(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv := draftWithLine(t, svc, nil)
	_, err := svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "300.00", Method: "CASH"}, 1)
	assert.ErrorIs(t, err, ErrOverpayment)

	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.IsZero())
}

func TestInvoiceDuplicatePaymentWindow(t *testing.T) {
	repo := newFakeInvoiceRepo()
	base := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	current := base
	repo.clock = func() time.Time { return current }
	svc := newSalesService(t, repo, nil)
	inv := draftWithLine(t, svc, nil)
	_, err := svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "50.00", Method: "CASH"}, 1)
	require.NoError(t, err)

	current = base.Add(3 * time.Second)
	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "50.00", Method: "CASH"}, 1)
	assert.ErrorIs(t, err, ErrDuplicatePayment)

	current = base.Add(15 * time.Second)
	result, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "50.00", Method: "CASH"}, 1)
	require.NoError(t, err)
	assert.True(t, result.Invoice.AmountPaid.Equal(decimal.RequireFromString("100.00")))
}

func TestInvoicePaymentOnDraftRejected(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv := draftWithLine(t, svc, nil)

	_, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "10.00", Method: "CASH"}, 1)
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestInvoiceFullPaymentWithoutDeliveryNeverDelivered(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv := draftWithLine(t, svc, nil)
	_, err := svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	result, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "250.00", Method: "CASH"}, 1)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusPaid, result.Invoice.Status)
}

func TestInvoiceDeliveredAfterPaymentAndDelivery(t *testing.T) {
	svc := newSalesService(t, newFakeInvoiceRepo(), nil)
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{DeliveryRequired: true}, 1)
	require.NoError(t, err)
	inv, err = svc.AddItem(context.Background(), inv.ID, AddItemRequest{ProductID: 10, Quantity: "1", UnitPrice: "500.00"}, 1)
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	result, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "500.00", Method: "TRANSFER"}, 1)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusPaid, result.Invoice.Status)

	delivered, err := svc.CompleteDelivery(context.Background(), inv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusDelivered, delivered.Status)
}

func TestInvoiceCancelEvictsBalance(t *testing.T) {
	clientID := int64(7)
	balances := &fakeBalances{}
	svc := newSalesService(t, newFakeInvoiceRepo(), balances)
	inv := draftWithLine(t, svc, &clientID)

	require.NoError(t, svc.Cancel(context.Background(), inv.ID, 1))
	assert.Contains(t, balances.evicted, clientID)

	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, docmath.StatusCancelled, got.Status)
	assert.True(t, got.IsCancelled)
}

func TestInvoicePaymentLockContention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)

	repo := newFakeInvoiceRepo()
	svc := NewService(repo, nil, nil, locker, 10*time.Second)
	svc.now = func() time.Time { return time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC) }
	inv := draftWithLine(t, svc, nil)
	_, err := svc.Confirm(context.Background(), inv.ID, 1)
	require.NoError(t, err)

	held, err := locker.Obtain(context.Background(), shared.PaymentLockKey("invoice", inv.ID), time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: "50.00", Method: "CASH"}, 1)
	assert.ErrorIs(t, err, ErrDuplicatePayment)
}
