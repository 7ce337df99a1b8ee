package quotes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/sales"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

type fakeQuoteRepo struct {
	quotes map[int64]*Quote
	nextID int64
	lineID int64
}

func newFakeQuoteRepo() *fakeQuoteRepo {
	return &fakeQuoteRepo{quotes: map[int64]*Quote{}, nextID: 1, lineID: 1}
}

func (r *fakeQuoteRepo) CountCreatedOn(_ context.Context, day time.Time) (int, error) {
	n := 0
	for _, q := range r.quotes {
		if q.CreatedAt.Format("2006-01-02") == day.Format("2006-01-02") {
			n++
		}
	}
	return n, nil
}

func (r *fakeQuoteRepo) Insert(_ context.Context, q Quote) (int64, error) {
	q.ID = r.nextID
	r.nextID++
	q.Status = QuoteDraft
	q.CreatedAt = time.Now()
	r.quotes[q.ID] = &q
	return q.ID, nil
}

func (r *fakeQuoteRepo) Get(_ context.Context, id int64) (*Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	cp.Lines = append([]QuoteLine(nil), q.Lines...)
	return &cp, nil
}

func (r *fakeQuoteRepo) List(_ context.Context, _ ListQuotesRequest) ([]Quote, int, error) {
	out := make([]Quote, 0, len(r.quotes))
	for _, q := range r.quotes {
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (r *fakeQuoteRepo) recompute(q *Quote) {
	lineTotals := make([]decimal.Decimal, 0, len(q.Lines))
	for _, l := range q.Lines {
		lineTotals = append(lineTotals, l.LineTotal)
	}
	totals := docmath.Compute(lineTotals, docmath.Adjustments{Discount: q.Discount, TaxRate: q.TaxRate})
	q.Subtotal = totals.Subtotal
	q.TaxAmount = totals.TaxAmount
	q.TotalAmount = totals.Total
}

func (r *fakeQuoteRepo) AddLine(ctx context.Context, quoteID int64, line QuoteLine) (*Quote, error) {
	q, ok := r.quotes[quoteID]
	if !ok {
		return nil, ErrNotFound
	}
	if q.Status != QuoteDraft {
		return nil, ErrNotEditable
	}
	line.ID = r.lineID
	r.lineID++
	q.Lines = append(q.Lines, line)
	r.recompute(q)
	return r.Get(ctx, quoteID)
}

func (r *fakeQuoteRepo) RemoveLine(ctx context.Context, quoteID, lineID int64) (*Quote, error) {
	q, ok := r.quotes[quoteID]
	if !ok {
		return nil, ErrNotFound
	}
	if q.Status != QuoteDraft {
		return nil, ErrNotEditable
	}
	for i, l := range q.Lines {
		if l.ID == lineID {
			q.Lines = append(q.Lines[:i], q.Lines[i+1:]...)
			r.recompute(q)
			return r.Get(ctx, quoteID)
		}
	}
	return nil, ErrLineNotFound
}

func (r *fakeQuoteRepo) UpdateAdjustments(ctx context.Context, quoteID int64, apply func(*Quote) error) (*Quote, error) {
	q, ok := r.quotes[quoteID]
	if !ok {
		return nil, ErrNotFound
	}
	if q.Status != QuoteDraft {
		return nil, ErrNotEditable
	}
	if err := apply(q); err != nil {
		return nil, err
	}
	r.recompute(q)
	return r.Get(ctx, quoteID)
}

func (r *fakeQuoteRepo) MarkConverted(ctx context.Context, quoteID, invoiceID int64) (*Quote, error) {
	q, ok := r.quotes[quoteID]
	if !ok {
		return nil, ErrNotFound
	}
	if q.Status == QuoteConverted {
		return nil, ErrAlreadyConverted
	}
	if q.Status != QuoteDraft {
		return nil, ErrNotEditable
	}
	q.Status = QuoteConverted
	q.InvoiceID = &invoiceID
	return r.Get(ctx, quoteID)
}

func (r *fakeQuoteRepo) Cancel(ctx context.Context, quoteID int64) (*Quote, error) {
	q, ok := r.quotes[quoteID]
	if !ok {
		return nil, ErrNotFound
	}
	if q.Status != QuoteDraft {
		return nil, ErrNotEditable
	}
	q.Status = QuoteCancelled
	return r.Get(ctx, quoteID)
}

type fakeInvoices struct {
	invoices map[int64]*sales.Invoice
	nextID   int64
	created  int
	items    []sales.AddItemRequest
	adjusted []sales.UpdateAdjustmentsRequest
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{invoices: map[int64]*sales.Invoice{}, nextID: 100}
}

func (f *fakeInvoices) Create(_ context.Context, req sales.CreateInvoiceRequest, createdBy int64) (*sales.Invoice, error) {
	inv := &sales.Invoice{
		ID:        f.nextID,
		Reference: fmt.Sprintf("INV-20250610-%04d", f.created+1),
		ClientID:  req.ClientID,
		Status:    docmath.StatusDraft,
		Notes:     req.Notes,
		CreatedBy: createdBy,
	}
	f.nextID++
	f.created++
	f.invoices[inv.ID] = inv
	return inv, nil
}

func (f *fakeInvoices) AddItem(_ context.Context, invoiceID int64, req sales.AddItemRequest, _ int64) (*sales.Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, sales.ErrNotFound
	}
	f.items = append(f.items, req)
	qty := decimal.RequireFromString(req.Quantity)
	price := decimal.RequireFromString(req.UnitPrice)
	discount := decimal.Zero
	if req.Discount != "" {
		discount = decimal.RequireFromString(req.Discount)
	}
	inv.Subtotal = inv.Subtotal.Add(docmath.LineTotal(qty, price, discount))
	inv.TotalAmount = inv.Subtotal
	return inv, nil
}

func (f *fakeInvoices) UpdateAdjustments(_ context.Context, invoiceID int64, req sales.UpdateAdjustmentsRequest, _ int64) (*sales.Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, sales.ErrNotFound
	}
	f.adjusted = append(f.adjusted, req)
	if req.Discount != nil {
		inv.Discount = decimal.RequireFromString(*req.Discount)
	}
	if req.TaxRate != nil {
		inv.TaxRate = decimal.RequireFromString(*req.TaxRate)
	}
	return inv, nil
}

type quoteActivityLog struct {
	entries []shared.ActivityEntry
}

func (a *quoteActivityLog) Record(_ context.Context, entry shared.ActivityEntry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func newQuoteService(repo *fakeQuoteRepo, invoices *fakeInvoices) (*Service, *quoteActivityLog) {
	activity := &quoteActivityLog{}
	svc := NewService(repo, invoices, activity)
	svc.now = func() time.Time { return time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC) }
	return svc, activity
}

func addTestLine(t *testing.T, svc *Service, quoteID int64, productID int64, qty, price string) *Quote {
	t.Helper()
	quote, err := svc.AddLine(context.Background(), quoteID, AddLineRequest{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: price,
	}, 1)
	require.NoError(t, err)
	return quote
}

func TestCreateQuoteAllocatesReference(t *testing.T) {
	svc, activity := newQuoteService(newFakeQuoteRepo(), newFakeInvoices())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{}, 7)
	require.NoError(t, err)
	assert.Equal(t, "QTE-20250610-0001", quote.Reference)
	assert.Equal(t, QuoteDraft, quote.Status)
	assert.Equal(t, int64(7), quote.CreatedBy)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, "CREATE", activity.entries[0].Action)
	assert.Equal(t, "quote", activity.entries[0].Entity)
}

func TestQuoteLineAndAdjustmentTotals(t *testing.T) {
	repo := newFakeQuoteRepo()
	svc, _ := newQuoteService(repo, newFakeInvoices())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)

	addTestLine(t, svc, quote.ID, 10, "2", "100.00")
	quote = addTestLine(t, svc, quote.ID, 11, "1", "50.00")
	assert.True(t, quote.Subtotal.Equal(decimal.RequireFromString("250.00")), quote.Subtotal.String())

	discount := "25"
	taxRate := "10"
	quote, err = svc.UpdateAdjustments(context.Background(), quote.ID, UpdateAdjustmentsRequest{
		Discount: &discount,
		TaxRate:  &taxRate,
	}, 1)
	require.NoError(t, err)
	assert.True(t, quote.TaxAmount.Equal(decimal.RequireFromString("22.50")), quote.TaxAmount.String())
	assert.True(t, quote.TotalAmount.Equal(decimal.RequireFromString("247.50")), quote.TotalAmount.String())
}

func TestQuoteDiscountCannotExceedSubtotal(t *testing.T) {
	svc, _ := newQuoteService(newFakeQuoteRepo(), newFakeInvoices())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)
	addTestLine(t, svc, quote.ID, 10, "1", "100.00")

	discount := "150"
	_, err = svc.UpdateAdjustments(context.Background(), quote.ID, UpdateAdjustmentsRequest{Discount: &discount}, 1)
	require.Error(t, err)
}

func TestQuoteRemoveLine(t *testing.T) {
	svc, _ := newQuoteService(newFakeQuoteRepo(), newFakeInvoices())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)
	quote = addTestLine(t, svc, quote.ID, 10, "1", "100.00")
	lineID := quote.Lines[0].ID

	quote, err = svc.RemoveLine(context.Background(), quote.ID, lineID, 1)
	require.NoError(t, err)
	assert.Empty(t, quote.Lines)
	assert.True(t, quote.Subtotal.IsZero())

	_, err = svc.RemoveLine(context.Background(), quote.ID, lineID, 1)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestConvertQuoteCopiesLinesAndAdjustments(t *testing.T) {
	repo := newFakeQuoteRepo()
	invoices := newFakeInvoices()
	svc, activity := newQuoteService(repo, invoices)

	clientID := int64(4)
	quote, err := svc.Create(context.Background(), CreateQuoteRequest{ClientID: &clientID}, 1)
	require.NoError(t, err)
	addTestLine(t, svc, quote.ID, 10, "2", "100.00")
	addTestLine(t, svc, quote.ID, 11, "1", "80.00")

	discount := "30"
	taxRate := "10"
	_, err = svc.UpdateAdjustments(context.Background(), quote.ID, UpdateAdjustmentsRequest{
		Discount: &discount,
		TaxRate:  &taxRate,
	}, 1)
	require.NoError(t, err)

	result, err := svc.Convert(context.Background(), quote.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, QuoteConverted, result.Quote.Status)
	require.NotNil(t, result.Quote.InvoiceID)
	assert.Equal(t, result.Invoice.ID, *result.Quote.InvoiceID)
	assert.Equal(t, &clientID, result.Invoice.ClientID)

	require.Len(t, invoices.items, 2)
	assert.Equal(t, int64(10), invoices.items[0].ProductID)
	assert.Equal(t, "2", invoices.items[0].Quantity)
	assert.Equal(t, "100", invoices.items[0].UnitPrice)

	require.Len(t, invoices.adjusted, 1)
	require.NotNil(t, invoices.adjusted[0].Discount)
	assert.Equal(t, "30", *invoices.adjusted[0].Discount)

	last := activity.entries[len(activity.entries)-1]
	assert.Equal(t, "CONVERT", last.Action)
}

func TestConvertQuoteRejections(t *testing.T) {
	repo := newFakeQuoteRepo()
	invoices := newFakeInvoices()
	svc, _ := newQuoteService(repo, invoices)

	empty, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)
	_, err = svc.Convert(context.Background(), empty.ID, 1)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	past := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expired, err := svc.Create(context.Background(), CreateQuoteRequest{ValidUntil: &past}, 1)
	require.NoError(t, err)
	addTestLine(t, svc, expired.ID, 10, "1", "100.00")
	_, err = svc.Convert(context.Background(), expired.ID, 1)
	assert.ErrorIs(t, err, ErrExpired)

	ok, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)
	addTestLine(t, svc, ok.ID, 10, "1", "100.00")
	_, err = svc.Convert(context.Background(), ok.ID, 1)
	require.NoError(t, err)

	_, err = svc.Convert(context.Background(), ok.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyConverted)
	assert.Equal(t, 2, invoices.created)
}

func TestConvertedQuoteIsLocked(t *testing.T) {
	svc, _ := newQuoteService(newFakeQuoteRepo(), newFakeInvoices())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)
	addTestLine(t, svc, quote.ID, 10, "1", "100.00")

	_, err = svc.Convert(context.Background(), quote.ID, 1)
	require.NoError(t, err)

	_, err = svc.AddLine(context.Background(), quote.ID, AddLineRequest{ProductID: 11, Quantity: "1", UnitPrice: "10"}, 1)
	assert.ErrorIs(t, err, ErrNotEditable)

	err = svc.Cancel(context.Background(), quote.ID, 1)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestCancelQuote(t *testing.T) {
	svc, activity := newQuoteService(newFakeQuoteRepo(), newFakeInvoices())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{}, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), quote.ID, 1))

	got, err := svc.Get(context.Background(), quote.ID)
	require.NoError(t, err)
	assert.Equal(t, QuoteCancelled, got.Status)

	last := activity.entries[len(activity.entries)-1]
	assert.Equal(t, "DELETE", last.Action)
}
