package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/refs"
	"github.com/hafsa-erp/hafsa-erp/internal/sales"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for quotes.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, q Quote) (int64, error)
	Get(ctx context.Context, id int64) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error)
	AddLine(ctx context.Context, quoteID int64, line QuoteLine) (*Quote, error)
	RemoveLine(ctx context.Context, quoteID, lineID int64) (*Quote, error)
	UpdateAdjustments(ctx context.Context, quoteID int64, apply func(*Quote) error) (*Quote, error)
	MarkConverted(ctx context.Context, quoteID, invoiceID int64) (*Quote, error)
	Cancel(ctx context.Context, quoteID int64) (*Quote, error)
}

// InvoicePort is the slice of the sales service conversion needs.
type InvoicePort interface {
	Create(ctx context.Context, req sales.CreateInvoiceRequest, createdBy int64) (*sales.Invoice, error)
	AddItem(ctx context.Context, invoiceID int64, req sales.AddItemRequest, actorID int64) (*sales.Invoice, error)
	UpdateAdjustments(ctx context.Context, invoiceID int64, req sales.UpdateAdjustmentsRequest, actorID int64) (*sales.Invoice, error)
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles quote business logic.
type Service struct {
	repo     RepositoryPort
	invoices InvoicePort
	activity ActivityPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invoices InvoicePort, activity ActivityPort) *Service {
	return &Service{repo: repo, invoices: invoices, activity: activity, now: time.Now}
}

// Create opens a draft quote.
func (s *Service) Create(ctx context.Context, req CreateQuoteRequest, createdBy int64) (*Quote, error) {
	quote := Quote{ClientID: req.ClientID, ValidUntil: req.ValidUntil, Notes: req.Notes, CreatedBy: createdBy}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.Allocate(ctx, refs.PrefixQuote, s.now(), func(ctx context.Context, reference string) error {
		quote.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, quote)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}

	s.record(ctx, createdBy, "CREATE", reference, nil)
	return s.repo.Get(ctx, id)
}

// Get retrieves a quote with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	return s.repo.List(ctx, req)
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

// AddLine appends a line to a draft quote.
func (s *Service) AddLine(ctx context.Context, quoteID int64, req AddLineRequest, actorID int64) (*Quote, error) {
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
	line := QuoteLine{
		QuoteID:     quoteID,
		ProductID:   req.ProductID,
		Description: description,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		Discount:    discount,
		LineTotal:   docmath.LineTotal(qty, unitPrice, discount),
	}

	quote, err := s.repo.AddLine(ctx, quoteID, line)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "ADD_ITEM", quote.Reference, map[string]any{"product_id": req.ProductID})
	return quote, nil
}

// RemoveLine deletes a line from a draft quote.
func (s *Service) RemoveLine(ctx context.Context, quoteID, lineID int64, actorID int64) (*Quote, error) {
	quote, err := s.repo.RemoveLine(ctx, quoteID, lineID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "REMOVE_ITEM", quote.Reference, map[string]any{"line_id": lineID})
	return quote, nil
}

// UpdateAdjustments changes discount, tax rate and validity while draft.
func (s *Service) UpdateAdjustments(ctx context.Context, quoteID int64, req UpdateAdjustmentsRequest, actorID int64) (*Quote, error) {
	quote, err := s.repo.UpdateAdjustments(ctx, quoteID, func(q *Quote) error {
		if req.Discount != nil {
			d, err := parseNonNegative("discount", *req.Discount)
			if err != nil {
				return err
			}
			q.Discount = d
		}
		if req.TaxRate != nil {
			d, err := parseNonNegative("tax_rate", *req.TaxRate)
			if err != nil {
				return err
			}
			q.TaxRate = d
		}
		if req.ValidUntil != nil {
			q.ValidUntil = req.ValidUntil
		}
		if q.Discount.GreaterThan(q.Subtotal) {
			return fmt.Errorf("discount exceeds subtotal: %w", httpx.ErrValidation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "UPDATE", quote.Reference, nil)
	return quote, nil
}

// Cancel closes a draft quote.
func (s *Service) Cancel(ctx context.Context, quoteID int64, actorID int64) error {
	quote, err := s.repo.Cancel(ctx, quoteID)
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "DELETE", quote.Reference, nil)
	return nil
}

// ConvertResult couples the converted quote with the draft invoice it
// produced.
type ConvertResult struct {
	Quote   *Quote         `json:"quote"`
	Invoice *sales.Invoice `json:"invoice"`
}

// Convert creates a draft invoice copying the quote's lines and document
// modifiers, then marks the quote converted. Expired and empty quotes
// are rejected with no state change.
func (s *Service) Convert(ctx context.Context, quoteID int64, actorID int64) (*ConvertResult, error) {
	quote, err := s.repo.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status == QuoteConverted {
		return nil, ErrAlreadyConverted
	}
	if quote.Status != QuoteDraft {
		return nil, ErrNotEditable
	}
	if quote.Expired(s.now()) {
		return nil, ErrExpired
	}
	if len(quote.Lines) == 0 {
		return nil, ErrEmptyDocument
	}

	invoice, err := s.invoices.Create(ctx, sales.CreateInvoiceRequest{
		ClientID: quote.ClientID,
		Notes:    quote.Notes,
	}, actorID)
	if err != nil {
		return nil, fmt.Errorf("convert quote: %w", err)
	}

	for _, line := range quote.Lines {
		description := line.Description
		invoice, err = s.invoices.AddItem(ctx, invoice.ID, sales.AddItemRequest{
			ProductID:   line.ProductID,
			Description: &description,
			Quantity:    line.Quantity.String(),
			UnitPrice:   line.UnitPrice.String(),
			Discount:    line.Discount.String(),
		}, actorID)
		if err != nil {
			return nil, fmt.Errorf("convert quote: copy line: %w", err)
		}
	}

	if !quote.Discount.IsZero() || !quote.TaxRate.IsZero() {
		discount := quote.Discount.String()
		taxRate := quote.TaxRate.String()
		invoice, err = s.invoices.UpdateAdjustments(ctx, invoice.ID, sales.UpdateAdjustmentsRequest{
			Discount: &discount,
			TaxRate:  &taxRate,
		}, actorID)
		if err != nil {
			return nil, fmt.Errorf("convert quote: copy adjustments: %w", err)
		}
	}

	converted, err := s.repo.MarkConverted(ctx, quoteID, invoice.ID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "CONVERT", converted.Reference, map[string]any{"invoice": invoice.Reference})
	return &ConvertResult{Quote: converted, Invoice: invoice}, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "quote",
		Reference: reference,
		Meta:      meta,
	})
}
