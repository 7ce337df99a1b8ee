package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/docmath"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/db"
)

const quoteColumns = `id, reference, client_id, status, subtotal, discount, tax_rate, tax_amount, total_amount,
valid_until, invoice_id, notes, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for quotes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountCreatedOn counts quotes created on the given day.
func (r *Repository) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// Insert persists a fresh draft quote. The raw database error is
// returned unchanged for unique-violation detection.
func (r *Repository) Insert(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO quotes
(reference, client_id, status, subtotal, discount, tax_rate, tax_amount, total_amount, valid_until, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, 0, 0, 0, 0, 0, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		q.Reference, q.ClientID, QuoteDraft, q.ValidUntil, q.Notes, q.CreatedBy).Scan(&id)
	return id, err
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.Reference, &q.ClientID, &q.Status, &q.Subtotal, &q.Discount, &q.TaxRate, &q.TaxAmount, &q.TotalAmount,
		&q.ValidUntil, &q.InvoiceID, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, quoteID int64) ([]QuoteLine, error) {
	rows, err := q.Query(ctx, `SELECT id, quote_id, product_id, description, quantity, unit_price, discount, line_total
FROM quote_lines WHERE quote_id = $1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []QuoteLine
	for rows.Next() {
		var l QuoteLine
		if err := rows.Scan(&l.ID, &l.QuoteID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Discount, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads a quote and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	q.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// List returns a filtered page of quotes plus the total match count.
func (r *Repository) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if req.ClientID != nil {
		args = append(args, *req.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if req.Status != nil {
		args = append(args, *req.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func lockQuote(ctx context.Context, tx pgx.Tx, id int64) (*Quote, error) {
	return scanQuote(tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id))
}

func recompute(ctx context.Context, tx pgx.Tx, q *Quote) error {
	lines, err := loadLines(ctx, tx, q.ID)
	if err != nil {
		return err
	}
	lineTotals := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		lineTotals[i] = l.LineTotal
	}
	totals := docmath.Compute(lineTotals, docmath.Adjustments{Discount: q.Discount, TaxRate: q.TaxRate})

	_, err = tx.Exec(ctx, `UPDATE quotes SET subtotal = $1, tax_amount = $2, total_amount = $3, updated_at = NOW() WHERE id = $4`,
		totals.Subtotal, totals.TaxAmount, totals.Total, q.ID)
	if err != nil {
		return err
	}

	q.Lines = lines
	q.Subtotal = totals.Subtotal
	q.TaxAmount = totals.TaxAmount
	q.TotalAmount = totals.Total
	return nil
}

// AddLine appends a line to a draft quote and recomputes totals.
func (r *Repository) AddLine(ctx context.Context, quoteID int64, line QuoteLine) (*Quote, error) {
	var result *Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q, err := lockQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteDraft {
			return ErrNotEditable
		}

		var productOK bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND is_active)`, line.ProductID).Scan(&productOK); err != nil {
			return err
		}
		if !productOK {
			return ErrUnknownProduct
		}

		if err := tx.QueryRow(ctx, `INSERT INTO quote_lines (quote_id, product_id, description, quantity, unit_price, discount, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			quoteID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.Discount, line.LineTotal).Scan(&line.ID); err != nil {
			return err
		}

		if err := recompute(ctx, tx, q); err != nil {
			return err
		}
		result = q
		return nil
	})
	return result, err
}

// RemoveLine deletes a line from a draft quote and recomputes totals.
func (r *Repository) RemoveLine(ctx context.Context, quoteID, lineID int64) (*Quote, error) {
	var result *Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q, err := lockQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteDraft {
			return ErrNotEditable
		}

		tag, err := tx.Exec(ctx, `DELETE FROM quote_lines WHERE id = $1 AND quote_id = $2`, lineID, quoteID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrLineNotFound
		}

		if err := recompute(ctx, tx, q); err != nil {
			return err
		}
		result = q
		return nil
	})
	return result, err
}

// UpdateAdjustments changes modifiers on a draft quote.
func (r *Repository) UpdateAdjustments(ctx context.Context, quoteID int64, apply func(*Quote) error) (*Quote, error) {
	var result *Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q, err := lockQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteDraft {
			return ErrNotEditable
		}
		if err := apply(q); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE quotes SET discount = $1, tax_rate = $2, valid_until = $3, updated_at = NOW() WHERE id = $4`,
			q.Discount, q.TaxRate, q.ValidUntil, quoteID)
		if err != nil {
			return err
		}
		if err := recompute(ctx, tx, q); err != nil {
			return err
		}
		result = q
		return nil
	})
	return result, err
}

// MarkConverted flags the quote converted and links the created invoice.
// The pre-transition state is re-checked under the row lock so two
// concurrent conversions cannot both succeed.
func (r *Repository) MarkConverted(ctx context.Context, quoteID, invoiceID int64) (*Quote, error) {
	var result *Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q, err := lockQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if q.Status == QuoteConverted {
			return ErrAlreadyConverted
		}
		if q.Status != QuoteDraft {
			return ErrNotEditable
		}

		_, err = tx.Exec(ctx, `UPDATE quotes SET status = $1, invoice_id = $2, updated_at = NOW() WHERE id = $3`,
			QuoteConverted, invoiceID, quoteID)
		if err != nil {
			return err
		}
		q.Status = QuoteConverted
		q.InvoiceID = &invoiceID
		result = q
		return nil
	})
	return result, err
}

// Cancel closes a draft quote.
func (r *Repository) Cancel(ctx context.Context, quoteID int64) (*Quote, error) {
	var result *Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q, err := lockQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteDraft {
			return ErrNotEditable
		}

		_, err = tx.Exec(ctx, `UPDATE quotes SET status = $1, updated_at = NOW() WHERE id = $2`, QuoteCancelled, quoteID)
		if err != nil {
			return err
		}
		q.Status = QuoteCancelled
		result = q
		return nil
	})
	return result, err
}
