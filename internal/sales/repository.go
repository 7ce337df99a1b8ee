package sales

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

const invoiceColumns = `id, reference, client_id, status, delivery_state, is_cancelled,
subtotal, discount, trade_in, tax_rate, tax_amount, delivery_cost,
total_amount, amount_paid, balance_due, notes, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for invoices. State
// transitions run in repeatable-read transactions with the invoice row
// locked, so totals and status never drift from the lines and payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountCreatedOn counts invoices created on the given day.
func (r *Repository) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sale_invoices WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// CountPaymentsOn counts sale payments created on the given day.
func (r *Repository) CountPaymentsOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sale_payments WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// Insert persists a fresh draft invoice. The raw database error is
// returned unchanged for unique-violation detection.
func (r *Repository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO sale_invoices
(reference, client_id, status, delivery_state, is_cancelled, subtotal, discount, trade_in, tax_rate, tax_amount, delivery_cost, total_amount, amount_paid, balance_due, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, 0, 0, 0, 0, 0, 0, 0, 0, 0, $5, $6, NOW(), NOW()) RETURNING id`,
		inv.Reference, inv.ClientID, docmath.StatusDraft, inv.DeliveryState, inv.Notes, inv.CreatedBy).Scan(&id)
	return id, err
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Reference, &inv.ClientID, &inv.Status, &inv.DeliveryState, &inv.IsCancelled,
		&inv.Subtotal, &inv.Discount, &inv.TradeIn, &inv.TaxRate, &inv.TaxAmount, &inv.DeliveryCost,
		&inv.TotalAmount, &inv.AmountPaid, &inv.BalanceDue, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, product_id, description, quantity, unit_price, discount, line_total
FROM sale_invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Discount, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads an invoice and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sale_invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	inv.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns a filtered page of invoices plus the total match count.
// Lines are not hydrated in listings.
func (r *Repository) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
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
	if req.DateFrom != nil {
		args = append(args, *req.DateFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if req.DateTo != nil {
		args = append(args, *req.DateTo)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sale_invoices WHERE `+clause, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM sale_invoices WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func lockInvoice(ctx context.Context, tx pgx.Tx, id int64) (*Invoice, error) {
	return scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sale_invoices WHERE id = $1 FOR UPDATE`, id))
}

// recompute rereads the lines, reapplies the document formula and derives
// the status, then writes every money column back in one statement.
func recompute(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	lines, err := loadLines(ctx, tx, inv.ID)
	if err != nil {
		return err
	}
	lineTotals := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		lineTotals[i] = l.LineTotal
	}
	totals := docmath.Compute(lineTotals, docmath.Adjustments{
		Discount:     inv.Discount,
		TradeIn:      inv.TradeIn,
		TaxRate:      inv.TaxRate,
		DeliveryCost: inv.DeliveryCost,
	})
	confirmed := inv.Status != docmath.StatusDraft
	status := docmath.DeriveStatus(confirmed, inv.AmountPaid, totals.Total, inv.DeliveryState)
	if inv.IsCancelled {
		status = docmath.StatusCancelled
	}
	balance := docmath.BalanceDue(totals.Total, inv.AmountPaid)

	_, err = tx.Exec(ctx, `UPDATE sale_invoices SET
subtotal = $1, tax_amount = $2, total_amount = $3, balance_due = $4, status = $5, updated_at = NOW()
WHERE id = $6`, totals.Subtotal, totals.TaxAmount, totals.Total, balance, status, inv.ID)
	if err != nil {
		return err
	}

	inv.Lines = lines
	inv.Subtotal = totals.Subtotal
	inv.TaxAmount = totals.TaxAmount
	inv.TotalAmount = totals.Total
	inv.BalanceDue = balance
	inv.Status = status
	return nil
}

// AddLine appends a computed line to a draft invoice and recomputes the
// parent totals in the same transaction.
func (r *Repository) AddLine(ctx context.Context, invoiceID int64, line InvoiceLine) (*Invoice, error) {
	var result *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled || !inv.Status.Editable() {
			return ErrNotEditable
		}

		var productOK bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND is_active)`, line.ProductID).Scan(&productOK); err != nil {
			return err
		}
		if !productOK {
			return ErrUnknownProduct
		}

		if err := tx.QueryRow(ctx, `INSERT INTO sale_invoice_lines (invoice_id, product_id, description, quantity, unit_price, discount, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			invoiceID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.Discount, line.LineTotal).Scan(&line.ID); err != nil {
			return err
		}

		if err := recompute(ctx, tx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	return result, err
}

// RemoveLine deletes a line from a draft invoice and recomputes totals.
func (r *Repository) RemoveLine(ctx context.Context, invoiceID, lineID int64) (*Invoice, error) {
	var result *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled || !inv.Status.Editable() {
			return ErrNotEditable
		}

		tag, err := tx.Exec(ctx, `DELETE FROM sale_invoice_lines WHERE id = $1 AND invoice_id = $2`, lineID, invoiceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrLineNotFound
		}

		if err := recompute(ctx, tx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	return result, err
}

// UpdateAdjustments changes document-level modifiers on a draft invoice.
func (r *Repository) UpdateAdjustments(ctx context.Context, invoiceID int64, apply func(*Invoice) error) (*Invoice, error) {
	var result *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled || !inv.Status.Editable() {
			return ErrNotEditable
		}
		if err := apply(inv); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE sale_invoices SET discount = $1, trade_in = $2, tax_rate = $3, delivery_cost = $4, delivery_state = $5, updated_at = NOW()
WHERE id = $6`, inv.Discount, inv.TradeIn, inv.TaxRate, inv.DeliveryCost, inv.DeliveryState, invoiceID)
		if err != nil {
			return err
		}

		if err := recompute(ctx, tx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	return result, err
}

// Confirm moves a draft with at least one line to CONFIRMED.
func (r *Repository) Confirm(ctx context.Context, invoiceID int64) (*Invoice, error) {
	var result *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled {
			return ErrAlreadyCancelled
		}
		if inv.Status != docmath.StatusDraft {
			return ErrNotEditable
		}

		var lineCount int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM sale_invoice_lines WHERE invoice_id = $1`, invoiceID).Scan(&lineCount); err != nil {
			return err
		}
		if lineCount == 0 {
			return ErrEmptyDocument
		}

		inv.Status = docmath.StatusConfirmed
		if err := recompute(ctx, tx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	return result, err
}

// Cancel soft-deletes the invoice. The row and its lines are preserved.
func (r *Repository) Cancel(ctx context.Context, invoiceID int64) (*Invoice, error) {
	var result *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled {
			return ErrAlreadyCancelled
		}

		_, err = tx.Exec(ctx, `UPDATE sale_invoices SET is_cancelled = TRUE, status = $1, updated_at = NOW() WHERE id = $2`,
			docmath.StatusCancelled, invoiceID)
		if err != nil {
			return err
		}
		inv.IsCancelled = true
		inv.Status = docmath.StatusCancelled
		result = inv
		return nil
	})
	return result, err
}

// CompleteDelivery marks the delivery leg done and re-derives the status.
func (r *Repository) CompleteDelivery(ctx context.Context, invoiceID int64) (*Invoice, error) {
	var result *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled {
			return ErrAlreadyCancelled
		}
		if inv.DeliveryState != docmath.DeliveryPending {
			return ErrNotEditable
		}

		inv.DeliveryState = docmath.DeliveryCompleted
		_, err = tx.Exec(ctx, `UPDATE sale_invoices SET delivery_state = $1, updated_at = NOW() WHERE id = $2`,
			docmath.DeliveryCompleted, invoiceID)
		if err != nil {
			return err
		}
		if err := recompute(ctx, tx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	return result, err
}

// RegisterPayment settles amount against the invoice under a row lock.
// The duplicate check rejects a same-user same-amount payment within the
// window; the raw insert error escapes for reference retry handling.
func (r *Repository) RegisterPayment(ctx context.Context, p Payment, dupWindow time.Duration) (*Invoice, *Payment, error) {
	var (
		invoice *Invoice
		payment *Payment
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, p.InvoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled || inv.Status == docmath.StatusDraft {
			return ErrNotPayable
		}
		if p.Amount.GreaterThan(inv.BalanceDue) {
			return ErrOverpayment
		}

		var dup bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM sale_payments
WHERE invoice_id = $1 AND received_by = $2 AND amount = $3 AND created_at > NOW() - $4::interval)`,
			p.InvoiceID, p.ReceivedBy, p.Amount, dupWindow.String()).Scan(&dup); err != nil {
			return err
		}
		if dup {
			return ErrDuplicatePayment
		}

		if err := tx.QueryRow(ctx, `INSERT INTO sale_payments (reference, invoice_id, amount, method, received_by, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
			p.Reference, p.InvoiceID, p.Amount, p.Method, p.ReceivedBy).Scan(&p.ID, &p.CreatedAt); err != nil {
			return err
		}

		inv.AmountPaid = inv.AmountPaid.Add(p.Amount).Round(2)
		_, err = tx.Exec(ctx, `UPDATE sale_invoices SET amount_paid = $1, updated_at = NOW() WHERE id = $2`, inv.AmountPaid, p.InvoiceID)
		if err != nil {
			return err
		}
		if err := recompute(ctx, tx, inv); err != nil {
			return err
		}

		invoice = inv
		payment = &p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return invoice, payment, nil
}

// Payments lists the payments recorded against an invoice.
func (r *Repository) Payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, reference, invoice_id, amount, method, received_by, created_at
FROM sale_payments WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Reference, &p.InvoiceID, &p.Amount, &p.Method, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
