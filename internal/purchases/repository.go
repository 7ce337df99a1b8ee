package purchases

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

const orderColumns = `id, reference, supplier_id, status, is_cancelled,
subtotal, discount, tax_rate, tax_amount, total_amount, amount_paid, balance_due,
notes, received_at, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountCreatedOn counts orders created on the given day.
func (r *Repository) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// CountPaymentsOn counts supplier payments created on the given day.
func (r *Repository) CountPaymentsOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_payments WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// Insert persists a fresh draft order. The raw database error is
// returned unchanged for unique-violation detection.
func (r *Repository) Insert(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO purchase_orders
(reference, supplier_id, status, is_cancelled, subtotal, discount, tax_rate, tax_amount, total_amount, amount_paid, balance_due, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, FALSE, 0, 0, 0, 0, 0, 0, 0, $4, $5, NOW(), NOW()) RETURNING id`,
		o.Reference, o.SupplierID, OrderDraft, o.Notes, o.CreatedBy).Scan(&id)
	return id, err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Reference, &o.SupplierID, &o.Status, &o.IsCancelled,
		&o.Subtotal, &o.Discount, &o.TaxRate, &o.TaxAmount, &o.TotalAmount, &o.AmountPaid, &o.BalanceDue,
		&o.Notes, &o.ReceivedAt, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_cost, line_total
FROM purchase_order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitCost, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads an order and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	o.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// List returns a filtered page of orders plus the total match count.
func (r *Repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if req.SupplierID != nil {
		args = append(args, *req.SupplierID)
		where = append(where, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if req.Status != nil {
		args = append(args, *req.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE `+clause, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func lockOrder(ctx context.Context, tx pgx.Tx, id int64) (*Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
}

func recompute(ctx context.Context, tx pgx.Tx, o *Order) error {
	lines, err := loadLines(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	lineTotals := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		lineTotals[i] = l.LineTotal
	}
	totals := docmath.Compute(lineTotals, docmath.Adjustments{
		Discount: o.Discount,
		TaxRate:  o.TaxRate,
	})
	balance := docmath.BalanceDue(totals.Total, o.AmountPaid)

	_, err = tx.Exec(ctx, `UPDATE purchase_orders SET
subtotal = $1, tax_amount = $2, total_amount = $3, balance_due = $4, updated_at = NOW()
WHERE id = $5`, totals.Subtotal, totals.TaxAmount, totals.Total, balance, o.ID)
	if err != nil {
		return err
	}

	o.Lines = lines
	o.Subtotal = totals.Subtotal
	o.TaxAmount = totals.TaxAmount
	o.TotalAmount = totals.Total
	o.BalanceDue = balance
	return nil
}

// AddLine appends a line to a draft order and recomputes totals.
func (r *Repository) AddLine(ctx context.Context, orderID int64, line OrderLine) (*Order, error) {
	var result *Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsCancelled || o.Status != OrderDraft {
			return ErrNotEditable
		}

		var productOK bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND is_active)`, line.ProductID).Scan(&productOK); err != nil {
			return err
		}
		if !productOK {
			return ErrUnknownProduct
		}

		if err := tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, product_id, quantity, unit_cost, line_total)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			orderID, line.ProductID, line.Quantity, line.UnitCost, line.LineTotal).Scan(&line.ID); err != nil {
			return err
		}

		if err := recompute(ctx, tx, o); err != nil {
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// RemoveLine deletes a line from a draft order and recomputes totals.
func (r *Repository) RemoveLine(ctx context.Context, orderID, lineID int64) (*Order, error) {
	var result *Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsCancelled || o.Status != OrderDraft {
			return ErrNotEditable
		}

		tag, err := tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE id = $1 AND order_id = $2`, lineID, orderID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrLineNotFound
		}

		if err := recompute(ctx, tx, o); err != nil {
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// UpdateAdjustments changes modifiers on a draft order.
func (r *Repository) UpdateAdjustments(ctx context.Context, orderID int64, apply func(*Order) error) (*Order, error) {
	var result *Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsCancelled || o.Status != OrderDraft {
			return ErrNotEditable
		}
		if err := apply(o); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE purchase_orders SET discount = $1, tax_rate = $2, updated_at = NOW() WHERE id = $3`,
			o.Discount, o.TaxRate, orderID)
		if err != nil {
			return err
		}
		if err := recompute(ctx, tx, o); err != nil {
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// Confirm moves a draft with at least one line to CONFIRMED.
func (r *Repository) Confirm(ctx context.Context, orderID int64) (*Order, error) {
	var result *Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsCancelled {
			return ErrAlreadyCancelled
		}
		if o.Status != OrderDraft {
			return ErrNotEditable
		}

		var lineCount int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_order_lines WHERE order_id = $1`, orderID).Scan(&lineCount); err != nil {
			return err
		}
		if lineCount == 0 {
			return ErrEmptyDocument
		}

		_, err = tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE id = $2`, OrderConfirmed, orderID)
		if err != nil {
			return err
		}
		o.Status = OrderConfirmed
		result = o
		return nil
	})
	return result, err
}

// Receive marks a confirmed order received and moves each line's
// quantity into catalog stock, all in one transaction.
func (r *Repository) Receive(ctx context.Context, orderID int64) (*Order, error) {
	var result *Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsCancelled {
			return ErrAlreadyCancelled
		}
		if o.Status != OrderConfirmed {
			return ErrNotReceivable
		}

		lines, err := loadLines(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := tx.Exec(ctx, `UPDATE products SET stock_qty = stock_qty + $1, updated_at = NOW() WHERE id = $2`,
				l.Quantity, l.ProductID); err != nil {
				return err
			}
		}

		var receivedAt time.Time
		if err := tx.QueryRow(ctx, `UPDATE purchase_orders SET status = $1, received_at = NOW(), updated_at = NOW()
WHERE id = $2 RETURNING received_at`, OrderReceived, orderID).Scan(&receivedAt); err != nil {
			return err
		}
		o.Status = OrderReceived
		o.ReceivedAt = &receivedAt
		o.Lines = lines
		result = o
		return nil
	})
	return result, err
}

// Cancel soft-deletes the order. Received orders cannot be cancelled.
func (r *Repository) Cancel(ctx context.Context, orderID int64) (*Order, error) {
	var result *Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsCancelled {
			return ErrAlreadyCancelled
		}
		if o.Status == OrderReceived {
			return ErrNotEditable
		}

		_, err = tx.Exec(ctx, `UPDATE purchase_orders SET is_cancelled = TRUE, status = $1, updated_at = NOW() WHERE id = $2`,
			OrderCancelled, orderID)
		if err != nil {
			return err
		}
		o.IsCancelled = true
		o.Status = OrderCancelled
		result = o
		return nil
	})
	return result, err
}

// RegisterPayment settles amount against the order under a row lock with
// the same duplicate guard as sale payments.
func (r *Repository) RegisterPayment(ctx context.Context, p SupplierPayment, dupWindow time.Duration) (*Order, *SupplierPayment, error) {
	var (
		order   *Order
		payment *SupplierPayment
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		if o.IsCancelled || o.Status == OrderDraft {
			return ErrNotPayable
		}
		if p.Amount.GreaterThan(o.BalanceDue) {
			return ErrOverpayment
		}

		var dup bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM purchase_payments
WHERE order_id = $1 AND paid_by = $2 AND amount = $3 AND created_at > NOW() - $4::interval)`,
			p.OrderID, p.PaidBy, p.Amount, dupWindow.String()).Scan(&dup); err != nil {
			return err
		}
		if dup {
			return ErrDuplicatePayment
		}

		if err := tx.QueryRow(ctx, `INSERT INTO purchase_payments (reference, order_id, amount, method, paid_by, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
			p.Reference, p.OrderID, p.Amount, p.Method, p.PaidBy).Scan(&p.ID, &p.CreatedAt); err != nil {
			return err
		}

		o.AmountPaid = o.AmountPaid.Add(p.Amount).Round(2)
		o.BalanceDue = docmath.BalanceDue(o.TotalAmount, o.AmountPaid)
		_, err = tx.Exec(ctx, `UPDATE purchase_orders SET amount_paid = $1, balance_due = $2, updated_at = NOW() WHERE id = $3`,
			o.AmountPaid, o.BalanceDue, p.OrderID)
		if err != nil {
			return err
		}

		order = o
		payment = &p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, payment, nil
}

// Payments lists the supplier payments recorded against an order.
func (r *Repository) Payments(ctx context.Context, orderID int64) ([]SupplierPayment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, reference, order_id, amount, method, paid_by, created_at
FROM purchase_payments WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SupplierPayment
	for rows.Next() {
		var p SupplierPayment
		if err := rows.Scan(&p.ID, &p.Reference, &p.OrderID, &p.Amount, &p.Method, &p.PaidBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
