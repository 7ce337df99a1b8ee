package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads reporting aggregates from the sales tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DailySummary aggregates confirmed, non-cancelled invoices issued on
// the given day plus the payments received that day.
func (r *Repository) DailySummary(ctx context.Context, day time.Time) (*DailySummary, error) {
	s := DailySummary{Day: day, Revenue: decimal.Zero, Collected: decimal.Zero, Outstanding: decimal.Zero}

	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(balance_due), 0)
FROM sale_invoices
WHERE created_at::date = $1::date AND status <> 'DRAFT' AND is_cancelled = FALSE`, day).
		Scan(&s.InvoiceCount, &s.Revenue, &s.Outstanding)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(p.amount), 0)
FROM sale_payments p
JOIN sale_invoices i ON i.id = p.invoice_id
WHERE p.created_at::date = $1::date AND i.is_cancelled = FALSE`, day).
		Scan(&s.Collected)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Register lists non-draft invoices issued in [from, to), newest first.
func (r *Repository) Register(ctx context.Context, req RegisterRequest) ([]RegisterRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.reference, COALESCE(c.name, 'Walk-in'), i.status, i.created_at, i.total_amount, i.amount_paid, i.balance_due
FROM sale_invoices i
LEFT JOIN clients c ON c.id = i.client_id
WHERE i.created_at >= $1 AND i.created_at < $2 AND i.status <> 'DRAFT' AND i.is_cancelled = FALSE
ORDER BY i.created_at DESC, i.id DESC`, req.From, req.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegisterRow
	for rows.Next() {
		var row RegisterRow
		if err := rows.Scan(&row.InvoiceID, &row.Reference, &row.ClientLabel, &row.Status, &row.IssuedAt, &row.Total, &row.Paid, &row.Balance); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
