package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the client does not exist.
	ErrNotFound = fmt.Errorf("clients: %w", httpx.ErrNotFound)
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountCreatedOn counts clients created on the given day.
func (r *Repository) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// Insert persists a new client with the candidate reference. The raw
// database error is returned unchanged so the sequencer can detect
// unique violations on the reference column.
func (r *Repository) Insert(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO clients (reference, name, phone, email, address, notes, is_active, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, NOW(), NOW()) RETURNING id`,
		c.Reference, c.Name, c.Phone, c.Email, c.Address, c.Notes, c.CreatedBy).Scan(&id)
	return id, err
}

// Get loads a client by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, reference, name, phone, email, address, notes, is_active, created_by, created_at, updated_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Reference, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns a filtered page of clients plus the total match count.
func (r *Repository) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if req.Search != nil && *req.Search != "" {
		args = append(args, "%"+*req.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR reference ILIKE $%d OR phone ILIKE $%d)", len(args), len(args), len(args)))
	}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE `+clause, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT id, reference, name, phone, email, address, notes, is_active, created_by, created_at, updated_at
FROM clients WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Reference, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// Update applies the provided column values.
func (r *Repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	set := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+1)
	for col, val := range updates {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	set = append(set, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE clients SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete deactivates the client while preserving the row.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE clients SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AggregateBalance sums active documents minus payments for the client.
// Cancelled (soft-deleted) invoices are excluded from both sides.
func (r *Repository) AggregateBalance(ctx context.Context, clientID int64) (Balance, error) {
	b := Balance{ClientID: clientID}
	err := r.pool.QueryRow(ctx, `
SELECT
  COALESCE(SUM(total_amount) FILTER (WHERE NOT is_cancelled AND status <> 'DRAFT'), 0),
  COALESCE(SUM(amount_paid) FILTER (WHERE NOT is_cancelled), 0)
FROM sale_invoices
WHERE client_id = $1`, clientID).Scan(&b.Invoiced, &b.Paid)
	if err != nil {
		return Balance{}, err
	}
	b.Outstanding = b.Invoiced.Sub(b.Paid).Round(2)
	return b, nil
}
