package repairs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/db"
)

const ticketColumns = `id, reference, client_id, contact_phone, item_description, problem_description, status,
estimated_cost, final_cost, deposit_paid, promised_at, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for repair tickets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountCreatedOn counts tickets created on the given day.
func (r *Repository) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM repair_tickets WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// Insert persists a new ticket with the candidate reference. The raw
// database error is returned unchanged for unique-violation detection.
func (r *Repository) Insert(ctx context.Context, t Ticket) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO repair_tickets
(reference, client_id, contact_phone, item_description, problem_description, status, estimated_cost, final_cost, deposit_paid, promised_at, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, $9, NOW(), NOW()) RETURNING id`,
		t.Reference, t.ClientID, t.ContactPhone, t.ItemDesc, t.ProblemDesc, TicketReceived, t.EstimatedCost, t.PromisedAt, t.CreatedBy).Scan(&id)
	return id, err
}

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.Reference, &t.ClientID, &t.ContactPhone, &t.ItemDesc, &t.ProblemDesc, &t.Status,
		&t.EstimatedCost, &t.FinalCost, &t.DepositPaid, &t.PromisedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Get loads a ticket by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM repair_tickets WHERE id = $1`, id))
}

// List returns a filtered page of tickets plus the total match count.
func (r *Repository) List(ctx context.Context, req ListTicketsRequest) ([]Ticket, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM repair_tickets WHERE `+clause, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM repair_tickets WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		ticketColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// Mutate runs fn against the row-locked ticket and persists the ticket
// fields fn may have changed.
func (r *Repository) Mutate(ctx context.Context, id int64, fn func(*Ticket) error) (*Ticket, error) {
	var result *Ticket
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		t, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM repair_tickets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE repair_tickets SET
item_description = $1, problem_description = $2, status = $3, estimated_cost = $4, final_cost = $5, deposit_paid = $6, promised_at = $7, updated_at = NOW()
WHERE id = $8`, t.ItemDesc, t.ProblemDesc, t.Status, t.EstimatedCost, t.FinalCost, t.DepositPaid, t.PromisedAt, id)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}
