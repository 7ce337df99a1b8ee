package catalog

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
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = fmt.Errorf("catalog: %w", httpx.ErrNotFound)
	// ErrInsufficientStock indicates an adjustment would drive stock negative.
	ErrInsufficientStock = fmt.Errorf("catalog: insufficient stock: %w", httpx.ErrConflict)
)

const productColumns = `id, reference, kind, name, description, metal, weight_grams, karat, price, cost_price, stock_qty, low_stock_threshold, is_active, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountCreatedOn counts products created on the given day, across kinds.
// Reference uniqueness holds per kind tag, counting per day is enough
// because the sequencer retries on collisions.
func (r *Repository) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE created_at::date = $1::date`, day).Scan(&n)
	return n, err
}

// Insert persists a new product with the candidate reference. The raw
// database error is returned unchanged for unique-violation detection.
func (r *Repository) Insert(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (reference, kind, name, description, metal, weight_grams, karat, price, cost_price, stock_qty, low_stock_threshold, is_active, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12, NOW(), NOW()) RETURNING id`,
		p.Reference, p.Kind, p.Name, p.Description, p.Metal, p.WeightGrams, p.Karat, p.Price, p.CostPrice, p.StockQty, p.LowStockThreshold, p.CreatedBy).Scan(&id)
	return id, err
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Reference, &p.Kind, &p.Name, &p.Description, &p.Metal, &p.WeightGrams, &p.Karat, &p.Price, &p.CostPrice, &p.StockQty, &p.LowStockThreshold, &p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Get loads a product by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// List returns a filtered page of products plus the total match count.
func (r *Repository) List(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if req.Search != nil && *req.Search != "" {
		args = append(args, "%"+*req.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR reference ILIKE $%d)", len(args), len(args)))
	}
	if req.Kind != nil {
		args = append(args, *req.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if req.LowStock {
		where = append(where, "stock_qty <= low_stock_threshold")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+clause, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, productColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *p)
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
	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete deactivates the product while preserving the row.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock moves stock by delta. The guard in the WHERE clause keeps
// stock from going negative under concurrent decrements.
func (r *Repository) AdjustStock(ctx context.Context, id int64, delta int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET stock_qty = stock_qty + $1, updated_at = NOW()
WHERE id = $2 AND stock_qty + $1 >= 0`, delta, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}
