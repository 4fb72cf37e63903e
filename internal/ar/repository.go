package ar

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed read access to AR open items.
// Mutations happen inside the posting engine's transaction, not here.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const openItemColumns = `id, customer_id, source_doc_id, original_amount, balance_amount, due_at, status, created_at, updated_at`

// ListOpenItemsRequest filters open item listings.
type ListOpenItemsRequest struct {
	CustomerID int64
	Status     ItemStatus
	Limit      int
	Offset     int
}

// GetOpenItem retrieves an item by ID.
func (r *Repository) GetOpenItem(ctx context.Context, id int64) (OpenItem, error) {
	var item OpenItem
	err := r.pool.QueryRow(ctx, `SELECT `+openItemColumns+` FROM ar_open_items WHERE id=$1`, id).
		Scan(&item.ID, &item.CustomerID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OpenItem{}, ErrItemNotFound
		}
		return OpenItem{}, err
	}
	return item, nil
}

// FindBySourceDoc retrieves the item created for a source document.
func (r *Repository) FindBySourceDoc(ctx context.Context, sourceDocID int64) (OpenItem, error) {
	var item OpenItem
	err := r.pool.QueryRow(ctx, `SELECT `+openItemColumns+` FROM ar_open_items WHERE source_doc_id=$1`, sourceDocID).
		Scan(&item.ID, &item.CustomerID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OpenItem{}, ErrItemNotFound
		}
		return OpenItem{}, err
	}
	return item, nil
}

// ListOpenItems returns items with optional filtering.
func (r *Repository) ListOpenItems(ctx context.Context, req ListOpenItemsRequest) ([]OpenItem, error) {
	query := `SELECT ` + openItemColumns + ` FROM ar_open_items WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}

	query += " ORDER BY due_at ASC, id ASC"

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OpenItem
	for rows.Next() {
		var item OpenItem
		if err := rows.Scan(&item.ID, &item.CustomerID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListOutstanding returns items still carrying a balance.
func (r *Repository) ListOutstanding(ctx context.Context) ([]OpenItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+openItemColumns+` FROM ar_open_items WHERE status <> 'CLOSED' ORDER BY due_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OpenItem
	for rows.Next() {
		var item OpenItem
		if err := rows.Scan(&item.ID, &item.CustomerID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
