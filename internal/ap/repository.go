package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed read access to AP open items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const openItemColumns = `id, supplier_id, source_doc_id, original_amount, balance_amount, due_at, status, created_at, updated_at`

// ListOpenItemsRequest filters open item listings.
type ListOpenItemsRequest struct {
	SupplierID int64
	Status     ItemStatus
	Limit      int
	Offset     int
}

func scanItem(row pgx.Row) (OpenItem, error) {
	var item OpenItem
	err := row.Scan(&item.ID, &item.SupplierID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OpenItem{}, ErrItemNotFound
		}
		return OpenItem{}, err
	}
	return item, nil
}

// GetOpenItem retrieves an item by ID.
func (r *Repository) GetOpenItem(ctx context.Context, id int64) (OpenItem, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+openItemColumns+` FROM ap_open_items WHERE id=$1`, id))
}

// FindBySourceDoc retrieves the item created for a source document.
func (r *Repository) FindBySourceDoc(ctx context.Context, sourceDocID int64) (OpenItem, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+openItemColumns+` FROM ap_open_items WHERE source_doc_id=$1`, sourceDocID))
}

// ListOpenItems returns items with optional filtering.
func (r *Repository) ListOpenItems(ctx context.Context, req ListOpenItemsRequest) ([]OpenItem, error) {
	query := `SELECT ` + openItemColumns + ` FROM ap_open_items WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.SupplierID > 0 {
		query += fmt.Sprintf(" AND supplier_id = $%d", argNum)
		args = append(args, req.SupplierID)
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
		if err := rows.Scan(&item.ID, &item.SupplierID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListOutstanding returns items still carrying a balance.
func (r *Repository) ListOutstanding(ctx context.Context) ([]OpenItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+openItemColumns+` FROM ap_open_items WHERE status <> 'CLOSED' ORDER BY due_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OpenItem
	for rows.Next() {
		var item OpenItem
		if err := rows.Scan(&item.ID, &item.SupplierID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
