package posting

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/db"
)

// Repository persists posting engine entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one posting transaction.
type TxRepository interface {
	GetAccountByCode(ctx context.Context, code string) (ledger.GLAccount, error)
	NextDocumentSeq(ctx context.Context, prefix string, year int) (int64, error)
	InsertJournalEntry(ctx context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error)
	InsertJournalLines(ctx context.Context, journalID int64, lines []ledger.JournalLine) error
	GetJournalWithLines(ctx context.Context, journalID int64) (ledger.JournalEntry, error)
	FindEventByKey(ctx context.Context, sourceType, sourceNo string, eventType EventType) (*AccountingEvent, error)
	InsertEvent(ctx context.Context, ev AccountingEvent) error
	LinkEventJournal(ctx context.Context, eventID uuid.UUID, journalID int64) error
	CreateAROpenItem(ctx context.Context, item ar.OpenItem) (ar.OpenItem, error)
	GetAROpenItemForUpdate(ctx context.Context, sourceDocID int64) (ar.OpenItem, error)
	UpdateAROpenItem(ctx context.Context, item ar.OpenItem) error
	CreateAPOpenItem(ctx context.Context, item ap.OpenItem) (ap.OpenItem, error)
	GetAPOpenItemForUpdate(ctx context.Context, sourceDocID int64) (ap.OpenItem, error)
	UpdateAPOpenItem(ctx context.Context, item ap.OpenItem) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("posting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetJournalByNo retrieves a journal entry by document number outside a
// posting transaction. Used by the read-side journal lookup.
func (r *Repository) GetJournalByNo(ctx context.Context, journalNo string) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	err := r.pool.QueryRow(ctx, `SELECT id, journal_no, posting_date, source_type, source_no, description, created_at
FROM journal_entries WHERE journal_no=$1`, journalNo).
		Scan(&entry.ID, &entry.JournalNo, &entry.PostingDate, &entry.SourceType, &entry.SourceNo, &entry.Description, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.JournalEntry{}, ledger.ErrJournalNotFound
		}
		return ledger.JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.pool, entry.ID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, journalID int64) ([]ledger.JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_id, account_code, debit, credit, project_id
FROM journal_lines WHERE journal_id=$1 ORDER BY id ASC`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []ledger.JournalLine
	for rows.Next() {
		var line ledger.JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountCode, &line.Debit, &line.Credit, &line.ProjectID); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (ledger.GLAccount, error) {
	var account ledger.GLAccount
	err := r.tx.QueryRow(ctx, `SELECT code, name, account_type, normal_balance FROM gl_accounts WHERE code=$1`, code).
		Scan(&account.Code, &account.Name, &account.Type, &account.NormalBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.GLAccount{}, ledger.ErrAccountNotFound
		}
		return ledger.GLAccount{}, err
	}
	return account, nil
}

// NextDocumentSeq allocates the next number for (prefix, year). The upsert
// takes a row lock, so concurrent callers serialize and never observe the
// same value.
func (r *txRepository) NextDocumentSeq(ctx context.Context, prefix string, year int) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO document_sequences (prefix, year, last_no) VALUES ($1, $2, 1)
ON CONFLICT (prefix, year) DO UPDATE SET last_no = document_sequences.last_no + 1
RETURNING last_no`, prefix, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (journal_no, posting_date, source_type, source_no, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, entry.JournalNo, entry.PostingDate, entry.SourceType, entry.SourceNo, entry.Description)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, journalID int64, lines []ledger.JournalLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (journal_id, account_code, debit, credit, project_id)
VALUES ($1,$2,$3,$4,$5)`, journalID, line.AccountCode, line.Debit, line.Credit, line.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, journalID int64) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	err := r.tx.QueryRow(ctx, `SELECT id, journal_no, posting_date, source_type, source_no, description, created_at
FROM journal_entries WHERE id=$1`, journalID).
		Scan(&entry.ID, &entry.JournalNo, &entry.PostingDate, &entry.SourceType, &entry.SourceNo, &entry.Description, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.JournalEntry{}, ledger.ErrJournalNotFound
		}
		return ledger.JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.tx, entry.ID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) FindEventByKey(ctx context.Context, sourceType, sourceNo string, eventType EventType) (*AccountingEvent, error) {
	var ev AccountingEvent
	err := r.tx.QueryRow(ctx, `SELECT id, event_type, source_type, source_no, journal_entry_id, created_at
FROM accounting_events WHERE source_type=$1 AND source_no=$2 AND event_type=$3`, sourceType, sourceNo, eventType).
		Scan(&ev.ID, &ev.EventType, &ev.SourceType, &ev.SourceNo, &ev.JournalEntryID, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// InsertEvent reserves the idempotency key. A unique violation means a
// concurrent caller won the reservation.
func (r *txRepository) InsertEvent(ctx context.Context, ev AccountingEvent) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounting_events (id, event_type, source_type, source_no, created_at)
VALUES ($1,$2,$3,$4,$5)`, ev.ID, ev.EventType, ev.SourceType, ev.SourceNo, ev.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEventConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) LinkEventJournal(ctx context.Context, eventID uuid.UUID, journalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_events SET journal_entry_id=$2 WHERE id=$1`, eventID, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errors.New("posting: event record vanished before link")
	}
	return nil
}

func (r *txRepository) CreateAROpenItem(ctx context.Context, item ar.OpenItem) (ar.OpenItem, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ar_open_items (customer_id, source_doc_id, original_amount, balance_amount, due_at, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		item.CustomerID, item.SourceDocID, item.OriginalAmount, item.BalanceAmount, item.DueAt, item.Status)
	if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return ar.OpenItem{}, err
	}
	return item, nil
}

func (r *txRepository) GetAROpenItemForUpdate(ctx context.Context, sourceDocID int64) (ar.OpenItem, error) {
	var item ar.OpenItem
	err := r.tx.QueryRow(ctx, `SELECT id, customer_id, source_doc_id, original_amount, balance_amount, due_at, status, created_at, updated_at
FROM ar_open_items WHERE source_doc_id=$1 FOR UPDATE`, sourceDocID).
		Scan(&item.ID, &item.CustomerID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ar.OpenItem{}, ar.ErrItemNotFound
		}
		return ar.OpenItem{}, err
	}
	return item, nil
}

func (r *txRepository) UpdateAROpenItem(ctx context.Context, item ar.OpenItem) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ar_open_items SET balance_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		item.ID, item.BalanceAmount, item.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ar.ErrItemNotFound
	}
	return nil
}

func (r *txRepository) CreateAPOpenItem(ctx context.Context, item ap.OpenItem) (ap.OpenItem, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ap_open_items (supplier_id, source_doc_id, original_amount, balance_amount, due_at, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		item.SupplierID, item.SourceDocID, item.OriginalAmount, item.BalanceAmount, item.DueAt, item.Status)
	if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return ap.OpenItem{}, err
	}
	return item, nil
}

func (r *txRepository) GetAPOpenItemForUpdate(ctx context.Context, sourceDocID int64) (ap.OpenItem, error) {
	var item ap.OpenItem
	err := r.tx.QueryRow(ctx, `SELECT id, supplier_id, source_doc_id, original_amount, balance_amount, due_at, status, created_at, updated_at
FROM ap_open_items WHERE source_doc_id=$1 FOR UPDATE`, sourceDocID).
		Scan(&item.ID, &item.SupplierID, &item.SourceDocID, &item.OriginalAmount, &item.BalanceAmount, &item.DueAt, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ap.OpenItem{}, ap.ErrItemNotFound
		}
		return ap.OpenItem{}, err
	}
	return item, nil
}

func (r *txRepository) UpdateAPOpenItem(ctx context.Context, item ap.OpenItem) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ap_open_items SET balance_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		item.ID, item.BalanceAmount, item.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ap.ErrItemNotFound
	}
	return nil
}
