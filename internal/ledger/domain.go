package ledger

import (
	"errors"
	"fmt"
	"time"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance enumerates the side an account normally carries its balance on.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// GLAccount models a chart of accounts node. Reference data, never mutated here.
type GLAccount struct {
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
}

// JournalEntry captures one immutable, balanced posting.
type JournalEntry struct {
	ID          int64         `json:"id"`
	JournalNo   string        `json:"journal_no"`
	PostingDate time.Time     `json:"posting_date"`
	SourceType  string        `json:"source_type"`
	SourceNo    string        `json:"source_no"`
	Description string        `json:"description"`
	Lines       []JournalLine `json:"lines"`
	CreatedAt   time.Time     `json:"created_at"`
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID          int64   `json:"id"`
	JournalID   int64   `json:"journal_id"`
	AccountCode string  `json:"account_code"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	ProjectID   *int64  `json:"project_id,omitempty"`
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrAccountNotFound indicates a missing chart of accounts entry.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrJournalNotFound indicates a missing journal entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidAmount indicates a non-positive or malformed amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Validate rejects entries that would violate double-entry bookkeeping.
// Mismatched totals are an error, never silently adjusted.
func (e JournalEntry) Validate() error {
	if len(e.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range e.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	if e.SourceType == "" || e.SourceNo == "" {
		return errors.New("ledger: source reference required")
	}
	return nil
}

// TotalDebit sums the debit side of the entry.
func (e JournalEntry) TotalDebit() float64 {
	var total float64
	for _, line := range e.Lines {
		total += line.Debit
	}
	return total
}

// TotalCredit sums the credit side of the entry.
func (e JournalEntry) TotalCredit() float64 {
	var total float64
	for _, line := range e.Lines {
		total += line.Credit
	}
	return total
}
