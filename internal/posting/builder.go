package posting

import (
	"fmt"
	"math"
	"time"

	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// BuildEntry assembles the balanced journal entry for a classified event.
// The caller supplies the allocated journal number; account existence is
// verified by the orchestrator against the chart of accounts before insert.
// The balance check is mandatory: a mismatch is rejected, never adjusted.
func BuildEntry(rule PostingRule, input PostInput, journalNo string, postingDate time.Time) (ledger.JournalEntry, error) {
	amount := round2(input.Payload.Amount)
	if amount <= 0 {
		return ledger.JournalEntry{}, ledger.ErrInvalidAmount
	}
	entry := ledger.JournalEntry{
		JournalNo:   journalNo,
		PostingDate: postingDate,
		SourceType:  input.SourceType,
		SourceNo:    input.SourceNo,
		Description: describe(input, amount),
		Lines: []ledger.JournalLine{
			{AccountCode: rule.DebitAccount, Debit: amount, ProjectID: input.Payload.ProjectID},
			{AccountCode: rule.CreditAccount, Credit: amount, ProjectID: input.Payload.ProjectID},
		},
	}
	if err := entry.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

func describe(input PostInput, amount float64) string {
	if input.Payload.Description != "" {
		return input.Payload.Description
	}
	return fmt.Sprintf("%s %s %s", input.EventType, input.SourceNo, shared.FormatAmount(amount))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
