package ledger

import (
	"context"
	"fmt"
)

// PrefixJournal is the document prefix for journal entries.
const PrefixJournal = "JE"

// Sequencer allocates document numbers per (prefix, year) scope. Implementations
// must never hand out the same number twice, even under concurrent callers.
type Sequencer interface {
	Next(ctx context.Context, prefix string, year int) (int64, error)
}

// FormatDocumentNo renders a document number such as JE-2024-007.
func FormatDocumentNo(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}
