package posting

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
)

// EventType enumerates the business events the engine knows how to post.
// The set is closed: anything else is rejected, never skipped.
type EventType string

const (
	EventOrderConfirmed   EventType = "ORDER_CONFIRMED"
	EventPaymentConfirmed EventType = "PAYMENT_CONFIRMED"
	EventGoodsReceived    EventType = "GOODS_RECEIVED"
	EventSupplierPaid     EventType = "SUPPLIER_PAID"
	EventMaterialIssued   EventType = "MATERIAL_ISSUED"
)

// EventPayload carries the event-specific fields of a posting request.
type EventPayload struct {
	Amount         float64
	CounterpartyID int64
	SourceDocID    int64
	DueDate        time.Time
	ProjectID      *int64
	RevenueAccount string
	ExpenseAccount string
	Description    string
}

// PostInput groups the fields required to post one accounting event.
type PostInput struct {
	EventType  EventType
	SourceType string
	SourceNo   string
	Payload    EventPayload
}

// AccountingEvent records one distinct posted event. The
// (source_type, source_no, event_type) triple is the idempotency key.
type AccountingEvent struct {
	ID             uuid.UUID
	EventType      EventType
	SourceType     string
	SourceNo       string
	JournalEntryID *int64
	CreatedAt      time.Time
}

// PostResult is what a posting attempt returns: the journal entry, the event
// record, and the open item the event created or applied against, if any.
// Replayed marks an idempotent retry that returned the original result.
type PostResult struct {
	JournalEntry ledger.JournalEntry
	Event        AccountingEvent
	ARItem       *ar.OpenItem
	APItem       *ap.OpenItem
	Replayed     bool
}

var (
	// ErrUnknownEventType indicates an event kind outside the closed set.
	ErrUnknownEventType = errors.New("posting: unknown event type")
	// ErrEventConflict indicates a concurrent reservation of the same key.
	ErrEventConflict = errors.New("posting: event already reserved")
)

// Validate checks the request-level invariants before any repository work.
func (in PostInput) Validate() error {
	if in.SourceType == "" {
		return errors.New("posting: source type required")
	}
	if in.SourceNo == "" {
		return errors.New("posting: source no required")
	}
	if in.Payload.Amount <= 0 {
		return ledger.ErrInvalidAmount
	}
	return nil
}

// Key renders the idempotency key for logging and audit metadata.
func (e AccountingEvent) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.SourceType, e.SourceNo, e.EventType)
}
