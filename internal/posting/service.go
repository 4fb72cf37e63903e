package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournalByNo(ctx context.Context, journalNo string) (ledger.JournalEntry, error)
}

// AuditPort records posting events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	RecordPosting(eventType, outcome string)
}

// CacheInvalidator drops a read-side snapshot after a subledger mutation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

const (
	defaultDueDays = 30

	// serializationRetries bounds the reruns of a posting transaction that
	// aborted on concurrent row contention.
	serializationRetries = 2
)

// Service is the posting orchestrator. One call, one transaction: idempotency
// reservation, journal creation and subledger mutation commit or roll back
// together. The service keeps no state between calls.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	arCache CacheInvalidator
	apCache CacheInvalidator
	dueDays int
	now     func() time.Time
}

// NewService constructs the posting service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, dueDays: defaultDueDays, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithDueDays overrides the default payment terms applied when a payload
// omits a due date.
func (s *Service) WithDueDays(days int) {
	if days > 0 {
		s.dueDays = days
	}
}

// WithAgingCaches wires the AR/AP aging snapshot caches for invalidation.
func (s *Service) WithAgingCaches(arCache, apCache CacheInvalidator) {
	s.arCache = arCache
	s.apCache = apCache
}

// PostEvent converts one business event into a balanced journal entry plus
// its subledger effect. Replaying an already posted key returns the original
// result; two concurrent calls for the same key produce exactly one entry.
func (s *Service) PostEvent(ctx context.Context, input PostInput) (PostResult, error) {
	rule, err := Classify(input.EventType)
	if err != nil {
		s.record(input, "rejected")
		return PostResult{}, err
	}
	rule = rule.Resolve(input.Payload)
	if err := input.Validate(); err != nil {
		s.record(input, "rejected")
		return PostResult{}, err
	}

	var res PostResult
	post := func() error {
		res = PostResult{}
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return s.postOnce(ctx, tx, rule, input, &res)
		})
	}
	err = post()
	for attempt := 0; attempt < serializationRetries && isSerializationFailure(err); attempt++ {
		err = post()
	}
	if errors.Is(err, ErrEventConflict) {
		// Lost the reservation race; the winner's committed result is
		// authoritative and this retry must observe it.
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			existing, ferr := tx.FindEventByKey(ctx, input.SourceType, input.SourceNo, input.EventType)
			if ferr != nil {
				return ferr
			}
			if existing == nil {
				return fmt.Errorf("posting: reservation conflict for %s:%s:%s but no committed event", input.SourceType, input.SourceNo, input.EventType)
			}
			return s.replay(ctx, tx, rule, input, *existing, &res)
		})
	}
	if err != nil {
		s.record(input, outcomeFor(err))
		return PostResult{}, err
	}

	if res.Replayed {
		s.record(input, "replayed")
		return res, nil
	}

	s.record(input, "posted")
	s.invalidateCaches(ctx, res)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "posting.post",
			Entity:   "journal_entry",
			EntityID: res.JournalEntry.JournalNo,
			Meta: map[string]any{
				"event_type": string(input.EventType),
				"event_key":  res.Event.Key(),
				"amount":     res.JournalEntry.TotalDebit(),
			},
			At: s.now(),
		})
	}
	return res, nil
}

func (s *Service) postOnce(ctx context.Context, tx TxRepository, rule PostingRule, input PostInput, res *PostResult) error {
	existing, err := tx.FindEventByKey(ctx, input.SourceType, input.SourceNo, input.EventType)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.replay(ctx, tx, rule, input, *existing, res)
	}

	now := s.now()
	ev := AccountingEvent{
		ID:         uuid.New(),
		EventType:  input.EventType,
		SourceType: input.SourceType,
		SourceNo:   input.SourceNo,
		CreatedAt:  now,
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return err
	}

	if _, err := tx.GetAccountByCode(ctx, rule.DebitAccount); err != nil {
		return err
	}
	if _, err := tx.GetAccountByCode(ctx, rule.CreditAccount); err != nil {
		return err
	}

	if err := s.applySubledger(ctx, tx, rule, input, now, res); err != nil {
		return err
	}

	seq, err := tx.NextDocumentSeq(ctx, ledger.PrefixJournal, now.Year())
	if err != nil {
		return fmt.Errorf("posting: allocate journal no: %w", err)
	}
	entry, err := BuildEntry(rule, input, ledger.FormatDocumentNo(ledger.PrefixJournal, now.Year(), seq), now)
	if err != nil {
		return err
	}
	inserted, err := tx.InsertJournalEntry(ctx, entry)
	if err != nil {
		return fmt.Errorf("posting: insert journal: %w", err)
	}
	if err := tx.InsertJournalLines(ctx, inserted.ID, entry.Lines); err != nil {
		return fmt.Errorf("posting: insert journal lines: %w", err)
	}
	if err := tx.LinkEventJournal(ctx, ev.ID, inserted.ID); err != nil {
		return err
	}

	ev.JournalEntryID = &inserted.ID
	res.JournalEntry = inserted
	res.Event = ev
	return nil
}

func (s *Service) applySubledger(ctx context.Context, tx TxRepository, rule PostingRule, input PostInput, now time.Time, res *PostResult) error {
	payload := input.Payload
	switch rule.Effect {
	case EffectCreateReceivable:
		item, err := newARItem(payload, s.dueDate(payload, now))
		if err != nil {
			return err
		}
		created, err := tx.CreateAROpenItem(ctx, item)
		if err != nil {
			return fmt.Errorf("posting: create ar item: %w", err)
		}
		res.ARItem = &created
	case EffectApplyReceivable:
		item, err := tx.GetAROpenItemForUpdate(ctx, payload.SourceDocID)
		if err != nil {
			return err
		}
		if err := item.Apply(payload.Amount); err != nil {
			return err
		}
		if err := tx.UpdateAROpenItem(ctx, item); err != nil {
			return fmt.Errorf("posting: update ar item: %w", err)
		}
		res.ARItem = &item
	case EffectCreatePayable:
		item, err := newAPItem(payload, s.dueDate(payload, now))
		if err != nil {
			return err
		}
		created, err := tx.CreateAPOpenItem(ctx, item)
		if err != nil {
			return fmt.Errorf("posting: create ap item: %w", err)
		}
		res.APItem = &created
	case EffectApplyPayable:
		item, err := tx.GetAPOpenItemForUpdate(ctx, payload.SourceDocID)
		if err != nil {
			return err
		}
		if err := item.Apply(payload.Amount); err != nil {
			return err
		}
		if err := tx.UpdateAPOpenItem(ctx, item); err != nil {
			return fmt.Errorf("posting: update ap item: %w", err)
		}
		res.APItem = &item
	}
	return nil
}

// replay reconstructs the original posting result for an already recorded key.
func (s *Service) replay(ctx context.Context, tx TxRepository, rule PostingRule, input PostInput, ev AccountingEvent, res *PostResult) error {
	if ev.JournalEntryID == nil {
		return fmt.Errorf("posting: event %s has no journal link", ev.ID)
	}
	entry, err := tx.GetJournalWithLines(ctx, *ev.JournalEntryID)
	if err != nil {
		return err
	}
	res.JournalEntry = entry
	res.Event = ev
	res.Replayed = true

	switch rule.Effect {
	case EffectCreateReceivable, EffectApplyReceivable:
		item, err := tx.GetAROpenItemForUpdate(ctx, input.Payload.SourceDocID)
		if err != nil {
			return err
		}
		res.ARItem = &item
	case EffectCreatePayable, EffectApplyPayable:
		item, err := tx.GetAPOpenItemForUpdate(ctx, input.Payload.SourceDocID)
		if err != nil {
			return err
		}
		res.APItem = &item
	}
	return nil
}

func newARItem(payload EventPayload, due time.Time) (ar.OpenItem, error) {
	return ar.NewOpenItem(payload.CounterpartyID, payload.SourceDocID, payload.Amount, due)
}

func newAPItem(payload EventPayload, due time.Time) (ap.OpenItem, error) {
	return ap.NewOpenItem(payload.CounterpartyID, payload.SourceDocID, payload.Amount, due)
}

// GetJournalByNo returns a journal entry by document number.
func (s *Service) GetJournalByNo(ctx context.Context, journalNo string) (ledger.JournalEntry, error) {
	return s.repo.GetJournalByNo(ctx, journalNo)
}

func (s *Service) dueDate(payload EventPayload, now time.Time) time.Time {
	if !payload.DueDate.IsZero() {
		return payload.DueDate
	}
	return now.AddDate(0, 0, s.dueDays)
}

func (s *Service) record(input PostInput, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPosting(string(input.EventType), outcome)
	}
}

func (s *Service) invalidateCaches(ctx context.Context, res PostResult) {
	if res.ARItem != nil && s.arCache != nil {
		_ = s.arCache.Invalidate(ctx)
	}
	if res.APItem != nil && s.apCache != nil {
		_ = s.apCache.Invalidate(ctx)
	}
}

// isSerializationFailure reports whether err is a Postgres serialization
// abort (SQLSTATE 40001). The aborted transaction committed nothing, so the
// whole posting can be rerun from scratch.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEventType),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrUnbalanced):
		return "rejected"
	default:
		return "failed"
	}
}
