package posting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// memoryStore backs the posting service with map state. WithTx serialises
// callers and restores a snapshot when the closure fails, matching the
// all-or-nothing behaviour of the real transaction.
type memoryStore struct {
	mu            sync.Mutex
	accounts      map[string]ledger.GLAccount
	journals      map[int64]ledger.JournalEntry
	journalsByNo  map[string]int64
	sequences     map[string]int64
	events        map[string]AccountingEvent
	arItems       map[int64]ar.OpenItem
	apItems       map[int64]ap.OpenItem
	nextJournalID int64
	nextItemID    int64
}

func newMemoryStore() *memoryStore {
	s := &memoryStore{
		accounts:     make(map[string]ledger.GLAccount),
		journals:     make(map[int64]ledger.JournalEntry),
		journalsByNo: make(map[string]int64),
		sequences:    make(map[string]int64),
		events:       make(map[string]AccountingEvent),
		arItems:      make(map[int64]ar.OpenItem),
		apItems:      make(map[int64]ap.OpenItem),
	}
	for _, acc := range []ledger.GLAccount{
		{Code: AccountCash, Name: "Cash and Bank", Type: ledger.AccountTypeAsset},
		{Code: AccountReceivable, Name: "Accounts Receivable", Type: ledger.AccountTypeAsset},
		{Code: AccountInventory, Name: "Raw Material Inventory", Type: ledger.AccountTypeAsset},
		{Code: AccountWorkInProgress, Name: "Work in Progress", Type: ledger.AccountTypeAsset},
		{Code: AccountPayable, Name: "Accounts Payable", Type: ledger.AccountTypeLiability},
		{Code: AccountRevenue, Name: "Mold Sales Revenue", Type: ledger.AccountTypeRevenue},
	} {
		s.accounts[acc.Code] = acc
	}
	return s
}

func (s *memoryStore) snapshot() *memoryStore {
	snap := &memoryStore{
		accounts:      make(map[string]ledger.GLAccount, len(s.accounts)),
		journals:      make(map[int64]ledger.JournalEntry, len(s.journals)),
		journalsByNo:  make(map[string]int64, len(s.journalsByNo)),
		sequences:     make(map[string]int64, len(s.sequences)),
		events:        make(map[string]AccountingEvent, len(s.events)),
		arItems:       make(map[int64]ar.OpenItem, len(s.arItems)),
		apItems:       make(map[int64]ap.OpenItem, len(s.apItems)),
		nextJournalID: s.nextJournalID,
		nextItemID:    s.nextItemID,
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.journals {
		snap.journals[k] = v
	}
	for k, v := range s.journalsByNo {
		snap.journalsByNo[k] = v
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	for k, v := range s.arItems {
		snap.arItems[k] = v
	}
	for k, v := range s.apItems {
		snap.apItems[k] = v
	}
	return snap
}

func (s *memoryStore) restore(snap *memoryStore) {
	s.accounts = snap.accounts
	s.journals = snap.journals
	s.journalsByNo = snap.journalsByNo
	s.sequences = snap.sequences
	s.events = snap.events
	s.arItems = snap.arItems
	s.apItems = snap.apItems
	s.nextJournalID = snap.nextJournalID
	s.nextItemID = snap.nextItemID
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(ctx, (*memoryTx)(s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memoryStore) GetJournalByNo(ctx context.Context, journalNo string) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.journalsByNo[journalNo]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrJournalNotFound
	}
	return s.journals[id], nil
}

type memoryTx memoryStore

func (t *memoryTx) GetAccountByCode(ctx context.Context, code string) (ledger.GLAccount, error) {
	acc, ok := t.accounts[code]
	if !ok {
		return ledger.GLAccount{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, code)
	}
	return acc, nil
}

func (t *memoryTx) NextDocumentSeq(ctx context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s-%d", prefix, year)
	t.sequences[key]++
	return t.sequences[key], nil
}

func (t *memoryTx) InsertJournalEntry(ctx context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error) {
	t.nextJournalID++
	entry.ID = t.nextJournalID
	t.journals[entry.ID] = entry
	t.journalsByNo[entry.JournalNo] = entry.ID
	return entry, nil
}

func (t *memoryTx) InsertJournalLines(ctx context.Context, journalID int64, lines []ledger.JournalLine) error {
	entry := t.journals[journalID]
	entry.Lines = lines
	t.journals[journalID] = entry
	return nil
}

func (t *memoryTx) GetJournalWithLines(ctx context.Context, journalID int64) (ledger.JournalEntry, error) {
	entry, ok := t.journals[journalID]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrJournalNotFound
	}
	return entry, nil
}

func (t *memoryTx) FindEventByKey(ctx context.Context, sourceType, sourceNo string, eventType EventType) (*AccountingEvent, error) {
	ev, ok := t.events[eventKey(sourceType, sourceNo, eventType)]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (t *memoryTx) InsertEvent(ctx context.Context, ev AccountingEvent) error {
	key := eventKey(ev.SourceType, ev.SourceNo, ev.EventType)
	if _, exists := t.events[key]; exists {
		return ErrEventConflict
	}
	t.events[key] = ev
	return nil
}

func (t *memoryTx) LinkEventJournal(ctx context.Context, eventID uuid.UUID, journalID int64) error {
	for key, ev := range t.events {
		if ev.ID == eventID {
			ev.JournalEntryID = &journalID
			t.events[key] = ev
			return nil
		}
	}
	return fmt.Errorf("posting: event %s not found", eventID)
}

func (t *memoryTx) CreateAROpenItem(ctx context.Context, item ar.OpenItem) (ar.OpenItem, error) {
	t.nextItemID++
	item.ID = t.nextItemID
	t.arItems[item.SourceDocID] = item
	return item, nil
}

func (t *memoryTx) GetAROpenItemForUpdate(ctx context.Context, sourceDocID int64) (ar.OpenItem, error) {
	item, ok := t.arItems[sourceDocID]
	if !ok {
		return ar.OpenItem{}, ar.ErrItemNotFound
	}
	return item, nil
}

func (t *memoryTx) UpdateAROpenItem(ctx context.Context, item ar.OpenItem) error {
	t.arItems[item.SourceDocID] = item
	return nil
}

func (t *memoryTx) CreateAPOpenItem(ctx context.Context, item ap.OpenItem) (ap.OpenItem, error) {
	t.nextItemID++
	item.ID = t.nextItemID
	t.apItems[item.SourceDocID] = item
	return item, nil
}

func (t *memoryTx) GetAPOpenItemForUpdate(ctx context.Context, sourceDocID int64) (ap.OpenItem, error) {
	item, ok := t.apItems[sourceDocID]
	if !ok {
		return ap.OpenItem{}, ap.ErrItemNotFound
	}
	return item, nil
}

func (t *memoryTx) UpdateAPOpenItem(ctx context.Context, item ap.OpenItem) error {
	t.apItems[item.SourceDocID] = item
	return nil
}

func eventKey(sourceType, sourceNo string, eventType EventType) string {
	return fmt.Sprintf("%s:%s:%s", sourceType, sourceNo, eventType)
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *recordingMetrics) RecordPosting(eventType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[eventType+"/"+outcome]++
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (i *recordingInvalidator) Invalidate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	return nil
}

// contendedStore aborts the first n transactions the way Postgres reports a
// serialization failure on a contended row, then delegates to the wrapped
// store.
type contendedStore struct {
	*memoryStore
	mu     sync.Mutex
	aborts int
}

func (s *contendedStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	if s.aborts > 0 {
		s.aborts--
		s.mu.Unlock()
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	}
	s.mu.Unlock()
	return s.memoryStore.WithTx(ctx, fn)
}

func newTestPosting(t *testing.T) (*Service, *memoryStore, *recordingAudit, *recordingMetrics) {
	t.Helper()
	store := newMemoryStore()
	audit := &recordingAudit{}
	metrics := &recordingMetrics{}
	svc := NewService(store, audit, metrics)
	svc.WithNow(func() time.Time {
		return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	})
	return svc, store, audit, metrics
}

func orderConfirmedInput(sourceNo string, docID int64, amount float64) PostInput {
	return PostInput{
		EventType:  EventOrderConfirmed,
		SourceType: "SALES_ORDER",
		SourceNo:   sourceNo,
		Payload:    EventPayload{Amount: amount, CounterpartyID: 7, SourceDocID: docID},
	}
}

func TestPostEventOrderConfirmed(t *testing.T) {
	svc, store, audit, metrics := newTestPosting(t)

	res, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 1500))
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, "JE-2024-001", res.JournalEntry.JournalNo)
	require.Len(t, res.JournalEntry.Lines, 2)
	require.Equal(t, AccountReceivable, res.JournalEntry.Lines[0].AccountCode)
	require.Equal(t, AccountRevenue, res.JournalEntry.Lines[1].AccountCode)

	require.NotNil(t, res.ARItem)
	require.Equal(t, ar.ItemStatusOpen, res.ARItem.Status)
	require.InDelta(t, 1500, res.ARItem.BalanceAmount, 0.001)
	// Default payment terms applied when the payload has no due date.
	require.Equal(t, time.Date(2024, 4, 4, 10, 0, 0, 0, time.UTC), res.ARItem.DueAt)

	require.NotNil(t, res.Event.JournalEntryID)
	require.Equal(t, res.JournalEntry.ID, *res.Event.JournalEntryID)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "posting.post", audit.logs[0].Action)
	require.Equal(t, "JE-2024-001", audit.logs[0].EntityID)
	require.Equal(t, 1, metrics.outcomes["ORDER_CONFIRMED/posted"])
	require.Len(t, store.journals, 1)
}

func TestPostEventPaymentLifecycle(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	_, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 1000))
	require.NoError(t, err)

	payment := PostInput{
		EventType:  EventPaymentConfirmed,
		SourceType: "PAYMENT",
		SourceNo:   "PAY-1",
		Payload:    EventPayload{Amount: 400, CounterpartyID: 7, SourceDocID: 1001},
	}
	res, err := svc.PostEvent(context.Background(), payment)
	require.NoError(t, err)
	require.Equal(t, "JE-2024-002", res.JournalEntry.JournalNo)
	require.Equal(t, AccountCash, res.JournalEntry.Lines[0].AccountCode)
	require.NotNil(t, res.ARItem)
	require.Equal(t, ar.ItemStatusPartial, res.ARItem.Status)
	require.InDelta(t, 600, res.ARItem.BalanceAmount, 0.001)

	final := payment
	final.SourceNo = "PAY-2"
	final.Payload.Amount = 600
	res, err = svc.PostEvent(context.Background(), final)
	require.NoError(t, err)
	require.Equal(t, ar.ItemStatusClosed, res.ARItem.Status)
	require.Zero(t, res.ARItem.BalanceAmount)
	require.Len(t, store.journals, 3)
}

func TestPostEventOverpaymentRollsBack(t *testing.T) {
	svc, store, _, metrics := newTestPosting(t)

	_, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 1000))
	require.NoError(t, err)

	over := PostInput{
		EventType:  EventPaymentConfirmed,
		SourceType: "PAYMENT",
		SourceNo:   "PAY-1",
		Payload:    EventPayload{Amount: 1000.01, CounterpartyID: 7, SourceDocID: 1001},
	}
	_, err = svc.PostEvent(context.Background(), over)
	require.ErrorIs(t, err, ar.ErrOverpayment)

	// Nothing from the failed attempt survives.
	require.Len(t, store.journals, 1)
	require.Len(t, store.events, 1)
	require.InDelta(t, 1000, store.arItems[1001].BalanceAmount, 0.001)
	require.Equal(t, 1, metrics.outcomes["PAYMENT_CONFIRMED/failed"])

	// The key is reusable after the rollback.
	corrected := over
	corrected.Payload.Amount = 1000
	res, err := svc.PostEvent(context.Background(), corrected)
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, ar.ItemStatusClosed, res.ARItem.Status)
}

func TestPostEventGoodsReceivedAndSupplierPaid(t *testing.T) {
	svc, _, _, _ := newTestPosting(t)

	grn := PostInput{
		EventType:  EventGoodsReceived,
		SourceType: "PURCHASE_ORDER",
		SourceNo:   "PO-88",
		Payload:    EventPayload{Amount: 2400, CounterpartyID: 3, SourceDocID: 88},
	}
	res, err := svc.PostEvent(context.Background(), grn)
	require.NoError(t, err)
	require.Equal(t, AccountInventory, res.JournalEntry.Lines[0].AccountCode)
	require.Equal(t, AccountPayable, res.JournalEntry.Lines[1].AccountCode)
	require.NotNil(t, res.APItem)
	require.Equal(t, ap.ItemStatusOpen, res.APItem.Status)

	paid := PostInput{
		EventType:  EventSupplierPaid,
		SourceType: "SUPPLIER_PAYMENT",
		SourceNo:   "SP-1",
		Payload:    EventPayload{Amount: 2400, CounterpartyID: 3, SourceDocID: 88},
	}
	res, err = svc.PostEvent(context.Background(), paid)
	require.NoError(t, err)
	require.Equal(t, AccountPayable, res.JournalEntry.Lines[0].AccountCode)
	require.Equal(t, AccountCash, res.JournalEntry.Lines[1].AccountCode)
	require.Equal(t, ap.ItemStatusClosed, res.APItem.Status)
}

func TestPostEventMaterialIssuedHasNoSubledger(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	input := PostInput{
		EventType:  EventMaterialIssued,
		SourceType: "WORK_ORDER",
		SourceNo:   "WO-5",
		Payload:    EventPayload{Amount: 320.75},
	}
	res, err := svc.PostEvent(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, AccountWorkInProgress, res.JournalEntry.Lines[0].AccountCode)
	require.Equal(t, AccountInventory, res.JournalEntry.Lines[1].AccountCode)
	require.Nil(t, res.ARItem)
	require.Nil(t, res.APItem)
	require.Empty(t, store.arItems)
	require.Empty(t, store.apItems)
}

func TestPostEventReplayReturnsOriginal(t *testing.T) {
	svc, store, _, metrics := newTestPosting(t)

	input := orderConfirmedInput("SO-1001", 1001, 1500)
	first, err := svc.PostEvent(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.PostEvent(context.Background(), input)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.JournalEntry.JournalNo, second.JournalEntry.JournalNo)
	require.Equal(t, first.Event.ID, second.Event.ID)
	require.Len(t, store.journals, 1)
	require.Equal(t, 1, metrics.outcomes["ORDER_CONFIRMED/posted"])
	require.Equal(t, 1, metrics.outcomes["ORDER_CONFIRMED/replayed"])
}

func TestPostEventDistinctEventTypesShareSource(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	_, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 1000))
	require.NoError(t, err)

	// Same source document, different event type: posts independently.
	issue := PostInput{
		EventType:  EventMaterialIssued,
		SourceType: "SALES_ORDER",
		SourceNo:   "SO-1001",
		Payload:    EventPayload{Amount: 50},
	}
	res, err := svc.PostEvent(context.Background(), issue)
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Len(t, store.journals, 2)
}

func TestPostEventUnknownType(t *testing.T) {
	svc, _, _, metrics := newTestPosting(t)

	_, err := svc.PostEvent(context.Background(), PostInput{
		EventType:  "INVOICE_EMAILED",
		SourceType: "SALES_ORDER",
		SourceNo:   "SO-1001",
		Payload:    EventPayload{Amount: 100},
	})
	require.ErrorIs(t, err, ErrUnknownEventType)
	require.Equal(t, 1, metrics.outcomes["INVOICE_EMAILED/rejected"])
}

func TestPostEventRejectsInvalidAmount(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	_, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 0))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	require.Empty(t, store.journals)
	require.Empty(t, store.events)
}

func TestPostEventUnknownAccountRollsBack(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	input := orderConfirmedInput("SO-1001", 1001, 100)
	input.Payload.RevenueAccount = "9999"
	_, err := svc.PostEvent(context.Background(), input)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.Empty(t, store.journals)
	require.Empty(t, store.events)
	require.Empty(t, store.arItems)
}

func TestPostEventMissingOpenItem(t *testing.T) {
	svc, _, _, _ := newTestPosting(t)

	_, err := svc.PostEvent(context.Background(), PostInput{
		EventType:  EventPaymentConfirmed,
		SourceType: "PAYMENT",
		SourceNo:   "PAY-1",
		Payload:    EventPayload{Amount: 100, CounterpartyID: 7, SourceDocID: 404},
	})
	require.ErrorIs(t, err, ar.ErrItemNotFound)
}

func TestPostEventNumberingPerYear(t *testing.T) {
	svc, _, _, _ := newTestPosting(t)

	res, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1", 1, 100))
	require.NoError(t, err)
	require.Equal(t, "JE-2024-001", res.JournalEntry.JournalNo)

	res, err = svc.PostEvent(context.Background(), orderConfirmedInput("SO-2", 2, 100))
	require.NoError(t, err)
	require.Equal(t, "JE-2024-002", res.JournalEntry.JournalNo)

	svc.WithNow(func() time.Time {
		return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	})
	res, err = svc.PostEvent(context.Background(), orderConfirmedInput("SO-3", 3, 100))
	require.NoError(t, err)
	require.Equal(t, "JE-2025-001", res.JournalEntry.JournalNo)
}

func TestPostEventConcurrentSameKey(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	input := orderConfirmedInput("SO-1001", 1001, 1500)
	const workers = 8
	results := make([]PostResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.PostEvent(context.Background(), input)
		}(i)
	}
	wg.Wait()

	var posted int
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "JE-2024-001", results[i].JournalEntry.JournalNo)
		if !results[i].Replayed {
			posted++
		}
	}
	require.Equal(t, 1, posted)
	require.Len(t, store.journals, 1)
	require.Len(t, store.events, 1)
}

func TestPostEventConcurrentNumberingIsUnique(t *testing.T) {
	svc, store, _, _ := newTestPosting(t)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PostEvent(context.Background(), orderConfirmedInput(
				fmt.Sprintf("SO-%d", i+1), int64(i+1), 100))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}
	require.Len(t, store.journals, workers)
	seen := make(map[string]bool)
	for _, entry := range store.journals {
		require.False(t, seen[entry.JournalNo], "duplicate journal no %s", entry.JournalNo)
		seen[entry.JournalNo] = true
	}
}

func TestPostEventInvalidatesAgingCaches(t *testing.T) {
	svc, _, _, _ := newTestPosting(t)
	arInv := &recordingInvalidator{}
	apInv := &recordingInvalidator{}
	svc.WithAgingCaches(arInv, apInv)

	_, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 100))
	require.NoError(t, err)
	require.Equal(t, 1, arInv.calls)
	require.Zero(t, apInv.calls)

	_, err = svc.PostEvent(context.Background(), PostInput{
		EventType:  EventGoodsReceived,
		SourceType: "PURCHASE_ORDER",
		SourceNo:   "PO-88",
		Payload:    EventPayload{Amount: 500, CounterpartyID: 3, SourceDocID: 88},
	})
	require.NoError(t, err)
	require.Equal(t, 1, apInv.calls)
}

func TestPostEventCustomDueDate(t *testing.T) {
	svc, _, _, _ := newTestPosting(t)

	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	input := orderConfirmedInput("SO-1001", 1001, 100)
	input.Payload.DueDate = due
	res, err := svc.PostEvent(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, due, res.ARItem.DueAt)
}

func TestGetJournalByNo(t *testing.T) {
	svc, _, _, _ := newTestPosting(t)

	res, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 100))
	require.NoError(t, err)

	entry, err := svc.GetJournalByNo(context.Background(), res.JournalEntry.JournalNo)
	require.NoError(t, err)
	require.Equal(t, res.JournalEntry.ID, entry.ID)
	require.Len(t, entry.Lines, 2)

	_, err = svc.GetJournalByNo(context.Background(), "JE-2024-999")
	require.ErrorIs(t, err, ledger.ErrJournalNotFound)
}

func TestPostEventRetriesSerializationAbort(t *testing.T) {
	store := &contendedStore{memoryStore: newMemoryStore(), aborts: 1}
	metrics := &recordingMetrics{}
	svc := NewService(store, nil, metrics)
	svc.WithNow(func() time.Time {
		return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	})

	res, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 1500))
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, "JE-2024-001", res.JournalEntry.JournalNo)
	require.Equal(t, 1, metrics.outcomes["ORDER_CONFIRMED/posted"])
	require.Len(t, store.memoryStore.journals, 1)
	require.Len(t, store.memoryStore.events, 1)
}

func TestPostEventSerializationAbortExhaustsRetries(t *testing.T) {
	store := &contendedStore{memoryStore: newMemoryStore(), aborts: serializationRetries + 1}
	metrics := &recordingMetrics{}
	svc := NewService(store, nil, metrics)

	_, err := svc.PostEvent(context.Background(), orderConfirmedInput("SO-1001", 1001, 1500))
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, "40001", pgErr.Code)
	require.Equal(t, 1, metrics.outcomes["ORDER_CONFIRMED/failed"])
	require.Empty(t, store.memoryStore.journals)
}
