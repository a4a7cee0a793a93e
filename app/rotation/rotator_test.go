package rotation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// memLedger is an in-memory Ledger with the same invariants as the database
// implementation.
type memLedger struct {
	outcomes  map[int64]Outcome
	cursor    int64
	hasCursor bool

	recordErr error
	cursorErr error
}

func newMemLedger() *memLedger {
	return &memLedger{outcomes: make(map[int64]Outcome)}
}

func (l *memLedger) Has(itemID int64) (bool, error) {
	_, ok := l.outcomes[itemID]
	return ok, nil
}

func (l *memLedger) Record(itemID int64, outcome Outcome) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	if existing, ok := l.outcomes[itemID]; ok {
		if existing != outcome {
			return fmt.Errorf("item %d has outcome %s: %w", itemID, existing, ErrConflictingOutcome)
		}
		return nil
	}
	l.outcomes[itemID] = outcome
	return nil
}

func (l *memLedger) Cursor() (int64, bool, error) {
	return l.cursor, l.hasCursor, nil
}

func (l *memLedger) AdvanceCursor(position int64) error {
	if l.cursorErr != nil {
		return l.cursorErr
	}
	if l.hasCursor && position < l.cursor {
		return fmt.Errorf("cursor at %d, requested %d: %w", l.cursor, position, ErrCursorRegression)
	}
	l.cursor = position
	l.hasCursor = true
	return nil
}

// fakeSource serves a fixed pool with poll semantics: items at or below the
// cursor are never re-offered.
type fakeSource struct {
	items []Item
	err   error
}

func (s *fakeSource) Fetch(_ context.Context, _ time.Time, sinceCursor int64) ([]Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Item
	for _, item := range s.items {
		if item.ID > sinceCursor {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeTransport struct {
	published []int64
	failWith  map[int64]error
	rateLimit map[int64]int // remaining rate-limited responses per id
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failWith: make(map[int64]error), rateLimit: make(map[int64]int)}
}

func (t *fakeTransport) Publish(_ context.Context, item Item, _ string) (int64, error) {
	if n := t.rateLimit[item.ID]; n > 0 {
		t.rateLimit[item.ID] = n - 1
		return 0, fmt.Errorf("too many requests: %w", ErrRateLimited)
	}
	if err := t.failWith[item.ID]; err != nil {
		return 0, err
	}
	t.published = append(t.published, item.ID)
	return int64(len(t.published)), nil
}

func testConfig(quota int) *Config {
	return &Config{
		Name:         "test-route",
		SourceChatID: -100,
		TargetChatID: -200,
		Settings: ConfigSettings{
			Enabled:      true,
			Mode:         ModePoll,
			QuotaPerTick: quota,
			StartHour:    12,
			EndHour:      19,
			Timezone:     "UTC",
			Selection:    string(SelectOldestFirst),
		},
	}
}

func poolItems(ids ...int64) []Item {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{ID: id, PostedAt: base.Add(time.Duration(i) * time.Minute), Kind: ItemText, Text: fmt.Sprintf("content %d", id)}
	}
	return items
}

func newTestRotator(t *testing.T, config *Config, source CandidateSource, ledger Ledger, transport Transport) *Rotator {
	t.Helper()
	rotator, err := NewRotator(config, source, ledger, transport)
	if err != nil {
		t.Fatalf("Failed to create rotator: %v", err)
	}
	// Fix the clock inside the publishing window
	rotator.now = func() time.Time {
		return time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	}
	return rotator
}

func TestRotator_RunTick_PublishesUpToQuota(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(100, 101, 102, 103, 104, 105, 106, 107, 108, 109)}

	rotator := newTestRotator(t, testConfig(2), source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Published != 2 {
		t.Errorf("Expected 2 published, got %d", report.Published)
	}
	if len(transport.published) != 2 || transport.published[0] != 100 || transport.published[1] != 101 {
		t.Errorf("Expected oldest two items published, got %v", transport.published)
	}

	// Items beyond the quota carry no outcome yet
	for id := int64(102); id <= 109; id++ {
		if _, ok := ledger.outcomes[id]; ok {
			t.Errorf("Item %d beyond quota should not be recorded", id)
		}
	}
	if ledger.outcomes[100] != OutcomePublished || ledger.outcomes[101] != OutcomePublished {
		t.Error("Expected published outcomes for items 100 and 101")
	}
}

func TestRotator_RunTick_NeverRepublishes(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(1, 2, 3)}

	rotator := newTestRotator(t, testConfig(5), source, ledger, transport)

	for tick := 0; tick < 3; tick++ {
		if _, err := rotator.RunTick(context.Background(), false); err != nil {
			t.Fatalf("Tick %d failed: %v", tick, err)
		}
	}

	if len(transport.published) != 3 {
		t.Errorf("Expected each item published exactly once, got %v", transport.published)
	}
}

func TestRotator_RunTick_RestartIdempotence(t *testing.T) {
	// A fresh rotator over the same ledger must not republish
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(1, 2, 3)}

	first := newTestRotator(t, testConfig(5), source, ledger, transport)
	if _, err := first.RunTick(context.Background(), false); err != nil {
		t.Fatalf("First tick failed: %v", err)
	}

	second := newTestRotator(t, testConfig(5), source, ledger, transport)
	report, err := second.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("Second tick failed: %v", err)
	}

	if report.Published != 0 {
		t.Errorf("Expected no publishes after restart, got %d", report.Published)
	}
	if report.Skipped != SkipNothingAvailable {
		t.Errorf("Expected skip reason nothing_available, got %q", report.Skipped)
	}
	if len(transport.published) != 3 {
		t.Errorf("Expected 3 total publishes, got %d", len(transport.published))
	}
}

func TestRotator_RunTick_OutsideWindow(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(1)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)
	rotator.now = func() time.Time {
		return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) // before 12:00
	}

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Skipped != SkipOutsideWindow {
		t.Errorf("Expected skip reason outside_window, got %q", report.Skipped)
	}
	if len(transport.published) != 0 {
		t.Errorf("Expected no publishes outside window, got %v", transport.published)
	}
	if len(ledger.outcomes) != 0 {
		t.Error("Expected no ledger writes outside window")
	}
}

func TestRotator_RunTick_ForceBypassesGate(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(1, 2)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)
	rotator.now = func() time.Time {
		return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	}

	report, err := rotator.RunTick(context.Background(), true)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Published != 1 {
		t.Errorf("Expected forced tick to publish 1, got %d", report.Published)
	}

	// Force bypasses the gate but not the ledger: a second forced tick must
	// not repeat item 1.
	if _, err := rotator.RunTick(context.Background(), true); err != nil {
		t.Fatalf("Second forced tick failed: %v", err)
	}
	if len(transport.published) != 2 || transport.published[1] != 2 {
		t.Errorf("Expected forced ticks to respect dedup, got %v", transport.published)
	}
}

func TestRotator_RunTick_FilteredItemsRecordedImmediately(t *testing.T) {
	config := testConfig(1)
	config.Filters.BannedTerms = []string{"reklam"}

	ledger := newMemLedger()
	transport := newFakeTransport()

	items := poolItems(10, 11, 12)
	items[1].Text = "Büyük reklam fırsatı"
	items[2].Text = "   " // cleans to nothing
	source := &fakeSource{items: items}

	rotator := newTestRotator(t, config, source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Filtered != 2 {
		t.Errorf("Expected 2 filtered, got %d", report.Filtered)
	}
	if ledger.outcomes[11] != OutcomeSkippedFiltered {
		t.Errorf("Expected skipped_filtered for item 11, got %q", ledger.outcomes[11])
	}
	if ledger.outcomes[12] != OutcomeSkippedEmpty {
		t.Errorf("Expected skipped_empty for item 12, got %q", ledger.outcomes[12])
	}
	if len(transport.published) != 1 || transport.published[0] != 10 {
		t.Errorf("Expected only item 10 published, got %v", transport.published)
	}
}

func TestRotator_RunTick_PublishFailureIsPermanent(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	transport.failWith[1] = errors.New("chat not found")
	source := &fakeSource{items: poolItems(1, 2)}

	rotator := newTestRotator(t, testConfig(2), source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Failed != 1 || report.Published != 1 {
		t.Errorf("Expected 1 failed and 1 published, got failed=%d published=%d", report.Failed, report.Published)
	}
	if ledger.outcomes[1] != OutcomeFailedPermanent {
		t.Errorf("Expected failed_permanent for item 1, got %q", ledger.outcomes[1])
	}

	// The failure is never retried, even after the transport recovers
	delete(transport.failWith, 1)
	if _, err := rotator.RunTick(context.Background(), false); err != nil {
		t.Fatalf("Second tick failed: %v", err)
	}
	for _, id := range transport.published {
		if id == 1 {
			t.Error("Item 1 must never be retried after permanent failure")
		}
	}
}

func TestRotator_RunTick_RateLimitRetriesOnce(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	transport.rateLimit[1] = 1 // first attempt limited, retry succeeds
	source := &fakeSource{items: poolItems(1)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Published != 1 {
		t.Errorf("Expected publish after rate-limit retry, got published=%d", report.Published)
	}
	if ledger.outcomes[1] != OutcomePublished {
		t.Errorf("Expected published outcome, got %q", ledger.outcomes[1])
	}
}

func TestRotator_RunTick_RateLimitTwiceIsPermanent(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	transport.rateLimit[1] = 2 // both attempts limited
	source := &fakeSource{items: poolItems(1)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Failed != 1 {
		t.Errorf("Expected permanent failure after second rate limit, got failed=%d", report.Failed)
	}
	if ledger.outcomes[1] != OutcomeFailedPermanent {
		t.Errorf("Expected failed_permanent, got %q", ledger.outcomes[1])
	}
}

func TestRotator_RunTick_SourceUnavailable(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{err: fmt.Errorf("connection refused: %w", ErrSourceUnavailable)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("Source unavailability must not be an error: %v", err)
	}

	if report.Skipped != SkipSourceUnavailable {
		t.Errorf("Expected skip reason source_unavailable, got %q", report.Skipped)
	}
	if len(ledger.outcomes) != 0 || ledger.hasCursor {
		t.Error("Expected no state mutation on source failure")
	}
}

func TestRotator_RunTick_CursorAdvancesOverDecidedPrefix(t *testing.T) {
	config := testConfig(2)
	config.Filters.BannedTerms = []string{"reklam"}

	ledger := newMemLedger()
	transport := newFakeTransport()

	items := poolItems(100, 101, 102, 103, 104)
	items[2].Text = "reklam" // 102 filtered regardless of quota
	source := &fakeSource{items: items}

	rotator := newTestRotator(t, config, source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	// Decided: 100, 101 published; 102 filtered. 103 is the lowest undecided
	// id, so the cursor stops just below it.
	if report.Cursor != 102 {
		t.Errorf("Expected cursor 102, got %d", report.Cursor)
	}
	if ledger.cursor != 102 {
		t.Errorf("Expected stored cursor 102, got %d", ledger.cursor)
	}

	// Next tick starts past the decided prefix and finishes the pool
	report, err = rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("Second tick failed: %v", err)
	}
	if report.Published != 2 {
		t.Errorf("Expected 2 published on second tick, got %d", report.Published)
	}
	if ledger.cursor != 104 {
		t.Errorf("Expected cursor 104 after draining the pool, got %d", ledger.cursor)
	}
}

func TestRotator_RunTick_ConflictingOutcomeHalts(t *testing.T) {
	ledger := newMemLedger()
	ledger.recordErr = fmt.Errorf("item 1 has outcome published: %w", ErrConflictingOutcome)
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(1)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)

	_, err := rotator.RunTick(context.Background(), false)
	if err == nil {
		t.Fatal("Expected error on conflicting outcome")
	}
	if !errors.Is(err, ErrConflictingOutcome) {
		t.Errorf("Expected ErrConflictingOutcome, got %v", err)
	}
	if !rotator.Halted() {
		t.Error("Expected rotator to be halted")
	}

	// All further ticks are refused, forced ones included
	report, err := rotator.RunTick(context.Background(), true)
	if err != nil {
		t.Fatalf("Halted tick returned error: %v", err)
	}
	if report.Skipped != SkipHalted {
		t.Errorf("Expected skip reason halted, got %q", report.Skipped)
	}
}

func TestRotator_RunTick_CursorRegressionHalts(t *testing.T) {
	ledger := newMemLedger()
	ledger.cursorErr = fmt.Errorf("cursor at 50, requested 10: %w", ErrCursorRegression)
	transport := newFakeTransport()
	source := &fakeSource{items: poolItems(1)}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)

	_, err := rotator.RunTick(context.Background(), false)
	if err == nil {
		t.Fatal("Expected error on cursor regression")
	}
	if !errors.Is(err, ErrCursorRegression) {
		t.Errorf("Expected ErrCursorRegression, got %v", err)
	}
	if !rotator.Halted() {
		t.Error("Expected rotator to be halted")
	}
}

func TestRotator_RunTick_EmptyPool(t *testing.T) {
	ledger := newMemLedger()
	transport := newFakeTransport()
	source := &fakeSource{}

	rotator := newTestRotator(t, testConfig(1), source, ledger, transport)

	report, err := rotator.RunTick(context.Background(), false)
	if err != nil {
		t.Fatalf("RunTick failed: %v", err)
	}

	if report.Skipped != SkipNothingAvailable {
		t.Errorf("Expected skip reason nothing_available, got %q", report.Skipped)
	}
	if ledger.hasCursor {
		t.Error("Expected no cursor write for an empty pool")
	}
}
