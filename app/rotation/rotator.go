package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Rotator runs the publish cycle for one route: gate by time of day, fetch
// candidates, drop already-decided and filter-rejected ones, select up to the
// quota, publish, and commit ledger state. Exactly one tick runs at a time;
// forced ticks serialize behind the same guard as scheduled ones.
//
// Durability note: an item's publish call succeeding and its ledger record
// committing are two steps. A crash between them republishes the item on the
// next run — the service is at-least-once, not exactly-once.
type Rotator struct {
	config    *Config
	source    CandidateSource
	ledger    Ledger
	transport Transport
	filter    *Filter
	gate      *Gate
	sendDelay time.Duration
	rng       *rand.Rand
	now       func() time.Time

	mu     sync.Mutex
	halted atomic.Bool
}

func NewRotator(config *Config, source CandidateSource, ledger Ledger, transport Transport) (*Rotator, error) {
	loc := time.Local
	if config.Settings.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(config.Settings.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", config.Settings.Timezone, err)
		}
	}

	return &Rotator{
		config:    config,
		source:    source,
		ledger:    ledger,
		transport: transport,
		filter:    NewFilter(config.Filters.BannedTerms),
		gate:      NewGate(config.Window(), loc),
		sendDelay: time.Duration(config.Settings.SendDelay) * time.Second,
		now:       time.Now,
	}, nil
}

// Halted reports whether a ledger invariant violation has stopped this
// rotator. A halted rotator refuses all further ticks.
func (r *Rotator) Halted() bool {
	return r.halted.Load()
}

// RunTick executes one full rotation cycle. force bypasses the publishing
// gate but still respects the ledger and quota. Expected no-op outcomes
// (outside window, nothing available, source down) come back as skip reasons
// on the report; a non-nil error means a ledger invariant was violated and
// the rotator has halted.
func (r *Rotator) RunTick(ctx context.Context, force bool) (*TickReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.now()
	report := &TickReport{Route: r.config.Name, Forced: force}
	defer func() {
		report.Duration = time.Since(started)
	}()

	if r.halted.Load() {
		report.Skipped = SkipHalted
		return report, nil
	}

	// Gating
	if !force && !r.gate.Allowed(started) {
		report.Skipped = SkipOutsideWindow
		return report, nil
	}

	cursor, hasCursor, err := r.ledger.Cursor()
	if err != nil {
		return report, fmt.Errorf("failed to read cursor: %w", err)
	}
	if !hasCursor {
		cursor = 0
	}
	report.Cursor = cursor

	// Fetching
	candidates, err := r.source.Fetch(ctx, started, cursor)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			slog.Warn("Candidate source unavailable, skipping tick", "route", r.config.Name, "error", err)
			report.Skipped = SkipSourceUnavailable
			return report, nil
		}
		return report, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	report.Fetched = len(candidates)

	// Filtering: rejected items are recorded immediately and become
	// permanently ineligible even though nothing is published for them.
	decided := make(map[int64]bool, len(candidates))
	var accepted []Item
	cleanedTexts := make(map[int64]string)

	for _, item := range candidates {
		has, err := r.ledger.Has(item.ID)
		if err != nil {
			return report, fmt.Errorf("failed to check ledger: %w", err)
		}
		if has {
			report.AlreadyDecided++
			decided[item.ID] = true
			continue
		}

		result := r.filter.Evaluate(item)
		if !result.Accept {
			outcome := OutcomeSkippedFiltered
			if result.Reason == ReasonEmptyContent {
				outcome = OutcomeSkippedEmpty
			}
			if err := r.record(item.ID, outcome); err != nil {
				return report, err
			}
			report.Filtered++
			decided[item.ID] = true
			continue
		}

		cleanedTexts[item.ID] = result.CleanedText
		accepted = append(accepted, item)
	}

	// Selecting
	selected := Select(SelectionPolicy(r.config.Settings.Selection), accepted, r.config.Settings.QuotaPerTick, r.rng)

	// Publishing
	for i, item := range selected {
		if ctx.Err() != nil {
			// Cancelled mid-tick: unrecorded items were never durably
			// decided and will be retried next tick.
			slog.Info("Tick cancelled during publishing", "route", r.config.Name, "published", report.Published)
			break
		}

		if i > 0 {
			if !r.sleep(ctx, r.sendDelay) {
				continue
			}
		}

		outcome := OutcomePublished
		if err := r.publish(ctx, item, cleanedTexts[item.ID]); err != nil {
			slog.Warn("Publish failed, recording permanent failure", "route", r.config.Name, "item_id", item.ID, "error", err)
			outcome = OutcomeFailedPermanent
		}

		if err := r.record(item.ID, outcome); err != nil {
			return report, err
		}
		decided[item.ID] = true

		if outcome == OutcomePublished {
			report.Published++
			report.PublishedIDs = append(report.PublishedIDs, item.ID)
		} else {
			report.Failed++
		}
	}

	// Committing: advance the cursor over the prefix of candidate ids that
	// all carry a final outcome, so a poll source never re-offers a decided
	// id but also never skips past an undecided one left over by the quota.
	newCursor := commitPosition(candidates, decided)
	if newCursor > cursor {
		if err := r.advanceCursor(newCursor); err != nil {
			return report, err
		}
		report.Cursor = newCursor
	}

	if len(selected) == 0 && report.Skipped == SkipNone {
		report.Skipped = SkipNothingAvailable
	}

	slog.Info("Tick completed",
		"route", r.config.Name,
		"forced", force,
		"fetched", report.Fetched,
		"already_decided", report.AlreadyDecided,
		"filtered", report.Filtered,
		"published", report.Published,
		"failed", report.Failed,
		"cursor", report.Cursor,
		"duration", report.Duration)

	return report, nil
}

func (r *Rotator) publish(ctx context.Context, item Item, cleanedText string) error {
	_, err := r.transport.Publish(ctx, item, cleanedText)
	if errors.Is(err, ErrRateLimited) {
		// One backoff-and-retry; a second rejection is final.
		if !r.sleep(ctx, r.sendDelay) {
			return err
		}
		_, err = r.transport.Publish(ctx, item, cleanedText)
	}
	return err
}

func (r *Rotator) record(itemID int64, outcome Outcome) error {
	err := r.ledger.Record(itemID, outcome)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflictingOutcome) {
		r.halt(itemID, err)
	}
	return fmt.Errorf("failed to record outcome for item %d: %w", itemID, err)
}

func (r *Rotator) advanceCursor(position int64) error {
	err := r.ledger.AdvanceCursor(position)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCursorRegression) {
		r.halt(position, err)
	}
	return fmt.Errorf("failed to advance cursor to %d: %w", position, err)
}

// halt stops the rotator permanently. Proceeding past a ledger invariant
// violation would publish with ambiguous dedup state.
func (r *Rotator) halt(itemID int64, err error) {
	r.halted.Store(true)
	slog.Error("Ledger invariant violated, halting rotator", "route", r.config.Name, "item_id", itemID, "error", err)
}

func (r *Rotator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// commitPosition returns the highest candidate id such that every candidate
// at or below it has a final outcome. When every candidate is decided this is
// the maximum id of the whole set, filtered and failed ones included.
func commitPosition(candidates []Item, decided map[int64]bool) int64 {
	var minUndecided int64 = -1
	for _, item := range candidates {
		if !decided[item.ID] && (minUndecided == -1 || item.ID < minUndecided) {
			minUndecided = item.ID
		}
	}

	var position int64
	for _, item := range candidates {
		if minUndecided != -1 && item.ID >= minUndecided {
			continue
		}
		if item.ID > position {
			position = item.ID
		}
	}
	return position
}
