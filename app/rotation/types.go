package rotation

import (
	"context"
	"errors"
	"time"
)

// Item kinds mirror the message types the transport can carry.
type ItemKind string

const (
	ItemText     ItemKind = "text"
	ItemPhoto    ItemKind = "photo"
	ItemDocument ItemKind = "document"
	ItemVideo    ItemKind = "video"
)

type ItemOrigin string

const (
	OriginChannel ItemOrigin = "channel"
	OriginFeed    ItemOrigin = "feed"
)

// Item is a single unit of rotatable content. Immutable once observed.
type Item struct {
	ID       int64
	PostedAt time.Time
	Kind     ItemKind
	Text     string
	Caption  string
	MediaRef string
	Link     string // feed items only: canonical article link
	Origin   ItemOrigin
}

// Outcome is the final decision recorded for an item id. Outcomes are decided
// once and never change.
type Outcome string

const (
	OutcomePublished       Outcome = "published"
	OutcomeSkippedFiltered Outcome = "skipped_filtered"
	OutcomeSkippedEmpty    Outcome = "skipped_empty"
	OutcomeFailedPermanent Outcome = "failed_permanent"
)

type FilterReason string

const (
	ReasonNone         FilterReason = ""
	ReasonBannedTerm   FilterReason = "banned_term"
	ReasonEmptyContent FilterReason = "empty_content"
)

type FilterResult struct {
	Accept      bool
	CleanedText string
	Reason      FilterReason
}

// PublishingWindow is the civil-time-of-day range during which unforced
// publishing is permitted. StartHour is inclusive, EndHour exclusive.
type PublishingWindow struct {
	StartHour int
	EndHour   int
}

type SelectionPolicy string

const (
	SelectOldestFirst SelectionPolicy = "oldest_first"
	SelectDiverse     SelectionPolicy = "diverse"
)

type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipOutsideWindow     SkipReason = "outside_window"
	SkipSourceUnavailable SkipReason = "source_unavailable"
	SkipNothingAvailable  SkipReason = "nothing_available"
	SkipHalted            SkipReason = "halted"
)

// TickReport summarizes one scheduler activation. "Outside window" and "no
// eligible content" are expected outcomes, not errors.
type TickReport struct {
	Route          string
	Forced         bool
	Skipped        SkipReason
	Fetched        int
	AlreadyDecided int
	Filtered       int
	Published      int
	Failed         int
	PublishedIDs   []int64
	Cursor         int64
	Duration       time.Duration
}

// Invariant violations indicate ledger corruption and halt the rotator.
var (
	ErrConflictingOutcome = errors.New("conflicting outcome for already recorded item")
	ErrCursorRegression   = errors.New("cursor advance would move backwards")
)

// ErrSourceUnavailable marks a retryable candidate fetch failure; the tick is
// skipped without mutating any state.
var ErrSourceUnavailable = errors.New("candidate source unavailable")

// Transport error classes. Publish errors wrap one of these so the rotator
// can distinguish rate limiting from permanent failures.
var (
	ErrNotFound         = errors.New("item not found at transport")
	ErrPermissionDenied = errors.New("transport permission denied")
	ErrRateLimited      = errors.New("transport rate limited")
)

// Ledger is the durable record of decided item ids for a single route.
type Ledger interface {
	// Has reports whether any outcome has been recorded for the id.
	Has(itemID int64) (bool, error)
	// Record stores the outcome for an id. Recording the same outcome twice
	// is a no-op; a different outcome returns ErrConflictingOutcome.
	Record(itemID int64, outcome Outcome) error
	// Cursor returns the high-water-mark id, or ok=false when none is set.
	Cursor() (position int64, ok bool, err error)
	// AdvanceCursor moves the cursor forward; moving it backwards returns
	// ErrCursorRegression.
	AdvanceCursor(position int64) error
}

// CandidateSource yields available items. Window-model sources ignore
// sinceCursor and return everything inside their lookback; poll-model sources
// must never return an item at or below sinceCursor.
type CandidateSource interface {
	Fetch(ctx context.Context, now time.Time, sinceCursor int64) ([]Item, error)
}

// Transport publishes one item to the route's target. Returns the published
// message id.
type Transport interface {
	Publish(ctx context.Context, item Item, cleanedText string) (int64, error)
}
