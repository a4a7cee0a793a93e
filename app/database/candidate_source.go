package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

// WindowSource serves the historical-window candidate contract from the item
// pool: every pooled item on the route posted inside the lookback, ordered by
// timestamp ascending. Repeated calls with the same inputs yield the same
// result; the rotator applies ledger filtering and the quota.
type WindowSource struct {
	itemRepo  ItemRepository
	routeName string
	lookback  time.Duration
}

var _ rotation.CandidateSource = (*WindowSource)(nil)

func NewWindowSource(itemRepo ItemRepository, routeName string, lookback time.Duration) *WindowSource {
	return &WindowSource{itemRepo: itemRepo, routeName: routeName, lookback: lookback}
}

func (s *WindowSource) Fetch(ctx context.Context, now time.Time, _ int64) ([]rotation.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.GetItemsInWindow(s.routeName, now.Add(-s.lookback))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rotation.ErrSourceUnavailable, err)
	}
	return items, nil
}

// PollSource serves the incremental-poll candidate contract: up to batchSize
// pooled items with id strictly greater than the cursor, id ascending.
type PollSource struct {
	itemRepo  ItemRepository
	routeName string
	batchSize int
}

var _ rotation.CandidateSource = (*PollSource)(nil)

func NewPollSource(itemRepo ItemRepository, routeName string, batchSize int) *PollSource {
	return &PollSource{itemRepo: itemRepo, routeName: routeName, batchSize: batchSize}
}

func (s *PollSource) Fetch(ctx context.Context, _ time.Time, sinceCursor int64) ([]rotation.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.GetItemsSince(s.routeName, sinceCursor, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rotation.ErrSourceUnavailable, err)
	}
	return items, nil
}

// RouteLedger binds the ledger repository to a single route, satisfying the
// rotator's ledger contract.
type RouteLedger struct {
	repo      LedgerRepository
	routeName string
}

var _ rotation.Ledger = (*RouteLedger)(nil)

func NewRouteLedger(repo LedgerRepository, routeName string) *RouteLedger {
	return &RouteLedger{repo: repo, routeName: routeName}
}

func (l *RouteLedger) Has(itemID int64) (bool, error) {
	return l.repo.Has(l.routeName, itemID)
}

func (l *RouteLedger) Record(itemID int64, outcome rotation.Outcome) error {
	return l.repo.Record(l.routeName, itemID, outcome)
}

func (l *RouteLedger) Cursor() (int64, bool, error) {
	return l.repo.GetCursor(l.routeName)
}

func (l *RouteLedger) AdvanceCursor(position int64) error {
	return l.repo.AdvanceCursor(l.routeName, position)
}
