package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

type LedgerRepositoryImpl struct {
	db *DB
}

var _ LedgerRepository = (*LedgerRepositoryImpl)(nil)

func NewLedgerRepository(db *DB) *LedgerRepositoryImpl {
	return &LedgerRepositoryImpl{db: db}
}

func (r *LedgerRepositoryImpl) Has(routeName string, itemID int64) (bool, error) {
	var one int
	err := r.db.QueryRow(`
		SELECT 1 FROM published_items WHERE route_name = ? AND item_id = ?
	`, routeName, itemID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ledger membership: %w", err)
	}
	return true, nil
}

// Record stores the final outcome for an item id. Re-recording the same
// outcome is a no-op; a different outcome means two code paths decided the
// same item and returns rotation.ErrConflictingOutcome.
func (r *LedgerRepositoryImpl) Record(routeName string, itemID int64, outcome rotation.Outcome) error {
	res, err := r.db.Exec(`
		INSERT INTO published_items (route_name, item_id, outcome, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (route_name, item_id) DO NOTHING
	`, routeName, itemID, string(outcome), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var existing string
	err = r.db.QueryRow(`
		SELECT outcome FROM published_items WHERE route_name = ? AND item_id = ?
	`, routeName, itemID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to read existing outcome: %w", err)
	}

	if existing != string(outcome) {
		return fmt.Errorf("item %d already recorded as %s, refusing %s: %w",
			itemID, existing, outcome, rotation.ErrConflictingOutcome)
	}

	return nil
}

func (r *LedgerRepositoryImpl) GetCursor(routeName string) (int64, bool, error) {
	var position int64
	err := r.db.QueryRow(`
		SELECT position FROM cursors WHERE route_name = ?
	`, routeName).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	return position, true, nil
}

// AdvanceCursor moves the high-water mark forward. The check and the write
// run in one transaction; SQLite's single-writer model makes it atomic.
func (r *LedgerRepositoryImpl) AdvanceCursor(routeName string, position int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRow(`SELECT position FROM cursors WHERE route_name = ?`, routeName).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read cursor: %w", err)
	}
	if err == nil && position < current {
		return fmt.Errorf("cursor at %d, refusing %d: %w", current, position, rotation.ErrCursorRegression)
	}

	_, err = tx.Exec(`
		INSERT INTO cursors (route_name, position)
		VALUES (?, ?)
		ON CONFLICT (route_name) DO UPDATE SET position = excluded.position
	`, routeName, position)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cursor advance: %w", err)
	}

	return nil
}

func (r *LedgerRepositoryImpl) GetStats(routeName string) (*LedgerStats, error) {
	rows, err := r.db.Query(`
		SELECT outcome, COUNT(*) FROM published_items WHERE route_name = ? GROUP BY outcome
	`, routeName)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger stats: %w", err)
	}
	defer rows.Close()

	stats := &LedgerStats{}
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		switch rotation.Outcome(outcome) {
		case rotation.OutcomePublished:
			stats.Published = count
		case rotation.OutcomeSkippedFiltered:
			stats.SkippedFiltered = count
		case rotation.OutcomeSkippedEmpty:
			stats.SkippedEmpty = count
		case rotation.OutcomeFailedPermanent:
			stats.FailedPermanent = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}
