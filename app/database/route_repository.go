package database

import (
	"database/sql"
	"fmt"
	"time"
)

type RouteRepositoryImpl struct {
	db *DB
}

var _ RouteRepository = (*RouteRepositoryImpl)(nil)

func NewRouteRepository(db *DB) *RouteRepositoryImpl {
	return &RouteRepositoryImpl{db: db}
}

func (r *RouteRepositoryImpl) GetRoute(routeName string) (*Route, error) {
	var route Route
	var enabled int

	err := r.db.QueryRow(`
		SELECT name, source_chat_id, target_chat_id, enabled, last_tick_at, created_at, updated_at
		FROM routes
		WHERE name = ?
	`, routeName).Scan(&route.Name, &route.SourceChatID, &route.TargetChatID,
		&enabled, &route.LastTickAt, &route.CreatedAt, &route.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}

	route.Enabled = enabled != 0
	return &route, nil
}

func (r *RouteRepositoryImpl) GetRouteCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM routes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count routes: %w", err)
	}
	return count, nil
}

func (r *RouteRepositoryImpl) UpsertRoute(routeName string, sourceChatID, targetChatID int64, enabled bool) error {
	now := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO routes (name, source_chat_id, target_chat_id, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			source_chat_id = excluded.source_chat_id,
			target_chat_id = excluded.target_chat_id,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, routeName, sourceChatID, targetChatID, boolToInt(enabled), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert route: %w", err)
	}

	return nil
}

func (r *RouteRepositoryImpl) UpdateLastTick(routeName string, tickedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE routes
		SET last_tick_at = ?, updated_at = ?
		WHERE name = ?
	`, tickedAt.UTC(), time.Now().UTC(), routeName)
	if err != nil {
		return fmt.Errorf("failed to update last tick: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
