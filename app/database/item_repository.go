package database

import (
	"fmt"
	"time"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

type ItemRepositoryImpl struct {
	db *DB
}

var _ ItemRepository = (*ItemRepositoryImpl)(nil)

func NewItemRepository(db *DB) *ItemRepositoryImpl {
	return &ItemRepositoryImpl{db: db}
}

// StoreItem adds a channel post to the rotation pool. Items are immutable
// once observed: a replayed update leaves the stored row untouched.
func (r *ItemRepositoryImpl) StoreItem(item Item) error {
	_, err := r.db.Exec(`
		INSERT INTO items (route_name, item_id, kind, text, caption, media_ref, posted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (route_name, item_id) DO NOTHING
	`, item.RouteName, item.ItemID, item.Kind, item.Text, item.Caption,
		item.MediaRef, item.PostedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}
	return nil
}

func (r *ItemRepositoryImpl) GetItemsInWindow(routeName string, from time.Time) ([]rotation.Item, error) {
	rows, err := r.db.Query(`
		SELECT item_id, kind, text, caption, media_ref, posted_at
		FROM items
		WHERE route_name = ? AND posted_at >= ?
		ORDER BY posted_at ASC, item_id ASC
	`, routeName, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get items in window: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func (r *ItemRepositoryImpl) GetItemsSince(routeName string, sinceID int64, limit int) ([]rotation.Item, error) {
	rows, err := r.db.Query(`
		SELECT item_id, kind, text, caption, media_ref, posted_at
		FROM items
		WHERE route_name = ? AND item_id > ?
		ORDER BY item_id ASC
		LIMIT ?
	`, routeName, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get items since cursor: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func (r *ItemRepositoryImpl) GetItemCount(routeName string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM items WHERE route_name = ?`, routeName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanItems(rows rowScanner) ([]rotation.Item, error) {
	var items []rotation.Item
	for rows.Next() {
		var item rotation.Item
		var kind string
		err := rows.Scan(&item.ID, &kind, &item.Text, &item.Caption, &item.MediaRef, &item.PostedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.Kind = rotation.ItemKind(kind)
		item.Origin = rotation.OriginChannel
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}
