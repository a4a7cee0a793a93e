package database

import (
	"time"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

type RouteRepository interface {
	GetRoute(routeName string) (*Route, error)
	GetRouteCount() (int, error)

	UpsertRoute(routeName string, sourceChatID, targetChatID int64, enabled bool) error
	UpdateLastTick(routeName string, tickedAt time.Time) error
}

type ItemRepository interface {
	StoreItem(item Item) error
	GetItemsInWindow(routeName string, from time.Time) ([]rotation.Item, error)
	GetItemsSince(routeName string, sinceID int64, limit int) ([]rotation.Item, error)
	GetItemCount(routeName string) (int, error)
}

type LedgerRepository interface {
	Has(routeName string, itemID int64) (bool, error)
	Record(routeName string, itemID int64, outcome rotation.Outcome) error
	GetCursor(routeName string) (int64, bool, error)
	AdvanceCursor(routeName string, position int64) error
	GetStats(routeName string) (*LedgerStats, error)
}
