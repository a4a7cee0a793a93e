package database

import (
	"time"
)

type Route struct {
	Name         string
	SourceChatID int64
	TargetChatID int64
	Enabled      bool
	LastTickAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Item is one pooled channel post, keyed by (route, message id).
type Item struct {
	RouteName string
	ItemID    int64
	Kind      string
	Text      string
	Caption   string
	MediaRef  string
	PostedAt  time.Time
	CreatedAt time.Time
}

type PublishedRecord struct {
	RouteName  string
	ItemID     int64
	Outcome    string
	RecordedAt time.Time
}

// LedgerStats summarizes ledger contents per outcome for one route.
type LedgerStats struct {
	Published       int
	SkippedFiltered int
	SkippedEmpty    int
	FailedPermanent int
}
