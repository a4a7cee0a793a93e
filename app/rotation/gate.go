package rotation

import (
	"time"
)

// Gate encodes the publishing-hours policy: a civil time-of-day rule
// evaluated in an explicitly configured zone, never the host zone.
type Gate struct {
	window PublishingWindow
	loc    *time.Location
}

func NewGate(window PublishingWindow, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{window: window, loc: loc}
}

// Allowed reports whether now falls inside [StartHour, EndHour) in the
// configured zone.
func (g *Gate) Allowed(now time.Time) bool {
	hour := now.In(g.loc).Hour()
	return hour >= g.window.StartHour && hour < g.window.EndHour
}
