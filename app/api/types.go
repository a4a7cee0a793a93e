package api

import (
	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
)

type Handler struct {
	configCache *rotation.ConfigCache
	rotators    *rotation.RotatorSet
	routeRepo   database.RouteRepository
	itemRepo    database.ItemRepository
	ledgerRepo  database.LedgerRepository
}

type tickReportResponse struct {
	Route          string  `json:"route"`
	Forced         bool    `json:"forced"`
	Skipped        string  `json:"skipped,omitempty"`
	Fetched        int     `json:"fetched"`
	AlreadyDecided int     `json:"already_decided"`
	Filtered       int     `json:"filtered"`
	Published      int     `json:"published"`
	Failed         int     `json:"failed"`
	PublishedIDs   []int64 `json:"published_ids,omitempty"`
	Cursor         int64   `json:"cursor"`
	Duration       string  `json:"duration"`
}

func newTickReportResponse(report *rotation.TickReport) tickReportResponse {
	return tickReportResponse{
		Route:          report.Route,
		Forced:         report.Forced,
		Skipped:        string(report.Skipped),
		Fetched:        report.Fetched,
		AlreadyDecided: report.AlreadyDecided,
		Filtered:       report.Filtered,
		Published:      report.Published,
		Failed:         report.Failed,
		PublishedIDs:   report.PublishedIDs,
		Cursor:         report.Cursor,
		Duration:       report.Duration.String(),
	}
}
