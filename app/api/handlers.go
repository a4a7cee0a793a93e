package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
)

func NewHandler(configCache *rotation.ConfigCache, rotators *rotation.RotatorSet,
	routeRepo database.RouteRepository, itemRepo database.ItemRepository,
	ledgerRepo database.LedgerRepository) *Handler {
	return &Handler{
		configCache: configCache,
		rotators:    rotators,
		routeRepo:   routeRepo,
		itemRepo:    itemRepo,
		ledgerRepo:  ledgerRepo,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if routeCount, err := h.routeRepo.GetRouteCount(); err == nil {
		health["routes"] = routeCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	routes := make([]map[string]interface{}, 0, len(configs))

	for _, routeConfig := range configs {
		routeInfo := map[string]interface{}{
			"name":    routeConfig.Name,
			"mode":    routeConfig.Settings.Mode,
			"enabled": routeConfig.Settings.Enabled,
			"window":  routeWindow(routeConfig),
			"quota":   routeConfig.Settings.QuotaPerTick,
		}

		if rotator, ok := h.rotators.Get(routeConfig.Name); ok {
			routeInfo["halted"] = rotator.Halted()
		}

		if poolCount, err := h.itemRepo.GetItemCount(routeConfig.Name); err == nil {
			routeInfo["pool_items"] = poolCount
		}

		if stats, err := h.ledgerRepo.GetStats(routeConfig.Name); err == nil {
			routeInfo["published"] = stats.Published
			routeInfo["skipped_filtered"] = stats.SkippedFiltered
			routeInfo["skipped_empty"] = stats.SkippedEmpty
			routeInfo["failed_permanent"] = stats.FailedPermanent
		}

		if cursor, ok, err := h.ledgerRepo.GetCursor(routeConfig.Name); err == nil && ok {
			routeInfo["cursor"] = cursor
		}

		routes = append(routes, routeInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"routes": routes,
		"total":  len(routes),
	})
}

func (h *Handler) APIListRoutes(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	routes := make([]map[string]interface{}, 0, len(configs))

	for _, routeConfig := range configs {
		routeInfo := map[string]interface{}{
			"name":           routeConfig.Name,
			"source_chat_id": routeConfig.SourceChatID,
			"target_chat_id": routeConfig.TargetChatID,
			"mode":           routeConfig.Settings.Mode,
			"enabled":        routeConfig.Settings.Enabled,
			"window":         routeWindow(routeConfig),
			"timezone":       routeConfig.Settings.Timezone,
			"quota":          routeConfig.Settings.QuotaPerTick,
			"selection":      routeConfig.Settings.Selection,
			"banned_terms":   len(routeConfig.Filters.BannedTerms),
		}

		if route, err := h.routeRepo.GetRoute(routeConfig.Name); err == nil && route != nil {
			routeInfo["last_tick_at"] = route.LastTickAt
		}

		routes = append(routes, routeInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"routes": routes,
		"total":  len(routes),
	})
}

// APIRotateRoute runs one forced tick on the route and returns its report.
// The publishing gate is bypassed; ledger and quota still apply.
func (h *Handler) APIRotateRoute(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing route name parameter"})
		return
	}

	rotator, ok := h.rotators.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
		return
	}

	report, err := rotator.RunTick(c.Request.Context(), true)
	if err != nil {
		slog.Error("Forced tick failed", "route", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rotation failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, newTickReportResponse(report))
}

func routeWindow(routeConfig *rotation.Config) string {
	window := routeConfig.Window()
	return time.Date(0, 1, 1, window.StartHour, 0, 0, 0, time.UTC).Format("15:04") +
		"-" + time.Date(0, 1, 1, window.EndHour%24, 0, 0, 0, time.UTC).Format("15:04")
}
