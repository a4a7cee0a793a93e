package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
)

type SyncRouteConfigTask struct {
	Task
	RouteConfig *rotation.Config
	routeRepo   database.RouteRepository
}

func NewSyncRouteConfigTask(routeName string, routeConfig *rotation.Config, routeRepo database.RouteRepository) *SyncRouteConfigTask {
	return &SyncRouteConfigTask{
		Task:        NewTask(TaskTypeSyncRouteConfig, routeName),
		RouteConfig: routeConfig,
		routeRepo:   routeRepo,
	}
}

func (t *SyncRouteConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.routeRepo.UpsertRoute(t.RouteConfig.Name, t.RouteConfig.SourceChatID,
		t.RouteConfig.TargetChatID, t.RouteConfig.Settings.Enabled)
	if err != nil {
		return fmt.Errorf("failed to sync route config: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncRouteConfig",
		"route", t.RouteName,
		"duration", t.GetDuration(),
		"enabled", t.RouteConfig.Settings.Enabled)

	return nil
}
