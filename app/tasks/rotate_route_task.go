package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
)

type RotateRouteTask struct {
	Task
	rotator   *rotation.Rotator
	routeRepo database.RouteRepository
}

func NewRotateRouteTask(routeName string, rotator *rotation.Rotator, routeRepo database.RouteRepository) *RotateRouteTask {
	return &RotateRouteTask{
		Task:      NewTask(TaskTypeRotateRoute, routeName),
		rotator:   rotator,
		routeRepo: routeRepo,
	}
}

func (t *RotateRouteTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report, err := t.rotator.RunTick(ctx, false)
	if err != nil {
		// A failed tick mutated no selectable state, so the scheduler's
		// retry is safe; a halted rotator refuses retried ticks anyway.
		return fmt.Errorf("tick failed: %w", err)
	}

	if report.Skipped == rotation.SkipNone || report.Skipped == rotation.SkipNothingAvailable {
		if err := t.routeRepo.UpdateLastTick(t.RouteName, time.Now().UTC()); err != nil {
			slog.Warn("Failed to update route last tick", "route", t.RouteName, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", "RotateRoute",
		"route", t.RouteName,
		"duration", t.GetDuration(),
		"skipped", string(report.Skipped),
		"published", report.Published,
		"filtered", report.Filtered,
		"failed", report.Failed)

	return nil
}
