package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// ScheduleTokenRefresh fetches a fresh token for p on the given cron schedule
// (standard five-field syntax or descriptors such as "@every 45m"). The
// returned function stops the scheduler and waits for a running refresh.
func ScheduleTokenRefresh(ctx context.Context, p Provider, schedule string) (func(), error) {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.FetchToken(ctx); err != nil {
			slog.Warn("scheduled token refresh failed", "provider", p.Name(), "error", err)
			return
		}
		slog.Debug("scheduled token refresh complete", "provider", p.Name())
	})
	if err != nil {
		return nil, fmt.Errorf("parse token refresh schedule %q: %w", schedule, err)
	}

	scheduler.Start()
	slog.Info("token refresh scheduled", "provider", p.Name(), "schedule", schedule)

	return func() {
		<-scheduler.Stop().Done()
	}, nil
}
