package session

import (
	"context"
	"time"

	"mustody-console/core/scheduler"
	"mustody-console/core/utils"
)

const DefaultRefreshInterval = 30 * time.Minute

// NewRefreshJob builds the background token refresh owned by m. Ticks without
// a live session are no-ops.
func NewRefreshJob(m *Manager, interval time.Duration, logger *utils.Logger) *scheduler.Job {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return scheduler.NewJob(scheduler.JobConfig{
		Name:     "session_refresh",
		Interval: interval,
	}, func(ctx context.Context) error {
		if !m.Authenticated() {
			return nil
		}
		return m.Refresh(ctx)
	}, logger)
}
