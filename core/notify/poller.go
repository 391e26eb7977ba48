package notify

import (
	"context"
	"time"

	"mustody-console/core/scheduler"
	"mustody-console/core/utils"
)

const DefaultPollInterval = 30 * time.Second

// NewPoller fetches immediately when started and then every interval until
// stopped. When active is set, ticks where it reports false are skipped.
func NewPoller(m *Manager, interval time.Duration, active func() bool, logger *utils.Logger) *scheduler.Job {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return scheduler.NewJob(scheduler.JobConfig{
		Name:       "notifications_poll",
		Interval:   interval,
		RunOnStart: true,
	}, func(ctx context.Context) error {
		if active != nil && !active() {
			return nil
		}
		return m.Fetch(ctx)
	}, logger)
}
