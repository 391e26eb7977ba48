package scheduler

import (
	"sync/atomic"
	"time"
)

type JobStats struct {
	TicksTotal      uint64     `json:"ticks_total"`
	TickErrorsTotal uint64     `json:"tick_errors_total"`
	LastTickAtUTC   *time.Time `json:"last_tick_at_utc,omitempty"`
}

type jobObs struct {
	ticks      atomic.Uint64
	tickErrors atomic.Uint64
	lastTickNs atomic.Int64
}

func (o *jobObs) recordTick(now time.Time, err error) {
	o.ticks.Add(1)
	if err != nil {
		o.tickErrors.Add(1)
	}
	o.lastTickNs.Store(now.UnixNano())
}

func (j *Job) StatsSnapshot() JobStats {
	if j == nil {
		return JobStats{}
	}
	ns := j.obs.lastTickNs.Load()
	var last *time.Time
	if ns > 0 {
		t := time.Unix(0, ns).UTC()
		last = &t
	}
	return JobStats{
		TicksTotal:      j.obs.ticks.Load(),
		TickErrorsTotal: j.obs.tickErrors.Load(),
		LastTickAtUTC:   last,
	}
}
