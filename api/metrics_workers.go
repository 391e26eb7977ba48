package api

import (
	"mustody-console/core/scheduler"

	"github.com/prometheus/client_golang/prometheus"
)

type workersMetricsCollector struct {
	jobs []*scheduler.Job

	ticksTotalDesc      *prometheus.Desc
	tickErrorsTotalDesc *prometheus.Desc
	lastTickDesc        *prometheus.Desc
	runningDesc         *prometheus.Desc
}

func newWorkersMetricsCollector(jobs ...*scheduler.Job) prometheus.Collector {
	return &workersMetricsCollector{
		jobs: jobs,
		ticksTotalDesc: prometheus.NewDesc(
			"mustody_console_worker_ticks_total",
			"Total number of background job ticks.",
			[]string{"worker"},
			nil,
		),
		tickErrorsTotalDesc: prometheus.NewDesc(
			"mustody_console_worker_tick_errors_total",
			"Total number of background job tick errors.",
			[]string{"worker"},
			nil,
		),
		lastTickDesc: prometheus.NewDesc(
			"mustody_console_worker_last_tick_timestamp",
			"Unix timestamp of the last background job tick.",
			[]string{"worker"},
			nil,
		),
		runningDesc: prometheus.NewDesc(
			"mustody_console_worker_running",
			"Whether the background job is started (1) or stopped (0).",
			[]string{"worker"},
			nil,
		),
	}
}

func (c *workersMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticksTotalDesc
	ch <- c.tickErrorsTotalDesc
	ch <- c.lastTickDesc
	ch <- c.runningDesc
}

func (c *workersMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	for _, j := range c.jobs {
		if j == nil {
			continue
		}
		name := j.Name()
		s := j.StatsSnapshot()
		ch <- prometheus.MustNewConstMetric(c.ticksTotalDesc, prometheus.CounterValue, float64(s.TicksTotal), name)
		ch <- prometheus.MustNewConstMetric(c.tickErrorsTotalDesc, prometheus.CounterValue, float64(s.TickErrorsTotal), name)
		if s.LastTickAtUTC != nil {
			ch <- prometheus.MustNewConstMetric(c.lastTickDesc, prometheus.GaugeValue, float64(s.LastTickAtUTC.UTC().Unix()), name)
		}
		running := 0.0
		if j.Running() {
			running = 1
		}
		ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, running, name)
	}
}
