package api

import (
	"mustody-console/core/notify"
	"mustody-console/core/push"
	"mustody-console/core/session"

	"github.com/prometheus/client_golang/prometheus"
)

type consoleMetricsCollector struct {
	session  *session.Manager
	inbox    *notify.Manager
	displays *push.DisplayQueue

	authenticatedDesc *prometheus.Desc
	unreadDesc        *prometheus.Desc
	cachedDesc        *prometheus.Desc
	lastFetchDesc     *prometheus.Desc
	displaysDesc      *prometheus.Desc
}

func newConsoleMetricsCollector(sess *session.Manager, inbox *notify.Manager, displays *push.DisplayQueue) prometheus.Collector {
	return &consoleMetricsCollector{
		session:  sess,
		inbox:    inbox,
		displays: displays,
		authenticatedDesc: prometheus.NewDesc(
			"mustody_console_session_authenticated",
			"Whether a session is active (1) or not (0).",
			nil, nil,
		),
		unreadDesc: prometheus.NewDesc(
			"mustody_console_notifications_unread",
			"Unread notifications in the inbox cache.",
			nil, nil,
		),
		cachedDesc: prometheus.NewDesc(
			"mustody_console_notifications_cached",
			"Notifications in the inbox cache.",
			nil, nil,
		),
		lastFetchDesc: prometheus.NewDesc(
			"mustody_console_notifications_last_fetch_timestamp",
			"Unix timestamp of the last successful inbox fetch.",
			nil, nil,
		),
		displaysDesc: prometheus.NewDesc(
			"mustody_console_push_displays_pending",
			"Rendered push notifications waiting for a click or dismissal.",
			nil, nil,
		),
	}
}

func (c *consoleMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.authenticatedDesc
	ch <- c.unreadDesc
	ch <- c.cachedDesc
	ch <- c.lastFetchDesc
	ch <- c.displaysDesc
}

func (c *consoleMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	if c.session != nil {
		v := 0.0
		if c.session.Authenticated() {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.authenticatedDesc, prometheus.GaugeValue, v)
	}
	if c.inbox != nil {
		ch <- prometheus.MustNewConstMetric(c.unreadDesc, prometheus.GaugeValue, float64(c.inbox.UnreadCount()))
		ch <- prometheus.MustNewConstMetric(c.cachedDesc, prometheus.GaugeValue, float64(len(c.inbox.Items())))
		if at, _ := c.inbox.Status(); !at.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastFetchDesc, prometheus.GaugeValue, float64(at.Unix()))
		}
	}
	if c.displays != nil {
		ch <- prometheus.MustNewConstMetric(c.displaysDesc, prometheus.GaugeValue, float64(len(c.displays.Pending())))
	}
}
