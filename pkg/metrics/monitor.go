package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics contains Prometheus metrics for the monitor service.
type MonitorMetrics struct {
	ReadingsIngested      *prometheus.CounterVec
	RecordsRejected       prometheus.Counter
	EventsDetected        *prometheus.CounterVec
	AlertsCreated         *prometheus.CounterVec
	PipelineDuration      *prometheus.HistogramVec
	PollCycles            prometheus.Counter
	PollFailures          *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationFailures  *prometheus.CounterVec
	DispatchDuration      prometheus.Histogram
	SubscriptionsDeleted  prometheus.Counter
	LiveClients           prometheus.Gauge
	LiveBroadcasts        prometheus.Counter
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
}

// NewMonitorMetrics creates and registers monitor service metrics.
func NewMonitorMetrics(namespace string) *MonitorMetrics {
	m := &MonitorMetrics{
		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Total number of normalized readings by gate decision",
			},
			[]string{"decision"},
		),
		RecordsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "records_rejected_total",
				Help:      "Total number of raw records dropped as malformed",
			},
		),
		EventsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "events_detected_total",
				Help:      "Total number of silo events detected",
			},
			[]string{"event_type"},
		),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "alerts_created_total",
				Help:      "Total number of alerts created",
			},
			[]string{"level"},
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "pipeline_duration_seconds",
				Help:      "Duration of one ingestion cycle per silo",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"}, // source: poll, intake
		),
		PollCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "poll_cycles_total",
				Help:      "Total number of scheduled poll ticks",
			},
		),
		PollFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "poll_failures_total",
				Help:      "Total number of failed poll fetches",
			},
			[]string{"reason"},
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "sent_total",
				Help:      "Total number of successful channel deliveries",
			},
			[]string{"channel"},
		),
		NotificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "failures_total",
				Help:      "Total number of failed channel deliveries",
			},
			[]string{"channel", "reason"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of one alert fan-out across all channels",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SubscriptionsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "push_subscriptions_deleted_total",
				Help:      "Total number of push subscriptions removed after permanent endpoint failure",
			},
		),
		LiveClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "live",
				Name:      "clients",
				Help:      "Number of currently connected live listeners",
			},
		),
		LiveBroadcasts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "live",
				Name:      "broadcasts_total",
				Help:      "Total number of events broadcast to live listeners",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP API requests",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	MustRegister(
		m.ReadingsIngested,
		m.RecordsRejected,
		m.EventsDetected,
		m.AlertsCreated,
		m.PipelineDuration,
		m.PollCycles,
		m.PollFailures,
		m.NotificationsSent,
		m.NotificationFailures,
		m.DispatchDuration,
		m.SubscriptionsDeleted,
		m.LiveClients,
		m.LiveBroadcasts,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
