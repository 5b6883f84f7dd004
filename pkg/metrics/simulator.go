package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the device simulator.
type SimulatorMetrics struct {
	RecordsPublished  prometheus.Counter
	PublishFailures   *prometheus.CounterVec
	PublishDuration   *prometheus.HistogramVec
	ActiveDevices     prometheus.Gauge
	LuxJumpsSimulated prometheus.Counter
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		RecordsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "records_published_total",
				Help:      "Total number of synthetic telemetry records published",
			},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_failures_total",
				Help:      "Total number of failed record publishes",
			},
			[]string{"reason"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_duration_seconds",
				Help:      "Duration of record publish operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ActiveDevices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "active_devices",
				Help:      "Number of currently simulated devices",
			},
		),
		LuxJumpsSimulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "lux_jumps_total",
				Help:      "Total number of simulated silo-opened lux jumps",
			},
		),
	}

	MustRegister(
		m.RecordsPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.ActiveDevices,
		m.LuxJumpsSimulated,
	)

	return m
}
