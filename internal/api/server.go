// Package api exposes the HTTP surface of the monitor service: alert
// queries and acknowledgment, silo inspection, push subscription
// management and the live websocket endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/internal/store"
	"procodus.dev/silowatch/pkg/metrics"
)

// Store is the persistence the API handlers need.
type Store interface {
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]silo.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID, userID uuid.UUID) (*silo.Alert, error)
	ListSilos(ctx context.Context) ([]silo.Silo, error)
	GetSilo(ctx context.Context, id uuid.UUID) (*silo.Silo, error)
	LastReading(ctx context.Context, siloID uuid.UUID) (*silo.Reading, error)
	SavePushSubscription(ctx context.Context, sub *silo.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// API holds the HTTP handlers for the monitor service.
type API struct {
	logger  *slog.Logger
	store   Store
	ws      http.Handler
	metrics *metrics.MonitorMetrics // Optional metrics
}

// Config holds the configuration for the API.
type Config struct {
	Logger *slog.Logger
	Store  Store

	// WebSocket is the live alert stream handler.
	WebSocket http.Handler

	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.MonitorMetrics
}

// New creates a new API instance.
func New(cfg *Config) (*API, error) {
	if cfg == nil {
		return nil, errors.New("api config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.WebSocket == nil {
		return nil, errors.New("websocket handler cannot be nil")
	}

	return &API{
		logger:  cfg.Logger,
		store:   cfg.Store,
		ws:      cfg.WebSocket,
		metrics: cfg.Metrics,
	}, nil
}

// Routes configures the HTTP routes.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check and metrics
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Alerts
	mux.Handle("GET /api/alerts", a.instrument("/api/alerts", a.handleListAlerts))
	mux.Handle("POST /api/alerts/{id}/ack", a.instrument("/api/alerts/ack", a.handleAckAlert))

	// Silos
	mux.Handle("GET /api/silos", a.instrument("/api/silos", a.handleListSilos))
	mux.Handle("GET /api/silos/{id}", a.instrument("/api/silos/id", a.handleGetSilo))
	mux.Handle("GET /api/silos/{id}/readings/latest", a.instrument("/api/silos/readings_latest", a.handleLatestReading))

	// Push subscriptions
	mux.Handle("POST /api/push/subscriptions", a.instrument("/api/push/subscriptions", a.handleSubscribe))
	mux.Handle("DELETE /api/push/subscriptions", a.instrument("/api/push/subscriptions", a.handleUnsubscribe))

	// Live alert stream
	mux.Handle("GET /api/alerts/ws", a.ws)

	return mux
}

// instrument wraps a handler with request counting and timing. Without
// metrics configured the handler is returned untouched.
func (a *API) instrument(route string, h http.HandlerFunc) http.Handler {
	if a.metrics == nil {
		return h
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h(rec, r)

		a.metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		a.metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
