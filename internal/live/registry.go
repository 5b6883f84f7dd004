// Package live tracks connected websocket listeners and broadcasts alert
// events to them.
package live

import (
	"errors"
	"log/slog"
	"sync"

	"procodus.dev/silowatch/pkg/metrics"
)

// Registry is the explicit set of currently connected live listeners. It
// is constructed once at process start and injected into the parts that
// need broadcast capability; all mutation is serialized under one mutex.
type Registry struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	metrics *metrics.MonitorMetrics // Optional metrics
}

// RegistryConfig holds the configuration for the Registry.
type RegistryConfig struct {
	Logger *slog.Logger
	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.MonitorMetrics
}

// NewRegistry creates a new Registry instance.
func NewRegistry(cfg *RegistryConfig) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("registry config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Registry{
		clients: make(map[*Client]struct{}),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Register adds a listener to the active set.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	count := len(r.clients)
	r.mu.Unlock()

	r.logger.Debug("live client registered", "clients", count)
	if r.metrics != nil {
		r.metrics.LiveClients.Set(float64(count))
	}
}

// Unregister removes a listener from the active set and closes its send
// queue. Removing an absent listener is a no-op.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	_, ok := r.clients[c]
	if ok {
		delete(r.clients, c)
		c.closeSend()
	}
	count := len(r.clients)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Debug("live client unregistered", "clients", count)
	if r.metrics != nil {
		r.metrics.LiveClients.Set(float64(count))
	}
}

// Broadcast enqueues the payload for every registered listener. The active
// set is snapshotted under the lock; the sends happen outside it so a slow
// network write cannot block connect/disconnect. A listener whose send
// queue is full is considered dead and removed, without affecting delivery
// to the rest.
func (r *Registry) Broadcast(payload []byte) {
	r.mu.Lock()
	snapshot := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	for _, c := range snapshot {
		if !c.enqueue(payload) {
			r.logger.Warn("live client send queue full, removing client")
			r.Unregister(c)
		}
	}
}

// Len returns the number of currently registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
