package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/silowatch/internal/ingest"
	"procodus.dev/silowatch/pkg/metrics"
	"procodus.dev/silowatch/pkg/mq"
)

// ServerConfig holds the configuration for the simulator server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the intake queue to publish telemetry records to
	QueueName string
	// Interval is the time between records per device
	Interval time.Duration
	// DeviceCount is the number of simulated devices
	DeviceCount int
	// SiloIDs binds devices to existing silos; when fewer IDs than
	// devices are given the remainder get random IDs
	SiloIDs []uuid.UUID
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server runs a fleet of simulated devices publishing to the intake queue.
type Server struct {
	logger  *slog.Logger
	config  *ServerConfig
	devices []*Device
	clients []*mq.Client
	wg      sync.WaitGroup
	metrics *metrics.SimulatorMetrics
}

var (
	errInvalidDeviceCount = errors.New("device count must be greater than 0")
	errInvalidInterval    = errors.New("interval must be greater than 0")
	errLoggerRequired     = errors.New("logger is required")
)

// NewServer creates a new simulator server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.DeviceCount <= 0 {
		return nil, errInvalidDeviceCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	s := &Server{
		config:  cfg,
		devices: make([]*Device, 0, cfg.DeviceCount),
		clients: make([]*mq.Client, 0, cfg.DeviceCount),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}

	// Create devices with their own MQ clients
	for i := 0; i < cfg.DeviceCount; i++ {
		siloID := uuid.New()
		if i < len(cfg.SiloIDs) {
			siloID = cfg.SiloIDs[i]
		}

		device, err := NewDevice(siloID)
		if err != nil {
			return nil, fmt.Errorf("failed to create device %d: %w", i, err)
		}

		client := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger.With(
			slog.String("component", "mq-client"),
			slog.Int("device_index", i),
		))

		// Enable MQ metrics if configured
		if cfg.MQMetrics != nil {
			client.SetMetrics(cfg.MQMetrics)
		}

		s.devices = append(s.devices, device)
		s.clients = append(s.clients, client)

		s.logger.Info("created simulated device",
			"device_index", i,
			"device_id", device.DeviceID,
			"silo_id", siloID,
			"queue", cfg.QueueName,
		)
	}

	return s, nil
}

// Run starts all devices and blocks until shutdown signal is received.
func (s *Server) Run(ctx context.Context) error {
	// Create context that can be canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start all devices
	for i := range s.devices {
		s.wg.Add(1)
		go s.runDevice(ctx, i, s.devices[i], s.clients[i])
	}

	s.logger.Info("simulator server started",
		"device_count", len(s.devices),
		"interval", s.config.Interval,
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	// Wait for all devices to finish
	s.logger.Info("waiting for devices to shut down...")
	s.wg.Wait()

	// Close all MQ clients
	s.logger.Info("closing MQ clients...")
	s.closeClients()

	s.logger.Info("simulator server stopped")
	return nil
}

// runDevice runs a single device, publishing records at configured intervals.
func (s *Server) runDevice(ctx context.Context, id int, device *Device, client *mq.Client) {
	defer s.wg.Done()

	// Track active device
	if s.metrics != nil {
		s.metrics.ActiveDevices.Inc()
		defer s.metrics.ActiveDevices.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	deviceLogger := s.logger.With(slog.Int("device_index", id))
	deviceLogger.Info("device started")

	for {
		select {
		case <-ctx.Done():
			deviceLogger.Info("device shutting down")
			return

		case <-ticker.C:
			if err := s.publishRecord(ctx, device, client); err != nil {
				deviceLogger.Error("failed to publish record",
					"error", err,
				)
				// Continue on error - don't stop the device
				continue
			}

			deviceLogger.Debug("record published")
		}
	}
}

// publishRecord generates the next telemetry record for the device and
// publishes it as an intake envelope.
func (s *Server) publishRecord(ctx context.Context, device *Device, client *mq.Client) error {
	// Track duration
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.PublishDuration.WithLabelValues(s.config.QueueName))
		defer timer.ObserveDuration()
	}

	env := ingest.Envelope{
		SiloID:   device.SiloID,
		DeviceID: device.DeviceID,
		Record:   device.Record(time.Now()),
	}

	message, err := json.Marshal(env)
	if err != nil {
		// Track failure
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues("marshal_error").Inc()
		}
		return err
	}

	if err := client.Push(ctx, message); err != nil {
		// Track failure
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues("push_error").Inc()
		}
		return err
	}

	// Track success
	if s.metrics != nil {
		s.metrics.RecordsPublished.Inc()
		if device.LuxJumped() {
			s.metrics.LuxJumpsSimulated.Inc()
		}
	}

	return nil
}

// closeClients closes all MQ clients gracefully.
func (s *Server) closeClients() {
	var wg sync.WaitGroup

	for i, client := range s.clients {
		wg.Add(1)
		go func(id int, c *mq.Client) {
			defer wg.Done()

			if err := c.Close(); err != nil {
				s.logger.Error("failed to close MQ client",
					"device_index", id,
					"error", err,
				)
				return
			}

			s.logger.Info("MQ client closed", "device_index", id)
		}(i, client)
	}

	wg.Wait()
}
