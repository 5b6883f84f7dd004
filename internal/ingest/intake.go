package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/pkg/metrics"
	"procodus.dev/silowatch/pkg/mq"
)

// Envelope is the JSON message format accepted on the intake queue.
// Record carries a raw feed-shaped record, the same shape the poller
// pulls from a channel.
type Envelope struct {
	SiloID   uuid.UUID      `json:"silo_id"`
	DeviceID string         `json:"device_id"`
	Record   map[string]any `json:"record"`
}

// SiloGetter resolves a silo by ID so intake messages can be routed.
type SiloGetter interface {
	GetSilo(ctx context.Context, id uuid.UUID) (*silo.Silo, error)
}

// Intake consumes envelopes from RabbitMQ and feeds them through the
// ingestion pipeline.
type Intake struct {
	logger   *slog.Logger
	silos    SiloGetter
	pipeline *Pipeline
	mqClient *mq.Client
	metrics  *metrics.MonitorMetrics // Optional metrics
	done     chan struct{}
}

// IntakeConfig holds the configuration for the Intake consumer.
type IntakeConfig struct {
	Logger      *slog.Logger
	Silos       SiloGetter
	Pipeline    *Pipeline
	RabbitMQURL string
	QueueName   string

	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.MonitorMetrics

	// MQMetrics is the optional Prometheus metrics collector for MQ operations.
	MQMetrics *metrics.MQMetrics
}

// NewIntake creates a new Intake instance.
func NewIntake(cfg *IntakeConfig) (*Intake, error) {
	if cfg == nil {
		return nil, errors.New("intake config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Silos == nil {
		return nil, errors.New("silo getter cannot be nil")
	}

	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	// Create MQ client
	mqClient := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger)

	// Enable MQ metrics if configured
	if cfg.MQMetrics != nil {
		mqClient.SetMetrics(cfg.MQMetrics)
	}

	return &Intake{
		logger:   cfg.Logger,
		silos:    cfg.Silos,
		pipeline: cfg.Pipeline,
		mqClient: mqClient,
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
	}, nil
}

// Start begins consuming envelopes from RabbitMQ.
func (in *Intake) Start(ctx context.Context) error {
	in.logger.Info("starting intake consumer")

	// Wait for MQ client to be ready
	time.Sleep(2 * time.Second)

	deliveries, err := in.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	in.logger.Info("intake consumer started, waiting for messages")

	go in.processMessages(ctx, deliveries)

	return nil
}

// processMessages processes incoming messages from the deliveries channel.
func (in *Intake) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			in.logger.Info("context canceled, stopping intake processing")
			close(in.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				in.logger.Warn("deliveries channel closed")
				close(in.done)
				return
			}

			in.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery processes a single envelope. Envelopes are always
// acknowledged: a malformed or unroutable message would fail identically
// on redelivery, and pipeline-level failures are already logged and
// counted there.
func (in *Intake) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			in.logger.Error("failed to ack message", "error", err)
		}
	}()

	var env Envelope
	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		in.logger.Error("failed to unmarshal intake envelope", "error", err)
		if in.metrics != nil {
			in.metrics.RecordsRejected.Inc()
		}
		return
	}

	if env.SiloID == uuid.Nil || len(env.Record) == 0 {
		in.logger.Warn("dropping incomplete intake envelope",
			"silo_id", env.SiloID,
			"device_id", env.DeviceID,
		)
		if in.metrics != nil {
			in.metrics.RecordsRejected.Inc()
		}
		return
	}

	s, err := in.silos.GetSilo(ctx, env.SiloID)
	if err != nil {
		in.logger.Warn("dropping envelope for unknown silo",
			"silo_id", env.SiloID,
			"error", err,
		)
		if in.metrics != nil {
			in.metrics.RecordsRejected.Inc()
		}
		return
	}

	in.logger.Debug("received intake envelope",
		"silo_id", env.SiloID,
		"device_id", env.DeviceID,
	)

	// Pipeline failures are logged and counted inside Process.
	_ = in.pipeline.Process(ctx, s, env.DeviceID, env.Record)
}

// Stop stops the intake consumer and closes the MQ client.
func (in *Intake) Stop() error {
	in.logger.Info("stopping intake consumer")

	if err := in.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	<-in.done

	in.logger.Info("intake consumer stopped")
	return nil
}
