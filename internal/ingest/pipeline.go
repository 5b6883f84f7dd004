package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"

	"procodus.dev/silowatch/internal/rules"
	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/internal/store"
	"procodus.dev/silowatch/pkg/metrics"
)

// ReadingStore is the persistence the pipeline needs for one cycle.
type ReadingStore interface {
	CreateReading(ctx context.Context, r *silo.Reading) error
	LastReading(ctx context.Context, siloID uuid.UUID) (*silo.Reading, error)
	CreateEvent(ctx context.Context, e *silo.SiloEvent) error
	CreateAlert(ctx context.Context, a *silo.Alert) error
}

// Notifier fans a persisted alert out across the notification channels.
type Notifier interface {
	Dispatch(ctx context.Context, alert *silo.Alert)
}

// Pipeline runs one ingestion cycle: normalize the raw record, gate it
// against the last stored reading, store it, evaluate the rules and
// dispatch any resulting alerts.
type Pipeline struct {
	logger   *slog.Logger
	store    ReadingStore
	gate     *Gate
	detector *rules.LuminosityDetector
	scorer   rules.Scorer // Optional anomaly hook
	notifier Notifier
	source   string
	metrics  *metrics.MonitorMetrics // Optional metrics
}

// PipelineConfig holds the configuration for the Pipeline.
type PipelineConfig struct {
	Logger   *slog.Logger
	Store    ReadingStore
	Notifier Notifier

	// Gate overrides the dedup gate (default: NewGate()).
	Gate *Gate
	// Detector overrides the luminosity detector (default thresholds).
	Detector *rules.LuminosityDetector
	// Scorer is the optional anomaly-detection hook; nil disables it.
	Scorer rules.Scorer

	// Source labels this pipeline's metrics ("poll", "intake").
	Source string

	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.MonitorMetrics
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.Notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}

	gate := cfg.Gate
	if gate == nil {
		gate = NewGate()
	}

	detector := cfg.Detector
	if detector == nil {
		detector = rules.NewLuminosityDetector()
	}

	source := cfg.Source
	if source == "" {
		source = "direct"
	}

	return &Pipeline{
		logger:   cfg.Logger,
		store:    cfg.Store,
		gate:     gate,
		detector: detector,
		scorer:   cfg.Scorer,
		notifier: cfg.Notifier,
		source:   source,
		metrics:  cfg.Metrics,
	}, nil
}

// Process runs one ingestion cycle for the silo with the given raw record.
// Failures degrade the cycle rather than escalating: a malformed record is
// dropped, an unreadable last reading counts as "no prior", and a failed
// alert write skips only that alert's dispatch. The returned error reports
// why the cycle stopped early; the caller logs it and moves on.
func (p *Pipeline) Process(ctx context.Context, s *silo.Silo, deviceID string, raw map[string]any) error {
	var timer *prometheus.Timer
	if p.metrics != nil {
		timer = prometheus.NewTimer(p.metrics.PipelineDuration.WithLabelValues(p.source))
		defer timer.ObserveDuration()
	}

	reading, err := Normalize(s.ID, deviceID, raw)
	if err != nil {
		p.logger.Warn("dropping malformed record",
			"silo_id", s.ID,
			"device_id", deviceID,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.RecordsRejected.Inc()
		}
		return err
	}

	prev, err := p.store.LastReading(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			// Store degradation must not block ingestion: no prior reading
			// means the gate accepts unconditionally.
			p.logger.Warn("could not fetch last reading, treating as no prior",
				"silo_id", s.ID,
				"error", err,
			)
		}
		prev = nil
	}

	decision := p.gate.Evaluate(prev, reading)
	if p.metrics != nil {
		p.metrics.ReadingsIngested.WithLabelValues(decision.String()).Inc()
	}
	if !decision.Accepted() {
		p.logger.Info("suppressing duplicate reading",
			"silo_id", s.ID,
			"last_timestamp", prev.Timestamp,
		)
		return nil
	}

	if err := p.store.CreateReading(ctx, reading); err != nil {
		p.logger.Error("failed to store reading", "silo_id", s.ID, "error", err)
		return err
	}

	p.logger.Debug("reading stored",
		"silo_id", s.ID,
		"decision", decision.String(),
		"timestamp", reading.Timestamp,
	)

	drafts := p.evaluate(ctx, s, prev, reading)

	for _, draft := range drafts {
		alert, err := p.persistAlert(ctx, s.ID, draft)
		if err != nil {
			p.logger.Error("failed to store alert, skipping its dispatch",
				"silo_id", s.ID,
				"level", draft.Level,
				"error", err,
			)
			continue
		}
		p.notifier.Dispatch(ctx, alert)
	}

	return nil
}

// evaluate runs the luminosity detector, the threshold rules and the
// optional anomaly hook against the accepted reading, persisting detected
// events and collecting alert drafts.
func (p *Pipeline) evaluate(ctx context.Context, s *silo.Silo, prev, reading *silo.Reading) []rules.Draft {
	events, drafts := p.detector.Detect(prev, reading)
	for _, ev := range events {
		if err := p.persistEvent(ctx, s.ID, ev); err != nil {
			p.logger.Error("failed to store silo event",
				"silo_id", s.ID,
				"event_type", ev.EventType,
				"error", err,
			)
			continue
		}
		if p.metrics != nil {
			p.metrics.EventsDetected.WithLabelValues(ev.EventType).Inc()
		}
	}

	drafts = append(drafts, rules.EvaluateThresholds(s, reading)...)

	if p.scorer != nil {
		score, err := p.scorer.Score(ctx, reading)
		switch {
		case err != nil:
			p.logger.Warn("anomaly scoring failed, skipping",
				"silo_id", s.ID,
				"error", err,
			)
		case score.Flagged:
			drafts = append(drafts, rules.AnomalyDraft(score))
		}
	}

	return drafts
}

func (p *Pipeline) persistEvent(ctx context.Context, siloID uuid.UUID, ev rules.EventDraft) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}

	return p.store.CreateEvent(ctx, &silo.SiloEvent{
		SiloID:    siloID,
		EventType: ev.EventType,
		Payload:   datatypes.JSON(payload),
		Timestamp: time.Now().UTC(),
	})
}

func (p *Pipeline) persistAlert(ctx context.Context, siloID uuid.UUID, draft rules.Draft) (*silo.Alert, error) {
	value, err := json.Marshal(draft.Value)
	if err != nil {
		return nil, err
	}

	alert := &silo.Alert{
		SiloID:    siloID,
		Level:     draft.Level,
		Message:   draft.Message,
		Value:     datatypes.JSON(value),
		Timestamp: time.Now().UTC(),
	}
	if err := p.store.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.AlertsCreated.WithLabelValues(string(alert.Level)).Inc()
	}
	return alert, nil
}
