package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/pkg/feed"
	"procodus.dev/silowatch/pkg/metrics"
)

// DefaultPollSchedule polls every five minutes, matching the usual
// ThingSpeak free-tier update cadence.
const DefaultPollSchedule = "@every 5m"

// SiloLister returns the silos that have a feed channel configured.
type SiloLister interface {
	SilosWithFeed(ctx context.Context) ([]silo.Silo, error)
}

// FeedClient fetches the latest record from a silo's feed channel.
type FeedClient interface {
	Latest(ctx context.Context, channelID int64, readKey string) (map[string]any, error)
}

// Poller periodically pulls the latest feed record for every silo with a
// configured channel and pushes it through the ingestion pipeline.
type Poller struct {
	logger   *slog.Logger
	silos    SiloLister
	feed     FeedClient
	pipeline *Pipeline
	schedule string
	metrics  *metrics.MonitorMetrics // Optional metrics

	cron    *cron.Cron
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// PollerConfig holds the configuration for the Poller.
type PollerConfig struct {
	Logger   *slog.Logger
	Silos    SiloLister
	Feed     FeedClient
	Pipeline *Pipeline

	// Schedule is a cron spec (default: DefaultPollSchedule).
	Schedule string

	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.MonitorMetrics
}

// NewPoller creates a new Poller instance.
func NewPoller(cfg *PollerConfig) (*Poller, error) {
	if cfg == nil {
		return nil, errors.New("poller config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Silos == nil {
		return nil, errors.New("silo lister cannot be nil")
	}

	if cfg.Feed == nil {
		return nil, errors.New("feed client cannot be nil")
	}

	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultPollSchedule
	}

	return &Poller{
		logger:   cfg.Logger,
		silos:    cfg.Silos,
		feed:     cfg.Feed,
		pipeline: cfg.Pipeline,
		schedule: schedule,
		metrics:  cfg.Metrics,
	}, nil
}

// Start schedules the poll cycle and runs one immediately so a fresh
// deployment does not wait a full interval for its first readings.
func (p *Poller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.schedule, func() { p.pollAll(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule poll cycle: %w", err)
	}

	p.running.Add(1)
	go func() {
		defer p.running.Done()
		p.pollAll(ctx)
	}()

	p.cron.Start()
	p.logger.Info("feed poller started", "schedule", p.schedule)
	return nil
}

// Stop halts the schedule and waits for any in-flight cycle to finish.
func (p *Poller) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.running.Wait()
	p.logger.Info("feed poller stopped")
}

// pollAll fetches and processes the latest record for every feed-backed
// silo. Silos are polled concurrently; one silo's failure never affects
// the others.
func (p *Poller) pollAll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if p.metrics != nil {
		p.metrics.PollCycles.Inc()
	}

	silos, err := p.silos.SilosWithFeed(ctx)
	if err != nil {
		p.logger.Error("failed to list feed-backed silos", "error", err)
		if p.metrics != nil {
			p.metrics.PollFailures.WithLabelValues("list").Inc()
		}
		return
	}

	if len(silos) == 0 {
		p.logger.Debug("no feed-backed silos to poll")
		return
	}

	var wg sync.WaitGroup
	for i := range silos {
		s := &silos[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.pollSilo(ctx, s)
		}()
	}
	wg.Wait()
}

func (p *Poller) pollSilo(ctx context.Context, s *silo.Silo) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while polling silo", "silo_id", s.ID, "panic", r)
			if p.metrics != nil {
				p.metrics.PollFailures.WithLabelValues("panic").Inc()
			}
		}
	}()

	readKey := ""
	if s.FeedReadKey != nil {
		readKey = *s.FeedReadKey
	}

	record, err := p.feed.Latest(ctx, *s.FeedChannelID, readKey)
	if err != nil {
		if errors.Is(err, feed.ErrNoFeedData) {
			p.logger.Debug("feed channel has no data yet", "silo_id", s.ID)
			return
		}
		p.logger.Error("failed to fetch feed record", "silo_id", s.ID, "error", err)
		if p.metrics != nil {
			p.metrics.PollFailures.WithLabelValues("fetch").Inc()
		}
		return
	}

	deviceID := fmt.Sprintf("feed-%d", *s.FeedChannelID)
	if err := p.pipeline.Process(ctx, s, deviceID, record); err != nil {
		if p.metrics != nil {
			p.metrics.PollFailures.WithLabelValues("process").Inc()
		}
	}
}
