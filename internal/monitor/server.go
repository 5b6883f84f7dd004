// Package monitor wires the ingestion pipeline, rule engine, notifier
// stack and HTTP API into the monitor service process.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"procodus.dev/silowatch/internal/api"
	"procodus.dev/silowatch/internal/ingest"
	"procodus.dev/silowatch/internal/live"
	"procodus.dev/silowatch/internal/notify"
	"procodus.dev/silowatch/internal/store"
	"procodus.dev/silowatch/pkg/feed"
	"procodus.dev/silowatch/pkg/metrics"
)

// Server represents the monitor service: database, feed poller, optional
// AMQP intake, notification channels and the HTTP API.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	poller     *ingest.Poller
	intake     *ingest.Intake
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// HTTP configuration
	HTTPPort int

	// Feed polling configuration
	FeedBaseURL  string
	PollSchedule string

	// RabbitMQ intake; both must be set to enable it
	RabbitMQURL string
	QueueName   string

	// Telegram channel; empty token disables it
	TelegramToken   string
	TelegramOffline bool

	// Email channel; empty host disables it
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// SMS channel; empty SID disables it
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	// Web push channel; empty keys disable it
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushSubscriber  string
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if (cfg.RabbitMQURL == "") != (cfg.QueueName == "") {
		return nil, errors.New("rabbitmq URL and queue name must be set together")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the monitor server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting monitor server")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Initialize database
	db, err := store.NewDB(&store.DBConfig{
		Logger:   s.logger,
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	st, err := store.New(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	m := metrics.NewMonitorMetrics("silowatch")

	// Live listener registry
	registry, err := live.NewRegistry(&live.RegistryConfig{
		Logger:  s.logger,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize live registry: %w", err)
	}

	// Notification channel adapters; unconfigured channels stay nil
	dispatcher, err := s.buildDispatcher(st, registry, m)
	if err != nil {
		return err
	}

	// Feed client and ingestion pipeline
	feedClient, err := feed.NewClient(&feed.Config{
		Logger:  s.logger,
		BaseURL: s.config.FeedBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize feed client: %w", err)
	}

	pollPipeline, err := ingest.NewPipeline(&ingest.PipelineConfig{
		Logger:   s.logger,
		Store:    st,
		Notifier: dispatcher,
		Source:   "poll",
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	poller, err := ingest.NewPoller(&ingest.PollerConfig{
		Logger:   s.logger,
		Silos:    st,
		Feed:     feedClient,
		Pipeline: pollPipeline,
		Schedule: s.config.PollSchedule,
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize poller: %w", err)
	}
	s.poller = poller

	if err := s.poller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	// Optional AMQP intake
	if s.config.RabbitMQURL != "" {
		intakePipeline, err := ingest.NewPipeline(&ingest.PipelineConfig{
			Logger:   s.logger,
			Store:    st,
			Notifier: dispatcher,
			Source:   "intake",
			Metrics:  m,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize intake pipeline: %w", err)
		}

		intake, err := ingest.NewIntake(&ingest.IntakeConfig{
			Logger:      s.logger,
			Silos:       st,
			Pipeline:    intakePipeline,
			RabbitMQURL: s.config.RabbitMQURL,
			QueueName:   s.config.QueueName,
			Metrics:     m,
			MQMetrics:   metrics.NewMQMetrics("silowatch"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize intake: %w", err)
		}
		s.intake = intake

		if err := s.intake.Start(ctx); err != nil {
			return fmt.Errorf("failed to start intake: %w", err)
		}
	}

	// HTTP API
	apiHandler, err := api.New(&api.Config{
		Logger:    s.logger,
		Store:     st,
		WebSocket: live.ServeWS(registry, s.logger),
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           apiHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("monitor server started successfully")

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	// Shutdown
	return s.Shutdown()
}

// buildDispatcher assembles the notification dispatcher from the
// configured channel credentials. A channel with no credentials is left
// nil and the dispatcher skips it.
func (s *Server) buildDispatcher(st *store.Store, registry *live.Registry, m *metrics.MonitorMetrics) (*notify.Dispatcher, error) {
	var telegram notify.TelegramSender
	if s.config.TelegramToken != "" {
		t, err := notify.NewTelegram(&notify.TelegramConfig{
			Logger:  s.logger,
			Token:   s.config.TelegramToken,
			Offline: s.config.TelegramOffline,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram channel: %w", err)
		}
		telegram = t
	}

	var email notify.EmailSender
	if s.config.SMTPHost != "" {
		e, err := notify.NewEmail(&notify.EmailConfig{
			Logger:   s.logger,
			Host:     s.config.SMTPHost,
			Port:     s.config.SMTPPort,
			User:     s.config.SMTPUser,
			Password: s.config.SMTPPassword,
			From:     s.config.SMTPFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email channel: %w", err)
		}
		email = e
	}

	var sms notify.SMSSender
	if s.config.TwilioAccountSID != "" {
		t, err := notify.NewSMS(&notify.SMSConfig{
			Logger:     s.logger,
			AccountSID: s.config.TwilioAccountSID,
			AuthToken:  s.config.TwilioAuthToken,
			From:       s.config.TwilioFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sms channel: %w", err)
		}
		sms = t
	}

	var push notify.PushSender
	if s.config.VAPIDPublicKey != "" && s.config.VAPIDPrivateKey != "" {
		p, err := notify.NewWebPush(&notify.WebPushConfig{
			Logger:          s.logger,
			Subscriber:      s.config.PushSubscriber,
			VAPIDPublicKey:  s.config.VAPIDPublicKey,
			VAPIDPrivateKey: s.config.VAPIDPrivateKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize web push channel: %w", err)
		}
		push = p
	}

	dispatcher, err := notify.NewDispatcher(&notify.DispatcherConfig{
		Logger:   s.logger,
		Store:    st,
		Telegram: telegram,
		Email:    email,
		SMS:      sms,
		Push:     push,
		Live:     registry,
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	s.logger.Info("notification channels configured",
		"telegram", telegram != nil,
		"email", email != nil,
		"sms", sms != nil,
		"push", push != nil,
	)
	return dispatcher, nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down monitor server")

	var shutdownErr error

	// Shutdown HTTP server
	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	// Stop poller
	if s.poller != nil {
		s.logger.Info("stopping poller")
		s.poller.Stop()
	}

	// Stop intake
	if s.intake != nil {
		s.logger.Info("stopping intake")
		if err := s.intake.Stop(); err != nil {
			s.logger.Error("failed to stop intake", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; intake shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("intake shutdown error: %w", err)
			}
		}
	}

	// Close database
	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := store.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("monitor server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("monitor server shutdown completed successfully")
	return nil
}
