package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/silowatch/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the monitor service",
	Long: `Run the monitor service that:
- Polls configured feed channels for new silo telemetry
- Consumes telemetry envelopes from RabbitMQ
- Deduplicates readings and persists them to PostgreSQL
- Evaluates threshold and luminosity alert rules
- Sends notifications over Telegram, email, SMS and web push
- Serves the HTTP API and live alert websocket`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	// Monitor-specific flags
	monitorCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	monitorCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	monitorCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	monitorCmd.Flags().String("db-password", "", "PostgreSQL password")
	monitorCmd.Flags().String("db-name", "silowatch", "PostgreSQL database name")
	monitorCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	monitorCmd.Flags().Int("http-port", 8080, "HTTP server port")
	monitorCmd.Flags().String("feed-base-url", "", "Feed API base URL (default is the public ThingSpeak endpoint)")
	monitorCmd.Flags().String("poll-schedule", "", "Cron schedule for feed polling (default every 5 minutes)")
	monitorCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL; empty disables the intake consumer")
	monitorCmd.Flags().String("queue-name", "silo-telemetry", "RabbitMQ queue name for telemetry envelopes")
	monitorCmd.Flags().String("telegram-token", "", "Telegram bot token; empty disables the channel")
	monitorCmd.Flags().String("smtp-host", "", "SMTP host; empty disables the email channel")
	monitorCmd.Flags().Int("smtp-port", 587, "SMTP port")
	monitorCmd.Flags().String("smtp-user", "", "SMTP user")
	monitorCmd.Flags().String("smtp-password", "", "SMTP password")
	monitorCmd.Flags().String("smtp-from", "", "Email sender address")
	monitorCmd.Flags().String("twilio-account-sid", "", "Twilio account SID; empty disables the SMS channel")
	monitorCmd.Flags().String("twilio-auth-token", "", "Twilio auth token")
	monitorCmd.Flags().String("twilio-from", "", "SMS sender number")
	monitorCmd.Flags().String("vapid-public-key", "", "VAPID public key; empty disables web push")
	monitorCmd.Flags().String("vapid-private-key", "", "VAPID private key")
	monitorCmd.Flags().String("push-subscriber", "", "VAPID subscriber contact (mailto: URL)")

	// Bind flags to viper
	_ = viper.BindPFlag("monitor.db.host", monitorCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("monitor.db.port", monitorCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("monitor.db.user", monitorCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("monitor.db.password", monitorCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("monitor.db.name", monitorCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("monitor.db.sslmode", monitorCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("monitor.http.port", monitorCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("monitor.feed.base_url", monitorCmd.Flags().Lookup("feed-base-url"))
	_ = viper.BindPFlag("monitor.feed.poll_schedule", monitorCmd.Flags().Lookup("poll-schedule"))
	_ = viper.BindPFlag("monitor.rabbitmq.url", monitorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("monitor.rabbitmq.queue_name", monitorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("monitor.telegram.token", monitorCmd.Flags().Lookup("telegram-token"))
	_ = viper.BindPFlag("monitor.smtp.host", monitorCmd.Flags().Lookup("smtp-host"))
	_ = viper.BindPFlag("monitor.smtp.port", monitorCmd.Flags().Lookup("smtp-port"))
	_ = viper.BindPFlag("monitor.smtp.user", monitorCmd.Flags().Lookup("smtp-user"))
	_ = viper.BindPFlag("monitor.smtp.password", monitorCmd.Flags().Lookup("smtp-password"))
	_ = viper.BindPFlag("monitor.smtp.from", monitorCmd.Flags().Lookup("smtp-from"))
	_ = viper.BindPFlag("monitor.twilio.account_sid", monitorCmd.Flags().Lookup("twilio-account-sid"))
	_ = viper.BindPFlag("monitor.twilio.auth_token", monitorCmd.Flags().Lookup("twilio-auth-token"))
	_ = viper.BindPFlag("monitor.twilio.from", monitorCmd.Flags().Lookup("twilio-from"))
	_ = viper.BindPFlag("monitor.push.vapid_public_key", monitorCmd.Flags().Lookup("vapid-public-key"))
	_ = viper.BindPFlag("monitor.push.vapid_private_key", monitorCmd.Flags().Lookup("vapid-private-key"))
	_ = viper.BindPFlag("monitor.push.subscriber", monitorCmd.Flags().Lookup("push-subscriber"))
}

func runMonitor(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting monitor service")

	// Create monitor configuration from viper
	config := &monitor.ServerConfig{
		Logger:           logger,
		DBHost:           viper.GetString("monitor.db.host"),
		DBPort:           viper.GetInt("monitor.db.port"),
		DBUser:           viper.GetString("monitor.db.user"),
		DBPassword:       viper.GetString("monitor.db.password"),
		DBName:           viper.GetString("monitor.db.name"),
		DBSSLMode:        viper.GetString("monitor.db.sslmode"),
		HTTPPort:         viper.GetInt("monitor.http.port"),
		FeedBaseURL:      viper.GetString("monitor.feed.base_url"),
		PollSchedule:     viper.GetString("monitor.feed.poll_schedule"),
		RabbitMQURL:      viper.GetString("monitor.rabbitmq.url"),
		QueueName:        viper.GetString("monitor.rabbitmq.queue_name"),
		TelegramToken:    viper.GetString("monitor.telegram.token"),
		SMTPHost:         viper.GetString("monitor.smtp.host"),
		SMTPPort:         viper.GetInt("monitor.smtp.port"),
		SMTPUser:         viper.GetString("monitor.smtp.user"),
		SMTPPassword:     viper.GetString("monitor.smtp.password"),
		SMTPFrom:         viper.GetString("monitor.smtp.from"),
		TwilioAccountSID: viper.GetString("monitor.twilio.account_sid"),
		TwilioAuthToken:  viper.GetString("monitor.twilio.auth_token"),
		TwilioFrom:       viper.GetString("monitor.twilio.from"),
		VAPIDPublicKey:   viper.GetString("monitor.push.vapid_public_key"),
		VAPIDPrivateKey:  viper.GetString("monitor.push.vapid_private_key"),
		PushSubscriber:   viper.GetString("monitor.push.subscriber"),
	}

	// The intake consumer is optional; only pass the queue name when a
	// RabbitMQ URL is configured so the pair validates together.
	if config.RabbitMQURL == "" {
		config.QueueName = ""
	}

	// Create and run server
	server, err := monitor.NewServer(config)
	if err != nil {
		logger.Error("failed to create monitor server", "error", err)
		return err
	}

	logger.Info("monitor server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"http_port", config.HTTPPort,
		"rabbitmq_url", config.RabbitMQURL,
		"telemetry_queue", config.QueueName,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("monitor server error", "error", err)
		return err
	}

	logger.Info("monitor server stopped")
	return nil
}
