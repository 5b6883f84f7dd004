package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/silowatch/internal/simulator"
	"procodus.dev/silowatch/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the device simulator",
	Long: `Run the device simulator that:
- Generates synthetic silo telemetry with realistic correlations
- Simulates occasional open-silo lux jumps and fire flags
- Publishes telemetry envelopes to RabbitMQ`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulatorCmd.Flags().String("queue-name", "silo-telemetry", "RabbitMQ queue name for telemetry envelopes")
	simulatorCmd.Flags().Int("device-count", 3, "Number of simulated devices")
	simulatorCmd.Flags().Duration("interval", 15*time.Second, "Interval between records per device")
	simulatorCmd.Flags().StringSlice("silo-ids", nil, "Silo IDs to bind devices to (random when omitted)")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.rabbitmq.url", simulatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.queue_name", simulatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulator.device_count", simulatorCmd.Flags().Lookup("device-count"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulator.silo_ids", simulatorCmd.Flags().Lookup("silo-ids"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator service")

	siloIDs, err := parseSiloIDs(viper.GetStringSlice("simulator.silo_ids"))
	if err != nil {
		logger.Error("invalid silo IDs", "error", err)
		return err
	}

	// Create simulator configuration from viper
	config := &simulator.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("simulator.rabbitmq.url"),
		QueueName:   viper.GetString("simulator.rabbitmq.queue_name"),
		DeviceCount: viper.GetInt("simulator.device_count"),
		Interval:    viper.GetDuration("simulator.interval"),
		SiloIDs:     siloIDs,
		Metrics:     metrics.NewSimulatorMetrics("silowatch"),
		MQMetrics:   metrics.NewMQMetrics("silowatch"),
	}

	// Create and run server
	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator server", "error", err)
		return err
	}

	logger.Info("simulator server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"telemetry_queue", config.QueueName,
		"device_count", config.DeviceCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator server error", "error", err)
		return err
	}

	logger.Info("simulator server stopped")
	return nil
}

func parseSiloIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid silo ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
