package monitor_test

import (
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/monitor"
	"procodus.dev/silowatch/pkg/logger"
)

var _ = Describe("Monitor Server", func() {
	var cfg *monitor.ServerConfig

	BeforeEach(func() {
		cfg = &monitor.ServerConfig{
			Logger:     logger.NewWithLevel(slog.LevelError),
			DBHost:     "localhost",
			DBPort:     5432,
			DBUser:     "silowatch",
			DBPassword: "secret",
			DBName:     "silowatch",
			HTTPPort:   8080,
		}
	})

	Describe("NewServer", func() {
		It("should create a server with a valid configuration", func() {
			server, err := monitor.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})

		It("should accept an intake configuration", func() {
			cfg.RabbitMQURL = "amqp://localhost:5672"
			cfg.QueueName = "silo-telemetry"

			server, err := monitor.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})

		It("should return error when config is nil", func() {
			_, err := monitor.NewServer(nil)
			Expect(err).To(MatchError("server config cannot be nil"))
		})

		It("should return error when logger is nil", func() {
			cfg.Logger = nil
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("should return error when database host is empty", func() {
			cfg.DBHost = ""
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("database host cannot be empty"))
		})

		It("should return error when database port is zero", func() {
			cfg.DBPort = 0
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("database port must be positive"))
		})

		It("should return error when database user is empty", func() {
			cfg.DBUser = ""
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("database user cannot be empty"))
		})

		It("should return error when database name is empty", func() {
			cfg.DBName = ""
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("database name cannot be empty"))
		})

		It("should return error when HTTP port is missing", func() {
			cfg.HTTPPort = 0
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("HTTP port must be positive"))
		})

		It("should return error when only the rabbitmq URL is set", func() {
			cfg.RabbitMQURL = "amqp://localhost:5672"
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("rabbitmq URL and queue name must be set together"))
		})

		It("should return error when only the queue name is set", func() {
			cfg.QueueName = "silo-telemetry"
			_, err := monitor.NewServer(cfg)
			Expect(err).To(MatchError("rabbitmq URL and queue name must be set together"))
		})
	})
})
