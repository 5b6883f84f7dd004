package live_test

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/live"
	"procodus.dev/silowatch/pkg/logger"
)

var _ = Describe("Registry", func() {
	var (
		registry *live.Registry
		server   *httptest.Server
	)

	dial := func() *websocket.Conn {
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		Expect(err).NotTo(HaveOccurred())
		return conn
	}

	BeforeEach(func() {
		var err error
		registry, err = live.NewRegistry(&live.RegistryConfig{
			Logger: logger.NewWithLevel(slog.LevelError),
		})
		Expect(err).NotTo(HaveOccurred())

		server = httptest.NewServer(live.ServeWS(registry, logger.NewWithLevel(slog.LevelError)))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewRegistry", func() {
		It("should require a logger", func() {
			_, err := live.NewRegistry(&live.RegistryConfig{})
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("should start with no listeners", func() {
			Expect(registry.Len()).To(BeZero())
		})
	})

	Describe("connection lifecycle", func() {
		It("should register a listener on upgrade", func() {
			conn := dial()
			defer conn.Close()

			Eventually(registry.Len).Should(Equal(1))
		})

		It("should unregister a listener when it disconnects", func() {
			conn := dial()
			Eventually(registry.Len).Should(Equal(1))

			Expect(conn.Close()).To(Succeed())
			Eventually(registry.Len).Should(BeZero())
		})

		It("should track multiple listeners", func() {
			c1 := dial()
			c2 := dial()
			defer c1.Close()
			defer c2.Close()

			Eventually(registry.Len).Should(Equal(2))
		})
	})

	Describe("Broadcast", func() {
		It("should deliver the payload to every listener", func() {
			c1 := dial()
			c2 := dial()
			defer c1.Close()
			defer c2.Close()
			Eventually(registry.Len).Should(Equal(2))

			registry.Broadcast([]byte(`{"type":"alert"}`))

			for _, conn := range []*websocket.Conn{c1, c2} {
				Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
				_, payload, err := conn.ReadMessage()
				Expect(err).NotTo(HaveOccurred())
				Expect(string(payload)).To(Equal(`{"type":"alert"}`))
			}
		})

		It("should be a no-op with no listeners", func() {
			Expect(func() {
				registry.Broadcast([]byte("payload"))
			}).NotTo(Panic())
		})

		It("should keep delivering after a listener is removed", func() {
			c1 := dial()
			c2 := dial()
			defer c2.Close()
			Eventually(registry.Len).Should(Equal(2))

			Expect(c1.Close()).To(Succeed())
			Eventually(registry.Len).Should(Equal(1))

			registry.Broadcast([]byte("still alive"))

			Expect(c2.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			_, payload, err := c2.ReadMessage()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload)).To(Equal("still alive"))
		})
	})
})
