package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/api"
	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/internal/store"
	"procodus.dev/silowatch/pkg/logger"
)

// fakeAPIStore is a hand-rolled api.Store. Each method returns the
// configured value or error and records its input.
type fakeAPIStore struct {
	Alerts        []silo.Alert
	ListAlertsErr error
	LastFilter    store.AlertFilter

	AckResult *silo.Alert
	AckErr    error
	AckedID   uuid.UUID
	AckedUser uuid.UUID

	Silos        []silo.Silo
	ListSilosErr error

	Silo       *silo.Silo
	GetSiloErr error

	Reading        *silo.Reading
	LastReadingErr error

	SavedSub   *silo.PushSubscription
	SaveSubErr error

	DeletedEndpoint string
	DeleteSubErr    error
}

func (f *fakeAPIStore) ListAlerts(_ context.Context, filter store.AlertFilter) ([]silo.Alert, error) {
	f.LastFilter = filter
	return f.Alerts, f.ListAlertsErr
}

func (f *fakeAPIStore) AcknowledgeAlert(_ context.Context, alertID, userID uuid.UUID) (*silo.Alert, error) {
	f.AckedID = alertID
	f.AckedUser = userID
	return f.AckResult, f.AckErr
}

func (f *fakeAPIStore) ListSilos(context.Context) ([]silo.Silo, error) {
	return f.Silos, f.ListSilosErr
}

func (f *fakeAPIStore) GetSilo(context.Context, uuid.UUID) (*silo.Silo, error) {
	return f.Silo, f.GetSiloErr
}

func (f *fakeAPIStore) LastReading(context.Context, uuid.UUID) (*silo.Reading, error) {
	return f.Reading, f.LastReadingErr
}

func (f *fakeAPIStore) SavePushSubscription(_ context.Context, sub *silo.PushSubscription) error {
	f.SavedSub = sub
	return f.SaveSubErr
}

func (f *fakeAPIStore) DeletePushSubscription(_ context.Context, endpoint string) error {
	f.DeletedEndpoint = endpoint
	return f.DeleteSubErr
}

var _ = Describe("API", func() {
	var (
		st  *fakeAPIStore
		mux *http.ServeMux
	)

	do := func(method, target string, body string) *httptest.ResponseRecorder {
		var reader *bytes.Reader
		if body == "" {
			reader = bytes.NewReader(nil)
		} else {
			reader = bytes.NewReader([]byte(body))
		}
		req := httptest.NewRequest(method, target, reader)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		st = &fakeAPIStore{}

		a, err := api.New(&api.Config{
			Logger: logger.NewWithLevel(slog.LevelError),
			Store:  st,
			WebSocket: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusSwitchingProtocols)
			}),
		})
		Expect(err).NotTo(HaveOccurred())
		mux = a.Routes()
	})

	Describe("New", func() {
		It("should require a store", func() {
			_, err := api.New(&api.Config{
				Logger:    logger.NewWithLevel(slog.LevelError),
				WebSocket: http.NotFoundHandler(),
			})
			Expect(err).To(MatchError("store cannot be nil"))
		})

		It("should require a websocket handler", func() {
			_, err := api.New(&api.Config{
				Logger: logger.NewWithLevel(slog.LevelError),
				Store:  st,
			})
			Expect(err).To(MatchError("websocket handler cannot be nil"))
		})
	})

	Describe("GET /health", func() {
		It("should report ok", func() {
			rec := do(http.MethodGet, "/health", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("GET /api/alerts", func() {
		It("should return the alert list", func() {
			st.Alerts = []silo.Alert{
				{ID: uuid.New(), Level: silo.SeverityCritical, Message: "temperature 42 exceeds configured limit 35"},
			}

			rec := do(http.MethodGet, "/api/alerts", "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			body := decode(rec)
			alerts, ok := body["alerts"].([]any)
			Expect(ok).To(BeTrue())
			Expect(alerts).To(HaveLen(1))
		})

		It("should pass query parameters through as a filter", func() {
			siloID := uuid.New()
			rec := do(http.MethodGet, "/api/alerts?silo_id="+siloID.String()+
				"&since=2025-06-01T00:00:00Z&until=2025-06-02T00:00:00Z&limit=5", "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			Expect(st.LastFilter.SiloID).To(Equal(siloID))
			Expect(st.LastFilter.Since).To(Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
			Expect(st.LastFilter.Until).To(Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))
			Expect(st.LastFilter.Limit).To(Equal(5))
		})

		It("should reject an invalid silo_id", func() {
			rec := do(http.MethodGet, "/api/alerts?silo_id=not-a-uuid", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "invalid silo_id"))
		})

		It("should reject an invalid since timestamp", func() {
			rec := do(http.MethodGet, "/api/alerts?since=yesterday", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject a non-positive limit", func() {
			rec := do(http.MethodGet, "/api/alerts?limit=0", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "invalid limit"))
		})

		It("should report store failures as 500", func() {
			st.ListAlertsErr = errors.New("db gone")
			rec := do(http.MethodGet, "/api/alerts", "")
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("POST /api/alerts/{id}/ack", func() {
		var alertID uuid.UUID

		BeforeEach(func() {
			alertID = uuid.New()
			st.AckResult = &silo.Alert{ID: alertID, Acknowledged: true}
		})

		It("should acknowledge with a user", func() {
			userID := uuid.New()
			rec := do(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack",
				`{"user_id":"`+userID.String()+`"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))

			Expect(st.AckedID).To(Equal(alertID))
			Expect(st.AckedUser).To(Equal(userID))
			Expect(decode(rec)).To(HaveKeyWithValue("acknowledged", true))
		})

		It("should accept an anonymous ack without a body", func() {
			rec := do(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(st.AckedUser).To(Equal(uuid.Nil))
		})

		It("should reject a malformed alert ID", func() {
			rec := do(http.MethodPost, "/api/alerts/banana/ack", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "invalid alert ID"))
		})

		It("should return 404 for an unknown alert", func() {
			st.AckResult = nil
			st.AckErr = store.ErrNotFound

			rec := do(http.MethodPost, "/api/alerts/"+uuid.NewString()+"/ack", "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "alert not found"))
		})
	})

	Describe("silo endpoints", func() {
		It("should list silos", func() {
			st.Silos = []silo.Silo{{ID: uuid.New(), Name: "North Silo"}, {ID: uuid.New(), Name: "South Silo"}}

			rec := do(http.MethodGet, "/api/silos", "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			body := decode(rec)
			silos, ok := body["silos"].([]any)
			Expect(ok).To(BeTrue())
			Expect(silos).To(HaveLen(2))
		})

		It("should fetch a silo by ID", func() {
			id := uuid.New()
			st.Silo = &silo.Silo{ID: id, Name: "North Silo"}

			rec := do(http.MethodGet, "/api/silos/"+id.String(), "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("name", "North Silo"))
		})

		It("should return 404 for an unknown silo", func() {
			st.GetSiloErr = store.ErrNotFound
			rec := do(http.MethodGet, "/api/silos/"+uuid.NewString(), "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should serve the latest reading", func() {
			st.Reading = &silo.Reading{ID: uuid.New(), DeviceID: "feed-77"}

			rec := do(http.MethodGet, "/api/silos/"+uuid.NewString()+"/readings/latest", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("device_id", "feed-77"))
		})

		It("should return 404 when the silo has no readings", func() {
			st.LastReadingErr = store.ErrNotFound
			rec := do(http.MethodGet, "/api/silos/"+uuid.NewString()+"/readings/latest", "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "no readings for silo"))
		})
	})

	Describe("push subscriptions", func() {
		subBody := `{
			"endpoint": "https://push.example.com/sub/abc",
			"keys": {"p256dh": "key-material", "auth": "auth-secret"}
		}`

		It("should save a subscription", func() {
			rec := do(http.MethodPost, "/api/push/subscriptions", subBody)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			Expect(st.SavedSub).NotTo(BeNil())
			Expect(st.SavedSub.Endpoint).To(Equal("https://push.example.com/sub/abc"))
			Expect(st.SavedSub.P256dh).To(Equal("key-material"))
			Expect(st.SavedSub.Auth).To(Equal("auth-secret"))
			Expect(st.SavedSub.SiloID).To(BeNil())
		})

		It("should scope a subscription to a silo when requested", func() {
			siloID := uuid.New()
			scoped := `{
				"endpoint": "https://push.example.com/sub/abc",
				"keys": {"p256dh": "key-material", "auth": "auth-secret"},
				"silo_id": "` + siloID.String() + `"
			}`
			rec := do(http.MethodPost, "/api/push/subscriptions", scoped)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			Expect(st.SavedSub.SiloID).NotTo(BeNil())
			Expect(*st.SavedSub.SiloID).To(Equal(siloID))
		})

		It("should reject a subscription without keys", func() {
			rec := do(http.MethodPost, "/api/push/subscriptions",
				`{"endpoint": "https://push.example.com/sub/abc"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("error", "endpoint and keys are required"))
		})

		It("should reject a non-JSON body", func() {
			rec := do(http.MethodPost, "/api/push/subscriptions", "not json")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should delete a subscription by endpoint", func() {
			rec := do(http.MethodDelete, "/api/push/subscriptions",
				`{"endpoint": "https://push.example.com/sub/abc"}`)
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(st.DeletedEndpoint).To(Equal("https://push.example.com/sub/abc"))
		})

		It("should reject a delete without an endpoint", func() {
			rec := do(http.MethodDelete, "/api/push/subscriptions", `{}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/alerts/ws", func() {
		It("should route to the websocket handler", func() {
			rec := do(http.MethodGet, "/api/alerts/ws", "")
			Expect(rec.Code).To(Equal(http.StatusSwitchingProtocols))
		})
	})
})
