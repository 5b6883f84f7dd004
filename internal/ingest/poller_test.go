package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/ingest"
	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/internal/store"
	"procodus.dev/silowatch/pkg/feed"
	"procodus.dev/silowatch/pkg/logger"
)

// fakeLister returns a fixed silo set.
type fakeLister struct {
	Silos []silo.Silo
	Err   error
}

func (f *fakeLister) SilosWithFeed(context.Context) ([]silo.Silo, error) {
	return f.Silos, f.Err
}

// fakeFeed returns per-channel records and tracks requested channels.
type fakeFeed struct {
	mu sync.Mutex

	Records  map[int64]map[string]any
	Errors   map[int64]error
	Channels []int64
}

func (f *fakeFeed) Latest(_ context.Context, channelID int64, _ string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels = append(f.Channels, channelID)
	if err, ok := f.Errors[channelID]; ok {
		return nil, err
	}
	return f.Records[channelID], nil
}

func (f *fakeFeed) Polled() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.Channels))
	copy(out, f.Channels)
	return out
}

var _ = Describe("Poller", func() {
	var (
		st     *fakeStore
		lister *fakeLister
		client *fakeFeed
		poller *ingest.Poller
		ctx    context.Context
	)

	ch := func(v int64) *int64 { return &v }

	feedSilo := func(channel int64) silo.Silo {
		return silo.Silo{
			ID:            uuid.New(),
			Name:          "North Silo",
			FeedChannelID: ch(channel),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = &fakeStore{LastReadingError: store.ErrNotFound}
		lister = &fakeLister{}
		client = &fakeFeed{
			Records: map[int64]map[string]any{},
			Errors:  map[int64]error{},
		}

		pipeline, err := ingest.NewPipeline(&ingest.PipelineConfig{
			Logger:   logger.NewWithLevel(slog.LevelError),
			Store:    st,
			Notifier: &fakeNotifier{},
			Source:   "poll",
		})
		Expect(err).NotTo(HaveOccurred())

		// A long schedule keeps the recurring tick out of the test; only
		// the immediate startup cycle runs.
		poller, err = ingest.NewPoller(&ingest.PollerConfig{
			Logger:   logger.NewWithLevel(slog.LevelError),
			Silos:    lister,
			Feed:     client,
			Pipeline: pipeline,
			Schedule: "@every 1h",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewPoller", func() {
		It("should validate its dependencies", func() {
			_, err := ingest.NewPoller(&ingest.PollerConfig{})
			Expect(err).To(HaveOccurred())
		})

		It("should reject a bad schedule at start", func() {
			bad, err := ingest.NewPoller(&ingest.PollerConfig{
				Logger:   logger.NewWithLevel(slog.LevelError),
				Silos:    lister,
				Feed:     client,
				Pipeline: mustPipeline(st),
				Schedule: "not a schedule",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(bad.Start(ctx)).To(HaveOccurred())
		})
	})

	Describe("startup cycle", func() {
		It("should poll every feed-backed silo once", func() {
			lister.Silos = []silo.Silo{feedSilo(77), feedSilo(88)}
			client.Records[77] = map[string]any{"created_at": "2025-06-01T12:00:00Z", "field1": "20"}
			client.Records[88] = map[string]any{"created_at": "2025-06-01T12:00:00Z", "field1": "25"}

			Expect(poller.Start(ctx)).To(Succeed())
			defer poller.Stop()

			Eventually(func() []int64 { return client.Polled() }).Should(ConsistOf(int64(77), int64(88)))
			Eventually(func() int { return len(st.Readings()) }).Should(Equal(2))
		})

		It("should isolate silo failures", func() {
			lister.Silos = []silo.Silo{feedSilo(77), feedSilo(88)}
			client.Errors[77] = errors.New("channel offline")
			client.Records[88] = map[string]any{"created_at": "2025-06-01T12:00:00Z", "field1": "25"}

			Expect(poller.Start(ctx)).To(Succeed())
			defer poller.Stop()

			Eventually(func() int { return len(st.Readings()) }).Should(Equal(1))
			Expect(st.Readings()[0].DeviceID).To(Equal("feed-88"))
		})

		It("should treat an empty feed as a quiet cycle", func() {
			lister.Silos = []silo.Silo{feedSilo(77)}
			client.Errors[77] = feed.ErrNoFeedData

			Expect(poller.Start(ctx)).To(Succeed())
			defer poller.Stop()

			Eventually(func() []int64 { return client.Polled() }).Should(ConsistOf(int64(77)))
			Consistently(func() int { return len(st.Readings()) }).Should(BeZero())
		})
	})
})

func mustPipeline(st *fakeStore) *ingest.Pipeline {
	p, err := ingest.NewPipeline(&ingest.PipelineConfig{
		Logger:   logger.NewWithLevel(slog.LevelError),
		Store:    st,
		Notifier: &fakeNotifier{},
	})
	if err != nil {
		panic(err)
	}
	return p
}
