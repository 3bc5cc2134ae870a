package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/feedback-radar/internal/dedupe"
	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/metrics"
	"github.com/DeafMist/feedback-radar/internal/models"
)

type stubFetcher struct {
	items map[string][]models.RawFeedback
	errs  map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]models.RawFeedback, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.items[url], nil
}

type stubWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func review(id, text string) models.RawFeedback {
	return models.RawFeedback{
		ID:        id,
		Timestamp: "2025-01-06T09:30:00Z",
		Channel:   models.ChannelAppReview,
		Region:    "unknown",
		Product:   "Mobile App",
		Text:      text,
	}
}

func newCollector(f *stubFetcher, w *stubWriter, feeds ...string) *collector {
	return &collector{
		log:     logger.Discard(),
		fetcher: f,
		cache:   dedupe.NewCache(100, time.Hour, nil),
		writer:  w,
		feeds:   feeds,
	}
}

func TestPollPublishesNewItems(t *testing.T) {
	f := &stubFetcher{
		items: map[string][]models.RawFeedback{
			"ios":     {review("r1", "Crashes on login"), review("r2", "Love it")},
			"android": {review("r2", "Love it"), review("r3", "Slow transfers")},
		},
		errs: map[string]error{"broken": errors.New("timeout")},
	}
	w := &stubWriter{}
	c := newCollector(f, w, "ios", "broken", "android")

	dups := testutil.ToFloat64(metrics.CollectorItems.WithLabelValues("duplicate"))
	require.Equal(t, 3, c.poll(context.Background()))
	require.Len(t, w.msgs, 3)
	require.Equal(t, dups+1, testutil.ToFloat64(metrics.CollectorItems.WithLabelValues("duplicate")))

	var first models.RawFeedback
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &first))
	require.Equal(t, "r1", first.ID)
	require.Equal(t, "Crashes on login", first.Text)
	require.Equal(t, "r1", string(w.msgs[0].Key))

	require.Zero(t, c.poll(context.Background()))
	require.Len(t, w.msgs, 3)
}

func TestPollRetriesAfterPublishFailure(t *testing.T) {
	f := &stubFetcher{items: map[string][]models.RawFeedback{"ios": {review("r1", "Crashes on login")}}}
	w := &stubWriter{err: errors.New("broker unavailable")}
	c := newCollector(f, w, "ios")

	require.Zero(t, c.poll(context.Background()))

	w.err = nil
	require.Equal(t, 1, c.poll(context.Background()))
	require.Len(t, w.msgs, 1)
}
