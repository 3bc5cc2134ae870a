package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/feedback-radar/internal/config"
	"github.com/DeafMist/feedback-radar/internal/dedupe"
	"github.com/DeafMist/feedback-radar/internal/feeds"
	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/metrics"
	"github.com/DeafMist/feedback-radar/internal/models"
)

const fetchConcurrency = 4

type itemFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]models.RawFeedback, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type collector struct {
	log     *slog.Logger
	fetcher itemFetcher
	cache   *dedupe.Cache
	writer  messageWriter
	feeds   []string
}

func main() {
	log := logger.New("collector")
	cfg, err := config.LoadCollector()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", slog.Any("err", err))
			}
		}()
		defer srv.Close()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	c := &collector{
		log: log,
		fetcher: feeds.NewFetcher(&http.Client{Timeout: cfg.FetchTimeout}, feeds.Source{
			Channel: cfg.Channel,
			Product: cfg.Product,
			Region:  cfg.Region,
		}),
		cache:  dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL, nil),
		writer: writer,
		feeds:  cfg.Feeds,
	}

	log.Info("collector started",
		slog.Int("feeds", len(cfg.Feeds)),
		slog.Duration("interval", cfg.Interval),
		slog.String("topic", cfg.KafkaTopic),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	c.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll fetches every feed once and publishes items not seen before. Failed feeds are
// logged and retried on the next tick.
func (c *collector) poll(ctx context.Context) int {
	perFeed := make([][]models.RawFeedback, len(c.feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, url := range c.feeds {
		i, url := i, url
		g.Go(func() error {
			items, err := c.fetcher.Fetch(gctx, url)
			if err != nil {
				c.log.Warn("fetch feed", slog.String("feed", url), slog.Any("err", err))
				return nil
			}
			perFeed[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var (
		msgs []kafka.Message
		ids  []string
	)
	batch := make(map[string]struct{})
	for _, items := range perFeed {
		for _, item := range items {
			if _, dup := batch[item.ID]; dup || c.cache.IsSeen(item.ID) {
				metrics.CollectorItems.WithLabelValues("duplicate").Inc()
				continue
			}
			data, err := json.Marshal(item)
			if err != nil {
				metrics.CollectorItems.WithLabelValues("failed").Inc()
				c.log.Error("encode item", slog.String("id", item.ID), slog.Any("err", err))
				continue
			}
			batch[item.ID] = struct{}{}
			ids = append(ids, item.ID)
			msgs = append(msgs, kafka.Message{Key: []byte(item.ID), Value: data})
		}
	}

	if len(msgs) == 0 {
		return 0
	}

	if err := c.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.CollectorItems.WithLabelValues("failed").Add(float64(len(msgs)))
		c.log.Error("publish feedback", slog.Any("err", err), slog.Int("items", len(msgs)))
		return 0
	}

	for _, id := range ids {
		c.cache.MarkSeen(id)
	}
	metrics.CollectorItems.WithLabelValues("published").Add(float64(len(msgs)))
	c.log.Info("published feedback", slog.Int("items", len(msgs)))
	return len(msgs)
}
