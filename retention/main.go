package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/feedback-radar/internal/config"
	"github.com/DeafMist/feedback-radar/internal/elasticsearch"
	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/metrics"
)

const (
	maxConnectRetries = 10
	maxRetryDelay     = 30 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

type purger interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := connect(ctx, log, 2*time.Second, func() (*elasticsearch.Client, error) {
		return elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// Run immediately on start, but don't fail if ES is temporarily unavailable
	runOnce(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

// connect builds a client and pings it, retrying with doubling delay capped at 30s.
func connect[C pinger](ctx context.Context, log *slog.Logger, delay time.Duration, dial func() (C, error)) (C, error) {
	var (
		zero    C
		lastErr error
	)

	for attempt := 0; attempt < maxConnectRetries; attempt++ {
		client, err := dial()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx)
			cancel()
			if err == nil {
				return client, nil
			}
		}
		lastErr = err
		log.Warn("elasticsearch unavailable, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", maxConnectRetries),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay = min(delay*2, maxRetryDelay)
	}
	return zero, lastErr
}

func runOnce(ctx context.Context, log *slog.Logger, store purger, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := store.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		metrics.RetentionRuns.WithLabelValues("failed").Inc()
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err), slog.Int64("deleted", deleted))
		return
	}

	metrics.RetentionRuns.WithLabelValues("ok").Inc()
	metrics.RecordsPurged.Add(float64(deleted))
	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old feedback found")
	}
}
