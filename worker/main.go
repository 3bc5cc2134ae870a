package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/feedback-radar/internal/alerts"
	"github.com/DeafMist/feedback-radar/internal/config"
	"github.com/DeafMist/feedback-radar/internal/dedupe"
	"github.com/DeafMist/feedback-radar/internal/elasticsearch"
	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/pipeline"
	"github.com/DeafMist/feedback-radar/internal/sentiment"
)

type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	classifier, err := sentiment.Load(ctx, sentiment.ModelConfig{
		Provider:      cfg.Sentiment.Provider,
		Model:         cfg.Sentiment.Model,
		LexiconPath:   cfg.Sentiment.LexiconPath,
		Endpoint:      cfg.Sentiment.Endpoint,
		APIToken:      cfg.Sentiment.APIToken,
		OpenAIAPIKey:  cfg.Sentiment.OpenAIAPIKey,
		BedrockRegion: cfg.Sentiment.BedrockRegion,
		Timeout:       cfg.Sentiment.Timeout,
		RateLimit:     cfg.Sentiment.RateLimit,
	}, log)
	if err != nil {
		log.Error("load sentiment model", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic + "_dlq",
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	defer dlqWriter.Close()

	alertsWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.AlertsTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}
	defer alertsWriter.Close()

	proc := &batchProcessor{
		log:      log,
		indexer:  esClient,
		enricher: pipeline.NewEnricher(classifier, cfg.Concurrency, log),
		engine:   alerts.NewEngine(),
		cache:    dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL, nil),
		alertsW:  alertsWriter,
		dlq:      dlqWriter,
		now:      time.Now,
		backoff:  exponentialBackoff,
	}

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.String("alerts_topic", cfg.AlertsTopic),
		slog.String("model", classifier.ModelName()),
	)

	for {
		batch, err := fetchBatch(ctx, reader, cfg.BatchSize, cfg.CommitInterval)
		if len(batch) > 0 {
			if perr := proc.process(ctx, batch); perr != nil {
				log.Error("batch left uncommitted", slog.Any("err", perr), slog.Int("messages", len(batch)))
			} else if cerr := reader.CommitMessages(ctx, batch...); cerr != nil {
				log.Error("commit messages", slog.Any("err", cerr))
			}
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
		}
	}
}

// fetchBatch blocks for the first message, then collects until size messages arrived or
// wait elapsed. Messages fetched before an error are returned with it.
func fetchBatch(ctx context.Context, r messageFetcher, size int, wait time.Duration) ([]kafka.Message, error) {
	first, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	fillCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	for len(batch) < size {
		msg, err := r.FetchMessage(fillCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", slog.Any("err", err))
		}
	}()
	return srv
}
