package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/feedback-radar/internal/alerts"
	"github.com/DeafMist/feedback-radar/internal/dedupe"
	"github.com/DeafMist/feedback-radar/internal/metrics"
	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/pipeline"
	"github.com/DeafMist/feedback-radar/internal/processing"
)

const dlqAttempts = 5

var errDLQExhausted = errors.New("dlq write exhausted retries")

type recordIndexer interface {
	IndexFeedbackBatch(ctx context.Context, records []models.FeedbackRecord) (map[string]error, error)
}

type recordEnricher interface {
	Enrich(ctx context.Context, records []models.FeedbackRecord) ([]models.FeedbackRecord, pipeline.Stats, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// batchProcessor turns one batch of raw messages into indexed, classified records.
type batchProcessor struct {
	log      *slog.Logger
	indexer  recordIndexer
	enricher recordEnricher
	engine   *alerts.Engine
	cache    *dedupe.Cache
	alertsW  messageWriter
	dlq      messageWriter
	now      func() time.Time
	backoff  func(attempt int) time.Duration
}

type failure struct {
	msg kafka.Message
	err error
}

// process handles msgs end to end. A nil error means every message was either indexed,
// skipped as a duplicate, or parked on the DLQ, so the batch may be committed.
func (p *batchProcessor) process(ctx context.Context, msgs []kafka.Message) error {
	metrics.WorkerBatches.Observe(float64(len(msgs)))

	var failed []failure
	records := make([]models.FeedbackRecord, 0, len(msgs))
	sources := make(map[string]kafka.Message, len(msgs))

	for _, msg := range msgs {
		var raw models.RawFeedback
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			failed = append(failed, failure{msg: msg, err: fmt.Errorf("decode payload: %w", err)})
			continue
		}

		rec := pipeline.FromRaw(raw, p.now())
		if _, dup := sources[rec.ID]; dup || p.cache.IsSeen(rec.ID) {
			p.log.Debug("duplicate feedback", slog.String("id", rec.ID))
			continue
		}
		sources[rec.ID] = msg
		records = append(records, rec)
	}

	if len(records) > 0 {
		more, err := p.indexBatch(ctx, records, sources)
		if err != nil {
			return err
		}
		failed = append(failed, more...)
	}

	for _, f := range failed {
		if err := p.sendToDLQ(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (p *batchProcessor) indexBatch(ctx context.Context, records []models.FeedbackRecord, sources map[string]kafka.Message) ([]failure, error) {
	enriched, stats, err := p.enricher.Enrich(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("enrich batch: %w", err)
	}

	itemErrs, err := p.indexer.IndexFeedbackBatch(ctx, enriched)
	if err != nil {
		p.log.Warn("bulk index failed, routing batch to DLQ", slog.Any("err", err), slog.Int("records", len(enriched)))
		failed := make([]failure, 0, len(enriched))
		for _, rec := range enriched {
			failed = append(failed, failure{msg: sources[rec.ID], err: fmt.Errorf("index batch: %w", err)})
		}
		return failed, nil
	}

	var failed []failure
	indexed := make([]models.FeedbackRecord, 0, len(enriched))
	for _, rec := range enriched {
		if itemErr, ok := itemErrs[rec.ID]; ok {
			failed = append(failed, failure{msg: sources[rec.ID], err: itemErr})
			continue
		}
		p.cache.MarkSeen(rec.ID)
		indexed = append(indexed, rec)
		p.log.Debug("indexed feedback",
			slog.String("id", rec.ID),
			slog.String("sentiment", string(rec.Sentiment)),
			slog.String("text", processing.Preview(rec.Text, 60)),
		)
	}
	metrics.RecordsIndexed.Add(float64(len(indexed)))

	p.log.Info("batch indexed",
		slog.Int("indexed", len(indexed)),
		slog.Int("failed", len(failed)),
		slog.Int("degraded", stats.Degraded),
		slog.Int("skipped", stats.Skipped),
	)

	p.publishAlerts(ctx, p.engine.Check(indexed))
	return failed, nil
}

func (p *batchProcessor) publishAlerts(ctx context.Context, events []models.AlertEvent) {
	if len(events) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			p.log.Error("encode alert", slog.Any("err", err))
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.Category), Value: data})
	}

	if err := p.alertsW.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("publish alerts", slog.Any("err", err), slog.Int("alerts", len(msgs)))
		return
	}
	for _, ev := range events {
		p.log.Warn("alert raised", slog.String("type", string(ev.Category)), slog.String("severity", string(ev.Severity)), slog.String("message", ev.Message))
	}
}

// sendToDLQ writes the original payload with error context, retrying with exponential backoff.
func (p *batchProcessor) sendToDLQ(ctx context.Context, f failure) error {
	msg := f.msg
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(f.err.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(p.now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		dlqErr := p.dlq.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			metrics.DLQMessages.WithLabelValues("sent").Inc()
			p.log.Info("message sent to DLQ",
				slog.Any("reason", f.err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}

		metrics.DLQMessages.WithLabelValues("retry").Inc()
		backoff := p.backoff(attempt)
		p.log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.DLQMessages.WithLabelValues("exhausted").Inc()
	p.log.Error("DLQ write exhausted retries, batch left uncommitted",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return errDLQExhausted
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
