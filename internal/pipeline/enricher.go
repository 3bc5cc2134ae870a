package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/sentiment"
)

const defaultConcurrency = 8

// Classifier is the part of sentiment.Classifier the enricher depends on.
type Classifier interface {
	ClassifyValue(ctx context.Context, v any) sentiment.Result
}

// Stats counts verdict outcomes for one enriched batch.
type Stats struct {
	OK       int
	Skipped  int
	Degraded int
}

// Enricher attaches sentiment verdicts to a batch of records.
type Enricher struct {
	classifier  Classifier
	concurrency int
	log         *slog.Logger
}

// NewEnricher creates an enricher running at most concurrency classifications at once.
func NewEnricher(c Classifier, concurrency int, log *slog.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Enricher{classifier: c, concurrency: concurrency, log: logger.OrDiscard(log)}
}

// Enrich classifies every record's text and returns new records in input order.
// Individual classification failures become ERROR verdicts; only ctx cancellation is
// returned as an error.
func (e *Enricher) Enrich(ctx context.Context, records []models.FeedbackRecord) ([]models.FeedbackRecord, Stats, error) {
	out := make([]models.FeedbackRecord, len(records))
	var ok, skipped, degraded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.classifier.ClassifyValue(gctx, records[i].Text)
			switch res.Outcome {
			case sentiment.OutcomeOK:
				ok.Add(1)
			case sentiment.OutcomeSkipped:
				skipped.Add(1)
			case sentiment.OutcomeDegraded:
				degraded.Add(1)
			}
			out[i] = records[i].WithVerdict(res.Verdict)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{OK: int(ok.Load()), Skipped: int(skipped.Load()), Degraded: int(degraded.Load())}
	if stats.Degraded > 0 {
		e.log.Warn("batch enriched with degraded verdicts",
			slog.Int("records", len(records)),
			slog.Int("degraded", stats.Degraded),
		)
	}
	return out, stats, nil
}
