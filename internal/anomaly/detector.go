package anomaly

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/metrics"
	"github.com/DeafMist/feedback-radar/internal/models"
)

// defaultContamination is the expected share of unusual records in a batch.
const defaultContamination = 0.10

// Detector flags feedback whose text is unusual relative to the rest of its batch.
// Vocabulary and forest are refit on every call, so a record's verdict depends on the
// batch it is scored with.
type Detector struct {
	log           *slog.Logger
	vectorizer    Vectorizer
	forest        ForestConfig
	contamination float64
}

// NewDetector creates a detector with 500 TF-IDF features, 100 trees, seed 42 and 10%
// contamination.
func NewDetector(log *slog.Logger) *Detector {
	return &Detector{
		log:           logger.OrDiscard(log),
		vectorizer:    Vectorizer{MaxFeatures: defaultMaxFeatures, MinTokenLen: defaultMinTokenLen},
		forest:        DefaultForestConfig(),
		contamination: defaultContamination,
	}
}

// Detect returns the flagged records sorted by sentiment score, highest first. It never
// fails: degenerate batches and internal errors yield an empty, non-nil slice.
func (d *Detector) Detect(records []models.FeedbackRecord) []models.FeedbackRecord {
	flagged, err := d.detect(records)
	if err != nil {
		metrics.AnomalyFailures.Inc()
		d.log.Warn("anomaly detection failed",
			slog.Int("records", len(records)),
			slog.Any("err", err),
		)
		return []models.FeedbackRecord{}
	}
	metrics.AnomaliesFlagged.Add(float64(len(flagged)))
	return flagged
}

func (d *Detector) detect(records []models.FeedbackRecord) (out []models.FeedbackRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("anomaly detection panicked: %v", r)
		}
	}()

	if len(records) < 2 || allSameText(records) {
		return []models.FeedbackRecord{}, nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	m, err := d.vectorizer.FitTransform(texts)
	if err != nil {
		return nil, fmt.Errorf("vectorize feedback: %w", err)
	}

	forest, err := FitForest(m.Rows, d.forest)
	if err != nil {
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}

	scores := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		scores[i] = forest.Score(row)
	}
	cutoff := percentile(scores, 100*(1-d.contamination))

	out = []models.FeedbackRecord{}
	for i, s := range scores {
		if s > cutoff {
			out = append(out, records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func allSameText(records []models.FeedbackRecord) bool {
	for _, r := range records[1:] {
		if r.Text != records[0].Text {
			return false
		}
	}
	return true
}
