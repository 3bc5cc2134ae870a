package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/DeafMist/feedback-radar/internal/models"
)

var (
	// ErrUnknownLabel is returned when a model answers with a label outside the known set.
	ErrUnknownLabel = errors.New("unknown sentiment label")
	// ErrScoreOutOfRange is returned when a model reports a confidence outside [0,1].
	ErrScoreOutOfRange = errors.New("sentiment score out of range")
)

// Prediction is a raw model answer before normalization.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Model is a loaded text-classification model.
type Model interface {
	Predict(ctx context.Context, text string) (Prediction, error)
	Name() string
}

// ParseLabel maps model label spellings onto the canonical labels.
// LABEL_0/LABEL_1 follow the SST-2 convention (negative/positive).
func ParseLabel(raw string) (models.Label, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "POSITIVE", "POS", "LABEL_1":
		return models.LabelPositive, nil
	case "NEGATIVE", "NEG", "LABEL_0":
		return models.LabelNegative, nil
	case "NEUTRAL", "NEU":
		return models.LabelNeutral, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, raw)
	}
}

// normalize validates a prediction and turns it into a verdict.
func normalize(p Prediction) (models.Verdict, error) {
	label, err := ParseLabel(p.Label)
	if err != nil {
		return models.Verdict{}, err
	}
	if math.IsNaN(p.Score) || p.Score < 0 || p.Score > 1 {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrScoreOutOfRange, p.Score)
	}
	return models.NewVerdict(label, p.Score), nil
}
