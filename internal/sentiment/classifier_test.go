package sentiment_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/sentiment"
)

type stubModel struct {
	mu    sync.Mutex
	pred  sentiment.Prediction
	err   error
	delay time.Duration
	seen  []string
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Predict(ctx context.Context, text string) (sentiment.Prediction, error) {
	m.mu.Lock()
	m.seen = append(m.seen, text)
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return sentiment.Prediction{}, ctx.Err()
		}
	}
	return m.pred, m.err
}

func (m *stubModel) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen...)
}

func newClassifier(t *testing.T, m sentiment.Model, opts ...sentiment.Option) *sentiment.Classifier {
	t.Helper()
	c, err := sentiment.NewClassifier(m, nil, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClassifierRejectsNilModel(t *testing.T) {
	_, err := sentiment.NewClassifier(nil, nil)
	require.Error(t, err)
}

func TestClassifyEmptyTextIsNeutral(t *testing.T) {
	m := &stubModel{pred: sentiment.Prediction{Label: "NEGATIVE", Score: 0.99}}
	c := newClassifier(t, m)

	for _, text := range []string{"", "   ", "\n\t"} {
		res := c.Classify(context.Background(), text)
		assert.Equal(t, models.Verdict{Label: models.LabelNeutral, Score: 0.5, IsNegative: false}, res.Verdict)
		assert.Equal(t, sentiment.OutcomeSkipped, res.Outcome)
		assert.NoError(t, res.Err)
	}
	assert.Empty(t, m.calls(), "model must not be invoked for empty text")
}

func TestClassifyValueNonStringIsNeutral(t *testing.T) {
	m := &stubModel{pred: sentiment.Prediction{Label: "NEGATIVE", Score: 0.99}}
	c := newClassifier(t, m)

	var nilText *string
	for _, v := range []any{nil, nilText, 42, 3.14, true, map[string]any{"a": 1}, []any{"x"}} {
		res := c.ClassifyValue(context.Background(), v)
		assert.Equal(t, models.NeutralVerdict(), res.Verdict, "value %#v", v)
		assert.Equal(t, sentiment.OutcomeSkipped, res.Outcome)
	}
	assert.Empty(t, m.calls())

	text := "card declined again"
	res := c.ClassifyValue(context.Background(), &text)
	assert.Equal(t, models.LabelNegative, res.Verdict.Label)
	res = c.ClassifyValue(context.Background(), text)
	assert.Equal(t, models.LabelNegative, res.Verdict.Label)
	assert.Len(t, m.calls(), 2)
}

func TestClassifyTruncatesLongInput(t *testing.T) {
	m := &stubModel{pred: sentiment.Prediction{Label: "POSITIVE", Score: 0.8}}
	c := newClassifier(t, m)

	long := strings.Repeat("é", 600) + strings.Repeat("a", 4000)
	res := c.Classify(context.Background(), long)

	require.Equal(t, sentiment.OutcomeOK, res.Outcome)
	calls := m.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sentiment.MaxInputRunes, utf8.RuneCountInString(calls[0]))
	assert.Equal(t, strings.Repeat("é", 512), calls[0])

	// same input, same prefix
	c.Classify(context.Background(), long)
	assert.Equal(t, calls[0], m.calls()[1])
}

func TestClassifyNormalizesVerdict(t *testing.T) {
	tests := []struct {
		name string
		pred sentiment.Prediction
		want models.Verdict
	}{
		{
			name: "confident negative",
			pred: sentiment.Prediction{Label: "NEGATIVE", Score: 0.98},
			want: models.Verdict{Label: models.LabelNegative, Score: 0.98, IsNegative: true},
		},
		{
			name: "weak negative",
			pred: sentiment.Prediction{Label: "negative", Score: 0.6},
			want: models.Verdict{Label: models.LabelNegative, Score: 0.6, IsNegative: false},
		},
		{
			name: "boundary is not critical",
			pred: sentiment.Prediction{Label: "NEGATIVE", Score: 0.7},
			want: models.Verdict{Label: models.LabelNegative, Score: 0.7, IsNegative: false},
		},
		{
			name: "sst2 positive",
			pred: sentiment.Prediction{Label: "LABEL_1", Score: 0.91},
			want: models.Verdict{Label: models.LabelPositive, Score: 0.91, IsNegative: false},
		},
		{
			name: "neutral",
			pred: sentiment.Prediction{Label: "NEU", Score: 0.55},
			want: models.Verdict{Label: models.LabelNeutral, Score: 0.55, IsNegative: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassifier(t, &stubModel{pred: tt.pred})
			res := c.Classify(context.Background(), "some feedback")
			assert.Equal(t, sentiment.OutcomeOK, res.Outcome)
			assert.Equal(t, tt.want, res.Verdict)
			assert.False(t, res.Degraded())
		})
	}
}

func TestClassifyDegradesOnModelFailure(t *testing.T) {
	tests := []struct {
		name    string
		model   *stubModel
		wantErr error
	}{
		{name: "model error", model: &stubModel{err: errors.New("inference backend unavailable")}},
		{name: "unknown label", model: &stubModel{pred: sentiment.Prediction{Label: "MIXED", Score: 0.9}}, wantErr: sentiment.ErrUnknownLabel},
		{name: "score above one", model: &stubModel{pred: sentiment.Prediction{Label: "NEGATIVE", Score: 1.2}}, wantErr: sentiment.ErrScoreOutOfRange},
		{name: "negative score", model: &stubModel{pred: sentiment.Prediction{Label: "POSITIVE", Score: -0.1}}, wantErr: sentiment.ErrScoreOutOfRange},
		{name: "nan score", model: &stubModel{pred: sentiment.Prediction{Label: "POSITIVE", Score: math.NaN()}}, wantErr: sentiment.ErrScoreOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassifier(t, tt.model)
			res := c.Classify(context.Background(), "The transfer failed twice")

			assert.Equal(t, models.Verdict{Label: models.LabelError, Score: 0, IsNegative: false}, res.Verdict)
			assert.True(t, res.Degraded())
			require.Error(t, res.Err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
		})
	}
}

func TestClassifyTimeoutDegrades(t *testing.T) {
	m := &stubModel{pred: sentiment.Prediction{Label: "POSITIVE", Score: 0.9}, delay: time.Second}
	c := newClassifier(t, m, sentiment.WithTimeout(10*time.Millisecond))

	res := c.Classify(context.Background(), "slow model")
	assert.True(t, res.Degraded())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestClassifyConcurrentUse(t *testing.T) {
	m := &stubModel{pred: sentiment.Prediction{Label: "NEGATIVE", Score: 0.9}}
	c := newClassifier(t, m)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Classify(context.Background(), "app crashed")
			assert.True(t, res.Verdict.IsNegative)
		}()
	}
	wg.Wait()
	assert.Len(t, m.calls(), 32)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", sentiment.OutcomeOK.String())
	assert.Equal(t, "skipped", sentiment.OutcomeSkipped.String())
	assert.Equal(t, "degraded", sentiment.OutcomeDegraded.String())
}

func TestParseLabel(t *testing.T) {
	for raw, want := range map[string]models.Label{
		"POSITIVE": models.LabelPositive,
		" pos ":    models.LabelPositive,
		"LABEL_0":  models.LabelNegative,
		"Negative": models.LabelNegative,
		"neutral":  models.LabelNeutral,
	} {
		got, err := sentiment.ParseLabel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := sentiment.ParseLabel("ERROR")
	assert.ErrorIs(t, err, sentiment.ErrUnknownLabel)
}
