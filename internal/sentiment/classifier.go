package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/metrics"
	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/processing"
)

const (
	// MaxInputRunes is the longest prefix of a text handed to the model.
	MaxInputRunes = 512
	// logPreviewRunes bounds the offending text echoed into failure logs.
	logPreviewRunes = 50
)

// Outcome tags how a Result was produced.
type Outcome int

const (
	// OutcomeOK means the model produced the verdict.
	OutcomeOK Outcome = iota
	// OutcomeSkipped means the input was empty or not text and the neutral verdict was used.
	OutcomeSkipped
	// OutcomeDegraded means the model failed and the ERROR verdict was substituted.
	OutcomeDegraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Result is always a well-formed verdict; Err is set only for OutcomeDegraded.
type Result struct {
	Verdict models.Verdict
	Outcome Outcome
	Err     error
}

// Degraded reports whether the verdict is a substitute for a failed model call.
func (r Result) Degraded() bool {
	return r.Outcome == OutcomeDegraded
}

// Classifier maps feedback text to sentiment verdicts. It is safe for concurrent use;
// construct one at startup and share it.
type Classifier struct {
	model   Model
	log     *slog.Logger
	timeout time.Duration
}

// Option tweaks a Classifier.
type Option func(*Classifier)

// WithTimeout bounds each model invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.timeout = d
	}
}

// NewClassifier wraps an already loaded model.
func NewClassifier(model Model, log *slog.Logger, opts ...Option) (*Classifier, error) {
	if model == nil {
		return nil, errors.New("sentiment: model is nil")
	}
	c := &Classifier{model: model, log: logger.OrDiscard(log)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Load builds the configured model and a classifier around it. A failure here is fatal
// for the caller and is not retried.
func Load(ctx context.Context, cfg ModelConfig, log *slog.Logger) (*Classifier, error) {
	model, err := NewModel(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("load sentiment model: %w", err)
	}
	return NewClassifier(model, log, WithTimeout(cfg.Timeout))
}

// ModelName returns the name of the wrapped model.
func (c *Classifier) ModelName() string {
	return c.model.Name()
}

// Classify returns the verdict for text. It never fails: model errors come back as the
// ERROR verdict with OutcomeDegraded. Empty or whitespace-only text is NEUTRAL without
// calling the model.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return c.record(Result{Verdict: models.NeutralVerdict(), Outcome: OutcomeSkipped})
	}

	input := processing.Truncate(text, MaxInputRunes)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	pred, err := c.model.Predict(callCtx, input)
	metrics.ClassificationDuration.WithLabelValues(c.model.Name()).Observe(time.Since(start).Seconds())

	var verdict models.Verdict
	if err == nil {
		verdict, err = normalize(pred)
	}
	if err != nil {
		c.log.Warn("sentiment analysis failed",
			slog.String("text", processing.Preview(text, logPreviewRunes)),
			slog.String("model", c.model.Name()),
			slog.Any("err", err),
		)
		return c.record(Result{Verdict: models.ErrorVerdict(), Outcome: OutcomeDegraded, Err: err})
	}

	return c.record(Result{Verdict: verdict, Outcome: OutcomeOK})
}

// ClassifyValue accepts a decoded JSON value. Absent, null and non-string values get the
// neutral verdict without invoking the model.
func (c *Classifier) ClassifyValue(ctx context.Context, v any) Result {
	switch text := v.(type) {
	case string:
		return c.Classify(ctx, text)
	case *string:
		if text != nil {
			return c.Classify(ctx, *text)
		}
	}
	return c.record(Result{Verdict: models.NeutralVerdict(), Outcome: OutcomeSkipped})
}

func (c *Classifier) record(r Result) Result {
	metrics.Classifications.WithLabelValues(string(r.Verdict.Label), r.Outcome.String()).Inc()
	return r
}
