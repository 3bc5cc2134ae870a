package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/metrics"
)

// breakerModel stops calling a remote model once it keeps failing, so a provider
// outage degrades verdicts quickly instead of stalling every batch on timeouts.
type breakerModel struct {
	next Model
	cb   *gobreaker.CircuitBreaker
}

func withBreaker(next Model, log *slog.Logger) *breakerModel {
	log = logger.OrDiscard(log)
	name := next.Name()
	metrics.ModelBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("sentiment model circuit breaker state changed",
				slog.String("model", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.ModelBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	return &breakerModel{next: next, cb: cb}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (m *breakerModel) Name() string {
	return m.next.Name()
}

func (m *breakerModel) Predict(ctx context.Context, text string) (Prediction, error) {
	out, err := m.cb.Execute(func() (interface{}, error) {
		return m.next.Predict(ctx, text)
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("%s: %w", m.next.Name(), err)
	}
	return out.(Prediction), nil
}

// limitedModel caps the request rate against a metered provider.
type limitedModel struct {
	next    Model
	limiter *rate.Limiter
}

func withRateLimit(next Model, perSecond float64) Model {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &limitedModel{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (m *limitedModel) Name() string {
	return m.next.Name()
}

func (m *limitedModel) Predict(ctx context.Context, text string) (Prediction, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return Prediction{}, fmt.Errorf("wait for rate limiter: %w", err)
	}
	return m.next.Predict(ctx, text)
}
