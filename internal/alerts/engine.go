package alerts

import (
	"fmt"

	"github.com/DeafMist/feedback-radar/internal/metrics"
	"github.com/DeafMist/feedback-radar/internal/models"
)

// thresholds are the negative-rate fractions a group must strictly exceed.
type thresholds struct {
	Region  float64
	Product float64
	Channel float64
}

var defaultThresholds = thresholds{Region: 0.30, Product: 0.25, Channel: 0.35}

// Engine computes alert events from a classified batch. It keeps no state between calls.
type Engine struct {
	thresholds thresholds
}

// NewEngine creates an engine with the default thresholds.
func NewEngine() *Engine {
	return &Engine{thresholds: defaultThresholds}
}

// dimension describes one grouped check.
type dimension struct {
	category  models.AlertCategory
	severity  models.Severity
	threshold float64
	key       func(models.FeedbackRecord) string
	message   string
}

// Check returns at most one event per dimension, ordered region, product, channel.
// The result is never nil.
func (e *Engine) Check(records []models.FeedbackRecord) []models.AlertEvent {
	dims := []dimension{
		{
			category:  models.AlertRegion,
			severity:  models.SeverityHigh,
			threshold: e.thresholds.Region,
			key:       func(r models.FeedbackRecord) string { return r.Region },
			message:   "High negative sentiment in %s (%.1f%%)",
		},
		{
			category:  models.AlertProduct,
			severity:  models.SeverityMedium,
			threshold: e.thresholds.Product,
			key:       func(r models.FeedbackRecord) string { return r.Product },
			message:   "Product issue detected with %s (%.1f%%)",
		},
		{
			category:  models.AlertChannel,
			severity:  models.SeverityMedium,
			threshold: e.thresholds.Channel,
			key:       func(r models.FeedbackRecord) string { return r.Channel },
			message:   "Channel issue detected with %s (%.1f%%)",
		},
	}

	events := make([]models.AlertEvent, 0, len(dims))
	for _, d := range dims {
		group, rate, ok := maxNegativeRate(records, d.key)
		if !ok || rate <= d.threshold {
			continue
		}
		events = append(events, models.AlertEvent{
			Category: d.category,
			Message:  fmt.Sprintf(d.message, group, rate*100),
			Severity: d.severity,
		})
		metrics.AlertsEmitted.WithLabelValues(string(d.category), string(d.severity)).Inc()
	}
	return events
}

type tally struct {
	negative int
	total    int
}

// maxNegativeRate groups records by key and returns the group with the highest share of
// critical records. Groups are visited in order of first appearance; the first group to
// reach the maximum wins. Empty keys are ignored.
func maxNegativeRate(records []models.FeedbackRecord, key func(models.FeedbackRecord) string) (string, float64, bool) {
	var order []string
	counts := make(map[string]*tally)
	for _, r := range records {
		k := key(r)
		if k == "" {
			continue
		}
		t, ok := counts[k]
		if !ok {
			t = &tally{}
			counts[k] = t
			order = append(order, k)
		}
		t.total++
		if r.IsNegative {
			t.negative++
		}
	}
	if len(order) == 0 {
		return "", 0, false
	}

	best, bestRate := "", -1.0
	for _, k := range order {
		t := counts[k]
		rate := float64(t.negative) / float64(t.total)
		if rate > bestRate {
			best, bestRate = k, rate
		}
	}
	return best, bestRate, true
}
