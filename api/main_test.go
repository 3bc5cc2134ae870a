package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/feedback-radar/internal/alerts"
	"github.com/DeafMist/feedback-radar/internal/anomaly"
	"github.com/DeafMist/feedback-radar/internal/config"
	"github.com/DeafMist/feedback-radar/internal/elasticsearch"
	"github.com/DeafMist/feedback-radar/internal/insights"
	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/models"
)

type stubStore struct {
	records   []models.FeedbackRecord
	err       error
	healthErr error
	params    []elasticsearch.SearchParams
}

func (s *stubStore) SearchFeedback(_ context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	return &elasticsearch.SearchResult{Total: int64(len(s.records)), Items: s.records}, nil
}

func (s *stubStore) Health(context.Context) error {
	return s.healthErr
}

func newTestServer(store *stubStore) http.Handler {
	srv := &server{
		log:      logger.Discard(),
		cfg:      &config.API{DefaultPage: 20, MaxPage: 100, AnalysisWindow: 500},
		store:    store,
		engine:   alerts.NewEngine(),
		detector: anomaly.NewDetector(nil),
	}
	return srv.routes()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func feedback(id, region string, label models.Label, score float64) models.FeedbackRecord {
	return models.FeedbackRecord{
		ID:        id,
		Timestamp: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		Channel:   models.ChannelEmail,
		Region:    region,
		Product:   "Current Account",
		Text:      "feedback " + id,
	}.WithVerdict(models.NewVerdict(label, score))
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(&stubStore{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, newTestServer(&stubStore{healthErr: errors.New("red")}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchPassesFilters(t *testing.T) {
	store := &stubStore{records: []models.FeedbackRecord{feedback("1", "Wales", models.LabelNegative, 0.9)}}
	h := newTestServer(store)

	rec := get(t, h, "/feedback?q=card&channel=Email,%20Live%20Chat&region=Wales&sentiment=neg&negative=true&start=2025-01-01T00:00:00Z&from=20&size=500&sort=score:asc")
	require.Equal(t, http.StatusOK, rec.Code)

	var body elasticsearch.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Total)
	require.Len(t, body.Items, 1)

	require.Len(t, store.params, 1)
	p := store.params[0]
	assert.Equal(t, "card", p.Query)
	assert.Equal(t, []string{"Email", "Live Chat"}, p.Channels)
	assert.Equal(t, []string{"Wales"}, p.Regions)
	assert.Nil(t, p.Products)
	assert.Equal(t, "NEGATIVE", p.Sentiment)
	require.NotNil(t, p.Negative)
	assert.True(t, *p.Negative)
	require.NotNil(t, p.Start)
	assert.Nil(t, p.End)
	assert.Equal(t, 20, p.From)
	assert.Equal(t, 100, p.Size)
	assert.Equal(t, "score:asc", p.Sort)
}

func TestBadFiltersAreRejected(t *testing.T) {
	h := newTestServer(&stubStore{})

	for _, target := range []string{
		"/feedback?sentiment=furious",
		"/alerts?negative=maybe",
		"/feedback?start=yesterday",
		"/insights?end=2025-01-02",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDateRangeFilter(t *testing.T) {
	store := &stubStore{}
	rec := get(t, newTestServer(store), "/anomalies?start=2025-01-01T00:00:00Z&end=2025-01-31T23:59:59%2B01:00")
	require.Equal(t, http.StatusOK, rec.Code)

	p := store.params[0]
	require.NotNil(t, p.Start)
	require.NotNil(t, p.End)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.Start.UTC())
	assert.Equal(t, time.Date(2025, 1, 31, 22, 59, 59, 0, time.UTC), p.End.UTC())
}

func TestErrorSentimentFilter(t *testing.T) {
	store := &stubStore{}
	rec := get(t, newTestServer(store), "/feedback?sentiment=error")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ERROR", store.params[0].Sentiment)
}

func TestStorageErrorIs500(t *testing.T) {
	h := newTestServer(&stubStore{err: errors.New("cluster unavailable")})

	for _, target := range []string{"/feedback", "/alerts", "/anomalies", "/insights"} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}
}

func TestAnalysisEndpointsOnEmptyWindow(t *testing.T) {
	h := newTestServer(&stubStore{})

	rec := get(t, h, "/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, h, "/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"analyzed":0,"count":0,"share":0,"items":[]}`, rec.Body.String())

	rec = get(t, h, "/insights")
	require.Equal(t, http.StatusOK, rec.Code)
	var s insights.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Zero(t, s.Total)
}

func TestAlertsUseAnalysisWindow(t *testing.T) {
	store := &stubStore{records: []models.FeedbackRecord{
		feedback("1", "Scotland", models.LabelNegative, 0.9),
		feedback("2", "Scotland", models.LabelNegative, 0.8),
		feedback("3", "London", models.LabelPositive, 0.9),
		feedback("4", "London", models.LabelPositive, 0.9),
		feedback("5", "Scotland", models.LabelPositive, 0.9),
	}}
	rec := get(t, newTestServer(store), "/alerts?region=Scotland,London")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []models.AlertEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 3)
	assert.Equal(t, models.AlertEvent{
		Category: models.AlertRegion,
		Message:  "High negative sentiment in Scotland (66.7%)",
		Severity: models.SeverityHigh,
	}, events[0])
	assert.Equal(t, "Product issue detected with Current Account (40.0%)", events[1].Message)

	p := store.params[0]
	assert.Equal(t, 500, p.Size)
	assert.Equal(t, "timestamp:desc", p.Sort)
	assert.Equal(t, []string{"Scotland", "London"}, p.Regions)
}

func TestAnomaliesResponse(t *testing.T) {
	records := make([]models.FeedbackRecord, 0, 20)
	for i := 0; i < 19; i++ {
		r := feedback(string(rune('a'+i)), "London", models.LabelPositive, 0.9)
		r.Text = "transfer completed quickly thanks"
		records = append(records, r)
	}
	odd := feedback("z", "London", models.LabelNegative, 0.99)
	odd.Text = "mortgage valuation surveyor never arrived paperwork lost twice"
	records = append(records, odd)

	rec := get(t, newTestServer(&stubStore{records: records}), "/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)

	var body anomalyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 20, body.Analyzed)
	assert.Equal(t, len(body.Items), body.Count)
	assert.InDelta(t, float64(body.Count)/20, body.Share, 1e-9)
	require.NotEmpty(t, body.Items)
	assert.Equal(t, "z", body.Items[0].ID)
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 20, clampInt("", 20, 100))
	assert.Equal(t, 20, clampInt("abc", 20, 100))
	assert.Equal(t, 20, clampInt("-5", 20, 100))
	assert.Equal(t, 100, clampInt("1000", 20, 100))
	assert.Equal(t, 42, clampInt("42", 20, 100))
}
