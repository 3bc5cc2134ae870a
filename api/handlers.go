package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/feedback-radar/internal/alerts"
	"github.com/DeafMist/feedback-radar/internal/anomaly"
	"github.com/DeafMist/feedback-radar/internal/config"
	"github.com/DeafMist/feedback-radar/internal/elasticsearch"
	"github.com/DeafMist/feedback-radar/internal/insights"
	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/sentiment"
)

type feedbackStore interface {
	SearchFeedback(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	store    feedbackStore
	engine   *alerts.Engine
	detector *anomaly.Detector
}

type errorResponse struct {
	Error string `json:"error"`
}

type anomalyResponse struct {
	Analyzed int                     `json:"analyzed"`
	Count    int                     `json:"count"`
	Share    float64                 `json:"share"`
	Items    []models.FeedbackRecord `json:"items"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	params, err := parseFilters(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	q := r.URL.Query()
	params.Query = strings.TrimSpace(q.Get("q"))
	params.From = clampInt(q.Get("from"), 0, elasticsearch.MaxResultWindow)
	params.Size = clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage)
	params.Sort = strings.TrimSpace(q.Get("sort"))

	result, err := s.store.SearchFeedback(ctx, params)
	if err != nil {
		s.log.Error("search feedback", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	records, ok := s.window(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Check(records))
}

func (s *server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	records, ok := s.window(w, r)
	if !ok {
		return
	}

	flagged := s.detector.Detect(records)
	resp := anomalyResponse{Analyzed: len(records), Count: len(flagged), Items: flagged}
	if len(records) > 0 {
		resp.Share = float64(len(flagged)) / float64(len(records))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleInsights(w http.ResponseWriter, r *http.Request) {
	records, ok := s.window(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, insights.Summarize(records))
}

// window loads the most recent filtered records for the analysis endpoints. It writes
// the error response itself and reports whether the caller should continue.
func (s *server) window(w http.ResponseWriter, r *http.Request) ([]models.FeedbackRecord, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	params, err := parseFilters(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, false
	}
	params.Size = s.cfg.AnalysisWindow
	params.Sort = "timestamp:desc"

	result, err := s.store.SearchFeedback(ctx, params)
	if err != nil {
		s.log.Error("load analysis window", slog.Any("err", err), slog.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return nil, false
	}
	if result.Items == nil {
		return []models.FeedbackRecord{}, true
	}
	return result.Items, true
}

// parseFilters reads the dashboard filters shared by every record view.
func parseFilters(q url.Values) (elasticsearch.SearchParams, error) {
	params := elasticsearch.SearchParams{
		Channels: parseCSV(q.Get("channel")),
		Regions:  parseCSV(q.Get("region")),
		Products: parseCSV(q.Get("product")),
	}

	var err error
	if params.Start, err = parseTime(q.Get("start")); err != nil {
		return params, fmt.Errorf("start: %w", err)
	}
	if params.End, err = parseTime(q.Get("end")); err != nil {
		return params, fmt.Errorf("end: %w", err)
	}

	if raw := strings.TrimSpace(q.Get("sentiment")); raw != "" {
		if strings.EqualFold(raw, string(models.LabelError)) {
			params.Sentiment = string(models.LabelError)
		} else {
			label, err := sentiment.ParseLabel(raw)
			if err != nil {
				return params, fmt.Errorf("sentiment: %w", err)
			}
			params.Sentiment = string(label)
		}
	}

	if raw := strings.TrimSpace(q.Get("negative")); raw != "" {
		neg, err := strconv.ParseBool(raw)
		if err != nil {
			return params, fmt.Errorf("negative must be a boolean, got %q", raw)
		}
		params.Negative = &neg
	}

	return params, nil
}

// parseTime reads an optional RFC 3339 timestamp.
func parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("want RFC 3339 timestamp, got %q", raw)
	}
	return &ts, nil
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
