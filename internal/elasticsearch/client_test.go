package elasticsearch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/feedback-radar/internal/elasticsearch"
	"github.com/DeafMist/feedback-radar/internal/models"
)

type request struct {
	method string
	path   string
	body   string
}

// fakeES records requests and answers them through respond.
type fakeES struct {
	mu       sync.Mutex
	requests []request
	respond  func(r *http.Request, body string) (int, string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, request{method: r.Method, path: r.URL.Path, body: string(body)})
	f.mu.Unlock()

	status, payload := f.respond(r, string(body))
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func newClient(t *testing.T, respond func(r *http.Request, body string) (int, string)) (*elasticsearch.Client, *fakeES) {
	t.Helper()
	fake := &fakeES{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := elasticsearch.New(srv.URL, "feedback", nil)
	require.NoError(t, err)
	return c, fake
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request, _ string) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ""
		}
		return http.StatusOK, `{"acknowledged":true}`
	})

	require.NoError(t, c.EnsureIndex(context.Background()))

	require.Len(t, fake.requests, 2)
	assert.Equal(t, http.MethodPut, fake.requests[1].method)
	assert.Equal(t, "/feedback", fake.requests[1].path)
	assert.Contains(t, fake.requests[1].body, `"channel":           { "type": "keyword" }`)
}

func TestEnsureIndexExisting(t *testing.T) {
	c, fake := newClient(t, func(*http.Request, string) (int, string) {
		return http.StatusOK, ""
	})

	require.NoError(t, c.EnsureIndex(context.Background()))
	assert.Len(t, fake.requests, 1)
}

func TestIndexFeedbackBatchReportsItemFailures(t *testing.T) {
	c, fake := newClient(t, func(*http.Request, string) (int, string) {
		return http.StatusOK, `{"errors":true,"items":[
			{"index":{"_id":"a","status":201}},
			{"index":{"_id":"b","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [score]"}}}
		]}`
	})

	rec := models.FeedbackRecord{ID: "a", Channel: "Email", Text: "Great service"}.
		WithVerdict(models.NewVerdict(models.LabelPositive, 0.97))
	failed, err := c.IndexFeedbackBatch(context.Background(), []models.FeedbackRecord{rec, {ID: "b"}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed["b"].Error(), "mapper_parsing_exception")

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "/_bulk", fake.requests[0].path)
	lines := strings.Split(strings.TrimSpace(fake.requests[0].body), "\n")
	assert.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"feedback","_id":"a"}}`, lines[0])

	var stored models.FeedbackRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &stored))
	assert.Equal(t, rec, stored)
}

func TestIndexFeedbackBatchEmpty(t *testing.T) {
	c, fake := newClient(t, func(*http.Request, string) (int, string) {
		return http.StatusOK, `{}`
	})

	failed, err := c.IndexFeedbackBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Empty(t, fake.requests)
}

func TestSearchFeedback(t *testing.T) {
	c, fake := newClient(t, func(*http.Request, string) (int, string) {
		return http.StatusOK, `{"hits":{"total":{"value":42},"hits":[
			{"_source":{"id":"1","channel":"Twitter","region":"Wales","product":"Loans","feedback_text":"slow","sentiment":"NEGATIVE","score":0.9,"is_negative":true}},
			{"_source":{"id":"2","channel":"Email","region":"London","product":"Loans","feedback_text":"ok","sentiment":"NEUTRAL","score":0.5,"is_negative":false}}
		]}}`
	})

	res, err := c.SearchFeedback(context.Background(), elasticsearch.SearchParams{Regions: []string{"Wales", "London"}, Size: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(42), res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, models.LabelNegative, res.Items[0].Sentiment)
	assert.True(t, res.Items[0].IsNegative)
	assert.Equal(t, "/feedback/_search", fake.requests[0].path)
	assert.Contains(t, fake.requests[0].body, `"terms":{"region":["Wales","London"]}`)
}

func TestSearchFeedbackError(t *testing.T) {
	c, _ := newClient(t, func(*http.Request, string) (int, string) {
		return http.StatusBadRequest, `{"error":{"type":"search_phase_execution_exception"}}`
	})

	_, err := c.SearchFeedback(context.Background(), elasticsearch.SearchParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_phase_execution_exception")
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	deleted := []int{10, 10, 3}
	call := 0
	c, fake := newClient(t, func(*http.Request, string) (int, string) {
		n := deleted[call]
		call++
		return http.StatusOK, fmt.Sprintf(`{"deleted":%d}`, n)
	})

	total, err := c.DeleteOlderThan(context.Background(), 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(23), total)
	assert.Len(t, fake.requests, 3)
	assert.Equal(t, "/feedback/_delete_by_query", fake.requests[0].path)
	assert.Contains(t, fake.requests[0].body, `"max_docs":10`)
}
