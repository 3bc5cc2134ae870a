package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/DeafMist/feedback-radar/internal/logger"
	"github.com/DeafMist/feedback-radar/internal/models"
)

// MaxResultWindow is the largest page Elasticsearch serves by default.
const MaxResultWindow = 10000

// indexMapping stores the categorical fields as keywords so that terms filters and
// aggregations match whole values such as "Live Chat".
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":                { "type": "keyword" },
      "timestamp":         { "type": "date" },
      "channel":           { "type": "keyword" },
      "region":            { "type": "keyword" },
      "country":           { "type": "keyword" },
      "product":           { "type": "keyword" },
      "feedback_text":     { "type": "text" },
      "staff_member":      { "type": "keyword" },
      "sentiment":         { "type": "keyword" },
      "score":             { "type": "float" },
      "is_negative":       { "type": "boolean" },
      "resolution_status": { "type": "keyword" },
      "resolution_notes":  { "type": "text" },
      "resolution_time":   { "type": "integer" }
    }
  }
}`

// Client wraps go-elasticsearch with helpers tailored to this project.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the feedback query. Empty slices and nil pointers do not filter.
type SearchParams struct {
	Query     string
	Channels  []string
	Regions   []string
	Products  []string
	Sentiment string
	Negative  *bool
	From      int
	Size      int
	Sort      string
	Start     *time.Time
	End       *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                   `json:"total"`
	Items []models.FeedbackRecord `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{es: es, index: index, log: logger.OrDiscard(log)}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the feedback index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// another replica won the race
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexFeedbackBatch writes records with one bulk request. The returned map holds the
// per-record failures keyed by record ID; err is set only when the request as a whole failed.
func (c *Client) IndexFeedbackBatch(ctx context.Context, records []models.FeedbackRecord) (map[string]error, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		meta := map[string]any{"index": map[string]any{"_index": c.index, "_id": rec.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("marshal bulk meta: %w", err)
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil, nil
	}

	failed := make(map[string]error)
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil {
				failed[result.ID] = fmt.Errorf("index record failed (%d): %s: %s", result.Status, result.Error.Type, result.Error.Reason)
			}
		}
	}
	return failed, nil
}

// SearchFeedback executes a bool query with optional filters.
func (c *Client) SearchFeedback(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(buildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.FeedbackRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.FeedbackRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

func buildSearchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.From < 0 {
		params.From = 0
	}
	if params.Size > MaxResultWindow {
		params.Size = MaxResultWindow
	}
	if params.From+params.Size > MaxResultWindow {
		params.From = max(MaxResultWindow-params.Size, 0)
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 6)

	if params.Query != "" {
		must = append(must, map[string]any{
			"match": map[string]any{
				"feedback_text": params.Query,
			},
		})
	}

	for _, f := range []struct {
		field  string
		values []string
	}{
		{"channel", params.Channels},
		{"region", params.Regions},
		{"product", params.Products},
	} {
		if len(f.values) > 0 {
			filters = append(filters, map[string]any{
				"terms": map[string]any{f.field: f.values},
			})
		}
	}

	if params.Sentiment != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{
				"sentiment": strings.ToUpper(params.Sentiment),
			},
		})
	}

	if params.Negative != nil {
		filters = append(filters, map[string]any{
			"term": map[string]any{
				"is_negative": *params.Negative,
			},
		})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{
				"timestamp": rangeQuery,
			},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	sortField := params.Sort
	if sortField == "" {
		sortField = "timestamp:desc"
	}

	parts := strings.Split(sortField, ":")
	order := "desc"
	field := parts[0]
	if field == "" {
		field = "timestamp"
	}
	if len(parts) > 1 && (parts[1] == "asc" || parts[1] == "desc") {
		order = parts[1]
	}

	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
		"sort": []map[string]any{
			{field: map[string]any{"order": order}},
		},
	}
}

// DeleteOlderThan removes documents older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"max_docs": batchSize,
			"query": map[string]any{
				"range": map[string]any{
					"timestamp": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health checks the cluster health endpoint.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
