package feeds

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/processing"
)

var tags = regexp.MustCompile(`<[^>]*>`)

// Source describes the fixed fields stamped onto every item from the configured feeds.
type Source struct {
	Channel string
	Product string
	Region  string
}

// Fetcher downloads review feeds and turns their items into raw feedback payloads.
type Fetcher struct {
	client *http.Client
	source Source
}

// NewFetcher creates a fetcher. A nil client gets a 30s timeout.
func NewFetcher(client *http.Client, source Source) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, source: source}
}

// Fetch downloads and parses one feed. Items without any text are dropped.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]models.RawFeedback, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	out := make([]models.RawFeedback, 0, len(feed.Items))
	for _, item := range feed.Items {
		raw, ok := f.convert(item)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *Fetcher) convert(item *gofeed.Item) (models.RawFeedback, bool) {
	text := firstNonEmpty(stripTags(item.Content), stripTags(item.Description), stripTags(item.Title))
	if text == "" {
		return models.RawFeedback{}, false
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	// Items without a GUID or link are keyed by content so repeated polls dedupe.
	id := firstNonEmpty(item.GUID, item.Link)
	if id == "" {
		id = processing.BuildRecordID(f.source.Channel, text, published)
	}

	ts := published
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return models.RawFeedback{
		ID:        id,
		Timestamp: ts.Format(time.RFC3339),
		Channel:   f.source.Channel,
		Region:    f.source.Region,
		Product:   f.source.Product,
		Text:      text,
	}, true
}

func stripTags(s string) string {
	return strings.Join(strings.Fields(tags.ReplaceAllString(s, " ")), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
