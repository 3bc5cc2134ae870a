package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/processing"
)

const unknown = "unknown"

// FromRaw converts a decoded payload into an unclassified record. A non-string text
// becomes empty, which the classifier treats as neutral. Missing or unparsable
// timestamps fall back to now.
func FromRaw(raw models.RawFeedback, now time.Time) models.FeedbackRecord {
	text, _ := raw.Text.(string)

	ts := ParseTimestamp(raw.Timestamp)
	if ts.IsZero() {
		ts = now.UTC()
	}

	rec := models.FeedbackRecord{
		ID:                strings.TrimSpace(raw.ID),
		Timestamp:         ts,
		Channel:           orUnknown(raw.Channel),
		Region:            orUnknown(raw.Region),
		Country:           strings.TrimSpace(raw.Country),
		Product:           orUnknown(raw.Product),
		Text:              text,
		StaffMember:       strings.TrimSpace(raw.StaffMember),
		ResolutionStatus:  strings.TrimSpace(raw.ResolutionStatus),
		ResolutionNotes:   raw.ResolutionNotes,
		ResolutionMinutes: raw.ResolutionMinutes,
	}

	if rec.ID == "" {
		if strings.TrimSpace(text) != "" {
			rec.ID = processing.BuildRecordID(rec.Channel, text, ts)
		} else {
			rec.ID = uuid.NewString()
		}
	}
	return rec
}

// ParseTimestamp accepts RFC 3339 and "2006-01-02 15:04:05"; anything else yields the
// zero time.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.UTC()
		}
	}

	return time.Time{}
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return unknown
	}
	return v
}
