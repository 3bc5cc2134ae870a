package models

import "time"

// Channel names the source a feedback record arrived through.
type Channel = string

// Channels emitted by the known record sources. Other values are accepted as-is.
const (
	ChannelTwitter        Channel = "Twitter"
	ChannelFacebook       Channel = "Facebook"
	ChannelLiveChat       Channel = "Live Chat"
	ChannelAppReview      Channel = "App Review"
	ChannelCallTranscript Channel = "Call Transcript"
	ChannelEmail          Channel = "Email"
)

// FeedbackRecord is one customer-feedback event as stored in Elasticsearch.
// Sentiment, Score and IsNegative are only ever set together through WithVerdict.
type FeedbackRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Channel     Channel   `json:"channel"`
	Region      string    `json:"region"`
	Country     string    `json:"country,omitempty"`
	Product     string    `json:"product"`
	Text        string    `json:"feedback_text"`
	StaffMember string    `json:"staff_member,omitempty"`

	Sentiment  Label   `json:"sentiment,omitempty"`
	Score      float64 `json:"score"`
	IsNegative bool    `json:"is_negative"`

	ResolutionStatus  string `json:"resolution_status,omitempty"`
	ResolutionNotes   string `json:"resolution_notes,omitempty"`
	ResolutionMinutes *int   `json:"resolution_time,omitempty"`
}

// WithVerdict returns a copy of the record carrying the verdict's sentiment fields.
func (r FeedbackRecord) WithVerdict(v Verdict) FeedbackRecord {
	r.Sentiment = v.Label
	r.Score = v.Score
	r.IsNegative = v.IsNegative
	return r
}

// Verdict returns the sentiment triple attached to the record.
func (r FeedbackRecord) Verdict() Verdict {
	return Verdict{Label: r.Sentiment, Score: r.Score, IsNegative: r.IsNegative}
}

// RawFeedback is the payload published on the raw feedback topic.
// Text is left untyped so that absent, null and non-string values survive decoding.
type RawFeedback struct {
	ID                string `json:"id,omitempty"`
	Timestamp         string `json:"timestamp"`
	Channel           string `json:"channel"`
	Region            string `json:"region"`
	Country           string `json:"country,omitempty"`
	Product           string `json:"product"`
	Text              any    `json:"feedback_text"`
	StaffMember       string `json:"staff_member,omitempty"`
	ResolutionStatus  string `json:"resolution_status,omitempty"`
	ResolutionNotes   string `json:"resolution_notes,omitempty"`
	ResolutionMinutes *int   `json:"resolution_time,omitempty"`
}
