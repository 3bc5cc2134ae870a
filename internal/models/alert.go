package models

// AlertCategory names the dimension an alert was computed over.
type AlertCategory string

const (
	AlertRegion  AlertCategory = "region"
	AlertProduct AlertCategory = "product"
	AlertChannel AlertCategory = "channel"
)

// Severity ranks alerts for display.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// AlertEvent is a computed signal; it has no identity beyond its content.
type AlertEvent struct {
	Category AlertCategory `json:"type"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
}
