package models

// Label is the sentiment class attached to a feedback record.
type Label string

const (
	LabelPositive Label = "POSITIVE"
	LabelNegative Label = "NEGATIVE"
	LabelNeutral  Label = "NEUTRAL"
	LabelError    Label = "ERROR"
)

// NegativityThreshold is the confidence a NEGATIVE verdict must exceed to count as critical.
const NegativityThreshold = 0.7

// Verdict is the (label, score, is_negative) triple produced by the classifier.
type Verdict struct {
	Label      Label   `json:"sentiment"`
	Score      float64 `json:"score"`
	IsNegative bool    `json:"is_negative"`
}

// NewVerdict derives IsNegative from label and score.
func NewVerdict(label Label, score float64) Verdict {
	return Verdict{
		Label:      label,
		Score:      score,
		IsNegative: IsCritical(label, score),
	}
}

// IsCritical reports whether a label/score pair counts as negative.
func IsCritical(label Label, score float64) bool {
	return label == LabelNegative && score > NegativityThreshold
}

// NeutralVerdict is returned for empty or non-text input.
func NeutralVerdict() Verdict {
	return NewVerdict(LabelNeutral, 0.5)
}

// ErrorVerdict is returned when the model could not produce a verdict.
func ErrorVerdict() Verdict {
	return NewVerdict(LabelError, 0)
}
