package sentiment

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/processing"
)

//go:embed lexicon.json
var defaultLexicon []byte

// lexiconFile is the on-disk shape of a lexicon model.
type lexiconFile struct {
	Name           string             `json:"name"`
	Bias           float64            `json:"bias"`
	NegationWindow int                `json:"negation_window"`
	Negators       []string           `json:"negators"`
	Intensifiers   map[string]float64 `json:"intensifiers"`
	Terms          map[string]float64 `json:"terms"`
}

// LexiconModel is a weighted-lexicon classifier with negation and intensifier handling.
// A negator flips the next negation_window content words; stop words do not use up the window.
// The logistic of the summed weights is the reported confidence. Texts without any
// lexicon term are NEUTRAL.
type LexiconModel struct {
	name         string
	bias         float64
	window       int
	negators     map[string]struct{}
	intensifiers map[string]float64
	terms        map[string]float64
}

// LoadLexicon reads a lexicon from path, or the embedded default when path is empty.
func LoadLexicon(path string) (*LexiconModel, error) {
	raw := defaultLexicon
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lexicon: %w", err)
		}
		raw = b
	}
	return parseLexicon(raw)
}

func parseLexicon(raw []byte) (*LexiconModel, error) {
	var f lexiconFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if len(f.Terms) == 0 {
		return nil, errors.New("lexicon has no terms")
	}
	if f.NegationWindow < 0 {
		return nil, errors.New("lexicon negation_window cannot be negative")
	}
	if f.Name == "" {
		f.Name = "custom"
	}

	m := &LexiconModel{
		name:         f.Name,
		bias:         f.Bias,
		window:       f.NegationWindow,
		negators:     make(map[string]struct{}, len(f.Negators)),
		intensifiers: f.Intensifiers,
		terms:        f.Terms,
	}
	for _, n := range f.Negators {
		m.negators[n] = struct{}{}
	}
	if m.intensifiers == nil {
		m.intensifiers = map[string]float64{}
	}
	return m, nil
}

// Name returns the lexicon identifier.
func (m *LexiconModel) Name() string {
	return "lexicon:" + m.name
}

// Predict scores text against the lexicon.
func (m *LexiconModel) Predict(ctx context.Context, text string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	var (
		sum     float64
		hits    int
		negated int
		boost   = 1.0
	)
	for _, token := range processing.Tokenize(text, 2) {
		if _, ok := m.negators[token]; ok {
			negated = m.window
			continue
		}
		if f, ok := m.intensifiers[token]; ok {
			boost = f
			continue
		}
		if processing.IsStopword(token) {
			continue
		}
		if w, ok := m.terms[token]; ok {
			if negated > 0 {
				w = -w
			}
			sum += w * boost
			hits++
		}
		boost = 1
		if negated > 0 {
			negated--
		}
	}

	if hits == 0 {
		return Prediction{Label: string(models.LabelNeutral), Score: 0.5}, nil
	}

	z := sum + m.bias
	p := 1 / (1 + math.Exp(-z))
	if z >= 0 {
		return Prediction{Label: string(models.LabelPositive), Score: p}, nil
	}
	return Prediction{Label: string(models.LabelNegative), Score: 1 - p}, nil
}
