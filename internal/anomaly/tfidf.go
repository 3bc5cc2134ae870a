package anomaly

import (
	"errors"
	"math"
	"sort"

	"github.com/DeafMist/feedback-radar/internal/processing"
)

// ErrEmptyVocabulary is returned when no document in the batch yields a single token.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

const (
	defaultMaxFeatures = 500
	defaultMinTokenLen = 2
)

// Vectorizer turns a batch of texts into L2-normalized TF-IDF rows. The vocabulary is
// learned from the batch itself on every call.
type Vectorizer struct {
	MaxFeatures int
	MinTokenLen int
}

// Matrix is a dense document-term matrix; columns follow Vocabulary.
type Matrix struct {
	Vocabulary []string
	Rows       [][]float64
}

// FitTransform learns the vocabulary of texts and returns their TF-IDF vectors.
// Terms are ranked by total count across the batch (ties by term) and the top
// MaxFeatures kept; idf is smoothed as ln((1+n)/(1+df))+1.
func (v Vectorizer) FitTransform(texts []string) (*Matrix, error) {
	maxFeatures := v.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = defaultMaxFeatures
	}
	minLen := v.MinTokenLen
	if minLen <= 0 {
		minLen = defaultMinTokenLen
	}

	docs := make([]map[string]int, len(texts))
	total := make(map[string]int)
	df := make(map[string]int)
	for i, text := range texts {
		counts := make(map[string]int)
		for _, token := range processing.Tokenize(text, minLen) {
			counts[token]++
		}
		for term, c := range counts {
			total[term] += c
			df[term]++
		}
		docs[i] = counts
	}
	if len(total) == 0 {
		return nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(total))
	for term := range total {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if total[terms[i]] != total[terms[j]] {
			return total[terms[i]] > total[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	index := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(texts))
	for j, term := range terms {
		index[term] = j
		idf[j] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	rows := make([][]float64, len(texts))
	for i, counts := range docs {
		row := make([]float64, len(terms))
		for term, c := range counts {
			if j, ok := index[term]; ok {
				row[j] = float64(c) * idf[j]
			}
		}
		// summed in column order so repeated fits are bit-identical
		var norm float64
		for _, x := range row {
			norm += x * x
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range row {
				row[j] /= norm
			}
		}
		rows[i] = row
	}

	return &Matrix{Vocabulary: terms, Rows: rows}, nil
}
