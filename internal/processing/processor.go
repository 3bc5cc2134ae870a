package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	apostrophe  = regexp.MustCompile(`['\x{2019}]`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "and": {}, "or": {},
	"of": {}, "on": {}, "at": {}, "is": {}, "it": {}, "my": {}, "me": {}, "i": {},
	"was": {}, "were": {}, "with": {}, "this": {}, "that": {}, "when": {}, "but": {},
	"be": {}, "by": {}, "as": {}, "so": {}, "are": {}, "have": {}, "had": {}, "has": {},
	"you": {}, "your": {}, "our": {}, "we": {}, "they": {}, "from": {}, "very": {},
}

// IsStopword reports whether token is a filler word carrying no sentiment or topic.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
// Apostrophes are dropped rather than split on, so "can't" becomes "cant".
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = apostrophe.ReplaceAllString(decoded, "")
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	decoded = strings.TrimSpace(decoded)
	return decoded
}

// Tokenize lowercases cleaned text and splits it into letter/digit runs of at least minLen runes.
func Tokenize(text string, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	fields := strings.FieldsFunc(clean, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := fields[:0]
	for _, token := range fields {
		if utf8.RuneCountInString(token) < minLen {
			continue
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// TopTerms returns the most frequent non-stop-word terms across the given texts.
func TopTerms(texts []string, limit, minLen int) []string {
	freq := make(map[string]int)
	for _, text := range texts {
		for _, token := range Tokenize(text, minLen) {
			if IsStopword(token) {
				continue
			}
			freq[token]++
		}
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	terms := make([]string, 0, max)
	for i := 0; i < max; i++ {
		terms = append(terms, pairs[i].word)
	}

	return terms
}

// Truncate keeps the first n code points of text. The cut never splits a UTF-8 sequence.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// Preview shortens text for log lines, appending an ellipsis when it was cut.
func Preview(text string, n int) string {
	short := Truncate(text, n)
	if len(short) < len(text) {
		return short + "..."
	}
	return short
}

// BuildRecordID hashes the most stable fields to form deterministic IDs.
func BuildRecordID(channel, text string, ts time.Time) string {
	s := sha1.Sum([]byte(channel + "|" + text + "|" + ts.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(s[:])
}
