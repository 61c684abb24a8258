// Package plagiarism computes textual similarity between free-text answers
// of different attempts using character 3-gram sets and Jaccard similarity.
// It is pure: callers fetch the texts, this package only compares them.
package plagiarism

import (
	"math"
	"strings"
	"unicode"
)

const gramSize = 3

// AttemptText is one attempt's combined free-text answers.
type AttemptText struct {
	AttemptID string
	Text      string
}

// Match is the similarity of one compared attempt.
type Match struct {
	AttemptID string  `json:"attemptId"`
	Percent   float64 `json:"percent"`
}

// Report is the outcome of comparing one attempt against its peers.
type Report struct {
	Percent  float64 `json:"percent"` // max similarity, 0-100, one decimal
	Matches  []Match `json:"matches"`
	OwnGrams int     `json:"ownGrams"`
}

// Normalize collapses whitespace, strips punctuation and lower-cases a text.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Grams extracts the character 3-gram set of a text after normalization,
// sliding over the text with whitespace removed. A non-empty text shorter
// than 3 characters yields itself as the single gram; an empty text yields
// an empty set so that it matches nothing.
func Grams(s string) map[string]struct{} {
	joined := []rune(strings.ReplaceAll(Normalize(s), " ", ""))
	grams := make(map[string]struct{})
	if len(joined) == 0 {
		return grams
	}
	if len(joined) <= gramSize {
		grams[string(joined)] = struct{}{}
		return grams
	}
	for i := 0; i+gramSize <= len(joined); i++ {
		grams[string(joined[i:i+gramSize])] = struct{}{}
	}
	return grams
}

// Jaccard returns |a∩b| / |a∪b|, defined as 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Compare computes the similarity of own against every other attempt and
// returns the per-attempt percentages plus the maximum, each rounded to one
// decimal. With no attempts to compare against, the percent is 0.
func Compare(own string, others []AttemptText) Report {
	ownGrams := Grams(own)
	report := Report{OwnGrams: len(ownGrams)}
	for _, other := range others {
		percent := round1(Jaccard(ownGrams, Grams(other.Text)) * 100)
		report.Matches = append(report.Matches, Match{AttemptID: other.AttemptID, Percent: percent})
		if percent > report.Percent {
			report.Percent = percent
		}
	}
	report.Percent = round1(report.Percent)
	return report
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
