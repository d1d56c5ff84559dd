// Package classifier assigns a category to the text read off a box.
//
// Every keyword of every category is compared with every OCR fragment using
// a token-sort fuzzy ratio. Ratios at or above the threshold are added to
// the category's score; the category with the highest score wins, and on a
// tie the one listed first in the dictionary.
package classifier

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultThreshold is the smallest ratio that counts as a keyword match.
const DefaultThreshold = 70

// Unknown is the label reported when no category matches.
const Unknown = "unknown"

// Score is one category's accumulated rating.
type Score struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
}

// Match is the outcome of one classification.
type Match struct {
	// Category is empty when OK is false.
	Category string `json:"category,omitempty"`
	Score    int    `json:"score"`
	OK       bool   `json:"matched"`

	// Scores lists every category in dictionary order.
	Scores []Score `json:"scores"`
}

// Label returns the category name, or Unknown for no match.
func (m Match) Label() string {
	if !m.OK {
		return Unknown
	}
	return m.Category
}

func (m Match) String() string {
	if !m.OK {
		return Unknown
	}
	return fmt.Sprintf("%s (%d)", m.Category, m.Score)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThreshold sets the minimum ratio for a keyword to count.
func WithThreshold(threshold int) Option {
	return func(c *Classifier) {
		c.threshold = threshold
	}
}

// Classifier scores fragments against a fixed dictionary. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	dict      *Dictionary
	threshold int

	// keywords holds the pre-sorted token form of each category's keywords.
	keywords [][]string
}

// New creates a classifier for dict.
func New(dict *Dictionary, opts ...Option) *Classifier {
	c := &Classifier{dict: dict, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(c)
	}

	c.keywords = make([][]string, dict.Len())
	for i, cat := range dict.Categories() {
		c.keywords[i] = make([]string, len(cat.Keywords))
		for j, kw := range cat.Keywords {
			c.keywords[i][j] = sortedTokens(kw)
		}
	}
	return c
}

// Threshold returns the minimum ratio counted as a match.
func (c *Classifier) Threshold() int {
	return c.threshold
}

// Classify rates fragments against every category.
func (c *Classifier) Classify(fragments []string) Match {
	prepared := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if s := sortedTokens(f); s != "" {
			prepared = append(prepared, s)
		}
	}

	m := Match{Scores: make([]Score, c.dict.Len())}
	for i, cat := range c.dict.Categories() {
		total := 0
		for _, kw := range c.keywords[i] {
			for _, frag := range prepared {
				if r := Ratio(kw, frag); r >= c.threshold {
					total += r
				}
			}
		}
		m.Scores[i] = Score{Category: cat.Name, Score: total}

		// Strictly greater keeps the earliest category on ties
		if total > m.Score {
			m.Category = cat.Name
			m.Score = total
			m.OK = true
		}
	}
	return m
}

// Top returns the n best scores, highest first, ties in dictionary order.
func (m Match) Top(n int) []Score {
	out := make([]Score, 0, len(m.Scores))
	for _, s := range m.Scores {
		if s.Score > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Summary formats the non-zero scores for logging.
func (m Match) Summary() string {
	top := m.Top(-1)
	if len(top) == 0 {
		return "no keyword matched"
	}
	parts := make([]string, len(top))
	for i, s := range top {
		parts[i] = fmt.Sprintf("%s=%d", s.Category, s.Score)
	}
	return strings.Join(parts, " ")
}
