package classifier

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// normalize case-folds s, replaces every rune that is not a letter or digit
// with a space and collapses the result into space-separated tokens.
func normalize(s string) []string {
	s = norm.NFC.String(folder.String(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// sortedTokens returns the normalized tokens of s, sorted and joined by
// single spaces.
func sortedTokens(s string) string {
	tokens := normalize(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Ratio returns the similarity of a and b in [0, 100]:
// 100 * 2*LCS / (len(a) + len(b)), counted in runes and rounded half to
// even.
// An empty side scores 0.
func Ratio(a, b string) int {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	lcs := edlib.LCS(a, b)
	return int(math.RoundToEven(100 * float64(2*lcs) / float64(la+lb)))
}

// TokenSortRatio compares a and b after normalizing both and sorting their
// tokens, so case, punctuation and word order do not matter.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(a), sortedTokens(b))
}
