package classifier

import (
	"reflect"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"apple", "appel", 80},
		{"apple", "apple", 100},
		{"abc", "xyz", 0},
		{"abcdefg", "abcdefghijklm", 70},
		{"", "", 0},
		{"", "abc", 0},
		{"ab", "ba", 50},
		// Exact halves round to even
		{"abcde", "abcdeqqqqqq", 62},
		{"abc", "abcqqqqqqqqqq", 38},
		{"a", "aqqqqqqqqqqqqqq", 12},
		{"ибупрофен", "ибупрофен", 100},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := Ratio(tt.a, tt.b); got != tt.want {
				t.Errorf("Ratio(%q, %q): got %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Ratio(tt.b, tt.a); got != tt.want {
				t.Errorf("Ratio is not symmetric for %q, %q: got %d", tt.b, tt.a, got)
			}
		})
	}
}

func TestTokenSortRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"case", "APPLE", "apple", 100},
		{"word order", "Ibuprofen 200mg", "200MG ibuprofen", 100},
		{"punctuation", "IBU-PROFEN!", "ibu profen", 100},
		{"extra whitespace", "  film   coated\ttablets ", "tablets film coated", 100},
		{"cyrillic case", "ПАРАЦЕТАМОЛ", "парацетамол", 100},
		{"composed and decomposed", "caf\u00e9", "cafe\u0301", 100},
		{"typo", "apple", "appel", 80},
		{"empty", "", "apple", 0},
		{"symbols only", "***", "***", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenSortRatio(tt.a, tt.b); got != tt.want {
				t.Errorf("TokenSortRatio(%q, %q): got %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSortedTokens(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"b a c", "a b c"},
		{"Nurofen, 200 mg.", "200 mg nurofen"},
		{"", ""},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := sortedTokens(tt.in); got != tt.want {
			t.Errorf("sortedTokens(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := normalize("Sanofi/Aventis 10x")
	want := []string{"sanofi", "aventis", "10x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
