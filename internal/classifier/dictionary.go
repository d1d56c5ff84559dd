package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidDictionary is wrapped by every dictionary parse error.
var ErrInvalidDictionary = errors.New("invalid keyword dictionary")

// Category is one dictionary entry.
type Category struct {
	Name     string
	Keywords []string
}

// Dictionary maps category names to keyword lists, keeping the order in
// which categories appear in the source file. It is never modified after
// loading.
type Dictionary struct {
	categories []Category
}

// NewDictionary builds a dictionary from categories in the given order.
func NewDictionary(categories ...Category) (*Dictionary, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidDictionary)
	}
	seen := make(map[string]bool, len(categories))
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidDictionary, c.Name)
		}
		seen[c.Name] = true
		out = append(out, Category{Name: c.Name, Keywords: append([]string(nil), c.Keywords...)})
	}
	return &Dictionary{categories: out}, nil
}

// LoadDictionary reads a JSON keyword file.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword file: %w", err)
	}
	defer f.Close()

	d, err := ParseDictionary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDictionary decodes {"<category>": ["<keyword>", ...], ...}.
//
// A plain map would lose the category order, which decides ties, so the
// object is walked token by token.
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var categories []Category
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDictionary, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %v", ErrInvalidDictionary, tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: category %q: %v", ErrInvalidDictionary, name, err)
		}
		var keywords []string
		if err := json.Unmarshal(raw, &keywords); err != nil || keywords == nil {
			return nil, fmt.Errorf("%w: category %q must be an array of strings", ErrInvalidDictionary, name)
		}

		categories = append(categories, Category{Name: name, Keywords: keywords})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidDictionary)
	}

	return NewDictionary(categories...)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDictionary, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrInvalidDictionary, want, tok)
	}
	return nil
}

// Categories returns the entries in file order.
func (d *Dictionary) Categories() []Category {
	return d.categories
}

// Len returns the number of categories.
func (d *Dictionary) Len() int {
	return len(d.categories)
}

// Names returns the category names in file order.
func (d *Dictionary) Names() []string {
	names := make([]string, len(d.categories))
	for i, c := range d.categories {
		names[i] = c.Name
	}
	return names
}
