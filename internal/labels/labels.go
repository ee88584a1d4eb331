// Package labels maps string labels to dense integer keys and back.
package labels

import (
	"errors"
	"fmt"
	"sort"
)

// Ordering decides which key each distinct label receives.
type Ordering string

const (
	// ByOccurrence numbers labels in order of first appearance.
	ByOccurrence Ordering = "occurrence"
	// ByValue numbers labels in sorted string order.
	ByValue Ordering = "value"
)

// Error definitions for the labels package.
var (
	ErrEmpty    = errors.New("no labels to map")
	ErrOrdering = errors.New("unknown label ordering")
)

// KeyMap is a bijection between the distinct labels it was fitted on and
// the keys 0..Len()-1. It is immutable once built.
type KeyMap struct {
	values []string
	keys   map[string]int
}

// Fit builds a KeyMap over the distinct values of labels. Empty strings are
// ignored.
func Fit(labels []string, ordering Ordering) (*KeyMap, error) {
	seen := make(map[string]bool)
	var values []string
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		values = append(values, l)
	}
	if len(values) == 0 {
		return nil, ErrEmpty
	}

	switch ordering {
	case ByOccurrence, "":
	case ByValue:
		sort.Strings(values)
	default:
		return nil, fmt.Errorf("%w: %q", ErrOrdering, ordering)
	}

	m := &KeyMap{
		values: values,
		keys:   make(map[string]int, len(values)),
	}
	for k, v := range values {
		m.keys[v] = k
	}
	return m, nil
}

// Len returns the number of distinct labels.
func (m *KeyMap) Len() int {
	return len(m.values)
}

// Key returns the key for label.
func (m *KeyMap) Key(label string) (int, bool) {
	k, ok := m.keys[label]
	return k, ok
}

// Value returns the label for key.
func (m *KeyMap) Value(key int) (string, bool) {
	if key < 0 || key >= len(m.values) {
		return "", false
	}
	return m.values[key], true
}

// Values returns the labels in key order.
func (m *KeyMap) Values() []string {
	return append([]string(nil), m.values...)
}
