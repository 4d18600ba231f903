package core

import (
	"strings"

	"golang.org/x/text/cases"

	"inventario/pkg/domain"
)

// SerialIndex is the set of normalised serial numbers and business keys of
// every inventory and additional item. It is derived data and never persisted.
type SerialIndex struct {
	values map[string]struct{}
}

// NewSerialIndex returns an empty index.
func NewSerialIndex() *SerialIndex {
	return &SerialIndex{values: make(map[string]struct{})}
}

// NormalizeSerial trims surrounding whitespace and case-folds v.
func NormalizeSerial(v string) string {
	return cases.Fold().String(strings.TrimSpace(v))
}

// Rebuild recomputes the index from scratch.
func (x *SerialIndex) Rebuild(s *domain.ApplicationState) {
	values := make(map[string]struct{}, 2*(len(s.Inventory)+len(s.AdditionalItems)))
	add := func(v domain.Text) {
		if n := NormalizeSerial(string(v)); n != "" {
			values[n] = struct{}{}
		}
	}
	for _, item := range s.Inventory {
		add(item.Serie)
		add(item.ClaveUnica)
	}
	for _, item := range s.AdditionalItems {
		add(item.Serie)
		add(item.Clave)
	}
	x.values = values
}

// Contains reports whether the normalised form of v is indexed. Empty values
// are never contained.
func (x *SerialIndex) Contains(v string) bool {
	n := NormalizeSerial(v)
	if n == "" {
		return false
	}
	_, ok := x.values[n]
	return ok
}

// Len returns the number of distinct indexed values.
func (x *SerialIndex) Len() int { return len(x.values) }
