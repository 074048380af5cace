// Package filters holds the validated, ordered filter set produced by
// extraction and consumed by the findings store.
package filters

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Op is the comparison a filter applies.
type Op string

const (
	OpEq       Op = "eq"
	OpIn       Op = "in"
	OpRange    Op = "range"
	OpContains Op = "contains"
)

// Filter constrains one field. Values holds eq/in/contains operands;
// Min and Max hold range bounds (either may be nil).
type Filter struct {
	Field  string `json:"field"`
	Op     Op     `json:"op"`
	Values []any  `json:"values,omitempty"`
	Min    any    `json:"min,omitempty"`
	Max    any    `json:"max,omitempty"`
}

// Eq builds an equality filter.
func Eq(field string, v any) Filter {
	return Filter{Field: field, Op: OpEq, Values: []any{v}}
}

// In builds a membership filter.
func In(field string, vs ...any) Filter {
	return Filter{Field: field, Op: OpIn, Values: vs}
}

// Range builds a bounded filter; pass nil for an open side.
func Range(field string, min, max any) Filter {
	return Filter{Field: field, Op: OpRange, Min: min, Max: max}
}

// Contains builds a substring filter.
func Contains(field, v string) Filter {
	return Filter{Field: field, Op: OpContains, Values: []any{v}}
}

// Set is an ordered mapping of field name to filter. The zero value is empty
// and ready to use.
type Set struct {
	items []Filter
}

// Put inserts or replaces the filter for f.Field, keeping first-insert order.
func (s *Set) Put(f Filter) {
	for i := range s.items {
		if s.items[i].Field == f.Field {
			s.items[i] = f
			return
		}
	}
	s.items = append(s.items, f)
}

// Get returns the filter for field.
func (s Set) Get(field string) (Filter, bool) {
	for _, f := range s.items {
		if f.Field == field {
			return f, true
		}
	}
	return Filter{}, false
}

// Delete removes field if present.
func (s *Set) Delete(field string) {
	for i := range s.items {
		if s.items[i].Field == field {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Len returns the number of filtered fields.
func (s Set) Len() int { return len(s.items) }

// Items returns the filters in order.
func (s Set) Items() []Filter {
	out := make([]Filter, len(s.items))
	copy(out, s.items)
	return out
}

// Fields returns the filtered field names in order.
func (s Set) Fields() []string {
	out := make([]string, len(s.items))
	for i, f := range s.items {
		out[i] = f.Field
	}
	return out
}

// Sort orders the set by rank(field); unknown fields sort last.
func (s *Set) Sort(rank func(field string) int) {
	sort.SliceStable(s.items, func(i, j int) bool {
		ri, rj := rank(s.items[i].Field), rank(s.items[j].Field)
		if ri < 0 {
			return false
		}
		if rj < 0 {
			return true
		}
		return ri < rj
	})
}

// Merge returns base overlaid with override: fields present in override win,
// fields only in base are kept.
func Merge(base, override Set) Set {
	var out Set
	for _, f := range base.items {
		out.Put(f)
	}
	for _, f := range override.items {
		out.Put(f)
	}
	return out
}

// MarshalJSON renders the set as an ordered object: equality becomes a
// scalar, membership a list, ranges {"min","max"} and contains {"contains"}.
func (s Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(f.Field))
		buf.WriteByte(':')

		var v any
		switch f.Op {
		case OpEq:
			if len(f.Values) > 0 {
				v = f.Values[0]
			}
		case OpIn:
			v = f.Values
		case OpRange:
			r := map[string]any{}
			if f.Min != nil {
				r["min"] = f.Min
			}
			if f.Max != nil {
				r["max"] = f.Max
			}
			v = r
		case OpContains:
			if len(f.Values) > 0 {
				v = map[string]any{"contains": f.Values[0]}
			}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
