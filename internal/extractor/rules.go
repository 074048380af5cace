package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/schema"
)

type fieldMatcher struct {
	field schema.Field
	// values matches any allowed value or synonym of an enum field.
	values *regexp.Regexp
	// aliases matches any alias phrase of the field.
	aliases *regexp.Regexp
	// aliasValue captures "<alias>: value" for string fields.
	aliasValue *regexp.Regexp
}

// candidate is one rule hit before overlap resolution.
type candidate struct {
	field    int
	op       schema.PatternOp
	start    int
	end      int
	captures []string
	order    int
}

func buildMatchers(reg *schema.Registry) ([]fieldMatcher, error) {
	fields := reg.Fields()
	out := make([]fieldMatcher, len(fields))
	for i, f := range fields {
		m := fieldMatcher{field: f}
		if f.Type == schema.TypeEnum {
			terms := append([]string(nil), f.AllowedValues...)
			for syn := range f.ValueSynonyms {
				terms = append(terms, syn)
			}
			m.values = wordAlternation(terms)
		}
		if len(f.Aliases) > 0 {
			m.aliases = wordAlternation(f.Aliases)
		}
		if f.Type == schema.TypeString && len(f.Aliases) > 0 {
			re, err := regexp.Compile(`(?i:\b(?:` + quoteAll(f.Aliases) + `))\s*(?:[:=]|\bis\b)\s*("[^"]+"|[A-Za-z][\w&.\-]*(?: [A-Z][\w&.\-]*)*)`)
			if err != nil {
				return nil, fmt.Errorf("field %s: alias pattern: %w", f.Name, err)
			}
			m.aliasValue = re
		}
		out[i] = m
	}
	return out, nil
}

// wordAlternation matches any term as a whole word, longest first so
// "informational only" beats "informational".
func wordAlternation(terms []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + quoteAll(terms) + `)\b`)
}

func quoteAll(terms []string) string {
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

func (s span) inside(o span) bool { return s.start >= o.start && s.end <= o.end }

// Rules extracts filters by scanning the query for registry aliases,
// enum values, synonyms and field capture patterns.
func (e *Extractor) Rules(query string) (filters.Set, []Warning) {
	var set filters.Set
	var warnings []Warning

	// Alias phrases claim their text so an enum synonym inside another
	// field's alias ("financial" in "financial impact") is not a value.
	aliasSpans := make([][]span, len(e.matchers))
	for i, m := range e.matchers {
		if m.aliases == nil {
			continue
		}
		for _, loc := range m.aliases.FindAllStringIndex(query, -1) {
			aliasSpans[i] = append(aliasSpans[i], span{loc[0], loc[1]})
		}
	}
	claimedByOther := func(field int, s span) bool {
		for j, spans := range aliasSpans {
			if j == field {
				continue
			}
			for _, a := range spans {
				if s.inside(a) {
					return true
				}
			}
		}
		return false
	}

	// Enum values, in order of appearance.
	for i, m := range e.matchers {
		if m.values == nil {
			continue
		}
		var values []any
		seen := map[string]bool{}
		for _, loc := range m.values.FindAllStringIndex(query, -1) {
			if claimedByOther(i, span{loc[0], loc[1]}) {
				continue
			}
			canon, ok := m.field.Canonical(query[loc[0]:loc[1]])
			if !ok || seen[canon] {
				continue
			}
			seen[canon] = true
			values = append(values, canon)
		}
		if len(values) > 0 {
			set.Put(filters.In(m.field.Name, values...))
		}
	}

	// Capture patterns compete for text: the longest full match wins and
	// shorter overlapping matches are discarded.
	var cands []candidate
	order := 0
	for i, m := range e.matchers {
		for _, p := range m.field.Patterns {
			re := p.Compiled()
			for _, idx := range re.FindAllStringSubmatchIndex(query, -1) {
				c := candidate{field: i, op: p.Op, start: idx[0], end: idx[1], order: order}
				order++
				ok := true
				for g := 1; g < len(idx)/2; g++ {
					if idx[2*g] < 0 {
						continue
					}
					if m.field.Type == schema.TypeNumber && partOfDate(query, idx[2*g], idx[2*g+1]) {
						ok = false
						break
					}
					c.captures = append(c.captures, query[idx[2*g]:idx[2*g+1]])
				}
				if ok && len(c.captures) > 0 {
					cands = append(cands, c)
				}
			}
		}
		if m.aliasValue != nil {
			for _, idx := range m.aliasValue.FindAllStringSubmatchIndex(query, -1) {
				cands = append(cands, candidate{
					field:    i,
					op:       schema.OpEq,
					start:    idx[0],
					end:      idx[1],
					captures: []string{strings.Trim(query[idx[2]:idx[3]], `"`)},
					order:    order,
				})
				order++
			}
		}
	}
	sort.SliceStable(cands, func(a, b int) bool {
		la, lb := cands[a].end-cands[a].start, cands[b].end-cands[b].start
		if la != lb {
			return la > lb
		}
		return cands[a].order < cands[b].order
	})

	var accepted []candidate
	var taken []span
	for _, c := range cands {
		s := span{c.start, c.end}
		clash := false
		for _, t := range taken {
			if s.overlaps(t) {
				clash = true
				break
			}
		}
		if clash {
			continue
		}
		taken = append(taken, s)
		accepted = append(accepted, c)
	}
	sort.SliceStable(accepted, func(a, b int) bool { return accepted[a].start < accepted[b].start })

	// Fold the accepted hits into one filter per field.
	type bounds struct {
		eqs      []any
		min, max any
		ranged   bool
	}
	perField := make(map[int]*bounds)
	var fieldOrder []int
	for _, c := range accepted {
		f := e.matchers[c.field].field
		b, ok := perField[c.field]
		if !ok {
			b = &bounds{}
			perField[c.field] = b
			fieldOrder = append(fieldOrder, c.field)
		}
		vals := make([]any, 0, len(c.captures))
		for _, raw := range c.captures {
			v, err := normalize(f, raw)
			if err != nil {
				warnings = append(warnings, Warning{Field: f.Name, Value: raw, Reason: err.Error(), Source: SourceRules})
				continue
			}
			vals = append(vals, v)
		}
		if len(vals) != len(c.captures) {
			continue
		}
		switch c.op {
		case schema.OpRange:
			b.min, b.max, b.ranged = vals[0], vals[1], true
		case schema.OpMin:
			b.min, b.ranged = vals[0], true
		case schema.OpMax:
			b.max, b.ranged = vals[0], true
		default:
			if !containsValue(b.eqs, vals[0]) {
				b.eqs = append(b.eqs, vals[0])
			}
		}
	}
	for _, i := range fieldOrder {
		f := e.matchers[i].field
		b := perField[i]
		switch {
		case b.ranged:
			if w, ok := checkRange(f, b.min, b.max, SourceRules); !ok {
				warnings = append(warnings, w)
				continue
			}
			set.Put(filters.Range(f.Name, b.min, b.max))
		case len(b.eqs) == 1:
			set.Put(filters.Eq(f.Name, b.eqs[0]))
		case len(b.eqs) > 1:
			set.Put(filters.In(f.Name, b.eqs...))
		}
	}

	set.Sort(e.registry.Index)
	return set, warnings
}

// partOfDate reports whether text[start:end] is the year of a YYYY-MM-DD
// date, or another component of one.
func partOfDate(text string, start, end int) bool {
	if end+1 < len(text) && text[end] == '-' && isDigit(text[end+1]) {
		return true
	}
	if start >= 2 && text[start-1] == '-' && isDigit(text[start-2]) {
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func containsValue(list []any, v any) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
