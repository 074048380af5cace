// Package schema holds the registry of filterable finding fields.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed findings.yaml
var defaultCatalogue []byte

// Registry is an immutable, ordered set of field definitions.
type Registry struct {
	entity string
	fields []Field
	byName map[string]int
}

// Default returns the registry built from the embedded findings catalogue.
func Default() (*Registry, error) {
	return Parse(defaultCatalogue)
}

// Load reads a catalogue file. An empty path yields the default registry.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML and validates every field.
func Parse(data []byte) (*Registry, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if len(cat.Fields) == 0 {
		return nil, fmt.Errorf("schema defines no fields")
	}

	r := &Registry{
		entity: cat.Entity,
		fields: make([]Field, 0, len(cat.Fields)),
		byName: make(map[string]int),
	}
	for _, f := range cat.Fields {
		if err := prepare(&f); err != nil {
			return nil, err
		}
		idx := len(r.fields)
		r.fields = append(r.fields, f)
		for _, key := range append([]string{f.Name}, f.Aliases...) {
			key = normalizeKey(key)
			if other, dup := r.byName[key]; dup && other != idx {
				return nil, fmt.Errorf("field %s: alias %q already used by %s", f.Name, key, r.fields[other].Name)
			}
			r.byName[key] = idx
		}
	}
	return r, nil
}

func prepare(f *Field) error {
	if f.Name == "" {
		return fmt.Errorf("schema field without a name")
	}
	if f.Column == "" {
		f.Column = f.Name
	}
	switch f.Type {
	case TypeString, TypeNumber, TypeDate:
	case TypeEnum:
		if len(f.AllowedValues) == 0 {
			return fmt.Errorf("field %s: enum without allowed_values", f.Name)
		}
		for syn, canon := range f.ValueSynonyms {
			if !contains(f.AllowedValues, canon) {
				return fmt.Errorf("field %s: synonym %q maps to unknown value %q", f.Name, syn, canon)
			}
		}
	default:
		return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
	}

	for i := range f.Patterns {
		p := &f.Patterns[i]
		if p.Op == "" {
			p.Op = OpEq
		}
		expr := p.Regex
		if !p.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("field %s: pattern %q: %w", f.Name, p.Regex, err)
		}
		want := 1
		if p.Op == OpRange {
			want = 2
		}
		if re.NumSubexp() < want {
			return fmt.Errorf("field %s: pattern %q needs %d capture group(s)", f.Name, p.Regex, want)
		}
		p.re = re
	}
	return nil
}

// Entity names the record type the registry describes.
func (r *Registry) Entity() string { return r.entity }

// Fields returns the field definitions in declaration order.
func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Lookup resolves a field by name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Field, bool) {
	idx, ok := r.byName[normalizeKey(name)]
	if !ok {
		return Field{}, false
	}
	return r.fields[idx], true
}

// Index returns the declaration position of a field, or -1.
func (r *Registry) Index(name string) int {
	idx, ok := r.byName[normalizeKey(name)]
	if !ok {
		return -1
	}
	return idx
}

// Canonical maps a raw enum value or synonym onto its allowed spelling.
func (f Field) Canonical(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, v := range f.AllowedValues {
		if strings.EqualFold(v, raw) {
			return v, true
		}
	}
	for syn, canon := range f.ValueSynonyms {
		if strings.EqualFold(syn, raw) {
			return canon, true
		}
	}
	return "", false
}

// InBounds reports whether n satisfies the field's numeric limits.
func (f Field) InBounds(n float64) bool {
	if f.Min != nil && n < *f.Min {
		return false
	}
	if f.Max != nil && n > *f.Max {
		return false
	}
	if f.Integer && n != float64(int64(n)) {
		return false
	}
	return true
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "_")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
