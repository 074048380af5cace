package pseudonym

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ziadkadry99/auditq/internal/rules"
)

// Entity is one sensitive value found in a payload.
type Entity struct {
	Category Category
	Original string
}

type entityPattern struct {
	category Category
	re       *regexp.Regexp
	group    int
}

// Detector finds entities by payload key and by text pattern.
type Detector struct {
	fields   map[string]Category
	patterns []entityPattern
}

// NewDetector compiles the pseudonym rule table.
func NewDetector(table rules.Pseudonym) (*Detector, error) {
	d := &Detector{fields: make(map[string]Category)}
	for _, f := range table.Fields {
		d.fields[strings.ToLower(f.Field)] = Category(f.Category)
	}
	for _, p := range table.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pseudonym pattern %q: %w", p.Pattern, err)
		}
		if p.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pseudonym pattern %q has no group %d", p.Pattern, p.Group)
		}
		d.patterns = append(d.patterns, entityPattern{category: Category(p.Category), re: re, group: p.Group})
	}
	return d, nil
}

// FieldCategory reports the category bound to a payload key.
func (d *Detector) FieldCategory(key string) (Category, bool) {
	c, ok := d.fields[strings.ToLower(key)]
	return c, ok
}

// Detect walks a JSON-like tree (maps, slices, strings, numbers) and
// returns the distinct entities in discovery order.
func (d *Detector) Detect(payload any) []Entity {
	var out []Entity
	seen := make(map[Entity]bool)
	add := func(e Entity) {
		if e.Original == "" || seen[e] {
			return
		}
		seen[e] = true
		out = append(out, e)
	}
	d.walk(payload, "", add)
	return out
}

func (d *Detector) walk(v any, key string, add func(Entity)) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			d.walk(t[k], k, add)
		}
	case []any:
		for _, item := range t {
			d.walk(item, key, add)
		}
	case string:
		if c, ok := d.FieldCategory(key); ok {
			add(Entity{Category: c, Original: strings.TrimSpace(t)})
		}
		d.scan(t, add)
	default:
		if c, ok := d.FieldCategory(key); ok {
			if s, ok := scalarString(t); ok {
				add(Entity{Category: c, Original: s})
			}
		}
	}
}

func (d *Detector) scan(text string, add func(Entity)) {
	for _, p := range d.patterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			add(Entity{Category: p.category, Original: strings.TrimSpace(m[p.group])})
		}
	}
}

// scalarString renders a number the way it appears in JSON. Zero amounts
// are not sensitive.
func scalarString(v any) (string, bool) {
	switch n := v.(type) {
	case float64:
		if n == 0 {
			return "", false
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case int:
		if n == 0 {
			return "", false
		}
		return strconv.Itoa(n), true
	case int64:
		if n == 0 {
			return "", false
		}
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}
