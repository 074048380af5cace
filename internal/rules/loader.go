package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaults embed.FS

// Default returns the built-in rule tables.
func Default() (*Set, error) {
	return load(defaults, "defaults/*.yaml", nil)
}

// Load returns the built-in tables overlaid with every file under dir that
// matches glob. A file replaces the whole table named by its kind.
// An empty dir yields the defaults.
func Load(dir, glob string) (*Set, error) {
	set, err := Default()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return set, nil
	}
	if glob == "" {
		glob = "**/*.yaml"
	}
	return load(os.DirFS(dir), glob, set)
}

func load(fsys fs.FS, glob string, base *Set) (*Set, error) {
	matches, err := doublestar.Glob(fsys, glob)
	if err != nil {
		return nil, fmt.Errorf("matching rule files %q: %w", glob, err)
	}
	sort.Strings(matches)

	set := &Set{}
	if base != nil {
		*set = *base
	}
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading rules %s: %w", name, err)
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing rules %s: %w", name, err)
		}
		switch doc.Kind {
		case KindClassifier:
			if doc.Classifier == nil {
				return nil, fmt.Errorf("rules %s: missing classifier table", name)
			}
			set.Classifier = *doc.Classifier
		case KindMasking:
			set.Masking = doc.Masking
		case KindPseudonym:
			if doc.Pseudonym == nil {
				return nil, fmt.Errorf("rules %s: missing pseudonym table", name)
			}
			set.Pseudonym = *doc.Pseudonym
		default:
			return nil, fmt.Errorf("rules %s: unknown kind %q", name, doc.Kind)
		}
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Validate checks that every table is usable and every pattern compiles.
func (s *Set) Validate() error {
	c := s.Classifier
	if c.Saturation <= 0 {
		return fmt.Errorf("classifier: saturation must be positive")
	}
	if c.CountWeight < 0 || c.CoverageWeight < 0 || c.CountWeight+c.CoverageWeight > 1 {
		return fmt.Errorf("classifier: weights must be non-negative and sum to at most 1")
	}
	for set, list := range map[string][]PatternRule{"simple": c.Simple, "analysis": c.Analysis, "hybrid": c.Hybrid} {
		if len(list) == 0 {
			return fmt.Errorf("classifier: %s rule set is empty", set)
		}
		for _, r := range list {
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fmt.Errorf("classifier %s rule %q: %w", set, r.Name, err)
			}
		}
	}

	for _, m := range s.Masking {
		if m.Category == "" {
			return fmt.Errorf("masking: rule without category")
		}
		if _, err := regexp.Compile(m.Pattern); err != nil {
			return fmt.Errorf("masking %s: %w", m.Category, err)
		}
	}

	for _, p := range s.Pseudonym.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("pseudonym %s: %w", p.Category, err)
		}
		if p.Group > re.NumSubexp() {
			return fmt.Errorf("pseudonym %s: group %d out of range", p.Category, p.Group)
		}
	}
	return nil
}
