// Package evaluation scores the routing front half (mask, classify,
// extract) against a labelled set of questions.
package evaluation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ziadkadry99/auditq/internal/classifier"
)

// Case is one labelled question. Filters uses the same shape as the JSON
// form of a filter set; a nil Filters skips the filter check.
type Case struct {
	Name    string               `yaml:"name"`
	Query   string               `yaml:"query"`
	Route   classifier.RouteType `yaml:"route"`
	Filters map[string]any       `yaml:"filters"`
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases reads a YAML case file.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cases: %w", err)
	}
	cases, err := ParseCases(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// ParseCases decodes and validates a case list.
func ParseCases(data []byte) ([]Case, error) {
	var f caseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing cases: %w", err)
	}
	if len(f.Cases) == 0 {
		return nil, fmt.Errorf("no cases defined")
	}
	for i := range f.Cases {
		c := &f.Cases[i]
		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("case %d: query is required", i+1)
		}
		switch c.Route {
		case classifier.Simple, classifier.Complex, classifier.Hybrid:
		default:
			return nil, fmt.Errorf("case %d: unknown route %q", i+1, c.Route)
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("case-%d", i+1)
		}
	}
	return f.Cases, nil
}
