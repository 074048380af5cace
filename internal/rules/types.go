// Package rules loads the declarative pattern tables that drive
// classification, masking and pseudonym detection.
package rules

// Kind names which table a rules file provides.
type Kind string

const (
	KindClassifier Kind = "classifier"
	KindMasking    Kind = "masking"
	KindPseudonym  Kind = "pseudonym"
)

// PatternRule is one weighted lexical rule.
type PatternRule struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// Bonus is the confidence bonus added per chosen route.
type Bonus struct {
	Simple  float64 `yaml:"simple"`
	Complex float64 `yaml:"complex"`
	Hybrid  float64 `yaml:"hybrid"`
}

// Classifier holds the three intent rule sets and scoring constants.
//
// The count term of a set's score is min(1, matched weight / Saturation).
// With unit weights and Saturation equal to the size of the set this is the
// fraction of rules matched; a smaller Saturation lets a few strong cues
// saturate the term in a large set, and weights rank cues within it.
type Classifier struct {
	Saturation      float64       `yaml:"saturation"`
	CountWeight     float64       `yaml:"count_weight"`
	CoverageWeight  float64       `yaml:"coverage_weight"`
	ConfidenceFloor float64       `yaml:"confidence_floor"`
	Bonus           Bonus         `yaml:"bonus"`
	Simple          []PatternRule `yaml:"simple"`
	Analysis        []PatternRule `yaml:"analysis"`
	Hybrid          []PatternRule `yaml:"hybrid"`
}

// MaskRule is one sensitive-token pattern. Rules apply in order.
type MaskRule struct {
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
}

// FieldRule marks every value under a payload key as an entity.
type FieldRule struct {
	Field    string `yaml:"field"`
	Category string `yaml:"category"`
}

// EntityRule finds entities in free text; Group selects the capture
// (0 for the whole match).
type EntityRule struct {
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
	Group    int    `yaml:"group"`
}

// Pseudonym holds the entity detection tables.
type Pseudonym struct {
	Fields   []FieldRule  `yaml:"fields"`
	Patterns []EntityRule `yaml:"patterns"`
}

// Set is the full collection of rule tables.
type Set struct {
	Classifier Classifier
	Masking    []MaskRule
	Pseudonym  Pseudonym
}

type document struct {
	Kind       Kind        `yaml:"kind"`
	Classifier *Classifier `yaml:"classifier"`
	Masking    []MaskRule  `yaml:"masking"`
	Pseudonym  *Pseudonym  `yaml:"pseudonym"`
}
