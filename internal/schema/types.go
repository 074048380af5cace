package schema

import "regexp"

// FieldType is the value domain of a field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeEnum   FieldType = "enum"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// PatternOp says how a captured value populates a filter.
type PatternOp string

const (
	OpEq    PatternOp = "eq"
	OpMin   PatternOp = "min"
	OpMax   PatternOp = "max"
	OpRange PatternOp = "range"
)

// DateLayout is the canonical date format for date fields.
const DateLayout = "2006-01-02"

// Pattern is a capture rule that pulls a field value out of free text.
type Pattern struct {
	Regex         string    `yaml:"regex"`
	Op            PatternOp `yaml:"op"`
	CaseSensitive bool      `yaml:"case_sensitive"`

	re *regexp.Regexp
}

// Compiled returns the compiled expression.
func (p Pattern) Compiled() *regexp.Regexp { return p.re }

// Field describes one filterable attribute of a finding.
type Field struct {
	Name          string            `yaml:"name" json:"name"`
	Type          FieldType         `yaml:"type" json:"type"`
	Column        string            `yaml:"column" json:"-"`
	Description   string            `yaml:"description" json:"description,omitempty"`
	Aliases       []string          `yaml:"aliases" json:"aliases,omitempty"`
	AllowedValues []string          `yaml:"allowed_values" json:"allowed_values,omitempty"`
	ValueSynonyms map[string]string `yaml:"value_synonyms" json:"value_synonyms,omitempty"`
	Min           *float64          `yaml:"min" json:"min,omitempty"`
	Max           *float64          `yaml:"max" json:"max,omitempty"`
	Integer       bool              `yaml:"integer" json:"integer,omitempty"`
	Patterns      []Pattern         `yaml:"patterns" json:"-"`
}

// Catalogue is the on-disk form of a registry.
type Catalogue struct {
	Entity string  `yaml:"entity"`
	Fields []Field `yaml:"fields"`
}
