package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "finding", r.Entity())
	names := make([]string, 0)
	for _, f := range r.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"year", "severity", "status", "category", "department",
		"location", "owner", "reported_at", "financial_impact",
	}, names)
}

func TestLookupByAlias(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	f, ok := r.Lookup("Risk Rating")
	require.True(t, ok)
	assert.Equal(t, "severity", f.Name)

	f, ok = r.Lookup("financial-impact")
	require.True(t, ok)
	assert.Equal(t, "financial_impact", f.Name)

	_, ok = r.Lookup("colour")
	assert.False(t, ok)
	assert.Equal(t, -1, r.Index("colour"))
	assert.Equal(t, 1, r.Index("severity"))
}

func TestCanonical(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	sev, _ := r.Lookup("severity")
	status, _ := r.Lookup("status")

	tests := []struct {
		field Field
		in    string
		want  string
		ok    bool
	}{
		{sev, "critical", "Critical", true},
		{sev, " HIGH ", "High", true},
		{sev, "major", "High", true},
		{sev, "Extreme", "", false},
		{status, "in progress", "In Progress", true},
		{status, "remediated", "Resolved", true},
	}
	for _, tt := range tests {
		got, ok := tt.field.Canonical(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInBounds(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	year, _ := r.Lookup("year")

	assert.True(t, year.InBounds(2024))
	assert.False(t, year.InBounds(1800))
	assert.False(t, year.InBounds(2024.5))
}

func TestParseRejectsBadCatalogues(t *testing.T) {
	tests := map[string]string{
		"no fields":       "entity: x\nfields: []\n",
		"enum no values":  "fields:\n  - name: a\n    type: enum\n",
		"unknown type":    "fields:\n  - name: a\n    type: blob\n",
		"bad synonym":     "fields:\n  - name: a\n    type: enum\n    allowed_values: [X]\n    value_synonyms: {y: Z}\n",
		"bad regex":       "fields:\n  - name: a\n    type: string\n    patterns:\n      - regex: '('\n",
		"missing capture": "fields:\n  - name: a\n    type: string\n    patterns:\n      - regex: 'abc'\n",
		"alias clash":     "fields:\n  - name: a\n    type: string\n  - name: b\n    type: string\n    aliases: [a]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseAliasEqualToName(t *testing.T) {
	doc := "fields:\n  - name: year\n    type: number\n    aliases: [Year, fiscal year]\n  - name: owner\n    type: string\n    aliases: [owner]\n"
	r, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, r.Fields(), 2)

	f, ok := r.Lookup("Year")
	require.True(t, ok)
	assert.Equal(t, "year", f.Name)
	assert.Equal(t, 0, r.Index("fiscal year"))
	assert.Equal(t, 1, r.Index("owner"))
}

func TestFunctionParameters(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	params := r.FunctionParameters()
	assert.Equal(t, "object", params["type"])

	props := params["properties"].(map[string]any)
	sev := props["severity"].(map[string]any)
	assert.Equal(t, "array", sev["type"])
	items := sev["items"].(map[string]any)
	assert.Equal(t, []string{"Critical", "High", "Medium", "Low", "Informational"}, items["enum"])

	owner := props["owner"].(map[string]any)
	assert.Equal(t, "string", owner["type"])
	assert.Contains(t, owner["description"], "assignee")

	assert.Contains(t, r.Describe(), "severity (enum): Critical, High")
}
