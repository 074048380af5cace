package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/auditq/internal/rules"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	set, err := rules.Default()
	require.NoError(t, err)
	c, err := New(set.Classifier)
	require.NoError(t, err)
	return c
}

func TestScenarioRoutes(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		query      string
		route      RouteType
		branch     Branch
		confidence float64
	}{
		{"Show me all critical findings from 2024", Simple, BranchSimple, 0.775},
		{"What are the main patterns in our findings and what should we prioritize?", Complex, BranchAnalysis, 0.77},
		{"List all open findings and explain the trends you see", Hybrid, BranchHybridScore, 0.72},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := c.Classify(tt.query)
			assert.Equal(t, tt.route, res.RouteType)
			assert.Equal(t, tt.branch, res.Branch)
			assert.InDelta(t, tt.confidence, res.Confidence, 0.02)
			assert.False(t, res.Ambiguous)
		})
	}
}

func TestScoresForSimpleQuery(t *testing.T) {
	c := newTestClassifier(t)
	res := c.Classify("Show me all critical findings from 2024")

	assert.InDelta(t, 0.675, res.Scores.Simple, 0.01)
	assert.Zero(t, res.Scores.Complex)
	assert.Zero(t, res.Scores.Hybrid)
	assert.Contains(t, res.Matched, "simple:severity_word")
}

func TestNoCuesDefaultsToComplex(t *testing.T) {
	c := newTestClassifier(t)
	res := c.Classify("hello there")

	assert.Equal(t, Complex, res.RouteType)
	assert.Equal(t, BranchDefault, res.Branch)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestLowConfidenceForcesComplex(t *testing.T) {
	c := newTestClassifier(t)
	// A single weak lookup cue scores well under the floor.
	res := c.Classify("anything about the year 2021 that is notable for the board of directors")

	assert.Equal(t, Complex, res.RouteType)
	assert.Equal(t, BranchLowConfidence, res.Branch)
	assert.True(t, res.Ambiguous)
	assert.Greater(t, res.Scores.Simple, 0.0)
}

func TestMixedCuesBranch(t *testing.T) {
	set, err := rules.Default()
	require.NoError(t, err)
	set.Classifier.Hybrid = []rules.PatternRule{{Name: "never", Pattern: `\bzzzz\b`}}
	c, err := New(set.Classifier)
	require.NoError(t, err)

	res := c.Classify("List all open findings and explain the trends you see")
	assert.Equal(t, Hybrid, res.RouteType)
	assert.Equal(t, BranchMixedCues, res.Branch)
	assert.InDelta(t, (res.Scores.Simple+res.Scores.Complex)/2+0.15, res.Confidence, 1e-9)
}

func TestConfidenceBoundsAndDeterminism(t *testing.T) {
	c := newTestClassifier(t)
	queries := []string{
		"",
		"   ",
		"why why why why why why",
		"show list display get find give all critical high open closed 2024 from 2024 how many findings in",
		"compare trends and explain the root cause summary overview should we prioritize",
		"[EMAIL_1] asked about [IDENTIFIER_1]",
	}
	for _, q := range queries {
		first := c.Classify(q)
		assert.GreaterOrEqual(t, first.Confidence, 0.0, q)
		assert.LessOrEqual(t, first.Confidence, 1.0, q)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, c.Classify(q), q)
		}
	}
}

func TestNewRejectsBadRules(t *testing.T) {
	set, err := rules.Default()
	require.NoError(t, err)

	bad := set.Classifier
	bad.Analysis = []rules.PatternRule{{Name: "broken", Pattern: "("}}
	_, err = New(bad)
	assert.Error(t, err)

	bad = set.Classifier
	bad.Saturation = 0
	_, err = New(bad)
	assert.Error(t, err)
}

func TestCountTermIsFractionOfRulesWhenSaturationEqualsSetSize(t *testing.T) {
	cfg := rules.Classifier{
		Saturation:  4,
		CountWeight: 1,
		Simple: []rules.PatternRule{
			{Name: "show", Pattern: `\bshow\b`},
			{Name: "list", Pattern: `\blist\b`},
			{Name: "open", Pattern: `\bopen\b`},
			{Name: "closed", Pattern: `\bclosed\b`},
		},
	}
	c, err := New(cfg)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, c.Classify("show findings").Scores.Simple, 1e-9)
	assert.InDelta(t, 0.5, c.Classify("show open findings").Scores.Simple, 1e-9)

	cfg.Saturation = 2
	c, err = New(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.Classify("show open findings").Scores.Simple, 1e-9)
}
