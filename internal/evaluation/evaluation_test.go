package evaluation

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/masking"
	"github.com/ziadkadry99/auditq/internal/rules"
	"github.com/ziadkadry99/auditq/internal/schema"
)

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	set, err := rules.Default()
	require.NoError(t, err)
	reg, err := schema.Default()
	require.NoError(t, err)

	m, err := masking.New(set.Masking)
	require.NoError(t, err)
	c, err := classifier.New(set.Classifier)
	require.NoError(t, err)
	e, err := extractor.New(reg, nil, nil)
	require.NoError(t, err)
	return NewRunner(m, c, e, opts)
}

func TestLoadCases(t *testing.T) {
	cases, err := LoadCases(filepath.Join("testdata", "cases.yaml"))
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "critical-2024", cases[0].Name)
	assert.Equal(t, classifier.Simple, cases[0].Route)
	assert.Nil(t, cases[1].Filters)
}

func TestParseCasesRejects(t *testing.T) {
	tests := map[string]string{
		"empty":         "cases: []\n",
		"no query":      "cases:\n  - route: simple\n",
		"unknown route": "cases:\n  - query: hi\n    route: sideways\n",
		"bad yaml":      "cases: [\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCases([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestParseCasesNamesUnnamed(t *testing.T) {
	cases, err := ParseCases([]byte("cases:\n  - query: open findings\n    route: simple\n"))
	require.NoError(t, err)
	assert.Equal(t, "case-1", cases[0].Name)
}

func TestRunAllPass(t *testing.T) {
	cases, err := LoadCases(filepath.Join("testdata", "cases.yaml"))
	require.NoError(t, err)

	rep, err := newRunner(t, Options{}).Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 3, rep.Passed)
	assert.InDelta(t, 1.0, rep.RouteAccuracy(), 1e-9)
}

func TestRunReportsFailures(t *testing.T) {
	cases := []Case{
		{Name: "wrong-route", Query: "What are the main patterns in our findings and what should we prioritize?", Route: classifier.Simple},
		{Name: "wrong-filters", Query: "Show me all critical findings from 2024", Route: classifier.Simple,
			Filters: map[string]any{"year": 2023}},
	}

	rep, err := newRunner(t, Options{}).Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Passed)
	assert.Equal(t, 1, rep.RouteCorrect)
	assert.InDelta(t, 0.5, rep.RouteAccuracy(), 1e-9)
	assert.False(t, rep.Results[0].RouteOK)
	assert.True(t, rep.Results[1].RouteOK)
	assert.False(t, rep.Results[1].FiltersOK)
	assert.NotEmpty(t, rep.Results[1].FilterDiff)

	var buf bytes.Buffer
	rep.Write(&buf)
	out := buf.String()
	assert.Contains(t, out, "FAIL  wrong-route  route=complex (want simple")
	assert.Contains(t, out, "filters (-want +got)")
	assert.Contains(t, out, "0/2 passed, route accuracy 50.0%")
}

func TestRunMasksBeforeClassifying(t *testing.T) {
	cases := []Case{{Name: "email", Query: "critical findings for jo@example.com", Route: classifier.Simple}}

	rep, err := newRunner(t, Options{WithModel: true}).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, "critical findings for [EMAIL_1]", rep.Results[0].Masked)
}

func TestRunHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newRunner(t, Options{}).Run(ctx, []Case{{Name: "x", Query: "open findings", Route: classifier.Simple}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rep.Total)
}
