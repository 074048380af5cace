package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	r := New()

	out, err := r.HTML("Top risks:\n\n- **Access Control** (2)\n- Vendor Management\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<li><strong>Access Control</strong> (2)</li>")
	assert.Contains(t, out, "<ul>")
}

func TestHTMLTable(t *testing.T) {
	out, err := New().HTML("| severity | count |\n|---|---|\n| Critical | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>Critical</td>")
}

func TestHTMLEscapesRawHTML(t *testing.T) {
	out, err := New().HTML("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

func TestHTMLEmpty(t *testing.T) {
	out, err := New().HTML("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
