package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/auditq/internal/rules"
)

func newTestMasker(t *testing.T) *Masker {
	t.Helper()
	set, err := rules.Default()
	require.NoError(t, err)
	m, err := New(set.Masking)
	require.NoError(t, err)
	return m
}

func TestMaskEmailAndPhone(t *testing.T) {
	m := newTestMasker(t)
	text := "contact john@x.com or 555-123-4567"

	masked, set := m.Mask(text)
	assert.Equal(t, "contact [EMAIL_1] or [PHONE_1]", masked)

	tokens := set.Tokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, Email, tokens[0].Category)
	assert.Equal(t, "john@x.com", tokens[0].Original)
	assert.Equal(t, Phone, tokens[1].Category)
	assert.Equal(t, "555-123-4567", tokens[1].Original)

	assert.Equal(t, text, m.Unmask(masked, set))
}

func TestMaskIdentifierAndRepeats(t *testing.T) {
	m := newTestMasker(t)
	text := "Is AUD-2024-017 related to AUD-2024-017 or FIN-330? Ask a.b@corp.example.org"

	masked, set := m.Mask(text)
	assert.Equal(t, "Is [IDENTIFIER_1] related to [IDENTIFIER_1] or [IDENTIFIER_2]? Ask [EMAIL_1]", masked)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, text, Unmask(masked, set))
}

func TestMaskLeavesYearsAndDatesAlone(t *testing.T) {
	m := newTestMasker(t)
	for _, text := range []string{
		"Show me all critical findings from 2024",
		"findings reported since 2024-01-15",
	} {
		masked, set := m.Mask(text)
		assert.Equal(t, text, masked)
		assert.Zero(t, set.Len())
	}
}

func TestUnmaskManyPlaceholders(t *testing.T) {
	m := newTestMasker(t)
	text := ""
	for i := 0; i < 12; i++ {
		text += string(rune('a'+i)) + "@mail.example.com "
	}
	masked, set := m.Mask(text)
	require.Equal(t, 12, set.Len())
	assert.Contains(t, masked, "[EMAIL_10]")
	assert.Equal(t, text, Unmask(masked, set))
}

func TestRoundTripProperty(t *testing.T) {
	m := newTestMasker(t)
	inputs := []string{
		"",
		"no sensitive data here",
		"call (555) 987-6543 about CTL-88",
		"+1 555-000-1111, jane.doe@example.co.uk, OPS-1234-5",
		"ünïcödé text with bob@example.com inside",
	}
	for _, in := range inputs {
		masked, set := m.Mask(in)
		assert.Equal(t, in, m.Unmask(masked, set), in)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New([]rules.MaskRule{{Category: "email", Pattern: "("}})
	assert.Error(t, err)
}
