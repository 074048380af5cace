// Package masking swaps generic sensitive tokens (emails, phone numbers,
// identifier codes) for request-local placeholders before any text leaves
// the process, and restores them afterwards.
package masking

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ziadkadry99/auditq/internal/rules"
)

// Category is the kind of token a rule detects.
type Category string

const (
	Email      Category = "email"
	Phone      Category = "phone"
	Identifier Category = "identifier"
)

// Token records one placeholder and the value it stands for.
type Token struct {
	Placeholder string   `json:"placeholder"`
	Category    Category `json:"category"`
	Original    string   `json:"-"`
}

// TokenSet is the per-request collection of tokens. It is never persisted.
type TokenSet struct {
	tokens []Token
}

// Tokens returns the tokens in allocation order.
func (s TokenSet) Tokens() []Token {
	out := make([]Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// Len returns the number of tokens.
func (s TokenSet) Len() int { return len(s.tokens) }

type rule struct {
	category Category
	re       *regexp.Regexp
}

// Masker applies the ordered category rules. It is safe for concurrent use.
type Masker struct {
	rules []rule
}

// New compiles the masking table.
func New(table []rules.MaskRule) (*Masker, error) {
	m := &Masker{}
	for _, r := range table {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("masking rule %s: %w", r.Category, err)
		}
		m.rules = append(m.rules, rule{category: Category(r.Category), re: re})
	}
	return m, nil
}

// Mask replaces every match with a placeholder such as [EMAIL_1]. Repeats
// of the same value within one call share a placeholder. Earlier rules win
// over later ones, so a value claimed as an email is never re-read as an
// identifier.
func (m *Masker) Mask(text string) (string, TokenSet) {
	var set TokenSet
	counters := make(map[Category]int)
	seen := make(map[string]string)

	masked := text
	for _, r := range m.rules {
		masked = r.re.ReplaceAllStringFunc(masked, func(match string) string {
			if isPlaceholder(match) {
				return match
			}
			key := string(r.category) + "\x00" + match
			if ph, ok := seen[key]; ok {
				return ph
			}
			counters[r.category]++
			ph := fmt.Sprintf("[%s_%d]", strings.ToUpper(string(r.category)), counters[r.category])
			seen[key] = ph
			set.tokens = append(set.tokens, Token{Placeholder: ph, Category: r.category, Original: match})
			return ph
		})
	}
	return masked, set
}

// Unmask substitutes every placeholder in text with its original value.
func (m *Masker) Unmask(text string, set TokenSet) string {
	return Unmask(text, set)
}

// Unmask substitutes every placeholder in text with its original value.
// Longer placeholders are matched first so [EMAIL_10] never resolves as
// [EMAIL_1] followed by "0]".
func Unmask(text string, set TokenSet) string {
	if len(set.tokens) == 0 || text == "" {
		return text
	}
	tokens := set.Tokens()
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i].Placeholder) > len(tokens[j].Placeholder)
	})
	pairs := make([]string, 0, len(tokens)*2)
	for _, t := range tokens {
		pairs = append(pairs, t.Placeholder, t.Original)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

var placeholderRE = regexp.MustCompile(`^\[[A-Z]+_\d+\]$`)

func isPlaceholder(s string) bool {
	return placeholderRE.MatchString(s)
}
