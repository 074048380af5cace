package findings

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatListing renders records as a plain numbered list. total is the
// number of matching findings, which may exceed len(records) when the
// listing was truncated.
func FormatListing(records []Finding, total int) string {
	if len(records) == 0 {
		return "No findings matched the query."
	}
	if total < len(records) {
		total = len(records)
	}

	var b strings.Builder
	noun := "findings"
	if total == 1 {
		noun = "finding"
	}
	if total > len(records) {
		fmt.Fprintf(&b, "%d %s matched (showing %d):\n", total, noun, len(records))
	} else {
		fmt.Fprintf(&b, "%d %s matched:\n", total, noun)
	}

	for i, f := range records {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, f.ID, f.Title)
		parts := []string{f.Severity, f.Status, strconv.Itoa(f.Year)}
		if f.Category != "" {
			parts = append(parts, f.Category)
		}
		if f.Department != "" {
			parts = append(parts, f.Department)
		}
		if f.Location != "" {
			parts = append(parts, f.Location)
		}
		fmt.Fprintf(&b, " | %s", strings.Join(parts, " | "))
		if f.Owner != "" {
			fmt.Fprintf(&b, " | owner: %s", f.Owner)
		}
		if f.FinancialImpact > 0 {
			fmt.Fprintf(&b, " | impact: %s", formatAmount(f.FinancialImpact))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatAmount renders a dollar amount with thousands separators.
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if frac != "00" {
		return "$" + b.String() + "." + frac
	}
	return "$" + b.String()
}
