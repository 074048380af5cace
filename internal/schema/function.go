package schema

import (
	"fmt"
	"sort"
	"strings"
)

// FunctionName is the callable the model is asked to invoke with filters.
const FunctionName = "apply_finding_filters"

// FunctionParameters renders the registry as a JSON Schema object suitable
// for a function-calling request. Enum fields become string arrays, number
// and date fields accept either a single value or a {min,max} range.
func (r *Registry) FunctionParameters() map[string]any {
	props := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		props[f.Name] = fieldSchema(f)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// FunctionDescription explains the callable, listing aliases so the model
// can map user vocabulary onto field names.
func (r *Registry) FunctionDescription() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record the filters the user's question implies over %s records. ", r.entity)
	b.WriteString("Only include fields the question clearly constrains.")
	return b.String()
}

func fieldSchema(f Field) map[string]any {
	desc := f.Description
	if len(f.Aliases) > 0 {
		desc = strings.TrimSpace(desc + " Also called: " + strings.Join(f.Aliases, ", ") + ".")
	}

	switch f.Type {
	case TypeEnum:
		return map[string]any{
			"type":        "array",
			"description": desc,
			"items": map[string]any{
				"type": "string",
				"enum": append([]string(nil), f.AllowedValues...),
			},
		}
	case TypeNumber:
		return map[string]any{
			"type":        "object",
			"description": desc + " Use eq for an exact value or min/max for a range.",
			"properties": map[string]any{
				"eq":  map[string]any{"type": "number"},
				"min": map[string]any{"type": "number"},
				"max": map[string]any{"type": "number"},
			},
		}
	case TypeDate:
		return map[string]any{
			"type":        "object",
			"description": desc + " Dates use YYYY-MM-DD.",
			"properties": map[string]any{
				"eq":  map[string]any{"type": "string"},
				"min": map[string]any{"type": "string"},
				"max": map[string]any{"type": "string"},
			},
		}
	default:
		return map[string]any{
			"type":        "string",
			"description": desc,
		}
	}
}

// Describe renders a compact human-readable summary of the registry.
func (r *Registry) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fields for %s records:\n", r.entity)
	for _, f := range r.fields {
		fmt.Fprintf(&b, "- %s (%s)", f.Name, f.Type)
		if len(f.AllowedValues) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(f.AllowedValues, ", "))
		}
		if len(f.Aliases) > 0 {
			aliases := append([]string(nil), f.Aliases...)
			sort.Strings(aliases)
			fmt.Fprintf(&b, " [aliases: %s]", strings.Join(aliases, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
