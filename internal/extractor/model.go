package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/schema"
)

// ErrMalformedOutput is returned when the model produced no usable arguments.
var ErrMalformedOutput = errors.New("malformed model output")

const extractionSystemPrompt = `You convert questions about audit findings into structured filters.
Call the %s function with only the fields the question clearly constrains.
Use the exact allowed values for enumerated fields. Leave out anything you are unsure of.
Placeholders such as [EMAIL_1] stand for redacted values; never use them as filter values.

%s`

// Model asks the provider to call the filter function and validates the
// arguments it returns. Values failing validation are dropped with a warning.
func (e *Extractor) Model(ctx context.Context, maskedQuery string, cls classifier.Result) (filters.Set, []Warning, *llm.CompletionResponse, error) {
	if e.provider == nil {
		return filters.Set{}, nil, nil, fmt.Errorf("%w: no provider", llm.ErrUnavailable)
	}

	req := llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(extractionSystemPrompt, schema.FunctionName, e.registry.Describe())},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Question (classified as %s): %s", cls.RouteType, maskedQuery)},
		},
		MaxTokens:   512,
		Temperature: 0,
		JSONMode:    true,
		Tools: []llm.Tool{{
			Name:        schema.FunctionName,
			Description: e.registry.FunctionDescription(),
			Parameters:  e.registry.FunctionParameters(),
		}},
		ForceTool: schema.FunctionName,
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return filters.Set{}, nil, nil, err
	}

	args, err := arguments(resp)
	if err != nil {
		return filters.Set{}, nil, resp, err
	}
	set, warnings := e.fromArguments(args)
	return set, warnings, resp, nil
}

// arguments pulls the function arguments out of a response: a matching tool
// call first, then a JSON object in the text content.
func arguments(resp *llm.CompletionResponse) (map[string]json.RawMessage, error) {
	var raw []byte
	for _, tc := range resp.ToolCalls {
		if tc.Name == schema.FunctionName || len(resp.ToolCalls) == 1 {
			raw = tc.Arguments
			break
		}
	}
	if raw == nil {
		raw = jsonObject(resp.Content)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: no function call", ErrMalformedOutput)
	}

	var args map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return args, nil
}

// jsonObject returns the outermost {...} in s, tolerating code fences.
func jsonObject(s string) []byte {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil
	}
	return []byte(s[start : end+1])
}

// rangeArgs is the {eq,min,max} object used for number and date fields.
type rangeArgs struct {
	Eq, Min, Max any
}

func (e *Extractor) fromArguments(args map[string]json.RawMessage) (filters.Set, []Warning) {
	var set filters.Set
	var warnings []Warning
	warn := func(field string, value any, reason string) {
		warnings = append(warnings, Warning{Field: field, Value: display(value), Reason: reason, Source: SourceModel})
	}

	// Walk in registry order so results are deterministic.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sortByRegistry(keys, e.registry)

	for _, key := range keys {
		raw := args[key]
		f, ok := e.registry.Lookup(key)
		if !ok {
			warn(key, raw, "unknown field")
			continue
		}
		var v any
		if err := decodeNumber(raw, &v); err != nil {
			warn(f.Name, raw, "undecodable value")
			continue
		}
		if v == nil {
			continue
		}

		switch f.Type {
		case schema.TypeEnum:
			var items []any
			switch t := v.(type) {
			case []any:
				items = t
			default:
				items = []any{t}
			}
			var values []any
			for _, item := range items {
				canon, err := normalize(f, item)
				if err != nil {
					warn(f.Name, item, err.Error())
					continue
				}
				if !containsValue(values, canon) {
					values = append(values, canon)
				}
			}
			if len(values) > 0 {
				set.Put(filters.In(f.Name, values...))
			}

		case schema.TypeNumber, schema.TypeDate:
			obj, isObj := v.(map[string]any)
			if !isObj {
				n, err := normalize(f, v)
				if err != nil {
					warn(f.Name, v, err.Error())
					continue
				}
				set.Put(filters.Eq(f.Name, n))
				continue
			}
			r := rangeArgs{Eq: obj["eq"], Min: obj["min"], Max: obj["max"]}
			if r.Eq != nil {
				n, err := normalize(f, r.Eq)
				if err != nil {
					warn(f.Name, r.Eq, err.Error())
				} else {
					set.Put(filters.Eq(f.Name, n))
					continue
				}
			}
			var lo, hi any
			if r.Min != nil {
				if n, err := normalize(f, r.Min); err != nil {
					warn(f.Name, r.Min, err.Error())
				} else {
					lo = n
				}
			}
			if r.Max != nil {
				if n, err := normalize(f, r.Max); err != nil {
					warn(f.Name, r.Max, err.Error())
				} else {
					hi = n
				}
			}
			if lo == nil && hi == nil {
				continue
			}
			if w, ok := checkRange(f, lo, hi, SourceModel); !ok {
				warnings = append(warnings, w)
				continue
			}
			set.Put(filters.Range(f.Name, lo, hi))

		default:
			s, err := normalize(f, v)
			if err != nil {
				warn(f.Name, v, err.Error())
				continue
			}
			set.Put(filters.Eq(f.Name, s))
		}
	}
	return set, warnings
}

func decodeNumber(raw json.RawMessage, v *any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func sortByRegistry(keys []string, reg *schema.Registry) {
	rank := func(k string) int {
		if i := reg.Index(k); i >= 0 {
			return i
		}
		return 1 << 30
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
}
