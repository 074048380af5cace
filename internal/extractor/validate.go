package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ziadkadry99/auditq/internal/schema"
)

// normalize validates a raw candidate against its field and returns the
// canonical value: the allowed spelling for enums, int or float64 for
// numbers, a YYYY-MM-DD string for dates and a trimmed string otherwise.
func normalize(f schema.Field, raw any) (any, error) {
	switch f.Type {
	case schema.TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("not a string")
		}
		canon, ok := f.Canonical(s)
		if !ok {
			return nil, errors.New("not an allowed value")
		}
		return canon, nil

	case schema.TypeNumber:
		n, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if f.Integer && n != math.Trunc(n) {
			return nil, errors.New("not a whole number")
		}
		if !f.InBounds(n) {
			return nil, errors.New("out of bounds")
		}
		if f.Integer {
			return int(n), nil
		}
		return n, nil

	case schema.TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("not a date string")
		}
		s = strings.TrimSpace(s)
		if _, err := time.Parse(schema.DateLayout, s); err != nil {
			return nil, errors.New("not a YYYY-MM-DD date")
		}
		return s, nil

	default:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("not a string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, errors.New("empty value")
		}
		return s, nil
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(v), "$"), ",", ""), 64)
		if err != nil {
			return 0, errors.New("not a number")
		}
		return n, nil
	default:
		return 0, fmt.Errorf("not a number (%T)", raw)
	}
}

// checkRange rejects ranges whose bounds are inverted or both open.
func checkRange(f schema.Field, min, max any, src Source) (Warning, bool) {
	if min == nil && max == nil {
		return Warning{Field: f.Name, Reason: "empty range", Source: src}, false
	}
	if min == nil || max == nil {
		return Warning{}, true
	}
	if less(max, min) {
		return Warning{Field: f.Name, Value: fmt.Sprintf("%v..%v", min, max), Reason: "range minimum exceeds maximum", Source: src}, false
	}
	return Warning{}, true
}

func less(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return av < bv
	default:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		return af < bf
	}
}

func display(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
