package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// missingSentinels are the textual markers upstream sources use for absent values
var missingSentinels = map[string]struct{}{
	"":     {},
	"nan":  {},
	"nat":  {},
	"<na>": {},
	"na":   {},
	"n/a":  {},
	"null": {},
	"none": {},
}

// IsMissing reports whether v is nil or one of the missing-value sentinels
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		_, ok := missingSentinels[strings.ToLower(strings.TrimSpace(x))]
		return ok
	case float64:
		return math.IsNaN(x) || math.IsInf(x, 0)
	case float32:
		f := float64(x)
		return math.IsNaN(f) || math.IsInf(f, 0)
	case json.Number:
		return IsMissing(x.String())
	}
	return false
}

// Clean returns a copy of raw with every missing value replaced by nil
func Clean(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if IsMissing(v) {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return out
}

// Int64 coerces v into an integer. Integral floats ("3.0") are accepted.
// ok is false for missing values.
func Int64(v any) (n int64, ok bool, err error) {
	if IsMissing(v) {
		return 0, false, nil
	}

	switch x := v.(type) {
	case int:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	case float64:
		return floatToInt(x)
	case float32:
		return floatToInt(float64(x))
	case json.Number:
		return Int64(x.String())
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not an integer: %q", x)
		}
		return floatToInt(f)
	}

	return 0, false, fmt.Errorf("unsupported integer type %T", v)
}

// Float64 coerces v into a float. ok is false for missing values.
func Float64(v any) (f float64, ok bool, err error) {
	if IsMissing(v) {
		return 0, false, nil
	}

	switch x := v.(type) {
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case json.Number:
		return Float64(x.String())
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false, fmt.Errorf("not a number: %q", x)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, nil
		}
		return f, true, nil
	}

	return 0, false, fmt.Errorf("unsupported numeric type %T", v)
}

// String renders v as a trimmed string. ok is false for missing values.
func String(v any) (string, bool) {
	if IsMissing(v) {
		return "", false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s), true
	}
	return fmt.Sprint(v), true
}

func floatToInt(f float64) (int64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, nil
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), true, nil
}
