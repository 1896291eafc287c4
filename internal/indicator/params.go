package indicator

import "fmt"

// ValidateAndFill checks params against schema, filling in defaults for
// anything missing and rejecting required-but-absent or out-of-range
// values. Returns a new map; the input is not mutated.
func ValidateAndFill(schema []Parameter, params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(schema))
	for _, p := range schema {
		v, present := params[p.Name]
		if !present {
			if p.Required && p.Default == nil {
				return nil, fmt.Errorf("indicator: missing required parameter %q", p.Name)
			}
			v = p.Default
		}
		if err := checkRange(p, v); err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

func checkRange(p Parameter, v any) error {
	if p.Min == nil && p.Max == nil {
		return nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil // non-numeric types (string/bool) have no range to check
	}
	if p.Min != nil && f < *p.Min {
		return fmt.Errorf("indicator: parameter %q = %v below minimum %v", p.Name, v, *p.Min)
	}
	if p.Max != nil && f > *p.Max {
		return fmt.Errorf("indicator: parameter %q = %v above maximum %v", p.Name, v, *p.Max)
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// IntParam reads an integer-typed parameter, tolerant of int/int64/float64
// (JSON round-trips numbers as float64).
func IntParam(params map[string]any, name string, fallback int) int {
	v, ok := params[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// StringParam reads a string-typed parameter.
func StringParam(params map[string]any, name, fallback string) string {
	v, ok := params[name]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// BoolParam reads a boolean-typed parameter.
func BoolParam(params map[string]any, name string, fallback bool) bool {
	v, ok := params[name]
	if !ok {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}
