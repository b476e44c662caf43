package compliance

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"vesselcheck/internal/domain"
)

// NormalizeValue converts a Go value into its JSON-decoded form (float64, string, bool,
// []any, map[string]any) so values compare the same before and after persistence.
func NormalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string, bool, float64:
		return t, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HasValue reports whether an item value counts as answered.
func HasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// CheckValue enforces that value matches the item's declared type. A nil value clears the item.
func CheckValue(item domain.ChecklistItem, value any) error {
	if value == nil {
		return nil
	}
	fail := func(format string, args ...any) error {
		return &ValueError{ItemID: item.ID, Type: item.Type, Reason: fmt.Sprintf(format, args...)}
	}
	switch item.Type {
	case domain.ItemBoolean:
		if _, ok := value.(bool); !ok {
			return fail("expected boolean, got %T", value)
		}
	case domain.ItemText, domain.ItemSignature:
		if _, ok := value.(string); !ok {
			return fail("expected string, got %T", value)
		}
	case domain.ItemNumber, domain.ItemMeasurement:
		f, ok := toFloat(value)
		if !ok {
			return fail("expected number, got %T", value)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fail("number must be finite")
		}
	case domain.ItemSelect:
		s, ok := value.(string)
		if !ok {
			return fail("expected option string, got %T", value)
		}
		if len(item.Options) > 0 && !slices.Contains(item.Options, s) {
			return fail("option %q not allowed", s)
		}
	case domain.ItemMultiSelect:
		list, ok := stringList(value)
		if !ok {
			return fail("expected list of options, got %T", value)
		}
		if len(item.Options) > 0 {
			for _, s := range list {
				if !slices.Contains(item.Options, s) {
					return fail("option %q not allowed", s)
				}
			}
		}
	case domain.ItemFile, domain.ItemPhoto:
		if _, ok := value.(string); ok {
			return nil
		}
		if _, ok := stringList(value); !ok {
			return fail("expected reference or list of references, got %T", value)
		}
	default:
		return fail("unknown item type")
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// coerceString renders a value the way a form field would display it.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = coerceString(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func valuesEqual(a, b any) bool {
	na, errA := NormalizeValue(a)
	nb, errB := NormalizeValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}
