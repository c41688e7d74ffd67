package transform

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// optionalString returns strings as-is and renders numbers by their literal;
// anything else (including null) is nil.
func optionalString(v any) *string {
	switch t := v.(type) {
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	}
	return nil
}

// optionalInt reads integral numbers, including numeric strings such as
// the "10" of a citation hierarchy.
func optionalInt(v any) (*int64, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return &i, true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
			i := int64(f)
			return &i, true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return &i, true
		}
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			i := int64(t)
			return &i, true
		}
	case int:
		i := int64(t)
		return &i, true
	case int64:
		return &t, true
	}
	return nil, false
}
