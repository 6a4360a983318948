package util

import (
	"strconv"
	"strings"
	"time"
)

// TrimToNil trims the input and returns nil for an empty result.
func TrimToNil(v string) *string {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil
	}
	return &s
}

// TrimPtr trims a nullable string, collapsing blank values to nil.
func TrimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	return TrimToNil(*v)
}

// ParseFloatToken parses a numeric token that may use a decimal comma.
func ParseFloatToken(token string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(token, ",", "."))
	if s == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

// ToFloat coerces a decoded JSON value to a float.
func ToFloat(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return nil
	case float64:
		f := t
		return &f
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case string:
		return ParseFloatToken(t)
	default:
		return nil
	}
}

// ToInt coerces a decoded JSON value to an int. Non-integral floats
// are rejected.
func ToInt(v any) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return nil
	case int:
		i := t
		return &i
	case int64:
		i := int(t)
		return &i
	case float64:
		if t != float64(int(t)) {
			return nil
		}
		i := int(t)
		return &i
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

// MaxTime returns the later of two instants.
func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
