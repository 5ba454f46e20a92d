package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The backend is semi-trusted: any field may be missing, null, or carry a
// different JSON type than documented. The scalar types below never fail to
// unmarshal, so a single odd field cannot drop the whole record.

var jsonNull = []byte("null")

// Text is an optional string. Numbers and booleans are kept in their literal form.
type Text struct {
	Value string
	Valid bool
}

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*t = Text{Value: s, Valid: true}
		}
	case 't', 'f':
		*t = Text{Value: string(data), Valid: true}
	case '{', '[':
		// objects and arrays have no text form
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			*t = Text{Value: n.String(), Valid: true}
		}
	}
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return jsonNull, nil
	}
	return json.Marshal(t.Value)
}

// Present reports whether the value is set and not blank.
func (t Text) Present() bool {
	return t.Valid && strings.TrimSpace(t.Value) != ""
}

// Or returns the value, or def when the value is absent or empty.
func (t Text) Or(def string) string {
	if !t.Valid || t.Value == "" {
		return def
	}
	return t.Value
}

// Number is an optional float. Numeric strings are accepted.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	v, ok := parseNumber(data)
	if ok {
		*n = Number{Value: v, Valid: true}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return jsonNull, nil
	}
	return []byte(FormatNumber(n.Value)), nil
}

// Count is an optional integer counter. Fractions are truncated and values
// beyond the int64 range saturate.
type Count struct {
	Value int64
	Valid bool
}

func (c *Count) UnmarshalJSON(data []byte) error {
	*c = Count{}
	v, ok := parseNumber(data)
	if ok {
		*c = Count{Value: saturateInt64(v), Valid: true}
	}
	return nil
}

func saturateInt64(v float64) int64 {
	switch {
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.FormatInt(c.Value, 10)), nil
}

// NonNegative returns the value clamped at zero, or zero when absent.
func (c Count) NonNegative() int64 {
	if !c.Valid || c.Value < 0 {
		return 0
	}
	return c.Value
}

// Flag is a strict boolean decoded from a loosely typed field.
// Absent, null, false, 0, "", "0" and "false" all decode to false.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = false
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}
	switch data[0] {
	case 't':
		*f = Flag(bytes.Equal(data, []byte("true")))
	case 'f':
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "", "0", "false", "no", "off":
			default:
				*f = true
			}
		}
	case '{', '[':
		*f = true
	default:
		if v, ok := parseNumber(data); ok {
			*f = v != 0
		}
	}
	return nil
}

func parseNumber(data []byte) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return 0, false
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false
		}
		raw = strings.TrimSpace(s)
	}
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatNumber renders a float without trailing zeros: 3 -> "3", 2.5 -> "2.5".
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
