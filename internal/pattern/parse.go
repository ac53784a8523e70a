package pattern

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// rawDescriptor is the wire shape of an inline descriptor. Fields stay raw
// so each value can be validated on its own and reported precisely.
type rawDescriptor struct {
	Repeat json.RawMessage   `json:"repeat"`
	Scheme []json.RawMessage `json:"scheme"`
}

// ParseDescriptor decodes an inline {"repeat": n, "scheme": [...]} object.
//
// repeat accepts an integer, a numeric string, or "inf"/"infinite"/"forever".
// A missing repeat means one pass. scheme values accept numbers or numeric
// strings; fractional milliseconds are truncated toward zero.
func ParseDescriptor(raw json.RawMessage) (Descriptor, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Descriptor{}, &PatternSyntaxError{Field: "descriptor", Value: string(raw), Reason: "expected an object"}
	}

	var rd rawDescriptor
	if err := json.Unmarshal(raw, &rd); err != nil {
		return Descriptor{}, &PatternSyntaxError{Field: "descriptor", Value: string(raw), Reason: err.Error()}
	}

	d := Descriptor{Repeat: 1}
	if len(rd.Repeat) > 0 && string(rd.Repeat) != "null" {
		n, err := parseRepeat(rd.Repeat)
		if err != nil {
			return Descriptor{}, err
		}
		d.Repeat = n
	}

	if rd.Scheme == nil {
		return Descriptor{}, &PatternSyntaxError{Field: "scheme", Reason: "missing"}
	}
	d.Scheme = make([]int, 0, len(rd.Scheme))
	for i, v := range rd.Scheme {
		f, ok := parseNumber(v)
		if !ok {
			return Descriptor{}, &PatternSyntaxError{
				Field:  "scheme[" + strconv.Itoa(i) + "]",
				Value:  string(v),
				Reason: "not a number",
			}
		}
		if math.Abs(f) > math.MaxInt32 {
			return Descriptor{}, &PatternSyntaxError{
				Field:  "scheme[" + strconv.Itoa(i) + "]",
				Value:  string(v),
				Reason: "out of range",
			}
		}
		d.Scheme = append(d.Scheme, int(f))
	}
	return d, nil
}

func parseRepeat(raw json.RawMessage) (int, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "inf", "infinite", "forever":
			return Infinite, nil
		}
	}
	f, ok := parseNumber(raw)
	if !ok {
		return 0, &PatternSyntaxError{Field: "repeat", Value: string(raw), Reason: "not a number"}
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, &PatternSyntaxError{Field: "repeat", Value: string(raw), Reason: "not an integer"}
	}
	if f < 0 {
		return Infinite, nil
	}
	return int(f), nil
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(raw json.RawMessage) (float64, bool) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
