package domain

import (
	"sort"
	"strconv"
	"strings"
)

// ValueKind identifies the coerced type of a header value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindList
)

// Value is one typed header parameter.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
	List  []float64
}

// ParseValue coerces raw text to int, then float, then falls back to string.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{Kind: KindInt, Int: i}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Kind: KindFloat, Float: f}
	}
	return Value{Kind: KindString, Str: s}
}

// ParseList splits s on sep and coerces every non-empty element to a number.
func ParseList(s, sep string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v := ParseValue(part)
		switch v.Kind {
		case KindInt:
			out = append(out, float64(v.Int))
		case KindFloat:
			out = append(out, v.Float)
		default:
			return nil, &HeaderFormatError{Reason: "non-numeric list element " + strconv.Quote(part)}
		}
	}
	return out, nil
}

// Number returns the numeric value and whether the value is numeric.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

// String reserializes the value so that ParseValue (or ParseList with a
// space separator for lists) yields the same typed value.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case KindList:
		parts := make([]string, len(v.List))
		for i, f := range v.List {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, " ")
	}
	return v.Str
}

// RawHeader maps parameter names to typed values. It is not modified after parsing.
type RawHeader map[string]Value

// Keys returns the parameter names in sorted order.
func (h RawHeader) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float looks up a numeric parameter.
func (h RawHeader) Float(name string) (float64, bool) {
	v, ok := h[name]
	if !ok {
		return 0, false
	}
	return v.Number()
}

// String looks up a parameter as text, whatever its kind.
func (h RawHeader) String(name string) (string, bool) {
	v, ok := h[name]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// List looks up a multi-valued parameter.
func (h RawHeader) List(name string) ([]float64, bool) {
	v, ok := h[name]
	if !ok || v.Kind != KindList {
		return nil, false
	}
	return v.List, true
}

// Merge returns a new header with the entries of other added; other wins on conflicts.
func (h RawHeader) Merge(other RawHeader) RawHeader {
	out := make(RawHeader, len(h)+len(other))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// HeaderSpec describes how one vendor family lays out its header block.
type HeaderSpec struct {
	// Delimiter separates a parameter name from its value: "=", ":" or "\t".
	Delimiter string
	// LengthDirective means the first line carries the header length as its value,
	// e.g. "HeaderSize=37". The directive line itself is not a parameter.
	LengthDirective bool
	// Lines is the declared header length when there is no directive.
	// Zero means every given line belongs to the header.
	Lines int
	// Lists maps multi-valued parameters to their element separator.
	Lists map[string]string
	// Required parameters must be present after parsing.
	Required []string
}

// ParseHeader parses the header block at the start of lines and reports how
// many lines it consumed, directive included. Lines that do not contain the
// delimiter are skipped.
func ParseHeader(lines []string, spec HeaderSpec) (RawHeader, int, error) {
	n := spec.Lines
	start := 0
	if spec.LengthDirective {
		if len(lines) == 0 {
			return nil, 0, &HeaderFormatError{Reason: "missing header length directive"}
		}
		_, raw, ok := strings.Cut(lines[0], spec.Delimiter)
		if !ok {
			return nil, 0, &HeaderFormatError{Reason: "missing header length directive"}
		}
		declared, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || declared < 0 {
			return nil, 0, &HeaderFormatError{Reason: "invalid header length " + strconv.Quote(strings.TrimSpace(raw))}
		}
		n = declared
		start = 1
	}
	if n == 0 && !spec.LengthDirective {
		n = len(lines)
	}
	if len(lines)-start < n {
		return nil, 0, &HeaderFormatError{
			Reason: "declared " + strconv.Itoa(n) + " header lines, found " + strconv.Itoa(len(lines)-start),
		}
	}

	header := make(RawHeader, n)
	for _, line := range lines[start : start+n] {
		key, raw, ok := strings.Cut(strings.TrimRight(line, "\r\n"), spec.Delimiter)
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if sep, isList := spec.Lists[key]; isList {
			list, err := ParseList(raw, sep)
			if err != nil {
				return nil, 0, &HeaderFormatError{Parameter: key, Reason: err.Error()}
			}
			header[key] = Value{Kind: KindList, List: list}
			continue
		}
		header[key] = ParseValue(raw)
	}
	if n > 0 && len(header) == 0 {
		return nil, 0, &HeaderFormatError{Reason: "no parsable header lines"}
	}

	for _, name := range spec.Required {
		v, ok := header[name]
		if !ok {
			return nil, 0, &HeaderFormatError{Parameter: name, Reason: "required parameter missing"}
		}
		if _, isList := spec.Lists[name]; isList && len(v.List) == 0 {
			return nil, 0, &HeaderFormatError{Parameter: name, Reason: "empty list"}
		}
	}
	return header, start + n, nil
}
