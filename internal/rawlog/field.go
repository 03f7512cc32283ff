// Package rawlog decodes the per-task execution logs written by the browser
// automation layer.
//
// Step fields arrive either as native JSON structures or as stringified
// (often Python-repr) text of the same data. Field keeps the two apart so
// every parser can branch once, at the ingestion boundary.
package rawlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which encoding a Field arrived in.
type Kind int

const (
	Missing Kind = iota
	Null
	Text
	Number
	Bool
	Structured
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Null:
		return "null"
	case Text:
		return "text"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Structured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field is one loosely typed log value.
type Field struct {
	Kind Kind
	// Text holds the decoded string for Text, the literal for Number and Bool,
	// and compact JSON for Structured values.
	Text string
	// Raw is the value exactly as it appeared in the document.
	Raw json.RawMessage
}

// TextField builds a Text field, mostly for tests and callers that already
// hold stringified data.
func TextField(s string) Field {
	raw, _ := json.Marshal(s)
	return Field{Kind: Text, Text: s, Raw: raw}
}

// StructuredField builds a Structured field from any JSON-marshalable value.
func StructuredField(v any) (Field, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Field{}, err
	}
	var f Field
	if err := f.UnmarshalJSON(raw); err != nil {
		return Field{}, err
	}
	return f, nil
}

func (f *Field) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty json value")
	}
	f.Raw = append(json.RawMessage(nil), trimmed...)
	switch trimmed[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return err
		}
		f.Kind = Structured
		f.Text = buf.String()
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		f.Kind = Text
		f.Text = s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		f.Kind = Bool
		f.Text = strconv.FormatBool(b)
	case 'n':
		if string(trimmed) != "null" {
			return fmt.Errorf("invalid json literal %q", trimmed)
		}
		f.Kind = Null
		f.Text = ""
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		f.Kind = Number
		f.Text = n.String()
	}
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	if f.Kind == Missing || len(f.Raw) == 0 {
		return []byte("null"), nil
	}
	return f.Raw, nil
}

// Present reports whether the field carries a non-null value.
func (f Field) Present() bool {
	return f.Kind != Missing && f.Kind != Null
}

// String is the uniform stringification of a field: missing and null values
// become "", structured values become compact JSON.
func (f Field) String() string {
	if !f.Present() {
		return ""
	}
	return f.Text
}

// Object decodes a structured JSON object into its member fields.
func (f Field) Object() (map[string]Field, bool) {
	if f.Kind != Structured || len(f.Raw) == 0 || f.Raw[0] != '{' {
		return nil, false
	}
	var obj map[string]Field
	if err := json.Unmarshal(f.Raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// Array decodes a structured JSON array into its elements.
func (f Field) Array() ([]Field, bool) {
	if f.Kind != Structured || len(f.Raw) == 0 || f.Raw[0] != '[' {
		return nil, false
	}
	var arr []Field
	if err := json.Unmarshal(f.Raw, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

// Int coerces numbers and numeric text to an integer. Fractional values and
// values outside the int range are rejected.
func (f Field) Int() (int, bool) {
	switch f.Kind {
	case Number, Text:
		s := strings.TrimSpace(f.Text)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f.Kind != Number {
			return 0, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false
		}
		if v < math.MinInt || v >= math.MaxInt {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
