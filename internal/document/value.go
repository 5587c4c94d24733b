// Package document holds the JSON-like tree every pipeline stage passes around:
// a tagged union of null, bool, number, string, list and ordered mapping.
package document

import (
	"strconv"
	"strings"
)

// Kind tags the variant stored in a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Number keeps track of whether the value was written as an integer so edits
// can be parsed back into the same kind.
type Number struct {
	isInt bool
	i     int64
	f     float64
}

func Int(i int64) Number     { return Number{isInt: true, i: i, f: float64(i)} }
func Float(f float64) Number { return Number{f: f} }

// ParseNumber reads a JSON number literal, preferring the integer form.
func ParseNumber(s string) (Number, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Number{}, err
	}
	return Float(f), nil
}

func (n Number) IsInt() bool      { return n.isInt }
func (n Number) Int64() int64     { return n.i }
func (n Number) Float64() float64 { return n.f }

func (n Number) String() string {
	if n.isInt {
		return strconv.FormatInt(n.i, 10)
	}
	s := strconv.FormatFloat(n.f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".IN") {
		// keep integral floats distinguishable from ints once encoded
		s += ".0"
	}
	return s
}

// Value is an immutable-by-convention node of the tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    Number
	s    string
	list []Value
	m    *Mapping
}

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func NumberValue(n Number) Value { return Value{kind: KindNumber, n: n} }
func IntValue(i int64) Value     { return NumberValue(Int(i)) }
func FloatValue(f float64) Value { return NumberValue(Float(f)) }

// List wraps the given elements; the slice is owned by the returned Value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// MappingValue wraps m; a nil mapping is treated as empty.
func MappingValue(m *Mapping) Value {
	if m == nil {
		m = NewMapping()
	}
	return Value{kind: KindMapping, m: m}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsNumber() Number { return v.n }
func (v Value) AsString() string { return v.s }
func (v Value) AsList() []Value  { return v.list }
func (v Value) AsMapping() *Mapping {
	if v.kind != KindMapping {
		return nil
	}
	return v.m
}

// IsScalar reports whether v is a leaf that is neither a list nor a mapping.
func (v Value) IsScalar() bool {
	return v.kind != KindList && v.kind != KindMapping
}

// IsEmpty is true for null, "", an empty list and an empty mapping.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == ""
	case KindList:
		return len(v.list) == 0
	case KindMapping:
		return v.m.Len() == 0
	default:
		return false
	}
}

// IsListOfMappings reports a non-empty list whose elements are all mappings
// (a "repeated entry" section).
func (v Value) IsListOfMappings() bool {
	if v.kind != KindList || len(v.list) == 0 {
		return false
	}
	for _, item := range v.list {
		if item.kind != KindMapping {
			return false
		}
	}
	return true
}

// IsListOfScalars reports a list (possibly empty) holding only scalars.
func (v Value) IsListOfScalars() bool {
	if v.kind != KindList {
		return false
	}
	for _, item := range v.list {
		if !item.IsScalar() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = item.Clone()
		}
		return Value{kind: KindList, list: out}
	case KindMapping:
		return Value{kind: KindMapping, m: v.m.Clone()}
	default:
		return v
	}
}

// Equal compares two trees deeply; mapping key order is significant and
// numbers must agree on both kind and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n.isInt == o.n.isInt && v.n.i == o.n.i && v.n.f == o.n.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		return v.m.Equal(o.m)
	}
	return false
}

// Text renders a scalar the way it is shown in an editable text field or a
// spreadsheet cell. Null renders as "" and lists of scalars are joined by sep.
func (v Value) Text(sep string) string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.n.String()
	case KindString:
		return v.s
	case KindList:
		out := ""
		for i, item := range v.list {
			if i > 0 {
				out += sep
			}
			out += item.Text(sep)
		}
		return out
	case KindMapping:
		b, _ := v.MarshalJSON()
		return string(b)
	default:
		return ""
	}
}
