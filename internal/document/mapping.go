package document

import "sort"

// Mapping is a string-keyed map that remembers insertion order.
type Mapping struct {
	keys   []string
	values map[string]Value
}

func NewMapping() *Mapping {
	return &Mapping{values: map[string]Value{}}
}

// Len is safe on a nil mapping.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set replaces the value for an existing key in place or appends a new key.
func (m *Mapping) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Each walks entries in order until fn returns false.
func (m *Mapping) Each(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

func (m *Mapping) Clone() *Mapping {
	out := NewMapping()
	m.Each(func(k string, v Value) bool {
		out.Set(k, v.Clone())
		return true
	})
	return out
}

func (m *Mapping) Equal(o *Mapping) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if o.keys[i] != k {
			return false
		}
		if !m.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// SameShape reports whether two trees share key sets, nesting and list
// lengths. Leaf values and scalar kinds are ignored.
func SameShape(a, b Value) bool {
	aContainer := a.kind == KindList || a.kind == KindMapping
	bContainer := b.kind == KindList || b.kind == KindMapping
	if !aContainer || !bContainer {
		return aContainer == bContainer
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindList {
		if a.IsListOfScalars() && b.IsListOfScalars() {
			return true
		}
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !SameShape(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	}
	if a.m.Len() != b.m.Len() {
		return false
	}
	for i, k := range a.m.keys {
		if b.m.keys[i] != k {
			return false
		}
		if !SameShape(a.m.values[k], b.m.values[k]) {
			return false
		}
	}
	return true
}

// FromAny converts a decoded generic value (encoding/json, yaml, structpb
// AsInterface) into a Value. Go maps carry no order, so their keys are sorted.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			m.Set(k, FromAny(t[k]))
		}
		return MappingValue(m)
	case *Mapping:
		return MappingValue(t)
	case Value:
		return t
	default:
		return Null()
	}
}

// ToAny converts v into plain Go values (map[string]any, []any, float64, ...).
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.n.isInt {
			return float64(v.n.i)
		}
		return v.n.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case KindMapping:
		out := make(map[string]any, v.m.Len())
		v.m.Each(func(k string, item Value) bool {
			out[k] = item.ToAny()
			return true
		})
		return out
	default:
		return nil
	}
}
