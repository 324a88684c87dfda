package mention

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
)

// ErrInvalidMetadata is returned when a metadata value is not one of the
// supported kinds.
var ErrInvalidMetadata = errors.New("invalid mention metadata")

// Kind is the closed set of metadata value kinds.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindBool
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	default:
		return "unknown"
	}
}

// Value is a single metadata value.
type Value struct {
	kind Kind
	s    string
	b    bool
	n    float64
}

func Absent() Value            { return Value{} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Number(n float64) Value   { return Value{kind: KindNumber, n: n} }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Str returns the string payload.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Bool returns the bool payload.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Num returns the number payload.
func (v Value) Num() (float64, bool) { return v.n, v.kind == KindNumber }

// Interface returns the payload as a plain Go value, nil when absent.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	default:
		return ""
	}
}

// ValueOf validates a decoded value (TOML, msgpack, SQL) and converts it.
// Nested structures are rejected.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Absent(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, errors.Wrapf(ErrInvalidMetadata, "non-finite number %v", t)
		}
		return Number(t), nil
	default:
		return Value{}, errors.Wrapf(ErrInvalidMetadata, "unsupported kind %T", x)
	}
}

// Field is one key/value pair of Metadata.
type Field struct {
	Key   string
	Value Value
}

// Metadata is an ordered, immutable mapping from string keys to Values.
// The zero value is empty and ready to use.
type Metadata struct {
	fields []Field
}

// NewMetadata builds Metadata from fields. A repeated key replaces the earlier
// value in place.
func NewMetadata(fields ...Field) Metadata {
	var m Metadata
	for _, f := range fields {
		m = m.With(f.Key, f.Value)
	}
	return m
}

// MetadataFromMap validates and converts a decoded map. Map iteration order is
// random, so keys are sorted to keep the result deterministic.
func MetadataFromMap(raw map[string]any) (Metadata, error) {
	if len(raw) == 0 {
		return Metadata{}, nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		v, err := ValueOf(raw[k])
		if err != nil {
			return Metadata{}, errors.Wrapf(err, "key %q", k)
		}
		fields = append(fields, Field{Key: k, Value: v})
	}
	return Metadata{fields: fields}, nil
}

// Len returns the number of fields.
func (m Metadata) Len() int { return len(m.fields) }

// Get returns the value stored for key.
func (m Metadata) Get(key string) (Value, bool) {
	for _, f := range m.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// With returns a copy of m with key set to v.
func (m Metadata) With(key string, v Value) Metadata {
	fields := make([]Field, len(m.fields), len(m.fields)+1)
	copy(fields, m.fields)
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = v
			return Metadata{fields: fields}
		}
	}
	return Metadata{fields: append(fields, Field{Key: key, Value: v})}
}

// Fields returns a copy of the fields in insertion order.
func (m Metadata) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Map converts m to a plain map, dropping order.
func (m Metadata) Map() map[string]any {
	if len(m.fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		out[f.Key] = f.Value.Interface()
	}
	return out
}

// Equal reports whether both mappings hold the same fields in the same order.
func (m Metadata) Equal(o Metadata) bool {
	if len(m.fields) != len(o.fields) {
		return false
	}
	for i := range m.fields {
		if m.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

func (m Metadata) String() string {
	return fmt.Sprint(m.Map())
}
