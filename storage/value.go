package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/invopop/jsonschema"
)

// ErrNotScalar is returned when a filter or assignment value is an object or an array.
var ErrNotScalar = errors.New("storage: value must be a string, number, boolean or null")

// Kind is the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "null"
	}
}

// Value is a scalar filter or assignment value. The zero Value is null.
type Value struct {
	kind Kind
	text string // string payload or the decimal text of a number
	b    bool
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, text: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)} }
func Float(f float64) Value  { return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)} }
func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// ValueOf converts a decoded Go value into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if _, err := strconv.ParseFloat(t.String(), 64); err != nil {
			return Value{}, fmt.Errorf("storage: invalid number %q", t.String())
		}
		return Value{kind: KindNumber, text: t.String()}, nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Value{kind: KindNumber, text: strconv.FormatUint(uint64(t), 10)}, nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Value{kind: KindNumber, text: strconv.FormatUint(t, 10)}, nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("storage: invalid number %v", t)
		}
		return Float(t), nil
	default:
		return Value{}, ErrNotScalar
	}
}

// Any returns the native Go value: nil, string, bool, int64 or float64.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindBool:
		return v.b
	case KindNumber:
		if i, err := strconv.ParseInt(v.text, 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(v.text, 64)
		return f
	default:
		return nil
	}
}

// String returns the text form used in query strings.
func (v Value) String() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// Equal reports whether x holds the same scalar as v. Numbers compare by value.
func (v Value) Equal(x any) bool {
	other, err := ValueOf(x)
	if err != nil || other.kind != v.kind {
		return false
	}

	switch v.kind {
	case KindNumber:
		a, errA := strconv.ParseFloat(v.text, 64)
		b, errB := strconv.ParseFloat(other.text, 64)
		return errA == nil && errB == nil && a == b
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.text == other.text
	default:
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}

	parsed, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Field is a single column/value pair.
type Field struct {
	Column string
	Value  Value
}

// Fields is an ordered column to scalar mapping used for equality filters and
// column assignments. An empty Fields is the unconditional filter.
type Fields []Field

// FieldsOf builds Fields from a decoded map, ordered by column name.
func FieldsOf(m map[string]any) (Fields, error) {
	columns := make([]string, 0, len(m))
	for column := range m {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	fields := make(Fields, 0, len(columns))
	for _, column := range columns {
		if column == "" {
			return nil, errors.New("storage: empty column name")
		}
		v, err := ValueOf(m[column])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", column, err)
		}
		fields = append(fields, Field{Column: column, Value: v})
	}

	return fields, nil
}

// Get returns the value for column.
func (f Fields) Get(column string) (Value, bool) {
	for _, field := range f {
		if field.Column == column {
			return field.Value, true
		}
	}
	return Value{}, false
}

// Map returns the fields as column to native value.
func (f Fields) Map() map[string]any {
	m := make(map[string]any, len(f))
	for _, field := range f {
		m[field.Column] = field.Value.Any()
	}
	return m
}

// Matches reports whether row satisfies every field by equality.
func (f Fields) Matches(row Row) bool {
	for _, field := range f {
		if !field.Value.Equal(row[field.Column]) {
			return false
		}
	}
	return true
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := field.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of scalars keeping the order of its keys.
// Nested objects and arrays are rejected.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("storage: expected an object of column values")
	}

	fields := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		column, _ := keyTok.(string)
		if column == "" {
			return errors.New("storage: empty column name")
		}
		if _, dup := fields.Get(column); dup {
			return fmt.Errorf("storage: duplicate column %q", column)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("column %q: %w", column, err)
		}
		fields = append(fields, Field{Column: column, Value: v})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = fields
	return nil
}

// JSONSchema describes Fields as an object whose values are scalars.
func (Fields) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		AdditionalProperties: &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "number"},
				{Type: "boolean"},
				{Type: "null"},
			},
		},
	}
}
