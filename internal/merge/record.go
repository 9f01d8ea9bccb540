// Package merge implements the document merge pipeline: it pulls candidate
// records from a source view, resolves image fields, clears the template
// relationship, groups records by target template, fetches each distinct
// template once, and drives rendering and result filing.
package merge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the runtime type of a record field value.
type Kind int

const (
	Null Kind = iota
	Text
	Number
	Bool
)

// Value is a record field value as returned by the record store. Fields come
// back as JSON strings, numbers, booleans, or null; tagging the type up front
// keeps format dispatch exhaustive instead of relying on coercion.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// StringValue returns a text Value.
func StringValue(s string) Value { return Value{kind: Text, str: s} }

// NumberValue returns a numeric Value.
func NumberValue(n float64) Value { return Value{kind: Number, num: n} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding field value: %w", err)
	}
	switch t := raw.(type) {
	case nil:
		*v = Value{}
	case string:
		*v = Value{kind: Text, str: t}
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			// Out-of-range numerics degrade to their text form.
			*v = Value{kind: Text, str: t.String()}
			return nil
		}
		*v = Value{kind: Number, num: n}
	case bool:
		*v = Value{kind: Bool, b: t}
	default:
		// Nested objects/arrays never appear in view data; keep the raw JSON.
		*v = Value{kind: Text, str: string(data)}
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Text:
		return json.Marshal(v.str)
	case Number:
		return json.Marshal(v.num)
	case Bool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// Kind returns the tagged type of the value.
func (v Value) Kind() Kind { return v.kind }

// String renders the value as the store would display it. Null renders empty.
func (v Value) String() string {
	switch v.kind {
	case Text:
		return v.str
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Float reports the numeric form of the value. Numeric strings count.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number:
		return v.num, true
	case Text:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Int64 reports the value as an integer identifier.
func (v Value) Int64() (int64, bool) {
	n, ok := v.Float()
	if !ok {
		return 0, false
	}
	return int64(n), true
}

// IsEmpty reports whether the value normalizes to the empty string: null,
// empty text, numeric zero, or boolean false (the store treats all four as
// "no value").
func (v Value) IsEmpty() bool {
	switch v.kind {
	case Null:
		return true
	case Text:
		return v.str == ""
	case Number:
		return v.num == 0
	case Bool:
		return !v.b
	default:
		return false
	}
}

// idField is the store-internal record identifier present on every record.
const idField = "id"

// Record is one row of view data: field name to value. Field names may
// contain spaces and punctuation exactly as configured in the store.
type Record map[string]Value

// ID returns the store-internal record identifier, or 0 when absent.
func (r Record) ID() int64 {
	n, _ := r[idField].Int64()
	return n
}

// IdentifierField derives the identifier form of a relationship field name.
// The store exposes "Template" as a display label and "Template(id)" as the
// numeric key of the linked record.
func IdentifierField(field string) string {
	return field + "(id)"
}

// TemplateID reads the numeric template key behind the given relationship
// field. ok is false when the record has no template link.
func (r Record) TemplateID(linkField string) (int64, bool) {
	v, present := r[IdentifierField(linkField)]
	if !present || v.IsEmpty() {
		return 0, false
	}
	return v.Int64()
}

// FieldSchema declares how one field's values must be interpreted.
type FieldSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Field types the store declares in view structure.
const (
	TypeText       = "text"
	TypeDate       = "date"
	TypeDateTime   = "datetime"
	TypeCurrency   = "currency"
	TypePercentage = "percentage"
	TypeImage      = "image"
)

// TypeOf looks up the declared type of a field. Fields without a schema entry
// pass through unformatted, so the empty string is a valid answer.
func TypeOf(structure []FieldSchema, field string) string {
	for _, fs := range structure {
		if fs.Name == field {
			return fs.Type
		}
	}
	return ""
}

// ImageFields lists the fields the schema declares as images, in schema order.
func ImageFields(structure []FieldSchema) []string {
	var fields []string
	for _, fs := range structure {
		if fs.Type == TypeImage {
			fields = append(fields, fs.Name)
		}
	}
	return fields
}
