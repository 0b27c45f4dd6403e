// Package document implements minileaf's document data model: a typed,
// ordered tree of named fields and the dotted-path utilities used to read,
// write, and remove values inside it.
package document

import (
	"fmt"
	"time"
)

// Kind identifies the dynamic type of a [Value].
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBinary
	KindTimestamp
	KindArray
	KindObject
)

// String implements fmt.Stringer for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a document leaf or branch value. Concrete types are Null, Bool,
// Int, Float, Text, Binary, Timestamp, Array, and Object — the sum type
// described by the data model.
type Value interface {
	Kind() Kind
	isValue()
}

// Null represents the JSON null value.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) isValue()   {}

// Bool is a boolean leaf value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) isValue()   {}

// Int is a 64-bit signed integer leaf value.
type Int int64

func (Int) Kind() Kind { return KindInt }
func (Int) isValue()   {}

// Float is a 64-bit floating point leaf value.
type Float float64

func (Float) Kind() Kind { return KindFloat }
func (Float) isValue()   {}

// Text is a UTF-8 string leaf value.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) isValue()   {}

// Binary is an opaque byte-string leaf value.
type Binary []byte

func (Binary) Kind() Kind { return KindBinary }
func (Binary) isValue()   {}

// Timestamp is a point-in-time leaf value.
type Timestamp time.Time

func (Timestamp) Kind() Kind { return KindTimestamp }
func (Timestamp) isValue()   {}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// Array is an ordered list of values.
type Array []Value

func (Array) Kind() Kind { return KindArray }
func (Array) isValue()   {}

// Object wraps a nested Document as a value.
type Object struct {
	Doc *Document
}

func (Object) Kind() Kind { return KindObject }
func (Object) isValue()   {}

// NewObject wraps doc as an Object value. A nil doc is treated as an empty
// document so callers never have to nil-check before writing into it.
func NewObject(doc *Document) Object {
	if doc == nil {
		doc = New()
	}

	return Object{Doc: doc}
}

// Field is a single named entry in a Document, preserving insertion order.
type Field struct {
	Key   string
	Value Value
}

// String renders a Value for error messages and debugging only; it is not a
// serialization format.
func String(v Value) string {
	switch val := v.(type) {
	case Null, nil:
		return "null"
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		return fmt.Sprintf("%g", float64(val))
	case Text:
		return string(val)
	case Binary:
		return fmt.Sprintf("<%d bytes>", len(val))
	case Timestamp:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case Array:
		return fmt.Sprintf("<array len=%d>", len(val))
	case Object:
		return fmt.Sprintf("<object fields=%d>", val.Doc.Len())
	default:
		return fmt.Sprintf("%v", v)
	}
}
