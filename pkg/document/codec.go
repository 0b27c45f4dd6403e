package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// wireValue is the on-the-wire shape for a tagged Value, distinguishing
// kinds that plain JSON can't (int vs float, binary vs text, timestamp vs
// text) via an explicit type tag. Filter operator operands (in pkg/filter)
// do not use this type: they are plain Go values or document.Values that
// the filter package converts itself.
type wireValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalJSON implements the canonical JSON-like representation for a
// Document: an object of field name to tagged value.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("document: marshal key %q: %w", f.Key, err)
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := marshalValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("document: marshal field %q: %w", f.Key, err)
		}

		buf.Write(valJSON)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON parses the canonical representation produced by MarshalJSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("document: %w", err)
	}

	// json.Unmarshal into a map loses key order; re-derive it by scanning
	// the raw object's token stream so Document preserves field order.
	order, err := objectKeyOrder(data)
	if err != nil {
		return fmt.Errorf("document: %w", err)
	}

	*d = *New()

	for _, key := range order {
		fieldData, ok := raw[key]
		if !ok {
			continue
		}

		v, err := unmarshalValue(fieldData)
		if err != nil {
			return fmt.Errorf("document: field %q: %w", key, err)
		}

		d.Set(key, v)
	}

	return nil
}

func objectKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object")
	}

	var order []string

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, _ := keyTok.(string)
		order = append(order, key)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null, nil:
		return []byte(`{"t":"null"}`), nil
	case Bool:
		return wrap("bool", bool(val))
	case Int:
		return wrap("int", int64(val))
	case Float:
		return wrap("float", float64(val))
	case Text:
		return wrap("text", string(val))
	case Binary:
		return wrap("bin", base64.StdEncoding.EncodeToString(val))
	case Timestamp:
		return wrap("ts", val.Time().UTC().Format(time.RFC3339Nano))
	case Array:
		elems := make([]json.RawMessage, len(val))

		for i, e := range val {
			raw, err := marshalValue(e)
			if err != nil {
				return nil, err
			}

			elems[i] = raw
		}

		inner, err := json.Marshal(elems)
		if err != nil {
			return nil, err
		}

		return wrapRaw("arr", inner)
	case Object:
		inner, err := val.Doc.MarshalJSON()
		if err != nil {
			return nil, err
		}

		return wrapRaw("obj", inner)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func wrap(tag string, payload any) ([]byte, error) {
	inner, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return wrapRaw(tag, inner)
}

func wrapRaw(tag string, inner json.RawMessage) ([]byte, error) {
	return json.Marshal(wireValue{T: tag, V: inner})
}

func unmarshalValue(data []byte) (Value, error) {
	var wv wireValue

	if err := json.Unmarshal(data, &wv); err != nil {
		return nil, err
	}

	switch wv.T {
	case "null":
		return Null{}, nil
	case "bool":
		var b bool
		if err := json.Unmarshal(wv.V, &b); err != nil {
			return nil, err
		}

		return Bool(b), nil
	case "int":
		var i int64
		if err := json.Unmarshal(wv.V, &i); err != nil {
			return nil, err
		}

		return Int(i), nil
	case "float":
		var f float64
		if err := json.Unmarshal(wv.V, &f); err != nil {
			return nil, err
		}

		return Float(f), nil
	case "text":
		var s string
		if err := json.Unmarshal(wv.V, &s); err != nil {
			return nil, err
		}

		return Text(s), nil
	case "bin":
		var s string
		if err := json.Unmarshal(wv.V, &s); err != nil {
			return nil, err
		}

		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}

		return Binary(b), nil
	case "ts":
		var s string
		if err := json.Unmarshal(wv.V, &s); err != nil {
			return nil, err
		}

		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}

		return Timestamp(t), nil
	case "arr":
		var rawElems []json.RawMessage
		if err := json.Unmarshal(wv.V, &rawElems); err != nil {
			return nil, err
		}

		arr := make(Array, len(rawElems))

		for i, raw := range rawElems {
			v, err := unmarshalValue(raw)
			if err != nil {
				return nil, err
			}

			arr[i] = v
		}

		return arr, nil
	case "obj":
		inner := New()
		if err := inner.UnmarshalJSON(wv.V); err != nil {
			return nil, err
		}

		return NewObject(inner), nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", wv.T)
	}
}

// Marshal serializes doc to its canonical wire form.
func Marshal(doc *Document) ([]byte, error) {
	return doc.MarshalJSON()
}

// Unmarshal parses data produced by Marshal into a new Document.
func Unmarshal(data []byte) (*Document, error) {
	doc := New()
	if err := doc.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	return doc, nil
}
