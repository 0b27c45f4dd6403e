// Package docid implements minileaf's polymorphic document identifier: four
// interchangeable variants (object-id, UUID, text, 64-bit integer), each
// ordered and total, each knowing how to generate, serialize, parse, and
// read/write itself on a document.
package docid

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/minileaf/minileaf/pkg/document"
)

// Variant identifies which identifier representation an ID uses.
type Variant int

const (
	VariantObjectID Variant = iota
	VariantUUID
	VariantText
	VariantInt64
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	switch v {
	case VariantObjectID:
		return "object_id"
	case VariantUUID:
		return "uuid"
	case VariantText:
		return "text"
	case VariantInt64:
		return "int64"
	default:
		return "unknown"
	}
}

// FieldID is the reserved document field name for the primary identifier.
const FieldID = "_id"

// FieldIDLegacy is the legacy alias honored on read per §3/§9: "_id"/"id"
// dual naming, source prefers the existing field on write and defaults to
// "_id" when neither is present.
const FieldIDLegacy = "id"

// ID is a polymorphic, ordered, total document identifier.
type ID interface {
	// Variant reports which identifier representation this value uses.
	Variant() Variant
	// String serializes the identifier to its canonical text form.
	String() string
	// Compare returns -1, 0, or 1 against another ID of the same Variant.
	// Comparing IDs of different variants is undefined and panics; callers
	// must not mix id variants within a single collection (see Registry).
	Compare(other ID) int
}

// objectID is a 12-byte Mongo-style identifier rendered as 24 lowercase hex
// characters.
type objectID [12]byte

func (objectID) Variant() Variant { return VariantObjectID }

func (o objectID) String() string {
	return fmt.Sprintf("%024x", [12]byte(o))
}

func (o objectID) Compare(other ID) int {
	v, ok := other.(objectID)
	if !ok {
		panic("docid: comparing object_id against a different variant")
	}

	for i := range o {
		if o[i] != v[i] {
			if o[i] < v[i] {
				return -1
			}

			return 1
		}
	}

	return 0
}

// uuidID wraps a google/uuid.UUID.
type uuidID uuid.UUID

func (uuidID) Variant() Variant { return VariantUUID }

func (u uuidID) String() string {
	return uuid.UUID(u).String()
}

func (u uuidID) Compare(other ID) int {
	v, ok := other.(uuidID)
	if !ok {
		panic("docid: comparing uuid against a different variant")
	}

	a, b := [16]byte(u), [16]byte(v)

	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}

			return 1
		}
	}

	return 0
}

// textID is a free-form text identifier.
type textID string

func (textID) Variant() Variant { return VariantText }
func (t textID) String() string { return string(t) }

func (t textID) Compare(other ID) int {
	v, ok := other.(textID)
	if !ok {
		panic("docid: comparing text against a different variant")
	}

	switch {
	case t < v:
		return -1
	case t > v:
		return 1
	default:
		return 0
	}
}

// int64ID is a 64-bit integer identifier.
type int64ID int64

func (int64ID) Variant() Variant { return VariantInt64 }
func (i int64ID) String() string { return strconv.FormatInt(int64(i), 10) }

func (i int64ID) Compare(other ID) int {
	v, ok := other.(int64ID)
	if !ok {
		panic("docid: comparing int64 against a different variant")
	}

	switch {
	case i < v:
		return -1
	case i > v:
		return 1
	default:
		return 0
	}
}

// ExtractFrom reads the identifier out of a document using the §9-adopted
// "_id"/"id" dual-naming rule: "_id" is preferred, "id" is the legacy
// fallback honored on read.
func ExtractFrom(variant Variant, doc *document.Document) (ID, bool) {
	v, ok := doc.Get(FieldID)
	if !ok {
		v, ok = doc.Get(FieldIDLegacy)
		if !ok {
			return nil, false
		}
	}

	text, isText := v.(document.Text)
	if !isText {
		return nil, false
	}

	id, err := Parse(variant, string(text))
	if err != nil {
		return nil, false
	}

	return id, true
}

// WriteInto writes id into doc's "_id" field, per §9: source prefers the
// existing field on write and defaults to "_id" when neither is present —
// this module only ever writes "_id", treating "id" as read-only legacy
// input.
func WriteInto(doc *document.Document, id ID) {
	doc.Set(FieldID, document.Text(id.String()))
}
