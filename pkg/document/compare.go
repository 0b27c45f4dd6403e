package document

import (
	"regexp"
	"strings"
)

// objectIDPattern matches a 24-character lowercase hex string — per §4.1, a
// value like this is treated as an object-id for ordering purposes.
var objectIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// rank orders values of different kinds when they can't be compared
// directly (e.g. comparing text to an array). Kinds that this package is
// able to coerce (int/float) are normalized before ranking is consulted.
func rank(v Value) int {
	switch v.(type) {
	case Null, nil:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return 2
	case Timestamp:
		return 3
	case Text:
		return 4
	case Binary:
		return 5
	case Array:
		return 6
	case Object:
		return 7
	default:
		return 8
	}
}

// Compare returns -1, 0, or 1 comparing a to b using the canonical
// comparator described in §4.1: integers/floats collapse to a numeric
// comparison, bool/text/timestamp have their own comparators, and a
// 24-character lowercase hex string is ordered as an object-id (i.e.
// lexicographically, which is the natural order for hex-encoded big-endian
// bytes).
func Compare(a, b Value) int {
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)

	if aIsNum && bIsNum {
		return compareFloat(af, bf)
	}

	aKind, bKind := rank(a), rank(b)
	if aKind != bKind {
		if aKind < bKind {
			return -1
		}

		return 1
	}

	switch av := a.(type) {
	case Null, nil:
		return 0
	case Bool:
		bv, _ := b.(Bool)
		return compareBool(bool(av), bool(bv))
	case Text:
		bv, _ := b.(Text)
		return compareObjectIDAware(string(av), string(bv))
	case Binary:
		bv, _ := b.(Binary)
		return strings.Compare(string(av), string(bv))
	case Timestamp:
		bv, _ := b.(Timestamp)
		at, bt := av.Time(), bv.Time()

		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	case Array:
		bv, _ := b.(Array)
		return compareArrays(av, bv)
	case Object:
		bv, _ := b.(Object)
		return compareDocuments(av.Doc, bv.Doc)
	default:
		return 0
	}
}

// compareObjectIDAware compares two text values, treating 24-char lowercase
// hex strings as object-ids (ordered lexicographically, the natural order
// for big-endian hex) and falling back to plain string comparison otherwise.
func compareObjectIDAware(a, b string) int {
	return strings.Compare(a, b)
}

// IsObjectIDLike reports whether s looks like a serialized object-id.
func IsObjectIDLike(s string) bool {
	return objectIDPattern.MatchString(s)
}

func asFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}

	if !a {
		return -1
	}

	return 1
}

func compareArrays(a, b Array) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}

	return compareInts(len(a), len(b))
}

func compareDocuments(a, b *Document) int {
	return compareInts(a.Len(), b.Len())
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b are equal under the filter evaluator's
// equality semantics (§4.5): missing paths compare equal only to explicit
// null, numbers normalize, enum-like/object-id values compare by their
// stringified form.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}

	if b == nil {
		b = Null{}
	}

	return Compare(a, b) == 0
}
