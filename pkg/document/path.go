package document

import (
	"strconv"
	"strings"
)

// splitPath breaks a dotted path like "a.b.3.c" into its segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	return strings.Split(path, ".")
}

// asIndex reports whether segment addresses an array slot, per §4.1: "a
// numeric segment addresses an array slot."
func asIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}

	n, err := strconv.Atoi(segment)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// GetPath reads the value at a dotted path. Returns (nil, false) if any
// intermediate segment is missing or of the wrong shape.
func GetPath(doc *Document, path string) (Value, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}

	var current Value = NewObject(doc)

	for _, seg := range segments {
		next, ok := descend(current, seg)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func descend(v Value, segment string) (Value, bool) {
	switch val := v.(type) {
	case Object:
		return val.Doc.Get(segment)
	case Array:
		idx, ok := asIndex(segment)
		if !ok || idx >= len(val) {
			return nil, false
		}

		return val[idx], true
	default:
		return nil, false
	}
}

// SetPath writes value at a dotted path, auto-creating intermediate objects
// as needed. An intermediate that exists but is not an Object is overwritten
// with a fresh one, per §4.1/§4.6.
func SetPath(doc *Document, path string, value Value) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return
	}

	if doc == nil {
		return
	}

	setRecursive(doc, segments, value)
}

func setRecursive(doc *Document, segments []string, value Value) {
	key := segments[0]

	if len(segments) == 1 {
		doc.Set(key, value)
		return
	}

	child, ok := doc.Get(key)

	var childDoc *Document

	if ok {
		if obj, isObj := child.(Object); isObj {
			childDoc = obj.Doc
		}
	}

	if childDoc == nil {
		childDoc = New()
		doc.Set(key, NewObject(childDoc))
	}

	setRecursive(childDoc, segments[1:], value)
}

// UnsetPath removes the leaf at a dotted path. Intermediate objects are left
// intact, per §4.6.
func UnsetPath(doc *Document, path string) {
	segments := splitPath(path)
	if len(segments) == 0 || doc == nil {
		return
	}

	if len(segments) == 1 {
		doc.Unset(segments[0])
		return
	}

	child, ok := doc.Get(segments[0])
	if !ok {
		return
	}

	obj, isObj := child.(Object)
	if !isObj {
		return
	}

	UnsetPath(obj.Doc, strings.Join(segments[1:], "."))
}
