// Package update implements minileaf's atomic partial-update engine:
// $set/$unset/$inc applied to a live document under the storage engine's
// write lock, in the stable order mandated by spec §4.6.
package update

import (
	"fmt"

	"github.com/minileaf/minileaf/pkg/document"
)

// Operations is one update call's operator groups. Multiple groups are
// applied in the fixed order $set, then $unset, then $inc — implementations
// must not expose a different observable order.
type Operations struct {
	Set   map[string]document.Value
	Unset map[string]document.Value
	Inc   map[string]document.Value
}

// IsEmpty reports whether ops carries no operator groups at all.
func (ops Operations) IsEmpty() bool {
	return len(ops.Set) == 0 && len(ops.Unset) == 0 && len(ops.Inc) == 0
}

// Apply mutates doc in place according to ops, in $set → $unset → $inc
// order. Paths are applied in a stable (sorted) order within each group so
// behavior is deterministic across runs.
func Apply(doc *document.Document, ops Operations) error {
	for _, path := range sortedKeys(ops.Set) {
		document.SetPath(doc, path, ops.Set[path])
	}

	for _, path := range sortedKeys(ops.Unset) {
		document.UnsetPath(doc, path)
	}

	for _, path := range sortedKeys(ops.Inc) {
		if err := applyInc(doc, path, ops.Inc[path]); err != nil {
			return fmt.Errorf("update: $inc %q: %w", path, err)
		}
	}

	return nil
}

// applyInc reads the current numeric value at path (absent treated as 0),
// adds delta, and stores the result. The result's type follows delta's type:
// incrementing by a Float always yields a Float; incrementing by an Int
// widens an existing Float to stay Float, otherwise stays Int. A non-numeric
// existing leaf is overwritten by the typed sum starting from zero.
func applyInc(doc *document.Document, path string, delta document.Value) error {
	current, ok := document.GetPath(doc, path)
	if !ok {
		current = document.Int(0)
	}

	switch d := delta.(type) {
	case document.Int:
		switch c := current.(type) {
		case document.Int:
			document.SetPath(doc, path, document.Int(int64(c)+int64(d)))
		case document.Float:
			document.SetPath(doc, path, document.Float(float64(c)+float64(d)))
		default:
			document.SetPath(doc, path, document.Int(int64(d)))
		}

		return nil
	case document.Float:
		switch c := current.(type) {
		case document.Int:
			document.SetPath(doc, path, document.Float(float64(c)+float64(d)))
		case document.Float:
			document.SetPath(doc, path, document.Float(float64(c)+float64(d)))
		default:
			document.SetPath(doc, path, document.Float(float64(d)))
		}

		return nil
	default:
		return fmt.Errorf("delta must be numeric, got %T", delta)
	}
}

func sortedKeys(m map[string]document.Value) []string {
	if len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	insertionSort(keys)

	return keys
}

// insertionSort avoids pulling in "sort" for a handful of path strings per
// call; update batches are small (a handful of operator paths).
func insertionSort(keys []string) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}
