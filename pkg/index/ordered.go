package index

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/mlerrors"
)

const orderedBTreeDegree = 32

// orderedEntry is one key in the btree: a compound key (one value per
// indexed field, in field order) plus the ids currently mapped to it. A
// non-unique ordered index can hold more than one id per key.
type orderedEntry struct {
	key []document.Value
	ids map[string]docid.ID
}

func compareKeys(a, b []document.Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := document.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func orderedLess(a, b *orderedEntry) bool {
	return compareKeys(a.key, b.key) < 0
}

// OrderedIndex is a compound-key secondary index backed by a google/btree
// BTreeG, supporting full-prefix equality plus a range on the field
// following the prefix (spec §4.4).
type OrderedIndex struct {
	mu     sync.RWMutex
	name   string
	fields []string // in index key order
	unique bool
	tree   *btree.BTreeG[*orderedEntry]
}

var _ Index = (*OrderedIndex)(nil)

// NewOrderedIndex returns an ordered index over fields (in compound-key
// order), named name.
func NewOrderedIndex(name string, fields []string, unique bool) *OrderedIndex {
	return &OrderedIndex{
		name:   name,
		fields: append([]string(nil), fields...),
		unique: unique,
		tree:   btree.NewG(orderedBTreeDegree, orderedLess),
	}
}

func (o *OrderedIndex) Name() string { return o.name }

// extractKey returns the compound key for doc. ok is false if any indexed
// field is absent, matching a sparse-index semantics: documents missing an
// indexed field are simply not indexed.
func (o *OrderedIndex) extractKey(doc *document.Document) ([]document.Value, bool) {
	key := make([]document.Value, len(o.fields))

	for i, field := range o.fields {
		v, ok := document.GetPath(doc, field)
		if !ok {
			return nil, false
		}

		key[i] = v
	}

	return key, true
}

func (o *OrderedIndex) find(key []document.Value) (*orderedEntry, bool) {
	return o.tree.Get(&orderedEntry{key: key})
}

func (o *OrderedIndex) removeFromKey(key []document.Value, id docid.ID) {
	e, ok := o.find(key)
	if !ok {
		return
	}

	delete(e.ids, id.String())

	if len(e.ids) == 0 {
		o.tree.Delete(e)
	}
}

func (o *OrderedIndex) insertAtKey(key []document.Value, id docid.ID) error {
	e, ok := o.find(key)
	if !ok {
		e = &orderedEntry{key: key, ids: make(map[string]docid.ID)}
		o.tree.ReplaceOrInsert(e)
	}

	if o.unique {
		if _, sameID := e.ids[id.String()]; !sameID && len(e.ids) > 0 {
			return mlerrors.New(mlerrors.KindDuplicateKey, fmt.Sprintf("index %q: duplicate key", o.name), mlerrors.WithIndex(o.name))
		}
	}

	e.ids[id.String()] = id

	return nil
}

func (o *OrderedIndex) OnInsert(id docid.ID, doc *document.Document) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	key, ok := o.extractKey(doc)
	if !ok {
		return nil
	}

	return o.insertAtKey(key, id)
}

func (o *OrderedIndex) OnUpdate(id docid.ID, old, new *document.Document) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	oldKey, oldOK := ([]document.Value)(nil), false
	if old != nil {
		oldKey, oldOK = o.extractKey(old)
	}

	newKey, newOK := o.extractKey(new)

	if oldOK && (!newOK || compareKeys(oldKey, newKey) != 0) {
		o.removeFromKey(oldKey, id)
	}

	if !newOK {
		return nil
	}

	return o.insertAtKey(newKey, id)
}

func (o *OrderedIndex) OnDelete(id docid.ID, doc *document.Document) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	key, ok := o.extractKey(doc)
	if !ok {
		return nil
	}

	o.removeFromKey(key, id)

	return nil
}

func (o *OrderedIndex) Drop() error {
	return nil
}

// FindEquals returns every id whose compound key exactly matches values,
// which must supply one value per indexed field.
func (o *OrderedIndex) FindEquals(values []document.Value) []docid.ID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	e, ok := o.find(values)
	if !ok {
		return nil
	}

	ids := make([]docid.ID, 0, len(e.ids))
	for _, id := range e.ids {
		ids = append(ids, id)
	}

	return ids
}

// FindRange returns every id whose key matches prefix on the leading
// fields and falls within [from, to] (bounds honoring fromIncl/toIncl) on
// the field immediately following the prefix. Either from or to may be nil
// to leave that side unbounded. len(prefix) must be less than the number
// of indexed fields.
func (o *OrderedIndex) FindRange(prefix []document.Value, from, to document.Value, fromIncl, toIncl bool) []docid.ID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var ids []docid.ID

	lowKey := append(append([]document.Value(nil), prefix...), nil) // nil ranks lowest (document.Compare)
	o.tree.AscendGreaterOrEqual(&orderedEntry{key: lowKey}, func(e *orderedEntry) bool {
		switch compareKeys(e.key[:len(prefix)], prefix) {
		case -1:
			return true // not yet at prefix; keep scanning (shouldn't occur given lowKey, but harmless)
		case 1:
			return false // past every entry sharing prefix; stop
		}

		rangeVal := e.key[len(prefix)]

		if from != nil {
			c := document.Compare(rangeVal, from)
			if c < 0 || (c == 0 && !fromIncl) {
				return true
			}
		}

		if to != nil {
			c := document.Compare(rangeVal, to)
			if c > 0 || (c == 0 && !toIncl) {
				return false
			}
		}

		for _, id := range e.ids {
			ids = append(ids, id)
		}

		return true
	})

	return ids
}
