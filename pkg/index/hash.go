package index

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/mlerrors"
)

// hashEntry is one bucket slot: the exact stringified key plus the ids
// currently mapped to it (collision-chained within a bucket by exact string
// compare, since xxhash buckets can collide).
type hashEntry struct {
	key string
	ids map[string]docid.ID
}

// HashIndex is the "enum-optimized" single-field equality-only secondary
// index (spec §4.4): unordered, keyed by the stringified field value,
// bucketed by xxhash.Sum64String for O(1) average lookup.
type HashIndex struct {
	mu     sync.RWMutex
	name   string
	field  string
	unique bool
	bucket map[uint64][]*hashEntry
}

var _ Index = (*HashIndex)(nil)

// NewHashIndex returns a hash index over field, named name. If unique,
// OnInsert/OnUpdate enforce at most one id per stringified key.
func NewHashIndex(name, field string, unique bool) *HashIndex {
	return &HashIndex{
		name:   name,
		field:  field,
		unique: unique,
		bucket: make(map[uint64][]*hashEntry),
	}
}

func (h *HashIndex) Name() string { return h.name }

func stringifyValue(v document.Value) string {
	return document.String(v)
}

func (h *HashIndex) extractKey(doc *document.Document) (string, bool) {
	v, ok := document.GetPath(doc, h.field)
	if !ok {
		return "", false
	}

	return stringifyValue(v), true
}

func (h *HashIndex) entry(key string, create bool) *hashEntry {
	hv := xxhash.Sum64String(key)

	for _, e := range h.bucket[hv] {
		if e.key == key {
			return e
		}
	}

	if !create {
		return nil
	}

	e := &hashEntry{key: key, ids: make(map[string]docid.ID)}
	h.bucket[hv] = append(h.bucket[hv], e)

	return e
}

func (h *HashIndex) removeFromKey(key string, id docid.ID) {
	hv := xxhash.Sum64String(key)

	entries := h.bucket[hv]

	for i, e := range entries {
		if e.key != key {
			continue
		}

		delete(e.ids, id.String())

		if len(e.ids) == 0 {
			h.bucket[hv] = append(entries[:i], entries[i+1:]...)
		}

		return
	}
}

func (h *HashIndex) OnInsert(id docid.ID, doc *document.Document) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key, ok := h.extractKey(doc)
	if !ok {
		return nil
	}

	e := h.entry(key, true)

	if h.unique {
		if _, sameID := e.ids[id.String()]; !sameID && len(e.ids) > 0 {
			return mlerrors.New(mlerrors.KindDuplicateKey, fmt.Sprintf("key %q already exists", key), mlerrors.WithIndex(h.name))
		}
	}

	e.ids[id.String()] = id

	return nil
}

func (h *HashIndex) OnUpdate(id docid.ID, old, new *document.Document) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	oldKey, oldOK := "", false
	if old != nil {
		oldKey, oldOK = h.extractKey(old)
	}

	newKey, newOK := h.extractKey(new)

	if oldOK && (!newOK || oldKey != newKey) {
		h.removeFromKey(oldKey, id)
	}

	if !newOK {
		return nil
	}

	e := h.entry(newKey, true)

	if h.unique {
		if _, sameID := e.ids[id.String()]; !sameID && len(e.ids) > 0 {
			return mlerrors.New(mlerrors.KindDuplicateKey, fmt.Sprintf("key %q already exists", newKey), mlerrors.WithIndex(h.name))
		}
	}

	e.ids[id.String()] = id

	return nil
}

func (h *HashIndex) OnDelete(id docid.ID, doc *document.Document) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key, ok := h.extractKey(doc)
	if !ok {
		return nil
	}

	h.removeFromKey(key, id)

	return nil
}

func (h *HashIndex) Drop() error {
	return nil
}

// FindEquals returns the set of ids whose stringified field value equals
// the stringified form of v.
func (h *HashIndex) FindEquals(v document.Value) []docid.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e := h.entry(stringifyValue(v), false)
	if e == nil {
		return nil
	}

	ids := make([]docid.ID, 0, len(e.ids))
	for _, id := range e.ids {
		ids = append(ids, id)
	}

	return ids
}
