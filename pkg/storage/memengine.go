package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/update"
)

// MemEngine is the in-memory engine (spec §4.3.1): a concurrent ordered map
// from id to document guarded by a reader-writer lock, with no durability.
// Used for tests and ephemeral/memory-only collections.
type MemEngine struct {
	mu     sync.RWMutex
	docs   map[string]*document.Document
	order  []docid.ID
	index  map[string]int // id.String() -> position in order
	closed bool
}

// NewMemEngine returns an empty in-memory engine.
func NewMemEngine() *MemEngine {
	return &MemEngine{
		docs:  make(map[string]*document.Document),
		index: make(map[string]int),
	}
}

var _ Engine = (*MemEngine)(nil)

func (e *MemEngine) Upsert(_ context.Context, id docid.ID, doc *document.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	key := id.String()

	if _, exists := e.docs[key]; !exists {
		e.index[key] = len(e.order)
		e.order = append(e.order, id)
	}

	e.docs[key] = document.Clone(doc)

	return nil
}

func (e *MemEngine) FindByID(_ context.Context, id docid.ID) (*document.Document, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, false, ErrClosed
	}

	doc, ok := e.docs[id.String()]
	if !ok {
		return nil, false, nil
	}

	return document.Clone(doc), true, nil
}

func (e *MemEngine) UpdateFields(_ context.Context, id docid.ID, ops update.Operations) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrClosed
	}

	doc, ok := e.docs[id.String()]
	if !ok {
		return false, nil
	}

	if err := update.Apply(doc, ops); err != nil {
		return true, err
	}

	return true, nil
}

func (e *MemEngine) Delete(_ context.Context, id docid.ID) (*document.Document, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false, ErrClosed
	}

	key := id.String()

	doc, ok := e.docs[key]
	if !ok {
		return nil, false, nil
	}

	delete(e.docs, key)
	e.removeFromOrder(key)

	return doc, true, nil
}

func (e *MemEngine) removeFromOrder(key string) {
	pos, ok := e.index[key]
	if !ok {
		return
	}

	e.order = append(e.order[:pos], e.order[pos+1:]...)
	delete(e.index, key)

	for i := pos; i < len(e.order); i++ {
		e.index[e.order[i].String()] = i
	}
}

func (e *MemEngine) FindAll(ctx context.Context) ([]Entry, error) {
	return e.FindAllRange(ctx, 0, 0)
}

// FindAllRange returns a page of entries in primary-key (ascending ID)
// order; limit<=0 means no limit.
func (e *MemEngine) FindAllRange(_ context.Context, skip, limit int) ([]Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}

	sorted := make([]docid.ID, len(e.order))
	copy(sorted, e.order)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })

	if skip > len(sorted) {
		skip = len(sorted)
	}

	sorted = sorted[skip:]

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	entries := make([]Entry, 0, len(sorted))
	for _, id := range sorted {
		entries = append(entries, Entry{ID: id, Doc: document.Clone(e.docs[id.String()])})
	}

	return entries, nil
}

func (e *MemEngine) Count(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, ErrClosed
	}

	return len(e.docs), nil
}

func (e *MemEngine) CountMatching(_ context.Context, pred func(*document.Document) bool) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, ErrClosed
	}

	n := 0

	for _, doc := range e.docs {
		if pred(doc) {
			n++
		}
	}

	return n, nil
}

func (e *MemEngine) Exists(_ context.Context, id docid.ID) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false, ErrClosed
	}

	_, ok := e.docs[id.String()]

	return ok, nil
}

func (e *MemEngine) Compact(_ context.Context) error {
	return nil
}

func (e *MemEngine) Stats(_ context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{DocumentCount: len(e.docs)}, nil
}

func (e *MemEngine) Close(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	return nil
}
