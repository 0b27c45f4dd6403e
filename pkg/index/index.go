// Package index implements minileaf's index subsystem (spec §4.4): a
// per-collection manager owning named indexes, each maintained
// transactionally alongside storage writes.
package index

import (
	"fmt"
	"sync"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/mlerrors"
)

// Index is one named index maintained by a Manager. Implementations own
// their own reader-writer lock; the Manager only serializes the set of
// indexes, not access within a single index.
type Index interface {
	// Name returns the index's identifier, unique within its collection.
	Name() string
	// OnInsert notifies the index of a newly inserted document.
	OnInsert(id docid.ID, doc *document.Document) error
	// OnUpdate notifies the index that a document changed from old to new.
	// old is nil only when the index did not see the prior insert (should
	// not happen in normal operation, but implementations must tolerate it
	// by treating it as an insert).
	OnUpdate(id docid.ID, old, new *document.Document) error
	// OnDelete notifies the index that doc (with identifier id) was
	// removed.
	OnDelete(id docid.ID, doc *document.Document) error
	// Drop releases any resources the index holds (e.g. a TTL sweeper
	// goroutine). Called once, when the index is removed from its Manager.
	Drop() error
}

// Manager owns a collection's indexes, keyed by name, behind a
// reader-writer lock (spec §4.4/§5: index-manager lock → engine lock →
// individual index locks is the fixed lock ordering; Manager never calls
// back into the storage engine).
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]Index
	order   []string // insertion order, used for deterministic rollback
}

// NewManager returns an empty index manager. Callers register the
// always-present primary index immediately after construction via AddIndex.
func NewManager() *Manager {
	return &Manager{indexes: make(map[string]Index)}
}

// AddIndex registers idx under its own name. Returns
// ErrIndexAlreadyExists if the name is taken.
func (m *Manager) AddIndex(idx Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := idx.Name()

	if _, exists := m.indexes[name]; exists {
		return mlerrors.New(mlerrors.KindIndexAlreadyExists, fmt.Sprintf("index %q already exists", name), mlerrors.WithIndex(name))
	}

	m.indexes[name] = idx
	m.order = append(m.order, name)

	return nil
}

// DropIndex removes and releases the named index. The primary index
// (spec §4.8: "rejects primary") must be protected by the caller, since
// Manager itself doesn't distinguish index roles.
func (m *Manager) DropIndex(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.indexes[name]
	if !ok {
		return mlerrors.New(mlerrors.KindIndexNotFound, fmt.Sprintf("index %q not found", name), mlerrors.WithIndex(name))
	}

	delete(m.indexes, name)
	m.removeFromOrder(name)

	return idx.Drop()
}

func (m *Manager) removeFromOrder(name string) {
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)

			return
		}
	}
}

// Get returns the named index, if present.
func (m *Manager) Get(name string) (Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.indexes[name]

	return idx, ok
}

// Names returns every registered index name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.order))
	copy(names, m.order)

	return names
}

// OnInsert notifies every index of a new document, rolling back (removing
// the id from) already-notified indexes in reverse order if any index
// fails.
func (m *Manager) OnInsert(id docid.ID, doc *document.Document) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var notified []Index

	for _, name := range m.order {
		idx := m.indexes[name]

		if err := idx.OnInsert(id, doc); err != nil {
			rollbackInsert(notified, id, doc)

			return err
		}

		notified = append(notified, idx)
	}

	return nil
}

func rollbackInsert(notified []Index, id docid.ID, doc *document.Document) {
	for i := len(notified) - 1; i >= 0; i-- {
		_ = notified[i].OnDelete(id, doc)
	}
}

// OnUpdate notifies every index of a document change, rolling back to the
// old state on already-notified indexes in reverse order if any index
// fails.
func (m *Manager) OnUpdate(id docid.ID, old, new *document.Document) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var notified []Index

	for _, name := range m.order {
		idx := m.indexes[name]

		if err := idx.OnUpdate(id, old, new); err != nil {
			rollbackUpdate(notified, id, old, new)

			return err
		}

		notified = append(notified, idx)
	}

	return nil
}

func rollbackUpdate(notified []Index, id docid.ID, old, new *document.Document) {
	for i := len(notified) - 1; i >= 0; i-- {
		_ = notified[i].OnUpdate(id, new, old)
	}
}

// OnDelete notifies every index to remove id. Delete-side rollback isn't
// meaningful (the document is gone either way), so index errors are best
// effort: every index is still notified even if one fails, and the first
// error is returned.
func (m *Manager) OnDelete(id docid.ID, doc *document.Document) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var firstErr error

	for _, name := range m.order {
		if err := m.indexes[name].OnDelete(id, doc); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
