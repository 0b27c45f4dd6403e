package index

import (
	"fmt"
	"sync"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/mlerrors"
)

// PrimaryIndexName is the name of the always-present, undroppable unique
// index over "_id" (spec §4.4).
const PrimaryIndexName = "_id_"

// PrimaryIndex is the always-present unique index over a collection's
// identifier. Ids are held in a map keyed by their string form, so the
// index keeps no key order. It is created at collection birth and cannot be
// dropped; Manager.DropIndex is guarded against it by the caller
// (pkg/collection), since Manager treats all indexes uniformly.
type PrimaryIndex struct {
	mu  sync.RWMutex
	ids map[string]docid.ID
}

var _ Index = (*PrimaryIndex)(nil)

// NewPrimaryIndex returns an empty primary index.
func NewPrimaryIndex() *PrimaryIndex {
	return &PrimaryIndex{ids: make(map[string]docid.ID)}
}

func (p *PrimaryIndex) Name() string { return PrimaryIndexName }

func (p *PrimaryIndex) OnInsert(id docid.ID, _ *document.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := id.String()

	if existing, ok := p.ids[key]; ok && existing.Compare(id) != 0 {
		return mlerrors.New(mlerrors.KindDuplicateKey, fmt.Sprintf("id %q already exists", key), mlerrors.WithIndex(PrimaryIndexName))
	}

	p.ids[key] = id

	return nil
}

func (p *PrimaryIndex) OnUpdate(id docid.ID, _, _ *document.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ids[id.String()] = id

	return nil
}

func (p *PrimaryIndex) OnDelete(id docid.ID, _ *document.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.ids, id.String())

	return nil
}

func (p *PrimaryIndex) Drop() error {
	return fmt.Errorf("index: primary index cannot be dropped")
}

// Contains reports whether id is currently present.
func (p *PrimaryIndex) Contains(id docid.ID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.ids[id.String()]

	return ok
}

// Len returns the number of ids tracked.
func (p *PrimaryIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.ids)
}
