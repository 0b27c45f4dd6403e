package index

import (
	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/filter"
)

// PartialIndex wraps another Index so that only documents matching a
// filter are ever indexed (spec §4.4). Membership is re-evaluated on every
// write; a document moving out of the filter's match set is removed from
// the inner index just as if it had been deleted, and vice versa.
//
// On update, the new document's membership is evaluated first: if both old
// and new match, the inner index sees an OnUpdate; if only new matches, an
// OnInsert; if only old matched, an OnDelete; if neither matches, nothing
// happens.
type PartialIndex struct {
	inner  Index
	filter filter.Filter
}

var _ Index = (*PartialIndex)(nil)

// NewPartialIndex returns an index that only tracks documents matching f.
func NewPartialIndex(inner Index, f filter.Filter) *PartialIndex {
	return &PartialIndex{inner: inner, filter: f}
}

func (p *PartialIndex) Name() string { return p.inner.Name() }

func (p *PartialIndex) matches(doc *document.Document) bool {
	if doc == nil {
		return false
	}

	ok, err := filter.Evaluate(doc, p.filter)
	if err != nil {
		return false
	}

	return ok
}

func (p *PartialIndex) OnInsert(id docid.ID, doc *document.Document) error {
	if !p.matches(doc) {
		return nil
	}

	return p.inner.OnInsert(id, doc)
}

func (p *PartialIndex) OnUpdate(id docid.ID, old, new *document.Document) error {
	newMatches := p.matches(new)
	oldMatches := p.matches(old)

	switch {
	case newMatches && oldMatches:
		return p.inner.OnUpdate(id, old, new)
	case newMatches:
		return p.inner.OnInsert(id, new)
	case oldMatches:
		return p.inner.OnDelete(id, old)
	default:
		return nil
	}
}

func (p *PartialIndex) OnDelete(id docid.ID, doc *document.Document) error {
	if !p.matches(doc) {
		return nil
	}

	return p.inner.OnDelete(id, doc)
}

func (p *PartialIndex) Drop() error {
	return p.inner.Drop()
}

// Unwrap returns the wrapped index, for callers that need the concrete
// type (e.g. to run a FindEquals/FindRange query against it).
func (p *PartialIndex) Unwrap() Index {
	return p.inner
}
