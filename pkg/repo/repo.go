// Package repo implements minileaf's generic repository façade (spec
// §4.7): a per-entity-type entry point composed over one storage.Engine
// and its index.Manager.
package repo

import (
	"context"
	"fmt"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/filter"
	"github.com/minileaf/minileaf/pkg/index"
	"github.com/minileaf/minileaf/pkg/mlerrors"
	"github.com/minileaf/minileaf/pkg/storage"
	"github.com/minileaf/minileaf/pkg/update"
)

// Codec converts between an entity type and the document it's stored as.
// Callers supply this; Repository never inspects entity fields directly.
type Codec[T any] interface {
	ToDocument(entity T) (*document.Document, error)
	FromDocument(doc *document.Document) (T, error)
}

// Repository is a generic, per-entity-type façade over one storage.Engine
// and one *index.Manager, mirroring the teacher's MDDB[T Document] shape.
type Repository[T any] struct {
	name          string
	engine        storage.Engine
	indexes       *index.Manager
	codec         Codec[T]
	registry      docid.Registry
	variant       docid.Variant
	maxDocSize    int
	hashIndexes   map[string]*index.HashIndex
	orderIndexes  map[string][]string // name -> ordered field list, for FindByRange lookups
	orderedByName map[string]*index.OrderedIndex
}

// Config configures a Repository at construction. MaxDocumentSize <= 0
// means no cap.
type Config[T any] struct {
	Name            string
	Engine          storage.Engine
	Indexes         *index.Manager
	Codec           Codec[T]
	Registry        docid.Registry
	MaxDocumentSize int
}

// New returns a Repository wired to the given storage engine, index
// manager, codec, and id registry.
func New[T any](cfg Config[T]) *Repository[T] {
	return &Repository[T]{
		name:          cfg.Name,
		engine:        cfg.Engine,
		indexes:       cfg.Indexes,
		codec:         cfg.Codec,
		registry:      cfg.Registry,
		variant:       cfg.Registry.Variant(),
		maxDocSize:    cfg.MaxDocumentSize,
		hashIndexes:   make(map[string]*index.HashIndex),
		orderIndexes:  make(map[string][]string),
		orderedByName: make(map[string]*index.OrderedIndex),
	}
}

// RegisterHashIndex lets FindByEnumField use idx for lookups on field.
func (r *Repository[T]) RegisterHashIndex(field string, idx *index.HashIndex) {
	r.hashIndexes[field] = idx
}

// RegisterOrderedIndex lets FindByRange use idx for lookups when field is
// its leading (or only) indexed field.
func (r *Repository[T]) RegisterOrderedIndex(field string, idx *index.OrderedIndex) {
	r.orderIndexes[field] = []string{field}
	r.orderedByName[field] = idx
}

func (r *Repository[T]) wrapErr(err error, docID string) error {
	if err == nil {
		return nil
	}

	opts := []mlerrors.Option{mlerrors.WithCollection(r.name)}
	if docID != "" {
		opts = append(opts, mlerrors.WithDocumentID(docID))
	}

	return mlerrors.Wrap(err, opts...)
}

// Save encodes entity, assigning a fresh id if the document has none,
// rejects documents exceeding the configured size cap, notifies the index
// manager, then upserts into storage. It returns the entity decoded
// back from the final stored document, so the caller observes any
// assigned id.
func (r *Repository[T]) Save(ctx context.Context, entity T) (T, error) {
	var zero T

	doc, err := r.codec.ToDocument(entity)
	if err != nil {
		return zero, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("encode: %v", err)), "")
	}

	id, ok := docid.ExtractFrom(r.variant, doc)
	if !ok {
		id, err = r.registry.Generate()
		if err != nil {
			return zero, r.wrapErr(fmt.Errorf("repo: generate id: %w", err), "")
		}

		docid.WriteInto(doc, id)
	}

	if r.maxDocSize > 0 {
		raw, err := document.Marshal(doc)
		if err != nil {
			return zero, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("marshal for size check: %v", err)), id.String())
		}

		if len(raw) > r.maxDocSize {
			return zero, r.wrapErr(mlerrors.New(mlerrors.KindDocumentTooLarge, fmt.Sprintf("document is %d bytes, max is %d", len(raw), r.maxDocSize)), id.String())
		}
	}

	old, existed, err := r.engine.FindByID(ctx, id)
	if err != nil {
		return zero, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	// Indexes (including the unique-constraint check) must be satisfied
	// before anything lands in storage, so a DuplicateKey never leaves a
	// ghost document behind with no index entry pointing at it.
	if existed {
		err = r.indexes.OnUpdate(id, old, doc)
	} else {
		err = r.indexes.OnInsert(id, doc)
	}

	if err != nil {
		return zero, r.wrapErr(err, id.String())
	}

	if err := r.engine.Upsert(ctx, id, doc); err != nil {
		// Indexes already reflect the write; storage doesn't. Best-effort
		// unwind so the two don't stay out of sync.
		if existed {
			_ = r.indexes.OnUpdate(id, doc, old) //nolint:errcheck // best-effort rollback, storage error takes precedence
		} else {
			_ = r.indexes.OnDelete(id, doc) //nolint:errcheck // best-effort rollback, storage error takes precedence
		}

		return zero, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	final, ok, err := r.engine.FindByID(ctx, id)
	if err != nil {
		return zero, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	if !ok {
		return zero, r.wrapErr(mlerrors.New(mlerrors.KindStorage, "document vanished immediately after upsert"), id.String())
	}

	entity, err = r.codec.FromDocument(final)
	if err != nil {
		return zero, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("decode: %v", err)), id.String())
	}

	return entity, nil
}

// SaveAll saves each entity in order; it is a simple fold, not
// transactional across entries. The first error stops the fold, returning
// entities saved so far alongside the error.
func (r *Repository[T]) SaveAll(ctx context.Context, entities []T) ([]T, error) {
	saved := make([]T, 0, len(entities))

	for _, entity := range entities {
		s, err := r.Save(ctx, entity)
		if err != nil {
			return saved, err
		}

		saved = append(saved, s)
	}

	return saved, nil
}

// FindByID returns the entity stored at id, or ok=false if absent.
func (r *Repository[T]) FindByID(ctx context.Context, id docid.ID) (entity T, ok bool, err error) {
	var zero T

	doc, found, err := r.engine.FindByID(ctx, id)
	if err != nil {
		return zero, false, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	if !found {
		return zero, false, nil
	}

	entity, err = r.codec.FromDocument(doc)
	if err != nil {
		return zero, false, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("decode: %v", err)), id.String())
	}

	return entity, true, nil
}

// DeleteByID removes the document at id (if any) and notifies the index
// manager. existed reports whether a document was actually removed.
func (r *Repository[T]) DeleteByID(ctx context.Context, id docid.ID) (existed bool, err error) {
	doc, ok, err := r.engine.Delete(ctx, id)
	if err != nil {
		return false, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	if !ok {
		return false, nil
	}

	if err := r.indexes.OnDelete(id, doc); err != nil {
		return true, r.wrapErr(err, id.String())
	}

	return true, nil
}

func (r *Repository[T]) decodeAll(entries []storage.Entry) ([]T, error) {
	out := make([]T, 0, len(entries))

	for _, e := range entries {
		entity, err := r.codec.FromDocument(e.Doc)
		if err != nil {
			return nil, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("decode: %v", err)), e.ID.String())
		}

		out = append(out, entity)
	}

	return out, nil
}

// FindAll returns every stored entity in primary-key order.
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	entries, err := r.engine.FindAll(ctx)
	if err != nil {
		return nil, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), "")
	}

	return r.decodeAll(entries)
}

// FindAllPaged returns a page of stored entities in primary-key order.
func (r *Repository[T]) FindAllPaged(ctx context.Context, skip, limit int) ([]T, error) {
	entries, err := r.engine.FindAllRange(ctx, skip, limit)
	if err != nil {
		return nil, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), "")
	}

	return r.decodeAll(entries)
}

// Exists reports whether id is currently present.
func (r *Repository[T]) Exists(ctx context.Context, id docid.ID) (bool, error) {
	ok, err := r.engine.Exists(ctx, id)
	if err != nil {
		return false, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	return ok, nil
}

// Count returns the total number of live documents.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	n, err := r.engine.Count(ctx)
	if err != nil {
		return 0, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), "")
	}

	return n, nil
}

// FindAllFiltered streams storage, applies f, then paginates. Index-aware
// planning is permitted by the spec but not required for correctness; this
// implementation always streams.
func (r *Repository[T]) FindAllFiltered(ctx context.Context, f filter.Filter, skip, limit int) ([]T, error) {
	entries, err := r.engine.FindAll(ctx)
	if err != nil {
		return nil, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), "")
	}

	var matched []storage.Entry

	for _, e := range entries {
		ok, err := filter.Evaluate(e.Doc, f)
		if err != nil {
			return nil, r.wrapErr(mlerrors.New(mlerrors.KindInvalidQuery, err.Error()), "")
		}

		if ok {
			matched = append(matched, e)
		}
	}

	if skip < 0 {
		skip = 0
	}

	if skip >= len(matched) {
		return []T{}, nil
	}

	matched = matched[skip:]

	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return r.decodeAll(matched)
}

// CountFiltered returns the number of live documents matching f. If f is
// exactly one equality pair on a field with a registered hash index, the
// count is served from the index in effectively constant time; otherwise
// it streams with a predicate.
func (r *Repository[T]) CountFiltered(ctx context.Context, f filter.Filter) (int, error) {
	if field, value, ok := singleEqualityField(f); ok {
		if idx, ok := r.hashIndexes[field]; ok {
			return len(idx.FindEquals(value)), nil
		}
	}

	n, err := r.engine.CountMatching(ctx, func(doc *document.Document) bool {
		ok, _ := filter.Evaluate(doc, f)

		return ok
	})
	if err != nil {
		return 0, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), "")
	}

	return n, nil
}

// singleEqualityField reports whether f is exactly one field mapped to a
// literal (non-operator-map) value, returning that field/value pair.
func singleEqualityField(f filter.Filter) (string, document.Value, bool) {
	if len(f) != 1 {
		return "", nil, false
	}

	for k, v := range f {
		if len(k) > 0 && k[0] == '$' {
			return "", nil, false
		}

		if _, isMap := v.(map[string]any); isMap {
			return "", nil, false
		}

		dv, ok := toDocumentValue(v)
		if !ok {
			return "", nil, false
		}

		return k, dv, true
	}

	return "", nil, false
}

func toDocumentValue(v any) (document.Value, bool) {
	switch val := v.(type) {
	case document.Value:
		return val, true
	case nil:
		return document.Null{}, true
	case bool:
		return document.Bool(val), true
	case int:
		return document.Int(val), true
	case int64:
		return document.Int(val), true
	case float64:
		return document.Float(val), true
	case string:
		return document.Text(val), true
	default:
		return nil, false
	}
}

// UpdateByID applies ops directly to storage, bypassing index maintenance
// (documented limitation, spec §4.7/§9: indexes catch up on the entry's
// next full Save). existed reports whether a document was present at id.
func (r *Repository[T]) UpdateByID(ctx context.Context, id docid.ID, ops update.Operations) (existed bool, err error) {
	existed, err = r.engine.UpdateFields(ctx, id, ops)
	if err != nil {
		return existed, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
	}

	return existed, nil
}

// FindByEnumField returns every entity whose field equals value, preferring
// a registered hash secondary index and falling back to a full scan.
func (r *Repository[T]) FindByEnumField(ctx context.Context, field string, value document.Value) ([]T, error) {
	if idx, ok := r.hashIndexes[field]; ok {
		ids := idx.FindEquals(value)

		out := make([]T, 0, len(ids))

		for _, id := range ids {
			doc, found, err := r.engine.FindByID(ctx, id)
			if err != nil {
				return nil, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
			}

			if !found {
				continue
			}

			entity, err := r.codec.FromDocument(doc)
			if err != nil {
				return nil, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("decode: %v", err)), id.String())
			}

			out = append(out, entity)
		}

		return out, nil
	}

	return r.FindAllFiltered(ctx, filter.Filter{field: value}, 0, 0)
}

// FindByRange returns every entity whose field falls within [min, max],
// preferring a registered ordered secondary index and falling back to a
// full scan.
func (r *Repository[T]) FindByRange(ctx context.Context, field string, min, max document.Value) ([]T, error) {
	if idx, ok := r.orderedByName[field]; ok {
		ids := idx.FindRange(nil, min, max, true, true)

		out := make([]T, 0, len(ids))

		for _, id := range ids {
			doc, found, err := r.engine.FindByID(ctx, id)
			if err != nil {
				return nil, r.wrapErr(mlerrors.New(mlerrors.KindStorage, err.Error()), id.String())
			}

			if !found {
				continue
			}

			entity, err := r.codec.FromDocument(doc)
			if err != nil {
				return nil, r.wrapErr(mlerrors.New(mlerrors.KindCodec, fmt.Sprintf("decode: %v", err)), id.String())
			}

			out = append(out, entity)
		}

		return out, nil
	}

	rangeFilter := filter.Filter{field: map[string]any{"$gte": min, "$lte": max}}

	return r.FindAllFiltered(ctx, rangeFilter, 0, 0)
}
