package collection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/filter"
	"github.com/minileaf/minileaf/pkg/index"
	"github.com/minileaf/minileaf/pkg/mlerrors"
	"github.com/minileaf/minileaf/pkg/repo"
	"github.com/minileaf/minileaf/pkg/storage"
)

// IndexKind selects which concrete index.Index CreateIndex builds.
type IndexKind int

const (
	// IndexKindHash builds a hash secondary index (equality lookups only,
	// spec §4.4).
	IndexKindHash IndexKind = iota
	// IndexKindOrdered builds a compound-key ordered secondary index
	// (equality-prefix + trailing range, spec §4.4).
	IndexKindOrdered
	// IndexKindTTL builds a single-field TTL index that expires documents
	// in the background (spec §4.4).
	IndexKindTTL
)

// IndexSpec describes an index to build via CreateIndex.
type IndexSpec struct {
	// Fields are the document paths the index is keyed on. Hash and TTL
	// indexes use exactly one field; ordered indexes support a compound
	// key of one or more fields.
	Fields []string
	// Unique rejects a second document mapping to an already-indexed key
	// (ignored for TTL indexes).
	Unique bool
	Kind   IndexKind
	// Partial, if non-nil, wraps the built index so only documents
	// matching the filter are indexed (spec §4.4).
	Partial filter.Filter
	// After is the TTL index's expiry duration, measured from the value
	// stored at Fields[0]. Required for IndexKindTTL.
	After time.Duration
}

// indexName mirrors Mongo's default naming: each field suffixed with "_1".
func indexName(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + "_1"
	}

	return strings.Join(parts, "_")
}

// Collection is a typed, opened collection: a repo.Repository[T] wired to
// its collectionState's storage engine and index manager, plus the admin
// operations of spec §4.8.
type Collection[T any] struct {
	handle *Handle
	state  *collectionState
	repo   *repo.Repository[T]

	buildMu sync.Mutex // serializes concurrent CreateIndex calls
}

// Open opens (or reuses) the named collection against h, returning a
// Collection[T] whose documents are encoded/decoded via codec. Reopening an
// already-open name with a different id variant returns
// mlerrors.ErrCollectionIDTypeMismatch.
func Open[T any](ctx context.Context, h *Handle, name string, registry docid.Registry, codec repo.Codec[T]) (*Collection[T], error) {
	st, err := h.stateFor(ctx, name, registry.Variant())
	if err != nil {
		return nil, err
	}

	r := repo.New(repo.Config[T]{
		Name:            name,
		Engine:          st.engine,
		Indexes:         st.indexes,
		Codec:           codec,
		Registry:        registry,
		MaxDocumentSize: h.cfg.MaxDocumentSize,
	})

	return &Collection[T]{
		handle: h,
		state:  st,
		repo:   r,
	}, nil
}

// Repository returns the underlying repo.Repository[T] for document CRUD
// and queries (spec §4.7); Collection itself only adds admin operations.
func (c *Collection[T]) Repository() *repo.Repository[T] {
	return c.repo
}

// CreateIndex builds and registers a new index per spec, returning its
// name. Existing documents are iterated and inserted into the new index
// before it becomes visible to queries; the build runs on the caller's
// goroutine unless mlconfig.Config.BackgroundIndexBuild is set, in which
// case it runs on a background worker and CreateIndex returns once the
// worker has been started, not once it has finished (the name is still
// returned synchronously since it's derived from spec, not the build).
func (c *Collection[T]) CreateIndex(ctx context.Context, spec IndexSpec) (string, error) {
	if len(spec.Fields) == 0 {
		return "", mlerrors.New(mlerrors.KindInvalidQuery, "create_index requires at least one field")
	}

	name := indexName(spec.Fields)

	if _, exists := c.state.indexes.Get(name); exists {
		return "", mlerrors.New(mlerrors.KindIndexAlreadyExists, fmt.Sprintf("index %q already exists", name), mlerrors.WithIndex(name))
	}

	build := func() error {
		c.buildMu.Lock()
		defer c.buildMu.Unlock()

		return c.buildIndex(ctx, name, spec)
	}

	if !c.handle.cfg.BackgroundIndexBuild {
		if err := build(); err != nil {
			return "", err
		}

		return name, nil
	}

	go func() {
		if err := build(); err != nil {
			c.handle.logger.Error().Str("collection", c.state.name).Str("index", name).Err(err).Msg("background index build failed")
		}
	}()

	return name, nil
}

// buildIndex constructs the concrete index, populates it from every
// existing document, and only then registers it into the manager — so a
// build that fails partway never leaves a partially-populated index
// visible to queries (spec §4.8/§7).
func (c *Collection[T]) buildIndex(ctx context.Context, name string, spec IndexSpec) error {
	var built index.Index

	switch spec.Kind {
	case IndexKindHash:
		built = index.NewHashIndex(name, spec.Fields[0], spec.Unique)
	case IndexKindOrdered:
		built = index.NewOrderedIndex(name, spec.Fields, spec.Unique)
	case IndexKindTTL:
		if spec.After <= 0 {
			return mlerrors.New(mlerrors.KindInvalidQuery, "ttl index requires a positive After duration")
		}

		built = index.NewTTLIndex(name, spec.Fields[0], spec.After, c.expireByID)
	default:
		return mlerrors.New(mlerrors.KindInvalidQuery, fmt.Sprintf("unknown index kind %d", spec.Kind))
	}

	if spec.Partial != nil {
		built = index.NewPartialIndex(built, spec.Partial)
	}

	entries, err := c.state.engine.FindAll(ctx)
	if err != nil {
		return mlerrors.New(mlerrors.KindStorage, err.Error())
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			_ = built.Drop() //nolint:errcheck // build aborted, release the half-built index's resources

			return ctx.Err()
		default:
		}

		if err := built.OnInsert(e.ID, e.Doc); err != nil {
			_ = built.Drop() //nolint:errcheck // build failed, release resources before surfacing the error

			return mlerrors.Wrap(err, mlerrors.WithIndex(name), mlerrors.WithDocumentID(e.ID.String()))
		}
	}

	if err := c.state.indexes.AddIndex(built); err != nil {
		_ = built.Drop() //nolint:errcheck

		return err
	}

	switch idx := built.(type) {
	case *index.HashIndex:
		c.repo.RegisterHashIndex(spec.Fields[0], idx)
	case *index.OrderedIndex:
		c.repo.RegisterOrderedIndex(spec.Fields[0], idx)
	}

	return nil
}

// expireByID is the ExpireFunc a TTL index calls back with an id whose
// expiry has elapsed; it deletes the document and notifies every index
// (spec §4.4 TTL), logging (never failing loudly) on error per spec §7.
func (c *Collection[T]) expireByID(id docid.ID) {
	if _, err := c.repo.DeleteByID(context.Background(), id); err != nil {
		c.handle.logger.Warn().Str("collection", c.state.name).Str("id", id.String()).Err(err).Msg("ttl expiry delete failed")
	}
}

// DropIndex removes the named index. The primary index cannot be dropped
// (spec §4.8).
func (c *Collection[T]) DropIndex(name string) error {
	if name == index.PrimaryIndexName {
		return mlerrors.New(mlerrors.KindInvalidQuery, "the primary index cannot be dropped", mlerrors.WithIndex(name))
	}

	return c.state.indexes.DropIndex(name)
}

// ListIndexes returns the name of every index currently registered,
// including the primary index.
func (c *Collection[T]) ListIndexes() []string {
	return c.state.indexes.Names()
}

// Stats reports document count, storage/WAL bytes, and last-snapshot
// metadata (spec §4.8).
func (c *Collection[T]) Stats(ctx context.Context) (storage.Stats, error) {
	st, err := c.state.engine.Stats(ctx)
	if err != nil {
		return storage.Stats{}, mlerrors.New(mlerrors.KindStorage, err.Error())
	}

	return st, nil
}

// Compact rewrites the on-disk representation to drop garbage, delegating
// to the storage engine (spec §4.8).
func (c *Collection[T]) Compact(ctx context.Context) error {
	if err := c.state.engine.Compact(ctx); err != nil {
		return mlerrors.New(mlerrors.KindStorage, err.Error())
	}

	return nil
}

// runSnapshotter drives the background autosave cadence (spec §6
// autosave_interval): on each tick it calls Compact on the engine, logging
// (never panicking) on failure, until Close signals snapshotStop. It closes
// snapshotDone when it returns.
func (h *Handle) runSnapshotter(st *collectionState) {
	defer close(st.snapshotDone)

	ticker := time.NewTicker(h.cfg.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.snapshotStop:
			return
		case <-ticker.C:
			if err := st.engine.Compact(context.Background()); err != nil {
				h.logger.Warn().Str("collection", st.name).Err(err).Msg("background snapshot failed")
			}
		}
	}
}
