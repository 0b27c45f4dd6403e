// Package collection implements minileaf's top-level entry point: a
// Handle that opens/creates named collections on first use, and
// Collection[T], which wires a repo.Repository[T] to its storage engine
// and index manager, owning the collection's background tasks and admin
// operations (spec §4.8).
package collection

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/minileaf/minileaf/pkg/crypter"
	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/fs"
	"github.com/minileaf/minileaf/pkg/index"
	"github.com/minileaf/minileaf/pkg/mlconfig"
	"github.com/minileaf/minileaf/pkg/mlerrors"
	"github.com/minileaf/minileaf/pkg/storage"
)

// Handle owns every collection opened against one mlconfig.Config. It is
// the top-level entry point: construct one per data directory, then call
// Open for each typed collection.
type Handle struct {
	cfg    mlconfig.Config
	fsys   fs.FS
	crypt  *crypter.Crypter
	logger zerolog.Logger
	closed bool

	mu      sync.Mutex
	entries map[string]*collectionState
}

// collectionState is the non-generic, per-name state shared by every
// Collection[T] opened against the same underlying name: the storage engine
// and index manager don't depend on T.
type collectionState struct {
	name    string
	variant docid.Variant
	engine  storage.Engine
	indexes *index.Manager

	snapshotStop chan struct{}
	snapshotDone chan struct{}
}

// Open validates cfg and returns a Handle ready to open collections.
// Collections themselves are opened lazily via collection.Open[T].
func Open(ctx context.Context, cfg mlconfig.Config) (*Handle, error) {
	if ctx == nil {
		return nil, fmt.Errorf("collection: context is nil")
	}

	// The engine is chosen from the caller's CacheSize (positive: LRU+log,
	// zero: WAL+snapshot) before WithDefaults fills a zero CacheSize.
	useLRU := cfg.CacheSize > 0

	cfg = cfg.WithDefaults()
	if !useLRU {
		cfg.CacheSize = 0
	}

	if !cfg.MemoryOnly && cfg.DataDir == "" {
		return nil, fmt.Errorf("collection: mlconfig.Config.DataDir is required unless MemoryOnly is set")
	}

	var crypt *crypter.Crypter

	if len(cfg.EncryptionKey) > 0 {
		c, err := crypter.New(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("collection: %w", err)
		}

		crypt = c
	}

	fsys := fs.NewReal()

	if !cfg.MemoryOnly {
		if err := fsys.MkdirAll(filepath.Join(cfg.DataDir, "collections"), 0o750); err != nil {
			return nil, fmt.Errorf("collection: creating data directory: %w", err)
		}
	}

	return &Handle{
		cfg:     cfg,
		fsys:    fsys,
		crypt:   crypt,
		logger:  *cfg.Logger,
		entries: make(map[string]*collectionState),
	}, nil
}

// dataPaths returns the .data/.wal/.snapshot paths for name (spec §6).
func (h *Handle) dataPaths(name string) (dataPath, walPath, snapshotPath string) {
	dir := filepath.Join(h.cfg.DataDir, "collections")

	return filepath.Join(dir, name+".data"),
		filepath.Join(dir, name+".wal"),
		filepath.Join(dir, name+".snapshot")
}

// stateFor returns the shared collectionState for name, opening its
// storage engine and primary index on first use. Returns
// mlerrors.ErrCollectionIDTypeMismatch if name was previously opened with a
// different id variant.
func (h *Handle) stateFor(ctx context.Context, name string, variant docid.Variant) (*collectionState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, storage.ErrClosed
	}

	if st, ok := h.entries[name]; ok {
		if st.variant != variant {
			return nil, mlerrors.New(
				mlerrors.KindCollectionIDTypeMismatch,
				fmt.Sprintf("collection %q was opened with id variant %s, now requested as %s", name, st.variant, variant),
				mlerrors.WithCollection(name),
			)
		}

		return st, nil
	}

	engine, err := h.openEngine(ctx, name, variant)
	if err != nil {
		return nil, fmt.Errorf("collection: opening engine for %q: %w", name, err)
	}

	mgr := index.NewManager()
	if err := mgr.AddIndex(index.NewPrimaryIndex()); err != nil {
		return nil, fmt.Errorf("collection: registering primary index for %q: %w", name, err)
	}

	st := &collectionState{
		name:         name,
		variant:      variant,
		engine:       engine,
		indexes:      mgr,
		snapshotStop: make(chan struct{}),
		snapshotDone: make(chan struct{}),
	}

	h.entries[name] = st

	go h.runSnapshotter(st)

	return st, nil
}

func (h *Handle) openEngine(ctx context.Context, name string, variant docid.Variant) (storage.Engine, error) {
	if h.cfg.MemoryOnly {
		return storage.NewMemEngine(), nil
	}

	dataPath, walPath, snapshotPath := h.dataPaths(name)

	issue := func(i storage.Issue) {
		h.logger.Warn().Str("collection", name).Int64("offset", i.Offset).Err(i.Err).Msg(i.Message)
	}

	if h.cfg.CacheSize > 0 {
		return storage.OpenLRULogEngine(ctx, storage.LRULogConfig{
			FS:          h.fsys,
			DataPath:    dataPath,
			Variant:     variant,
			Crypter:     h.crypt,
			CacheSize:   h.cfg.CacheSize,
			SyncOnWrite: h.cfg.SyncOnWriteOrDefault(),
			Issue:       issue,
		})
	}

	return storage.OpenWALSnapshotEngine(ctx, storage.WALSnapshotConfig{
		FS:                        h.fsys,
		SnapshotPath:              snapshotPath,
		WALPath:                   walPath,
		Variant:                   variant,
		Crypter:                   h.crypt,
		SyncOnWrite:               h.cfg.SyncOnWriteOrDefault(),
		WALMaxBytesBeforeSnapshot: h.cfg.WALMaxBytesBeforeSnapshot,
		Issue:                     issue,
	})
}

// Close stops every collection's background tasks and closes its storage
// engine. Safe to call more than once; calls after the first return nil.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true

	var firstErr error

	for _, st := range h.entries {
		close(st.snapshotStop)
		<-st.snapshotDone

		for _, name := range st.indexes.Names() {
			_ = st.indexes.DropIndex(name) //nolint:errcheck // best-effort resource release
		}

		if err := st.engine.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("collection: closing %q: %w", st.name, err)
		}
	}

	return firstErr
}
