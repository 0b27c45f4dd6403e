package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	natefinchatomic "github.com/natefinch/atomic"

	"github.com/minileaf/minileaf/pkg/crypter"
	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/fs"
	"github.com/minileaf/minileaf/pkg/update"
)

// walRecordType is the WAL entry's operation tag (spec §6).
type walRecordType string

const (
	walInsert walRecordType = "insert"
	walUpdate walRecordType = "update"
	walDelete walRecordType = "delete"
)

// walRecord is one WAL entry, JSON-encoded and written inside a
// [u32 length] frame; with a Crypter the JSON is AEAD-sealed inside the
// frame (spec §4.3.2/§6).
type walRecord struct {
	Type      walRecordType   `json:"type"`
	TimestampMs int64         `json:"timestamp"`
	ID        string          `json:"id"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// snapshotEntry is one element of the snapshot file's document array (§6).
type snapshotEntry struct {
	ID  string          `json:"_id"`
	Doc json.RawMessage `json:"doc"`
}

// WALSnapshotConfig configures a WALSnapshotEngine.
type WALSnapshotConfig struct {
	// FS is the filesystem the engine reads/writes through.
	FS fs.FS
	// SnapshotPath and WALPath are the on-disk files (spec §6:
	// <name>.snapshot, <name>.wal).
	SnapshotPath string
	WALPath      string
	// Variant is the identifier variant this collection stores; used to
	// parse WAL/snapshot ids on recovery.
	Variant docid.Variant
	// Crypter, if non-nil, encrypts WAL records and the snapshot file.
	Crypter *crypter.Crypter
	// SyncOnWrite controls whether every WAL append is followed by fsync
	// before the in-memory map is updated (spec §5 durability). Default
	// true; set false only for memory_only-adjacent configurations that
	// still want WAL replay but not fsync latency.
	SyncOnWrite bool
	// WALMaxBytesBeforeSnapshot triggers a snapshot once the WAL exceeds
	// this many bytes. 0 disables the size-triggered snapshot.
	WALMaxBytesBeforeSnapshot int64
	// Issue receives recoverable WAL/snapshot corruption reports
	// encountered during recovery.
	Issue IssueFunc
}

// WALSnapshotEngine is the WAL+snapshot engine (spec §4.3.2): the full
// dataset lives in an in-memory map mirrored by a snapshot file plus a
// write-ahead log. Every mutation appends a typed WAL record, fsyncs, then
// applies to the map. The open question in spec §9 (length-prefixed vs.
// concatenated encrypted WAL blocks) is resolved here as length-prefixed
// for both plaintext and encrypted records, so a single malformed tail
// record can't corrupt recovery of prior records.
type WALSnapshotEngine struct {
	cfg WALSnapshotConfig

	mu   sync.RWMutex
	docs map[string]*document.Document
	ids  map[string]docid.ID

	walFile  fs.File
	walBytes int64

	lastSnapshotUnix int64
	closed           bool
}

var _ Engine = (*WALSnapshotEngine)(nil)

// OpenWALSnapshotEngine loads the snapshot (if present), replays the WAL,
// and opens the WAL file for appending.
func OpenWALSnapshotEngine(ctx context.Context, cfg WALSnapshotConfig) (*WALSnapshotEngine, error) {
	if cfg.FS == nil {
		return nil, fmt.Errorf("storage: WALSnapshotConfig.FS is required")
	}

	e := &WALSnapshotEngine{
		cfg:  cfg,
		docs: make(map[string]*document.Document),
		ids:  make(map[string]docid.ID),
	}

	if err := e.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("storage: load snapshot: %w", err)
	}

	if err := e.replayWAL(); err != nil {
		return nil, fmt.Errorf("storage: replay wal: %w", err)
	}

	walFile, err := cfg.FS.OpenFile(cfg.WALPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open wal: %w", err)
	}

	e.walFile = walFile

	if info, err := walFile.Stat(); err == nil {
		e.walBytes = info.Size()
	}

	return e, nil
}

func (e *WALSnapshotEngine) loadSnapshot() error {
	exists, err := e.cfg.FS.Exists(e.cfg.SnapshotPath)
	if err != nil {
		return err
	}

	if !exists {
		return nil
	}

	raw, err := e.cfg.FS.ReadFile(e.cfg.SnapshotPath)
	if err != nil {
		return err
	}

	if e.cfg.Crypter != nil {
		raw, err = e.cfg.Crypter.Open(raw, nil)
		if err != nil {
			return fmt.Errorf("decrypt snapshot: %w", err)
		}
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	for _, se := range entries {
		id, err := docid.Parse(e.cfg.Variant, se.ID)
		if err != nil {
			reportIssue(e.cfg.Issue, Issue{Message: "snapshot: unparseable id", Err: err})

			continue
		}

		doc, err := document.Unmarshal(se.Doc)
		if err != nil {
			reportIssue(e.cfg.Issue, Issue{Message: "snapshot: unparseable document", Err: err})

			continue
		}

		e.docs[se.ID] = doc
		e.ids[se.ID] = id
	}

	if info, err := e.cfg.FS.Stat(e.cfg.SnapshotPath); err == nil {
		e.lastSnapshotUnix = info.ModTime().Unix()
	}

	return nil
}

// replayWAL reads length-framed records one at a time, stopping at the
// first unparseable record (a truncated tail from a crash mid-write) rather
// than discarding valid earlier records.
func (e *WALSnapshotEngine) replayWAL() error {
	exists, err := e.cfg.FS.Exists(e.cfg.WALPath)
	if err != nil {
		return err
	}

	if !exists {
		return nil
	}

	f, err := e.cfg.FS.Open(e.cfg.WALPath)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)

	var offset int64

	for {
		payload, err := crypter.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			reportIssue(e.cfg.Issue, Issue{Offset: offset, Message: "wal: truncated or corrupt record, stopping replay", Err: err})

			return nil
		}

		plaintext := payload
		if e.cfg.Crypter != nil {
			plaintext, err = e.cfg.Crypter.Open(payload, nil)
			if err != nil {
				reportIssue(e.cfg.Issue, Issue{Offset: offset, Message: "wal: AEAD auth failure, stopping replay", Err: err})

				return nil
			}
		}

		var rec walRecord
		if err := json.Unmarshal(plaintext, &rec); err != nil {
			reportIssue(e.cfg.Issue, Issue{Offset: offset, Message: "wal: malformed json record, stopping replay", Err: err})

			return nil
		}

		e.applyRecord(rec)

		offset += int64(4 + len(payload))
	}
}

func (e *WALSnapshotEngine) applyRecord(rec walRecord) {
	id, err := docid.Parse(e.cfg.Variant, rec.ID)
	if err != nil {
		reportIssue(e.cfg.Issue, Issue{Message: "wal: unparseable id, skipping record", Err: err})

		return
	}

	switch rec.Type {
	case walInsert, walUpdate:
		doc, err := document.Unmarshal(rec.Document)
		if err != nil {
			reportIssue(e.cfg.Issue, Issue{Message: "wal: unparseable document, skipping record", Err: err})

			return
		}

		e.docs[rec.ID] = doc
		e.ids[rec.ID] = id
	case walDelete:
		delete(e.docs, rec.ID)
		delete(e.ids, rec.ID)
	}
}

func (e *WALSnapshotEngine) appendWAL(rec walRecord) error {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal wal record: %w", err)
	}

	var n int

	if e.cfg.Crypter != nil {
		n, err = e.cfg.Crypter.FrameSeal(e.walFile, plaintext, nil)
	} else {
		n, err = crypter.WriteFrame(e.walFile, plaintext)
	}

	if err != nil {
		return fmt.Errorf("append wal: %w", err)
	}

	if e.cfg.SyncOnWrite {
		if err := e.walFile.Sync(); err != nil {
			return fmt.Errorf("sync wal: %w", err)
		}
	}

	e.walBytes += int64(n)

	return nil
}

func (e *WALSnapshotEngine) maybeSnapshotLocked(ctx context.Context) {
	if e.cfg.WALMaxBytesBeforeSnapshot <= 0 {
		return
	}

	if e.walBytes < e.cfg.WALMaxBytesBeforeSnapshot {
		return
	}

	if err := e.snapshotLocked(ctx); err != nil {
		reportIssue(e.cfg.Issue, Issue{Message: "snapshot: size-triggered snapshot failed", Err: err})
	}
}

// Snapshot serializes the in-memory map to the snapshot file (fsync, atomic
// replace) and truncates the WAL. Exported so a background task (§5) can
// invoke it on a schedule in addition to the size-triggered path.
func (e *WALSnapshotEngine) Snapshot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	return e.snapshotLocked(ctx)
}

func (e *WALSnapshotEngine) snapshotLocked(_ context.Context) error {
	ids := make([]string, 0, len(e.docs))
	for idStr := range e.docs {
		ids = append(ids, idStr)
	}

	sort.Strings(ids)

	entries := make([]snapshotEntry, 0, len(ids))

	for _, idStr := range ids {
		docJSON, err := document.Marshal(e.docs[idStr])
		if err != nil {
			return fmt.Errorf("marshal document %q: %w", idStr, err)
		}

		entries = append(entries, snapshotEntry{ID: idStr, Doc: docJSON})
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if e.cfg.Crypter != nil {
		raw, err = e.cfg.Crypter.Seal(raw, nil)
		if err != nil {
			return fmt.Errorf("encrypt snapshot: %w", err)
		}
	}

	if err := natefinchatomic.WriteFile(e.cfg.SnapshotPath, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := e.truncateWALLocked(); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}

	e.lastSnapshotUnix = clockNow().Unix()

	return nil
}

func (e *WALSnapshotEngine) truncateWALLocked() error {
	if err := e.walFile.Close(); err != nil {
		return err
	}

	f, err := e.cfg.FS.OpenFile(e.cfg.WALPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	e.walFile = f
	e.walBytes = 0

	return nil
}

func (e *WALSnapshotEngine) Upsert(ctx context.Context, id docid.ID, doc *document.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	key := id.String()

	recType := walUpdate
	if _, exists := e.docs[key]; !exists {
		recType = walInsert
	}

	docJSON, err := document.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: marshal document: %w", err)
	}

	if err := e.appendWAL(walRecord{Type: recType, TimestampMs: clockNow().UnixMilli(), ID: key, Document: docJSON}); err != nil {
		return err
	}

	e.docs[key] = document.Clone(doc)
	e.ids[key] = id

	e.maybeSnapshotLocked(ctx)

	return nil
}

func (e *WALSnapshotEngine) FindByID(_ context.Context, id docid.ID) (*document.Document, bool, error) {
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

func (e *WALSnapshotEngine) UpdateFields(ctx context.Context, id docid.ID, ops update.Operations) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrClosed
	}

	key := id.String()

	doc, ok := e.docs[key]
	if !ok {
		return false, nil
	}

	working := document.Clone(doc)
	if err := update.Apply(working, ops); err != nil {
		return true, err
	}

	docJSON, err := document.Marshal(working)
	if err != nil {
		return true, fmt.Errorf("storage: marshal document: %w", err)
	}

	if err := e.appendWAL(walRecord{Type: walUpdate, TimestampMs: clockNow().UnixMilli(), ID: key, Document: docJSON}); err != nil {
		return true, err
	}

	e.docs[key] = working

	e.maybeSnapshotLocked(ctx)

	return true, nil
}

func (e *WALSnapshotEngine) Delete(ctx context.Context, id docid.ID) (*document.Document, bool, error) {
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

	if err := e.appendWAL(walRecord{Type: walDelete, TimestampMs: clockNow().UnixMilli(), ID: key}); err != nil {
		return nil, true, err
	}

	delete(e.docs, key)
	delete(e.ids, key)

	e.maybeSnapshotLocked(ctx)

	return doc, true, nil
}

func (e *WALSnapshotEngine) FindAll(ctx context.Context) ([]Entry, error) {
	return e.FindAllRange(ctx, 0, 0)
}

func (e *WALSnapshotEngine) FindAllRange(_ context.Context, skip, limit int) ([]Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}

	ids := make([]docid.ID, 0, len(e.ids))
	for _, id := range e.ids {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	if skip > len(ids) {
		skip = len(ids)
	}

	ids = ids[skip:]

	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, Entry{ID: id, Doc: document.Clone(e.docs[id.String()])})
	}

	return entries, nil
}

func (e *WALSnapshotEngine) Count(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, ErrClosed
	}

	return len(e.docs), nil
}

func (e *WALSnapshotEngine) CountMatching(_ context.Context, pred func(*document.Document) bool) (int, error) {
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

func (e *WALSnapshotEngine) Exists(_ context.Context, id docid.ID) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false, ErrClosed
	}

	_, ok := e.docs[id.String()]

	return ok, nil
}

func (e *WALSnapshotEngine) Compact(ctx context.Context) error {
	return e.Snapshot(ctx)
}

func (e *WALSnapshotEngine) Stats(_ context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshotExists, _ := e.cfg.FS.Exists(e.cfg.SnapshotPath)

	var storageBytes int64
	if info, err := e.cfg.FS.Stat(e.cfg.SnapshotPath); err == nil {
		storageBytes = info.Size()
	}

	return Stats{
		DocumentCount:      len(e.docs),
		StorageBytes:       storageBytes,
		WALBytes:           e.walBytes,
		LastSnapshotUnix:   e.lastSnapshotUnix,
		LastSnapshotExists: snapshotExists,
	}, nil
}

// Close attempts a final snapshot (per §5: "a final snapshot is attempted
// on close for the WAL engine") and then releases the WAL file handle.
func (e *WALSnapshotEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	snapErr := e.snapshotLocked(ctx)

	closeErr := e.walFile.Close()

	e.closed = true

	if snapErr != nil {
		return fmt.Errorf("storage: final snapshot on close: %w", snapErr)
	}

	return closeErr
}

