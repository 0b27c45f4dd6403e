package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/minileaf/minileaf/pkg/crypter"
	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/fs"
	"github.com/minileaf/minileaf/pkg/update"
)

// deletionMarkerPayload is the two-byte document payload (spec §4.3.3) that
// marks an id as deleted; its presence at a later offset shadows any
// earlier record for the same id.
var deletionMarkerPayload = []byte("{}")

// Sanity bounds (spec §4.3.3): reject and stop indexing past these.
const (
	maxIDLen        = 10_000
	maxDocLen       = 100 * 1024 * 1024
	maxEncryptedLen = maxDocLen + maxIDLen + 100
)

// LRULogConfig configures an LRULogEngine.
type LRULogConfig struct {
	// FS is the filesystem the engine reads/writes through.
	FS fs.FS
	// DataPath is the append-only data file (spec §6: <name>.data).
	DataPath string
	// Variant is the identifier variant this collection stores.
	Variant docid.Variant
	// Crypter, if non-nil, encrypts each data-file record.
	Crypter *crypter.Crypter
	// CacheSize bounds the materialized-document LRU cache by document
	// count.
	CacheSize int
	// SyncOnWrite fsyncs after every append before the offset map is
	// updated (spec §4.3.3 ordering requirement).
	SyncOnWrite bool
	// Issue receives recoverable corruption reports during index rebuild
	// and reads.
	Issue IssueFunc
}

// LRULogEngine is the LRU-cached append-only log engine (spec §4.3.3): the
// authoritative store is an append-only data file; RAM holds an id→offset
// map for every live id plus an LRU cache of materialized documents bounded
// by document count.
type LRULogEngine struct {
	cfg LRULogConfig

	// mu guards the offset/id maps and the cache, and serializes the
	// append-boundary Seek+Write in appendRecord and the compaction rename;
	// concurrent position-addressed reads at already-known offsets use
	// ReadAt and need no file-level lock.
	mu sync.RWMutex

	file    fs.File
	offsets map[string]int64 // id.String() -> record start offset
	ids     map[string]docid.ID
	cache   *lru.Cache // id.String() -> *document.Document
}

var _ Engine = (*LRULogEngine)(nil)

// OpenLRULogEngine opens (creating if absent) the data file, rebuilds the
// offset index by scanning it sequentially, and constructs the bounded LRU
// cache.
func OpenLRULogEngine(_ context.Context, cfg LRULogConfig) (*LRULogEngine, error) {
	if cfg.FS == nil {
		return nil, fmt.Errorf("storage: LRULogConfig.FS is required")
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("storage: create lru cache: %w", err)
	}

	e := &LRULogEngine{
		cfg:     cfg,
		offsets: make(map[string]int64),
		ids:     make(map[string]docid.ID),
		cache:   cache,
	}

	f, err := cfg.FS.OpenFile(cfg.DataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open data file: %w", err)
	}

	e.file = f

	if err := e.rebuildIndex(); err != nil {
		f.Close()

		return nil, fmt.Errorf("storage: rebuild index: %w", err)
	}

	return e, nil
}

// record is one decoded data-file record.
type record struct {
	id      string
	payload []byte // document JSON, or deletionMarkerPayload
	offset  int64
	size    int64 // total bytes on disk, for seeking past it
}

func (e *LRULogEngine) rebuildIndex() error {
	var offset int64

	for {
		rec, err := e.readRecordAt(offset)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			reportIssue(e.cfg.Issue, Issue{Offset: offset, Message: "data file: stopping index rebuild at unparseable record", Err: err})

			return nil
		}

		if isDeletionMarker(rec.payload) {
			delete(e.offsets, rec.id)
		} else {
			e.offsets[rec.id] = rec.offset

			if id, err := docid.Parse(e.cfg.Variant, rec.id); err == nil {
				e.ids[rec.id] = id
			}
		}

		offset += rec.size
	}
}

func isDeletionMarker(payload []byte) bool {
	return len(payload) == len(deletionMarkerPayload) && string(payload) == string(deletionMarkerPayload)
}

// readRecordAt reads one record starting at offset, unencrypted layout
// [u32 id_len][id][u32 doc_len][doc] or encrypted [u32 total_len][AEAD].
func (e *LRULogEngine) readRecordAt(offset int64) (record, error) {
	if e.cfg.Crypter != nil {
		return e.readEncryptedRecordAt(offset)
	}

	return e.readPlainRecordAt(offset)
}

func (e *LRULogEngine) readPlainRecordAt(offset int64) (record, error) {
	var idLenBuf [4]byte
	if err := e.readAt(idLenBuf[:], offset); err != nil {
		return record{}, err
	}

	idLen := int64(binary.BigEndian.Uint32(idLenBuf[:]))
	if idLen < 0 || idLen > maxIDLen {
		return record{}, fmt.Errorf("storage: id_len %d out of bounds", idLen)
	}

	idBuf := make([]byte, idLen)
	if err := e.readAt(idBuf, offset+4); err != nil {
		return record{}, err
	}

	var docLenBuf [4]byte
	if err := e.readAt(docLenBuf[:], offset+4+idLen); err != nil {
		return record{}, err
	}

	docLen := int64(binary.BigEndian.Uint32(docLenBuf[:]))
	if docLen < 0 || docLen > maxDocLen {
		return record{}, fmt.Errorf("storage: doc_len %d out of bounds", docLen)
	}

	docBuf := make([]byte, docLen)
	if err := e.readAt(docBuf, offset+4+idLen+4); err != nil {
		return record{}, err
	}

	return record{
		id:      string(idBuf),
		payload: docBuf,
		offset:  offset,
		size:    4 + idLen + 4 + docLen,
	}, nil
}

func (e *LRULogEngine) readEncryptedRecordAt(offset int64) (record, error) {
	var lenBuf [4]byte
	if err := e.readAt(lenBuf[:], offset); err != nil {
		return record{}, err
	}

	totalLen := int64(binary.BigEndian.Uint32(lenBuf[:]))
	if totalLen < 0 || totalLen > maxEncryptedLen {
		return record{}, fmt.Errorf("storage: total_len %d out of bounds", totalLen)
	}

	sealed := make([]byte, totalLen)
	if err := e.readAt(sealed, offset+4); err != nil {
		return record{}, err
	}

	plaintext, err := e.cfg.Crypter.Open(sealed, nil)
	if err != nil {
		return record{}, fmt.Errorf("storage: AEAD auth failure: %w", err)
	}

	if len(plaintext) < 4 {
		return record{}, fmt.Errorf("storage: decrypted record too short")
	}

	idLen := int64(binary.BigEndian.Uint32(plaintext[:4]))
	if idLen < 0 || 4+idLen+4 > int64(len(plaintext)) {
		return record{}, fmt.Errorf("storage: id_len %d out of bounds", idLen)
	}

	id := plaintext[4 : 4+idLen]
	docLen := int64(binary.BigEndian.Uint32(plaintext[4+idLen : 4+idLen+4]))

	if docLen < 0 || 4+idLen+4+docLen != int64(len(plaintext)) {
		return record{}, fmt.Errorf("storage: doc_len %d inconsistent with record size", docLen)
	}

	doc := plaintext[4+idLen+4:]

	return record{
		id:      string(id),
		payload: doc,
		offset:  offset,
		size:    4 + totalLen,
	}, nil
}

// readAt reads exactly len(buf) bytes starting at offset using the file's
// ReadAt, a position-addressed read that doesn't touch the shared file
// offset — safe for concurrent readers at independent offsets (§4.3.3),
// unlike a Seek+Read pair on a file descriptor shared across goroutines.
func (e *LRULogEngine) readAt(buf []byte, offset int64) error {
	_, err := e.file.ReadAt(buf, offset)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}

		return err
	}

	return nil
}

// encodeRecord serializes id+payload into the on-disk layout, sealing with
// AEAD if configured.
func (e *LRULogEngine) encodeRecord(id string, payload []byte) ([]byte, error) {
	idBytes := []byte(id)

	inner := make([]byte, 0, 4+len(idBytes)+4+len(payload))
	inner = binary.BigEndian.AppendUint32(inner, uint32(len(idBytes)))
	inner = append(inner, idBytes...)
	inner = binary.BigEndian.AppendUint32(inner, uint32(len(payload)))
	inner = append(inner, payload...)

	if e.cfg.Crypter == nil {
		return inner, nil
	}

	sealed, err := e.cfg.Crypter.Seal(inner, nil)
	if err != nil {
		return nil, fmt.Errorf("encrypt record: %w", err)
	}

	out := make([]byte, 0, 4+len(sealed))
	out = binary.BigEndian.AppendUint32(out, uint32(len(sealed)))
	out = append(out, sealed...)

	return out, nil
}

// appendRecord writes id+payload at the end of the file, fsyncing if
// configured, and returns the record's start offset. The caller updates the
// offset map only after this returns successfully (§4.3.3 ordering).
func (e *LRULogEngine) appendRecord(id string, payload []byte) (int64, error) {
	encoded, err := e.encodeRecord(id, payload)
	if err != nil {
		return 0, err
	}

	offset, err := e.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek to end: %w", err)
	}

	if _, err := e.file.Write(encoded); err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}

	if e.cfg.SyncOnWrite {
		if err := e.file.Sync(); err != nil {
			return 0, fmt.Errorf("sync: %w", err)
		}
	}

	return offset, nil
}

func (e *LRULogEngine) Upsert(_ context.Context, id docid.ID, doc *document.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	docJSON, err := document.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: marshal document: %w", err)
	}

	key := id.String()

	offset, err := e.appendRecord(key, docJSON)
	if err != nil {
		return err
	}

	e.offsets[key] = offset
	e.ids[key] = id
	e.cache.Add(key, document.Clone(doc))

	return nil
}

func (e *LRULogEngine) FindByID(_ context.Context, id docid.ID) (*document.Document, bool, error) {
	key := id.String()

	e.mu.RLock()

	if cached, ok := e.cache.Get(key); ok {
		e.mu.RUnlock()

		return document.Clone(cached.(*document.Document)), true, nil
	}

	offset, ok := e.offsets[key]
	if !ok {
		e.mu.RUnlock()

		return nil, false, nil
	}

	rec, err := e.readRecordAt(offset)

	e.mu.RUnlock()

	if err != nil {
		reportIssue(e.cfg.Issue, Issue{Offset: offset, Message: "data file: corrupt record on read", Err: err})

		return nil, false, nil
	}

	if isDeletionMarker(rec.payload) {
		return nil, false, nil
	}

	doc, err := document.Unmarshal(rec.payload)
	if err != nil {
		reportIssue(e.cfg.Issue, Issue{Offset: offset, Message: "data file: unparseable document on read", Err: err})

		return nil, false, nil
	}

	// Populate the cache under exclusive access, re-checking so a write
	// that landed while we were reading wins (spec §5 cache coherency):
	// an Upsert has put its document in the cache, and a Delete or a moved
	// offset means the record read here is no longer current.
	e.mu.Lock()
	if fresher, ok := e.cache.Get(key); ok {
		doc = fresher.(*document.Document)
	} else if cur, live := e.offsets[key]; live && cur == offset {
		e.cache.Add(key, doc)
	}
	e.mu.Unlock()

	return document.Clone(doc), true, nil
}

func (e *LRULogEngine) UpdateFields(ctx context.Context, id docid.ID, ops update.Operations) (bool, error) {
	doc, ok, err := e.FindByID(ctx, id)
	if err != nil || !ok {
		return ok, err
	}

	if err := update.Apply(doc, ops); err != nil {
		return true, err
	}

	return true, e.Upsert(ctx, id, doc)
}

func (e *LRULogEngine) Delete(_ context.Context, id docid.ID) (*document.Document, bool, error) {
	key := id.String()

	e.mu.RLock()
	_, exists := e.offsets[key]
	e.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	existing, _, err := e.FindByID(context.Background(), id)
	if err != nil {
		return nil, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.appendRecord(key, deletionMarkerPayload); err != nil {
		return nil, true, err
	}

	delete(e.offsets, key)
	delete(e.ids, key)
	e.cache.Remove(key)

	return existing, true, nil
}

func (e *LRULogEngine) FindAll(ctx context.Context) ([]Entry, error) {
	return e.FindAllRange(ctx, 0, 0)
}

func (e *LRULogEngine) FindAllRange(ctx context.Context, skip, limit int) ([]Entry, error) {
	e.mu.RLock()
	ids := make([]docid.ID, 0, len(e.ids))
	for _, id := range e.ids {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

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
		doc, ok, err := e.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		entries = append(entries, Entry{ID: id, Doc: doc})
	}

	return entries, nil
}

func (e *LRULogEngine) Count(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.offsets), nil
}

func (e *LRULogEngine) CountMatching(ctx context.Context, pred func(*document.Document) bool) (int, error) {
	entries, err := e.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	n := 0

	for _, entry := range entries {
		if pred(entry.Doc) {
			n++
		}
	}

	return n, nil
}

func (e *LRULogEngine) Exists(_ context.Context, id docid.ID) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.offsets[id.String()]

	return ok, nil
}

// Compact rewrites the data file to drop deletion markers and shadowed
// records (spec §4.3.3): under exclusive access, read each live document,
// append it to a sibling temp file, fsync+close, rename over the old file,
// reopen, and rebuild the offset map from the new offsets.
func (e *LRULogEngine) Compact(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tmpPath := e.cfg.DataPath + ".compact.tmp"

	tmpFile, err := e.cfg.FS.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open compaction temp file: %w", err)
	}

	ids := make([]string, 0, len(e.offsets))
	for id := range e.offsets {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	newOffsets := make(map[string]int64, len(ids))

	var writeOffset int64

	for _, id := range ids {
		rec, err := e.readRecordAt(e.offsets[id])
		if err != nil {
			tmpFile.Close()
			e.cfg.FS.Remove(tmpPath)

			return fmt.Errorf("storage: compaction read %q: %w", id, err)
		}

		encoded, err := e.encodeRecord(id, rec.payload)
		if err != nil {
			tmpFile.Close()
			e.cfg.FS.Remove(tmpPath)

			return fmt.Errorf("storage: compaction encode %q: %w", id, err)
		}

		if _, err := tmpFile.Write(encoded); err != nil {
			tmpFile.Close()
			e.cfg.FS.Remove(tmpPath)

			return fmt.Errorf("storage: compaction write %q: %w", id, err)
		}

		newOffsets[id] = writeOffset
		writeOffset += int64(len(encoded))
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		e.cfg.FS.Remove(tmpPath)

		return fmt.Errorf("storage: compaction sync: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		e.cfg.FS.Remove(tmpPath)

		return fmt.Errorf("storage: compaction close: %w", err)
	}

	if err := e.file.Close(); err != nil {
		return fmt.Errorf("storage: close old data file: %w", err)
	}

	if err := e.cfg.FS.Rename(tmpPath, e.cfg.DataPath); err != nil {
		return fmt.Errorf("storage: compaction rename: %w", err)
	}

	f, err := e.cfg.FS.OpenFile(e.cfg.DataPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("storage: reopen data file: %w", err)
	}

	e.file = f
	e.offsets = newOffsets
	e.cache.Purge()

	return nil
}

func (e *LRULogEngine) Stats(_ context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var storageBytes int64
	if info, err := e.file.Stat(); err == nil {
		storageBytes = info.Size()
	}

	return Stats{
		DocumentCount: len(e.offsets),
		StorageBytes:  storageBytes,
	}, nil
}

func (e *LRULogEngine) Close(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.file.Close()
}
