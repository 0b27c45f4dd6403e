// Package storage implements minileaf's three interchangeable storage
// engines (in-memory, WAL+snapshot, LRU-cached append log) behind a single
// Engine contract, plus a migration utility that streams documents between
// any two engines.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/update"
)

// Engine is the contract all three storage engines satisfy. Operations
// return once durability guarantees (if any) for that engine are met.
type Engine interface {
	// Upsert inserts or replaces the document at id.
	Upsert(ctx context.Context, id docid.ID, doc *document.Document) error
	// FindByID returns the current document for id, or ok=false if absent.
	FindByID(ctx context.Context, id docid.ID) (doc *document.Document, ok bool, err error)
	// UpdateFields applies ops to the live document at id under the
	// engine's write lock. Returns existed=false if id is not present.
	UpdateFields(ctx context.Context, id docid.ID, ops update.Operations) (existed bool, err error)
	// Delete removes id, returning the document that was removed (if any).
	Delete(ctx context.Context, id docid.ID) (doc *document.Document, ok bool, err error)
	// FindAll iterates every document in primary-key order.
	FindAll(ctx context.Context) ([]Entry, error)
	// FindAllRange iterates a page of documents in primary-key order.
	FindAllRange(ctx context.Context, skip, limit int) ([]Entry, error)
	// Count returns the total number of live documents.
	Count(ctx context.Context) (int, error)
	// CountMatching returns the number of live documents satisfying pred.
	CountMatching(ctx context.Context, pred func(*document.Document) bool) (int, error)
	// Exists reports whether id is currently present.
	Exists(ctx context.Context, id docid.ID) (bool, error)
	// Compact rewrites the on-disk representation to drop garbage. A no-op
	// for engines with no on-disk representation.
	Compact(ctx context.Context) error
	// Stats reports point-in-time size/durability metadata.
	Stats(ctx context.Context) (Stats, error)
	// Close stops any background goroutines and releases file handles.
	Close(ctx context.Context) error
}

// Entry pairs an identifier with its document, the shape FindAll/FindAllRange
// iterate in primary-key order.
type Entry struct {
	ID  docid.ID
	Doc *document.Document
}

// Stats is the point-in-time size/durability snapshot returned by
// Engine.Stats. pkg/collection's admin Stats returns it unchanged; it
// carries no per-index sizes.
type Stats struct {
	DocumentCount      int
	StorageBytes       int64
	WALBytes           int64
	LastSnapshotUnix   int64
	LastSnapshotExists bool
}

// ErrClosed is returned by any operation called after Close.
var ErrClosed = errors.New("storage: engine closed")

// ErrNotFound is a "not found" sentinel. No engine in this package returns
// it: Engine methods report an absent document through an ok bool.
var ErrNotFound = errors.New("storage: not found")

// Issue describes a recoverable anomaly encountered during WAL/log replay —
// a corrupt or truncated record that was skipped rather than fatal. Storage
// engines report these through a caller-supplied callback instead of
// logging directly, mirroring the teacher's reindex issue-channel pattern.
type Issue struct {
	Offset  int64
	Message string
	Err     error
}

// IssueFunc receives replay/rebuild anomalies. A nil IssueFunc silently
// discards them.
type IssueFunc func(Issue)

func reportIssue(fn IssueFunc, issue Issue) {
	if fn == nil {
		return
	}

	fn(issue)
}

// clockNow is the time source for WAL record timestamps and snapshot times.
var clockNow = time.Now
