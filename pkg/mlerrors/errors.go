// Package mlerrors defines minileaf's uniform error type and the sentinel
// error kinds every public API returns, modeled on the wrap/errOpt pattern
// the storage layer is built on: structured context (collection, document
// id, index name) appended to a stable message, inspectable via errors.Is
// and errors.As.
package mlerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies the failure so callers can branch without parsing error
// text.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateKey
	KindInvalidQuery
	KindDocumentTooLarge
	KindCodec
	KindStorage
	KindCollectionIDTypeMismatch
	KindIndexNotFound
	KindIndexAlreadyExists
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindDuplicateKey:
		return "duplicate_key"
	case KindInvalidQuery:
		return "invalid_query"
	case KindDocumentTooLarge:
		return "document_too_large"
	case KindCodec:
		return "codec"
	case KindStorage:
		return "storage"
	case KindCollectionIDTypeMismatch:
		return "collection_id_type_mismatch"
	case KindIndexNotFound:
		return "index_not_found"
	case KindIndexAlreadyExists:
		return "index_already_exists"
	default:
		return "unknown"
	}
}

// Sentinel errors for each Kind, usable with errors.Is and as the cause
// passed to Wrap.
var (
	ErrDuplicateKey             = errors.New("duplicate key")
	ErrInvalidQuery             = errors.New("invalid query")
	ErrDocumentTooLarge         = errors.New("document too large")
	ErrCodec                    = errors.New("codec error")
	ErrStorage                  = errors.New("storage error")
	ErrCollectionIDTypeMismatch = errors.New("collection id type mismatch")
	ErrIndexNotFound            = errors.New("index not found")
	ErrIndexAlreadyExists       = errors.New("index already exists")
)

var sentinelKind = map[error]Kind{
	ErrDuplicateKey:             KindDuplicateKey,
	ErrInvalidQuery:             KindInvalidQuery,
	ErrDocumentTooLarge:         KindDocumentTooLarge,
	ErrCodec:                    KindCodec,
	ErrStorage:                  KindStorage,
	ErrCollectionIDTypeMismatch: KindCollectionIDTypeMismatch,
	ErrIndexNotFound:            KindIndexNotFound,
	ErrIndexAlreadyExists:       KindIndexAlreadyExists,
}

// Error is the uniform error type returned by all public minileaf APIs.
//
// Use errors.As to extract structured fields:
//
//	var mlErr *mlerrors.Error
//	if errors.As(err, &mlErr) {
//	    fmt.Println(mlErr.Kind, mlErr.Collection, mlErr.DocumentID)
//	}
//
// Use errors.Is to check for a specific failure kind:
//
//	if errors.Is(err, mlerrors.ErrDuplicateKey) { ... }
type Error struct {
	Kind       Kind
	Collection string
	DocumentID string
	Index      string
	Err        error
}

// Error formats as "<cause> (collection=X doc_id=Y index=Z)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	suffix := e.suffix()

	switch {
	case suffix == "":
		return cause
	case cause == "":
		return suffix
	default:
		return cause + " " + suffix
	}
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}

	if e.DocumentID != "" {
		parts = append(parts, "doc_id="+e.DocumentID)
	}

	if e.Index != "" {
		parts = append(parts, "index="+e.Index)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

// Option configures an *Error during construction via Wrap.
type Option func(*Error)

// WithCollection attaches the collection name the failure occurred in.
func WithCollection(name string) Option {
	return func(e *Error) { e.Collection = name }
}

// WithDocumentID attaches the document identifier involved in the failure.
func WithDocumentID(id string) Option {
	return func(e *Error) { e.DocumentID = id }
}

// WithIndex attaches the index name involved in the failure.
func WithIndex(name string) Option {
	return func(e *Error) { e.Index = name }
}

// Wrap creates an *Error with optional structured context, inheriting and
// merging context from an inner *Error if cause already is one. Returns nil
// if cause is nil.
func Wrap(cause error, opts ...Option) error {
	if cause == nil {
		return nil
	}

	existing := &Error{}
	isDirect := errors.As(cause, &existing)

	if isDirect && len(opts) == 0 {
		return existing
	}

	e := &Error{Err: cause}

	if isDirect {
		e.Kind = existing.Kind
		e.Collection = existing.Collection
		e.DocumentID = existing.DocumentID
		e.Index = existing.Index
		e.Err = existing.Err
	} else if k, ok := findSentinelKind(cause); ok {
		e.Kind = k
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func findSentinelKind(err error) (Kind, bool) {
	for sentinel, kind := range sentinelKind {
		if errors.Is(err, sentinel) {
			return kind, true
		}
	}

	return KindUnknown, false
}

// New constructs an *Error of the given kind wrapping a sentinel, with
// structured context. Use this at the point a failure is first detected;
// use Wrap to propagate and enrich an error returned from a lower layer.
func New(kind Kind, msg string, opts ...Option) error {
	cause := error(errors.New(msg))
	if sentinel := kindSentinel(kind); sentinel != nil {
		cause = fmt.Errorf("%s: %w", msg, sentinel)
	}

	e := &Error{Kind: kind, Err: cause}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func kindSentinel(kind Kind) error {
	for sentinel, k := range sentinelKind {
		if k == kind {
			return sentinel
		}
	}

	return nil
}
