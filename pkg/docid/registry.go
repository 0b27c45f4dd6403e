package docid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Registry generates and parses IDs for exactly one Variant. A collection
// binds to a single Registry for its lifetime; mixing variants within a
// collection is a programmer error (see ID.Compare).
type Registry interface {
	// Variant reports which identifier representation this registry issues.
	Variant() Variant
	// Generate returns a freshly minted, collision-resistant identifier.
	Generate() (ID, error)
	// Parse decodes the canonical text form produced by ID.String.
	Parse(s string) (ID, error)
}

// Parse decodes s as the given variant's canonical text form. This is the
// low-level counterpart to Registry.Parse, used by ExtractFrom and by
// registries that don't carry per-call state.
func Parse(variant Variant, s string) (ID, error) {
	switch variant {
	case VariantObjectID:
		return parseObjectID(s)
	case VariantUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("docid: parse uuid %q: %w", s, err)
		}

		return uuidID(u), nil
	case VariantText:
		return textID(s), nil
	case VariantInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("docid: parse int64 id %q: %w", s, err)
		}

		return int64ID(n), nil
	default:
		return nil, fmt.Errorf("docid: unknown variant %v", variant)
	}
}

func parseObjectID(s string) (ID, error) {
	if len(s) != 24 {
		return nil, fmt.Errorf("docid: object_id %q must be 24 hex characters", s)
	}

	var raw [12]byte

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("docid: object_id %q is not valid hex: %w", s, err)
	}

	copy(raw[:], decoded)

	return objectID(raw), nil
}

// objectIDRegistry mints Mongo-style object ids: 4-byte unix timestamp,
// 5-byte random value, 3-byte counter. The counter starts at a random offset
// so two freshly started processes don't mint identical ids for the same
// second.
type objectIDRegistry struct {
	counter atomic.Uint32
}

// NewObjectIDRegistry returns a Registry that mints 12-byte object ids.
func NewObjectIDRegistry() (Registry, error) {
	var seed [3]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("docid: seed object_id counter: %w", err)
	}

	r := &objectIDRegistry{}
	r.counter.Store(uint32(seed[0])<<16 | uint32(seed[1])<<8 | uint32(seed[2]))

	return r, nil
}

func (r *objectIDRegistry) Variant() Variant { return VariantObjectID }

func (r *objectIDRegistry) Generate() (ID, error) {
	var raw [12]byte

	ts := uint32(time.Now().Unix())
	raw[0] = byte(ts >> 24)
	raw[1] = byte(ts >> 16)
	raw[2] = byte(ts >> 8)
	raw[3] = byte(ts)

	if _, err := rand.Read(raw[4:9]); err != nil {
		return nil, fmt.Errorf("docid: generate object_id random segment: %w", err)
	}

	c := r.counter.Add(1)
	raw[9] = byte(c >> 16)
	raw[10] = byte(c >> 8)
	raw[11] = byte(c)

	return objectID(raw), nil
}

func (r *objectIDRegistry) Parse(s string) (ID, error) {
	return parseObjectID(s)
}

// uuidRegistry mints RFC 4122 version 4 UUIDs via google/uuid.
type uuidRegistry struct{}

// NewUUIDRegistry returns a Registry that mints random (v4) UUIDs.
func NewUUIDRegistry() Registry {
	return uuidRegistry{}
}

func (uuidRegistry) Variant() Variant { return VariantUUID }

func (uuidRegistry) Generate() (ID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("docid: generate uuid: %w", err)
	}

	return uuidID(u), nil
}

func (uuidRegistry) Parse(s string) (ID, error) {
	return Parse(VariantUUID, s)
}

// textRegistry mints random hex-encoded text identifiers. Callers that want
// application-chosen text ids (e.g. slugs) bypass Generate and call
// Registry.Parse / ID construction directly via a caller-supplied document
// field.
type textRegistry struct{}

// NewTextRegistry returns a Registry whose Generate mints random 16-byte
// hex-encoded text ids, suitable as a default when the caller doesn't
// supply its own text identifiers.
func NewTextRegistry() Registry {
	return textRegistry{}
}

func (textRegistry) Variant() Variant { return VariantText }

func (textRegistry) Generate() (ID, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("docid: generate text id: %w", err)
	}

	return textID(hex.EncodeToString(raw[:])), nil
}

func (textRegistry) Parse(s string) (ID, error) {
	return textID(s), nil
}

// Int64Registry mints strictly increasing 64-bit integer ids from an
// in-process counter. Unlike the other registries it is not stateless: it
// must be constructed once per collection and held for the collection's
// lifetime so ids never repeat within a process. It does not persist its
// high-water mark; callers restoring a collection from storage must seed it
// with Int64Registry.Seed using the maximum id already on disk.
type Int64Registry struct {
	next atomic.Int64
}

// NewInt64Registry returns a Registry whose Generate issues strictly
// increasing int64 ids starting after start.
func NewInt64Registry(start int64) *Int64Registry {
	r := &Int64Registry{}
	r.next.Store(start)

	return r
}

// Seed advances the registry's high-water mark to at least maxSeen, so a
// freshly opened collection resumes numbering after the largest id already
// persisted.
func (r *Int64Registry) Seed(maxSeen int64) {
	for {
		cur := r.next.Load()
		if maxSeen <= cur {
			return
		}

		if r.next.CompareAndSwap(cur, maxSeen) {
			return
		}
	}
}

func (r *Int64Registry) Variant() Variant { return VariantInt64 }

func (r *Int64Registry) Generate() (ID, error) {
	return int64ID(r.next.Add(1)), nil
}

func (r *Int64Registry) Parse(s string) (ID, error) {
	return Parse(VariantInt64, s)
}
