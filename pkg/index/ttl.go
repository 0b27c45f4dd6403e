package index

import (
	"sync"
	"time"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
)

// ExpireFunc is called by a TTLIndex's sweeper for every id whose expiry
// has passed. The collection supplies this to route expirations through
// its normal delete pipeline (so other indexes and storage stay in sync).
type ExpireFunc func(id docid.ID)

// TTLIndex is a single-field index over a timestamp field: it is never
// queried directly, but drives document expiration via a background
// sweeper (spec §4.4/§5).
type TTLIndex struct {
	mu       sync.Mutex
	name     string
	field    string
	after    time.Duration
	expiries map[string]expiryEntry

	expire   ExpireFunc
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

type expiryEntry struct {
	id     docid.ID
	expiry time.Time
}

var _ Index = (*TTLIndex)(nil)

// ttlSweepInterval is how often the sweeper checks for expired documents.
const ttlSweepInterval = time.Second

// ttlShutdownGrace bounds how long Drop waits for an in-flight sweep to
// finish before giving up (spec §5).
const ttlShutdownGrace = 5 * time.Second

// NewTTLIndex returns a TTL index over field: a document expires "after"
// duration past the timestamp stored at field. expire is invoked (from the
// sweeper goroutine, which this constructor starts) for every id that
// crosses its expiry.
func NewTTLIndex(name, field string, after time.Duration, expire ExpireFunc) *TTLIndex {
	t := &TTLIndex{
		name:     name,
		field:    field,
		after:    after,
		expiries: make(map[string]expiryEntry),
		expire:   expire,
		interval: ttlSweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go t.sweepLoop()

	return t
}

func (t *TTLIndex) Name() string { return t.name }

func (t *TTLIndex) expiryOf(doc *document.Document) (time.Time, bool) {
	v, ok := document.GetPath(doc, t.field)
	if !ok {
		return time.Time{}, false
	}

	ts, ok := v.(document.Timestamp)
	if !ok {
		return time.Time{}, false
	}

	return ts.Time().Add(t.after), true
}

func (t *TTLIndex) OnInsert(id docid.ID, doc *document.Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if exp, ok := t.expiryOf(doc); ok {
		t.expiries[id.String()] = expiryEntry{id: id, expiry: exp}
	}

	return nil
}

func (t *TTLIndex) OnUpdate(id docid.ID, _, new *document.Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	exp, ok := t.expiryOf(new)
	if !ok {
		delete(t.expiries, id.String())

		return nil
	}

	t.expiries[id.String()] = expiryEntry{id: id, expiry: exp}

	return nil
}

func (t *TTLIndex) OnDelete(id docid.ID, _ *document.Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.expiries, id.String())

	return nil
}

// Drop stops the sweeper goroutine, waiting up to ttlShutdownGrace for an
// in-flight sweep to finish.
func (t *TTLIndex) Drop() error {
	t.once.Do(func() { close(t.stop) })

	select {
	case <-t.done:
	case <-time.After(ttlShutdownGrace):
	}

	return nil
}

func (t *TTLIndex) sweepLoop() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *TTLIndex) sweep() {
	now := time.Now()

	var expired []docid.ID

	t.mu.Lock()
	for key, e := range t.expiries {
		if !now.Before(e.expiry) {
			expired = append(expired, e.id)
			delete(t.expiries, key)
		}
	}
	t.mu.Unlock()

	for _, id := range expired {
		if t.expire != nil {
			t.expire(id)
		}
	}
}
