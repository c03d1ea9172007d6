package lww

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultDerivedCacheSize is how many derived values a collection keeps between mutations.
const DefaultDerivedCacheSize = 128

var (
	// ErrInvalidEntry is returned by Add when Config.ValidateEntry rejects a write.
	ErrInvalidEntry = errors.New("entry rejected by validator")
	// ErrMalformedSnapshot is returned by Import when the payload lacks a valid
	// "entries" or "deletedKeys" object.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrMalformedRecord marks a single entry or tombstone that could not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrStale marks an imported record that lost to a newer one already present.
	ErrStale = errors.New("stale record")
)

// Collection is a set of LWW registers keyed by string. The zero value is not
// usable; create one with New.
type Collection[V any] struct {
	entries     map[string]Entry[V]
	deletedKeys map[string]int64

	// pending is handed out by reference from Updates(); once handed out it is
	// shared and must be copied before it is modified again.
	pending       *State[V]
	pendingShared bool

	derived     *lru.ARCCache
	hash        string
	subscribers []subscriber

	hashFunction  func(string) string
	validateEntry func(string, V) bool
	defaultValue  V
	equal         func(a, b V) bool
	now           func() int64
	log           Logger
}

type subscriber struct {
	token Subscription
	fn    func()
}

func newState[V any]() *State[V] {
	return &State[V]{
		Entries:     map[string]Entry[V]{},
		DeletedKeys: map[string]int64{},
	}
}

func (s *State[V]) xcopy() *State[V] {
	n := &State[V]{
		Entries:     make(map[string]Entry[V], len(s.Entries)),
		DeletedKeys: make(map[string]int64, len(s.DeletedKeys)),
	}
	for k, e := range s.Entries {
		n.Entries[k] = e
	}
	for k, ts := range s.DeletedKeys {
		n.DeletedKeys[k] = ts
	}
	return n
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (c *Collection[V]) timestamp(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return c.now()
}

// mutPending returns the pending mirror, first copying it if a caller may
// still hold the current version.
func (c *Collection[V]) mutPending() *State[V] {
	if c.pendingShared {
		c.pending = c.pending.xcopy()
		c.pendingShared = false
	}
	return c.pending
}

// existingTimestamp is the timestamp of whatever record the key has, live or deleted.
func (c *Collection[V]) existingTimestamp(key string) (int64, bool) {
	if e, ok := c.entries[key]; ok {
		return e.Timestamp, true
	}
	ts, ok := c.deletedKeys[key]
	return ts, ok
}

func (c *Collection[V]) mergeAdd(key string, ts int64, data V) bool {
	if existing, ok := c.existingTimestamp(key); ok && ts < existing {
		c.log.Debug("add lost", "key", key, "timestamp", ts, "existing", existing)
		return false
	}
	e := Entry[V]{Timestamp: ts, Data: data}
	c.entries[key] = e
	delete(c.deletedKeys, key)
	p := c.mutPending()
	p.Entries[key] = e
	delete(p.DeletedKeys, key)
	c.commit()
	return true
}

func (c *Collection[V]) mergeRemove(key string, ts int64) bool {
	if e, ok := c.entries[key]; ok && e.Timestamp > ts {
		c.log.Debug("remove lost", "key", key, "timestamp", ts, "existing", e.Timestamp)
		return false
	}
	c.putTombstone(key, ts)
	return true
}

// putTombstone records a deletion without comparing timestamps.
func (c *Collection[V]) putTombstone(key string, ts int64) {
	delete(c.entries, key)
	c.deletedKeys[key] = ts
	p := c.mutPending()
	delete(p.Entries, key)
	p.DeletedKeys[key] = ts
	c.commit()
}

func (c *Collection[V]) reset() {
	c.entries = map[string]Entry[V]{}
	c.deletedKeys = map[string]int64{}
	c.pending = newState[V]()
	c.pendingShared = false
	c.commit()
}

// commit is the tail of every mutation: cached values are dropped before any
// subscriber can observe the new state.
func (c *Collection[V]) commit() {
	c.hash = ""
	c.derived.Purge()
	if len(c.subscribers) == 0 {
		return
	}
	subs := append([]subscriber(nil), c.subscribers...)
	for _, s := range subs {
		s.fn()
	}
}
