package lww

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// Entry is the current value of a key as of Timestamp.
type Entry[V any] struct {
	Timestamp int64
	Data      V
}

// State holds live entries and deletion tombstones. It is the shape of both
// exported snapshots and the pending-updates mirror.
type State[V any] struct {
	Entries     map[string]Entry[V]
	DeletedKeys map[string]int64
}

// Subscription identifies a callback registered with Subscribe.
type Subscription uuid.UUID

// Config sets optional behavior for a collection. A nil *Config gives all defaults.
type Config[V any] struct {
	// HashFunction digests the serialized live entries. Defaults to RollingHash.
	HashFunction func(string) string

	// ValidateEntry, if set, must return true for every key and value written by Add.
	ValidateEntry func(key string, data V) bool

	// DefaultValue is stored by AddDefault.
	DefaultValue V

	// Equal compares values when acknowledged updates are cleared. Defaults to reflect.DeepEqual.
	Equal func(a, b V) bool

	// Now supplies timestamps for writes that don't carry one. Defaults to
	// wall-clock milliseconds.
	Now func() int64

	// Logger receives import warnings and merge traces. Defaults to DefaultLogger().
	Logger Logger

	// DerivedCacheSize bounds the number of cached derived values. 0 means
	// DefaultDerivedCacheSize.
	DerivedCacheSize int
}

// New returns an empty collection.
func New[V any](cfg *Config[V]) *Collection[V] {
	if cfg == nil {
		cfg = &Config[V]{}
	}
	size := cfg.DerivedCacheSize
	if size <= 0 {
		size = DefaultDerivedCacheSize
	}
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	c := &Collection[V]{
		entries:       map[string]Entry[V]{},
		deletedKeys:   map[string]int64{},
		pending:       newState[V](),
		derived:       cache,
		hashFunction:  cfg.HashFunction,
		validateEntry: cfg.ValidateEntry,
		defaultValue:  cfg.DefaultValue,
		equal:         cfg.Equal,
		now:           cfg.Now,
		log:           cfg.Logger,
	}
	if c.hashFunction == nil {
		c.hashFunction = RollingHash
	}
	if c.equal == nil {
		c.equal = func(a, b V) bool { return reflect.DeepEqual(a, b) }
	}
	if c.now == nil {
		c.now = nowMillis
	}
	if c.log == nil {
		c.log = DefaultLogger()
	}
	return c
}

// Add writes data for key as of timestamp. A timestamp <= 0 means now. The
// write wins, and true is returned, unless the key already has a live or
// deleted record with a newer timestamp; equal timestamps go to the later
// write. An error is returned only if the configured validator rejects the
// entry.
func (c *Collection[V]) Add(key string, timestamp int64, data V) (bool, error) {
	if c.validateEntry != nil && !c.validateEntry(key, data) {
		return false, fmt.Errorf("add %q: %w", key, ErrInvalidEntry)
	}
	return c.mergeAdd(key, c.timestamp(timestamp), data), nil
}

// AddDefault is Add with the configured default value.
func (c *Collection[V]) AddDefault(key string, timestamp int64) (bool, error) {
	return c.Add(key, timestamp, c.defaultValue)
}

// Remove deletes key as of timestamp (<= 0 means now), leaving a tombstone.
// It returns false, changing nothing, if the live entry is newer than the
// deletion.
func (c *Collection[V]) Remove(key string, timestamp int64) bool {
	return c.mergeRemove(key, c.timestamp(timestamp))
}

// Clear drops all entries, tombstones and pending updates.
func (c *Collection[V]) Clear() {
	c.reset()
}

// Updates returns the records changed since the last ClearUpdates. The
// returned State must not be modified; it is not affected by later mutations
// of the collection, so it can be passed back to ClearUpdates once persisted.
func (c *Collection[V]) Updates() *State[V] {
	c.pendingShared = true
	return c.pending
}

// ClearUpdates forgets pending updates. With a nil argument everything is
// forgotten. Otherwise only records that still match the acknowledged ones
// exactly are forgotten, so writes made after acknowledged was captured stay
// pending.
func (c *Collection[V]) ClearUpdates(acknowledged *State[V]) {
	if acknowledged == nil {
		c.pending = newState[V]()
		c.pendingShared = false
		return
	}
	var p *State[V]
	for key, ack := range acknowledged.Entries {
		cur, ok := c.pending.Entries[key]
		if !ok || cur.Timestamp != ack.Timestamp || !c.equal(cur.Data, ack.Data) {
			continue
		}
		if p == nil {
			p = c.mutPending()
		}
		delete(p.Entries, key)
	}
	for key, ack := range acknowledged.DeletedKeys {
		cur, ok := c.pending.DeletedKeys[key]
		if !ok || cur != ack {
			continue
		}
		if p == nil {
			p = c.mutPending()
		}
		delete(p.DeletedKeys, key)
	}
}

// Subscribe registers fn to be called after every mutation. Callbacks run
// synchronously, in the order they were subscribed.
func (c *Collection[V]) Subscribe(fn func()) Subscription {
	token := Subscription(uuid.New())
	c.subscribers = append(c.subscribers, subscriber{token, fn})
	return token
}

// Unsubscribe removes the subscription, returning false if it was not present.
func (c *Collection[V]) Unsubscribe(token Subscription) bool {
	for i, s := range c.subscribers {
		if s.token == token {
			c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the live entry for key.
func (c *Collection[V]) Lookup(key string) (Entry[V], bool) {
	e, ok := c.entries[key]
	return e, ok
}

// DeletedAt returns the timestamp of key's tombstone, if it has one.
func (c *Collection[V]) DeletedAt(key string) (int64, bool) {
	ts, ok := c.deletedKeys[key]
	return ts, ok
}

// Len returns the number of live entries.
func (c *Collection[V]) Len() int {
	return len(c.entries)
}

// Keys returns the live keys in sorted order.
func (c *Collection[V]) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Hash returns a digest of the live entries, recomputed only after a mutation.
// Tombstones are not part of the digest, so a mutation that leaves the live
// entries as they were (removing a key that has no live entry, clearing an
// empty collection) leaves the hash unchanged too.
func (c *Collection[V]) Hash() (string, error) {
	if c.hash != "" {
		return c.hash, nil
	}
	b, err := json.Marshal(c.entries)
	if err != nil {
		return "", fmt.Errorf("marshal entries: %w", err)
	}
	c.hash = c.hashFunction(string(b))
	return c.hash, nil
}

// ExportState returns a copy of the live entries and tombstones.
func (c *Collection[V]) ExportState() *State[V] {
	return (&State[V]{Entries: c.entries, DeletedKeys: c.deletedKeys}).xcopy()
}
