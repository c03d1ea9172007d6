package lww

import (
	"fmt"
	"sort"
)

// DiffIter invokes f for every live entry that differs between old and the
// collection, in key order. added && removed signifies a changed entry;
// removedValue holds the old entry, addedValue the current one. Tombstones
// are not compared. Iteration stops when f returns keepGoing==false or an
// error.
func (c *Collection[V]) DiffIter(
	old *State[V],
	f func(key string, added, removed bool, addedValue, removedValue Entry[V]) (keepGoing bool, err error),
) error {
	var oldEntries map[string]Entry[V]
	if old != nil {
		oldEntries = old.Entries
	}
	keys := make([]string, 0, len(c.entries)+len(oldEntries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	for k := range oldEntries {
		if _, ok := c.entries[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var zero Entry[V]
	for _, k := range keys {
		n, inNew := c.entries[k]
		o, inOld := oldEntries[k]
		var keepGoing bool
		var err error
		switch {
		case inNew && !inOld:
			keepGoing, err = f(k, true, false, n, zero)
		case !inNew && inOld:
			keepGoing, err = f(k, false, true, zero, o)
		case n.Timestamp != o.Timestamp || !c.equal(n.Data, o.Data):
			keepGoing, err = f(k, true, true, n, o)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}
