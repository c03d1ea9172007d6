/*
Package lww provides a replicated collection of last-write-wins (LWW)
registers. Writes and deletions may arrive in any order, arbitrarily late,
from any number of uncoordinated sources (optimistic local edits reconciled
later with a server, peers syncing intermittently), and every replica that
sees the same set of operations converges to the same state.

Merging

Every key carries a logical timestamp. An Add wins if no record for the
key exists yet, or if its timestamp is at least that of the existing record;
ties go to the write applied last, which makes re-applying the same write
harmless. Deletions are recorded as tombstones carrying their own timestamp,
so a deletion can itself be overridden by a later Add, and an Add older than
a deletion cannot resurrect the key.

Syncing

Alongside the authoritative state, a Collection keeps a mirror of everything
changed since it was last acknowledged. Updates returns that mirror; once it
has been persisted somewhere, ClearUpdates with the same value removes
exactly the records that have not been written again in the meantime.

	c := lww.New[string](nil)
	c.Add("a", 100, "x")
	pending := c.Updates()
	// ... send pending to the authority ...
	c.ClearUpdates(pending)

Snapshots of the full state are produced with Export and consumed with
Import, which replays every record through the same merge rules.

Derived values

Values computed from the whole collection can be registered once with
NewDerived and read with Get; results are cached until the next mutation.

Concurrency

A Collection is not safe for concurrent mutation; it assumes one logical
mutator. Concurrency between replicas is resolved entirely by timestamps.
*/
package lww
