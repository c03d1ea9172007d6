package lww

import (
	"context"
	"encoding/json"
	"fmt"
)

// Persist is the interface for storing and loading serialized snapshots and
// update batches by name.
type Persist interface {
	// Store makes the given bytes accessible by the given name.
	Store(context.Context, string, []byte) error
	// Load retrieves the previously-stored bytes by the given name.
	Load(context.Context, string) ([]byte, error)
}

// ContentName returns a name for b that changes whenever b does, for stores
// that treat names as immutable.
func ContentName(prefix string, b []byte) string {
	return prefix + Blake2bHash(string(b))
}

// SaveSnapshot stores the output of Export under name.
func (c *Collection[V]) SaveSnapshot(ctx context.Context, p Persist, name string) error {
	b, err := c.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	err = p.Store(ctx, name, b)
	if err != nil {
		return fmt.Errorf("persist store %s: %w", name, err)
	}
	return nil
}

// LoadSnapshot imports the snapshot stored under name.
func (c *Collection[V]) LoadSnapshot(ctx context.Context, p Persist, name string, clearFirst bool) (*ImportReport, error) {
	b, err := p.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", name, err)
	}
	return c.Import(b, clearFirst)
}

// SaveUpdates stores the pending updates under name and, once stored,
// clears exactly those updates. Updates made concurrently by callbacks
// or after a failed store remain pending.
func (c *Collection[V]) SaveUpdates(ctx context.Context, p Persist, name string) error {
	pending := c.Updates()
	b, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal updates: %w", err)
	}
	err = p.Store(ctx, name, b)
	if err != nil {
		return fmt.Errorf("persist store %s: %w", name, err)
	}
	c.ClearUpdates(pending)
	return nil
}
