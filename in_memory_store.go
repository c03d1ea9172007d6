package lww

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type inMemoryStore struct {
	objects map[string][]byte
	l       sync.Mutex
}

// InMemoryStore is a Persist backed by a map, usually for testing.
type InMemoryStore interface {
	Persist
	// Names lists stored names in sorted order.
	Names() []string
}

// NewInMemoryStore provides a Persist that keeps copies of stored bytes in memory.
func NewInMemoryStore() InMemoryStore {
	return &inMemoryStore{objects: map[string][]byte{}}
}

func (ims *inMemoryStore) Store(ctx context.Context, name string, value []byte) error {
	ims.l.Lock()
	ims.objects[name] = append([]byte(nil), value...)
	ims.l.Unlock()
	return nil
}

func (ims *inMemoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	ims.l.Lock()
	value, ok := ims.objects[name]
	ims.l.Unlock()
	if !ok {
		return nil, fmt.Errorf("inMemoryStore object not found for %s", name)
	}
	return append([]byte(nil), value...), nil
}

func (ims *inMemoryStore) Names() []string {
	ims.l.Lock()
	defer ims.l.Unlock()
	names := make([]string, 0, len(ims.objects))
	for name := range ims.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
