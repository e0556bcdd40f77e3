package ingestion

import (
	"sync"

	"github.com/poiesic/recall/core"
)

// keyedMutex serializes work per document so concurrent workers never
// interleave writes to the same document, while different documents
// proceed in parallel. Entries are reference-counted and removed when
// the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[core.ID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[core.ID]*lockEntry)}
}

func (k *keyedMutex) Lock(id core.ID) {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &lockEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *keyedMutex) Unlock(id core.ID) {
	k.mu.Lock()
	entry := k.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
