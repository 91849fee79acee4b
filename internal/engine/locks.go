package engine

import "sync"

// keyedLocks provides per-key mutexes so pushes to the same document are
// serialized while pushes to unrelated documents proceed in parallel.
// Entries are reference-counted and removed when the last holder unlocks.
type keyedLocks struct {
	entries map[string]*lockEntry
	mu      sync.Mutex
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key, creating it on first use
func (k *keyedLocks) lock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// unlock releases the mutex for key and drops the entry when unused
func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	entry := k.entries[key]
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}

// documentKey builds the lock key for a (collection, document) pair
func documentKey(collection, documentID string) string {
	return collection + "\x00" + documentID
}
