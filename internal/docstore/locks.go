package docstore

import "sync"

// keyedMutex serializes mutations per document key so that concurrent
// callbacks for the same document cannot interleave a count-then-create
// sequence.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() keyedMutex {
	return keyedMutex{entries: map[string]*lockEntry{}}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	entry := k.entries[key]
	if entry == nil {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
