package enumcache

import "sync"

var (
	registryMu sync.Mutex
	registry   = map[string]*Cache{}
)

// Init constructs a new Cache registered under cacheID and returns it.
// Callers own the returned *Cache for the lifetime of whatever uses it
// (typically a rows.Store); Init never hands back an existing entry.
func Init(cacheID string) *Cache {
	registryMu.Lock()
	defer registryMu.Unlock()
	c := newCache()
	registry[cacheID] = c
	return c
}

// Teardown removes cacheID's entry. It is a no-op if cacheID was never
// initialized or was already torn down.
func Teardown(cacheID string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, cacheID)
}

// Lookup returns the Cache registered under cacheID, if any.
func Lookup(cacheID string) (*Cache, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	c, ok := registry[cacheID]
	return c, ok
}
