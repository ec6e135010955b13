package fileserver

import (
	"sync"
	"time"
)

// cache caches Blobs by path with a max age, guaranteeing at-most-one
// concurrent resolution per path: concurrent callers for the same path
// block on the one in-flight resolution and share its result. This is a
// hand-rolled single-flight, mirrored on the mutex-guarded-map idiom the
// teacher uses for its in-memory session/game maps, since no pack repo
// pulls in golang.org/x/sync/singleflight.
type cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	maxAge  time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	done chan struct{}
	blob *Blob
	err  error
}

func newCache(maxAge time.Duration) *cache {
	return &cache{
		entries: make(map[string]*cacheEntry),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// getOrResolve returns the cached Blob for path if fresh, else calls
// resolve exactly once across all concurrent callers and caches the
// result.
func (c *cache) getOrResolve(path string, resolve func() (*Blob, error)) (*Blob, error) {
	c.mu.Lock()
	if entry, ok := c.entries[path]; ok {
		select {
		case <-entry.done:
			if entry.err == nil && c.fresh(entry.blob) {
				c.mu.Unlock()
				return entry.blob, nil
			}
			// Stale or errored: replace the entry below, still under
			// the lock, so no second caller can race us into starting
			// a duplicate resolution.
		default:
			// In-flight: wait for it outside the lock.
			c.mu.Unlock()
			<-entry.done
			return entry.blob, entry.err
		}
	}

	entry := &cacheEntry{done: make(chan struct{})}
	c.entries[path] = entry
	c.mu.Unlock()

	blob, err := resolve()
	entry.blob, entry.err = blob, err
	close(entry.done)
	return blob, err
}

func (c *cache) fresh(b *Blob) bool {
	if b == nil {
		// A cached "not found" never counts as fresh: the next lookup
		// should retry in case the producer chain's backing store
		// (e.g. the filesystem) changed.
		return false
	}
	if c.maxAge <= 0 {
		return true
	}
	return c.now().Sub(b.GeneratedAt) < c.maxAge
}
