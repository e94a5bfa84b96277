// Package history keeps a small in-memory window of recent conversation
// turns so the assistant can include context in prompts without re-reading
// the messages table on every exchange.
//
// Each conversation owns an independent slice; entries are loaded lazily on
// first access and bounded to a fixed number of turns. Callers always receive
// and hand in copies, so no two conversations (and no caller) ever share a
// backing array with the cache.
package history

import (
	"context"
	"sync"

	"github.com/edustack-labs/go-student-assistant/internal/ai"
)

// Loader supplies the most recent turns of a conversation from durable
// storage, oldest first. It is consulted once per conversation, when the
// cache has no entry yet.
type Loader interface {
	LoadRecent(ctx context.Context, conversationID string, n int) ([]ai.Turn, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(ctx context.Context, conversationID string, n int) ([]ai.Turn, error)

// LoadRecent implements Loader.
func (f LoaderFunc) LoadRecent(ctx context.Context, conversationID string, n int) ([]ai.Turn, error) {
	return f(ctx, conversationID, n)
}

// Cache is a bounded per-conversation turn window. The zero value is not
// usable; construct with NewCache.
type Cache struct {
	mu     sync.Mutex
	limit  int
	loader Loader
	turns  map[string][]ai.Turn
}

// NewCache returns a Cache that keeps at most limit turns per conversation.
// loader may be nil, in which case unknown conversations start empty.
func NewCache(limit int, loader Loader) *Cache {
	if limit <= 0 {
		limit = 1
	}
	return &Cache{
		limit:  limit,
		loader: loader,
		turns:  make(map[string][]ai.Turn),
	}
}

// Get returns a copy of the cached turns for conversationID, oldest first.
// On a miss it consults the loader and caches the result; a loader failure
// is returned to the caller and nothing is cached, so the next call retries.
func (c *Cache) Get(ctx context.Context, conversationID string) ([]ai.Turn, error) {
	c.mu.Lock()
	cached, ok := c.turns[conversationID]
	c.mu.Unlock()

	if !ok {
		loaded, err := c.load(ctx, conversationID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// Another goroutine may have populated the entry while we loaded;
		// its version wins so appends made in the meantime are not lost.
		if cur, ok := c.turns[conversationID]; ok {
			cached = cur
		} else {
			c.turns[conversationID] = loaded
			cached = loaded
		}
		c.mu.Unlock()
	}

	out := make([]ai.Turn, len(cached))
	copy(out, cached)
	return out, nil
}

// StartFresh resets the window for conversationID to exactly the given seed
// turns. It is used when a brand-new conversation begins, so stale context
// from a previous thread can never leak into it.
func (c *Cache) StartFresh(conversationID string, seed ...ai.Turn) {
	fresh := make([]ai.Turn, len(seed))
	copy(fresh, seed)

	c.mu.Lock()
	c.turns[conversationID] = fresh
	c.mu.Unlock()
}

// Append adds turns to the end of the conversation's window, dropping the
// oldest entries when the window exceeds its limit. Appending to a
// conversation the cache has never seen creates an empty window first
// (without consulting the loader).
func (c *Cache) Append(conversationID string, turns ...ai.Turn) {
	if len(turns) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.turns[conversationID]
	next := make([]ai.Turn, 0, len(cur)+len(turns))
	next = append(next, cur...)
	next = append(next, turns...)
	if len(next) > c.limit {
		next = next[len(next)-c.limit:]
	}
	c.turns[conversationID] = next
}

// Evict drops the window for conversationID, if any. Used when a
// conversation is deleted.
func (c *Cache) Evict(conversationID string) {
	c.mu.Lock()
	delete(c.turns, conversationID)
	c.mu.Unlock()
}

// Len reports the number of cached turns for conversationID without
// triggering a load.
func (c *Cache) Len(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns[conversationID])
}

func (c *Cache) load(ctx context.Context, conversationID string) ([]ai.Turn, error) {
	if c.loader == nil {
		return make([]ai.Turn, 0, c.limit), nil
	}
	loaded, err := c.loader.LoadRecent(ctx, conversationID, c.limit)
	if err != nil {
		return nil, err
	}
	if len(loaded) > c.limit {
		loaded = loaded[len(loaded)-c.limit:]
	}
	// private copy: the loader's slice may be reused by its caller
	own := make([]ai.Turn, len(loaded))
	copy(own, loaded)
	return own, nil
}
