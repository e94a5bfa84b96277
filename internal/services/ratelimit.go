package services

import (
	"sync"
	"time"
)

// slidingWindow counts accepted chat exchanges per student over a rolling
// time window. A request at or over the maximum is rejected without being
// recorded, so a student hammering the endpoint does not push their own
// window further into the future.
//
// This guards the model provider specifically; the HTTP edge carries its own
// token-bucket limiter for the transport as a whole.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time

	now func() time.Time // test hook
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// allow reports whether key may perform another exchange right now. It does
// not record anything; call record once the exchange is actually accepted.
func (w *slidingWindow) allow(key string) bool {
	if w == nil || w.max <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prune(key)) < w.max
}

// record registers an accepted exchange for key.
func (w *slidingWindow) record(key string) {
	if w == nil || w.max <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hits[key] = append(w.prune(key), w.now())
}

// prune drops timestamps older than the window. Caller holds the lock.
func (w *slidingWindow) prune(key string) []time.Time {
	cutoff := w.now().Add(-w.window)
	kept := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(w.hits, key)
		return nil
	}
	w.hits[key] = kept
	return kept
}
