package resource

import (
	"context"
	"sync"
)

// Loader produces the value held by a Handle.
type Loader[T any] func(ctx context.Context) (T, error)

// Handle owns a lazily loaded value such as a model pipeline. The value
// is loaded on first Get; a failed load is not cached, so the next Get
// retries. Swap and Reload replace the value under the handle's lock.
//
// Callers that mutate hardware-resident state inside the value must also
// hold the matching Manager permit.
type Handle[T any] struct {
	mu     sync.Mutex
	load   Loader[T]
	value  T
	loaded bool
	loads  int
}

// NewHandle creates a Handle that loads its value with load.
func NewHandle[T any](load Loader[T]) *Handle[T] {
	return &Handle[T]{load: load}
}

// Get returns the value, loading it first if needed.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loaded {
		return h.value, nil
	}
	v, err := h.load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	h.value = v
	h.loaded = true
	h.loads++
	return v, nil
}

// Loaded reports whether the value has been loaded.
func (h *Handle[T]) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Loads returns how many times the loader succeeded.
func (h *Handle[T]) Loads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads
}

// Swap replaces the value and returns the previous one. The previous
// value is the zero value if nothing was loaded.
func (h *Handle[T]) Swap(v T) T {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.value
	h.value = v
	h.loaded = true
	return prev
}

// Reload runs the loader again and replaces the value on success. On
// failure the current value is kept.
func (h *Handle[T]) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, err := h.load(ctx)
	if err != nil {
		return err
	}
	h.value = v
	h.loaded = true
	h.loads++
	return nil
}
