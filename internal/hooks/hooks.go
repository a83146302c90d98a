// Package hooks provides typed in-process hook lists. Services fire a hook
// after a write commits; subscribers are registered at bootstrap.
package hooks

import (
	"context"
	"errors"
	"sync"
)

// Hook is an ordered list of subscribers for one event type. The zero value
// is ready to use.
type Hook[T any] struct {
	mu  sync.RWMutex
	fns []func(context.Context, T) error
}

// Add registers a subscriber.
func (h *Hook[T]) Add(fn func(context.Context, T) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

// Call invokes every subscriber in registration order. All subscribers run
// even if an earlier one fails; their errors are joined.
func (h *Hook[T]) Call(ctx context.Context, v T) error {
	h.mu.RLock()
	fns := h.fns
	h.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
