package scene

import (
	"context"
	"sync"
)

// Ready is a one-shot readiness future. The host initialization path
// resolves it once; dependents wait on it.
type Ready struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewReady returns an unresolved future.
func NewReady() *Ready {
	return &Ready{done: make(chan struct{})}
}

// Resolve completes the future. Only the first call has an effect; it
// reports whether this call resolved it.
func (r *Ready) Resolve(err error) bool {
	resolved := false
	r.once.Do(func() {
		r.err = err
		close(r.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future resolves.
func (r *Ready) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the future resolves or ctx ends.
func (r *Ready) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
