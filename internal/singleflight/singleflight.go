// Package singleflight coalesces concurrent calls for the same key into a
// single execution, with waiters receiving the owner's result.
package singleflight

import (
	"context"
	"sync"
)

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active function call.
type call struct {
	done chan struct{}
	val  any
	err  error
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{m: make(map[string]*call)}
}

// Do executes fn, making sure that only one execution is in-flight for a
// given key at a time. Duplicate callers wait for the original to complete
// and receive the same result, unless their context is cancelled first. The
// owner's fn is not interrupted by waiter cancellation.
func (g *Group) Do(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err
}
