// Package interceptor implements the ordered request/response transform
// chains. A chain is a pipe, not a stack: both phases iterate forward in
// insertion order, one handler at a time.
package interceptor

import (
	"context"
	"sync"
)

// Fulfilled transforms a value flowing down the chain. Returning an error
// short-circuits into the rejection path of the remaining entries.
type Fulfilled[T any] func(ctx context.Context, v T) (T, error)

// Rejected observes an error flowing down the chain. Returning a nil error
// recovers: the returned value re-enters the fulfillment path for the
// remaining entries. Returning a non-nil error keeps the chain rejected.
type Rejected[T any] func(ctx context.Context, err error) (T, error)

type entry[T any] struct {
	id          int
	onFulfilled Fulfilled[T]
	onRejected  Rejected[T]
}

// Chain is an ordered, mutable list of interceptor entries. Use and Eject may
// be called concurrently with Run; execution works on a snapshot of the list.
type Chain[T any] struct {
	mu      sync.Mutex
	entries []entry[T]
	nextID  int
}

// NewChain creates an empty chain.
func NewChain[T any]() *Chain[T] {
	return &Chain[T]{}
}

// Use appends an entry and returns an identifier usable with Eject. Either
// handler may be nil; a nil handler passes the current value or error through
// unchanged.
func (c *Chain[T]) Use(onFulfilled Fulfilled[T], onRejected Rejected[T]) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.entries = append(c.entries, entry[T]{id: id, onFulfilled: onFulfilled, onRejected: onRejected})
	return id
}

// Eject removes the entry registered under id. Unknown ids are ignored.
func (c *Chain[T]) Eject(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered entries.
func (c *Chain[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry.
func (c *Chain[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Run feeds v through the chain starting in the fulfilled state and returns
// the final value or the error left standing after every entry ran.
func (c *Chain[T]) Run(ctx context.Context, v T) (T, error) {
	return c.run(ctx, v, nil)
}

// RunError feeds err through the chain starting in the rejected state, giving
// each entry's rejection handler a chance to recover.
func (c *Chain[T]) RunError(ctx context.Context, err error) (T, error) {
	var zero T
	return c.run(ctx, zero, err)
}

func (c *Chain[T]) run(ctx context.Context, v T, err error) (T, error) {
	c.mu.Lock()
	entries := make([]entry[T], len(c.entries))
	copy(entries, c.entries)
	c.mu.Unlock()

	for _, e := range entries {
		if cerr := ctx.Err(); cerr != nil {
			var zero T
			return zero, cerr
		}
		if err != nil {
			if e.onRejected == nil {
				continue
			}
			recovered, rerr := e.onRejected(ctx, err)
			if rerr != nil {
				err = rerr
				continue
			}
			v, err = recovered, nil
			continue
		}
		if e.onFulfilled == nil {
			continue
		}
		v, err = e.onFulfilled(ctx, v)
	}

	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
