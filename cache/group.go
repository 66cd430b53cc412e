package cache

import (
	"context"
	"fmt"
	"sync"
)

// FillFunc computes the value for a key.
type FillFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// ExpireFunc decides whether an existing future for key is still valid. It may return the same
// future, a replacement future, or nil to force a new computation. It is called outside the
// group's lock and may perform I/O.
type ExpireFunc[K comparable, V any] func(ctx context.Context, key K, existing *Future[V]) *Future[V]

// Group is a concurrent map from key to future. It guarantees that no two computations for the
// same key run at the same time.
type Group[K comparable, V any] struct {
	mu      sync.Mutex
	futures map[K]*Future[V]

	fill   FillFunc[K, V]
	expire ExpireFunc[K, V]
	// onEvent is notified about cache hits, misses and shared futures.
	onEvent func(key K, event Event)
}

// Event classifies a Get call.
type Event string

const (
	// EventMiss means the caller started a new computation.
	EventMiss Event = "miss"
	// EventHit means the caller received a completed future.
	EventHit Event = "hit"
	// EventShare means the caller joined a computation that is still running.
	EventShare Event = "share"
)

// Option configures a Group.
type Option[K comparable, V any] func(*Group[K, V])

// WithExpire installs a hook that validates existing futures before they are handed out.
func WithExpire[K comparable, V any](fn ExpireFunc[K, V]) Option[K, V] {
	return func(g *Group[K, V]) {
		g.expire = fn
	}
}

// WithEvents installs a callback for cache events, e.g. to feed metrics.
func WithEvents[K comparable, V any](fn func(key K, event Event)) Option[K, V] {
	return func(g *Group[K, V]) {
		g.onEvent = fn
	}
}

// NewGroup creates a group that computes missing values with fill.
func NewGroup[K comparable, V any](fill FillFunc[K, V], opts ...Option[K, V]) *Group[K, V] {
	g := &Group[K, V]{
		futures: make(map[K]*Future[V]),
		fill:    fill,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Get returns the future for key, starting the computation if there is none.
// The future is registered before the computation starts, so a computation that (directly or
// indirectly) asks for its own key receives the registered future instead of starting another one.
func (g *Group[K, V]) Get(ctx context.Context, key K) *Future[V] {
	if g.expire != nil {
		g.validate(ctx, key)
	}

	g.mu.Lock()
	if f, ok := g.futures[key]; ok {
		g.mu.Unlock()
		if f.Ready() {
			g.notify(key, EventHit)
		} else {
			g.notify(key, EventShare)
		}
		return f
	}
	f := newFuture[V]()
	g.futures[key] = f
	g.mu.Unlock()

	g.notify(key, EventMiss)
	g.start(ctx, key, f)
	return f
}

// Do is a shorthand for Get followed by Await.
func (g *Group[K, V]) Do(ctx context.Context, key K) (V, error) {
	return g.Get(ctx, key).Await(ctx)
}

// validate runs the expire hook against the current future for key and swaps the result in,
// unless another caller replaced the future in the meantime.
func (g *Group[K, V]) validate(ctx context.Context, key K) {
	g.mu.Lock()
	existing := g.futures[key]
	g.mu.Unlock()

	replacement := g.expire(ctx, key, existing)
	if replacement == existing {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.futures[key] != existing {
		return
	}
	if replacement == nil {
		delete(g.futures, key)
		return
	}
	g.futures[key] = replacement
}

func (g *Group[K, V]) start(ctx context.Context, key K, f *Future[V]) {
	// computations outlive the caller that started them
	ctx = context.WithoutCancel(ctx)
	go func() {
		var (
			value V
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("computation for %v panicked: %v", key, r)
			}
			f.complete(value, err)
		}()
		value, err = g.fill(ctx, key)
	}()
}

// Lookup returns the future for key without starting a computation.
func (g *Group[K, V]) Lookup(key K) (*Future[V], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.futures[key]
	return f, ok
}

// PutIfAbsent stores a completed future for key unless a future already exists.
// It reports whether the value was stored.
func (g *Group[K, V]) PutIfAbsent(key K, value V) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.futures[key]; ok {
		return false
	}
	g.futures[key] = Completed(value)
	return true
}

func (g *Group[K, V]) notify(key K, event Event) {
	if g.onEvent != nil {
		g.onEvent(key, event)
	}
}
