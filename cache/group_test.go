package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/bindings/go/maven/cache"
)

func TestGroup_AtMostOneComputationPerKey(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := cache.NewGroup(func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "value-" + key, nil
	})

	const n = 50
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			v, err := g.Do(t.Context(), "a")
			assert.NoError(t, err)
			results[i] = v
		})
	}

	// let the callers pile up on the in-flight future
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, "value-a", r)
	}
}

func TestGroup_DistinctKeysComputeInParallel(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	g := cache.NewGroup(func(ctx context.Context, key string) (int, error) {
		started <- key
		<-release
		return len(key), nil
	})

	fa := g.Get(t.Context(), "a")
	fb := g.Get(t.Context(), "bb")

	got := map[string]bool{<-started: true, <-started: true}
	assert.Equal(t, map[string]bool{"a": true, "bb": true}, got)
	close(release)

	va, err := fa.Await(t.Context())
	require.NoError(t, err)
	vb, err := fb.Await(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)
}

func TestGroup_AbandonedAwaitDoesNotCancelComputation(t *testing.T) {
	release := make(chan struct{})
	var sawCancel atomic.Bool
	g := cache.NewGroup(func(ctx context.Context, key string) (string, error) {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return "done", nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	f := g.Get(ctx, "k")
	cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	v, err := g.Do(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.False(t, sawCancel.Load())
}

func TestGroup_ErrorsAreCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	g := cache.NewGroup(func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		return "", boom
	})

	_, err := g.Do(t.Context(), "k")
	require.ErrorIs(t, err, boom)
	_, err = g.Do(t.Context(), "k")
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGroup_PanicBecomesError(t *testing.T) {
	g := cache.NewGroup(func(ctx context.Context, key string) (string, error) {
		panic("kaputt")
	})
	_, err := g.Do(t.Context(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaputt")
}

func TestGroup_PutIfAbsent(t *testing.T) {
	var calls atomic.Int32
	g := cache.NewGroup(func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		return "computed", nil
	})

	assert.True(t, g.PutIfAbsent("k", "seeded"))
	assert.False(t, g.PutIfAbsent("k", "other"))

	v, err := g.Do(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "seeded", v)
	assert.Zero(t, calls.Load())
	_, ok := g.Lookup("k")
	assert.True(t, ok)
}

func TestGroup_ExpireHook(t *testing.T) {
	var calls atomic.Int32
	var expireNext atomic.Bool
	g := cache.NewGroup(
		func(ctx context.Context, key string) (int32, error) {
			return calls.Add(1), nil
		},
		cache.WithExpire(func(ctx context.Context, key string, existing *cache.Future[int32]) *cache.Future[int32] {
			if existing == nil {
				return cache.Completed[int32](100)
			}
			if expireNext.Load() {
				return nil
			}
			return existing
		}),
	)

	v, err := g.Do(t.Context(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 100, v, "expire hook seeds a missing entry")

	expireNext.Store(true)
	v, err = g.Do(t.Context(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v, "expired entry is recomputed")
}

func TestGroup_Events(t *testing.T) {
	var mu sync.Mutex
	var events []cache.Event
	release := make(chan struct{})
	g := cache.NewGroup(
		func(ctx context.Context, key string) (string, error) {
			<-release
			return key, nil
		},
		cache.WithEvents[string, string](func(key string, event cache.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
		}),
	)

	f := g.Get(t.Context(), "k")
	g.Get(t.Context(), "k")
	close(release)
	_, err := f.Await(t.Context())
	require.NoError(t, err)
	g.Get(t.Context(), "k")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []cache.Event{cache.EventMiss, cache.EventShare, cache.EventHit}, events)
}

func TestFuture_Completed(t *testing.T) {
	f := cache.Completed("x")
	assert.True(t, f.Ready())
	assert.NoError(t, f.Err())
	assert.False(t, f.CompletedAt().IsZero())
	v, err := f.Await(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	failed := cache.Failed[string](errors.New("nope"))
	assert.EqualError(t, failed.Err(), "nope")
}
