package component

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/mtscore/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LifecycleFactory creates a fresh, unconnected component for the standard
// lifecycle tests. Components with Required required interfaces must be
// connected by the factory, or Start fails.
type LifecycleFactory func(t *testing.T) Lifecycle

// StandardLifecycleTests runs the lifecycle checks every component must pass.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	t.Run("Compliance", func(t *testing.T) {
		testLifecycleCompliance(t, factory)
	})
	t.Run("InvalidTransitions", func(t *testing.T) {
		testInvalidTransitions(t, factory)
	})
	t.Run("Concurrent", func(t *testing.T) {
		testConcurrentKill(t, factory)
	})
	t.Run("NoLeaks", func(t *testing.T) {
		testNoGoroutineLeaks(t, factory)
	})
}

func lifecycleContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testLifecycleCompliance(t *testing.T, factory LifecycleFactory) {
	ctx := lifecycleContext(t)
	comp := factory(t)
	require.NotNil(t, comp, "factory returned nil")
	assert.Equal(t, StateConstructed, comp.State())

	require.NoError(t, comp.Create(ctx))
	assert.Equal(t, StateReady, comp.State())

	require.NoError(t, comp.Start(ctx))
	require.NoError(t, comp.WaitForState(ctx, StateActive))

	require.NoError(t, comp.Suspend(ctx))
	assert.Equal(t, StateReady, comp.State())

	require.NoError(t, comp.Start(ctx), "restart after suspend")
	require.NoError(t, comp.Kill(ctx))
	assert.Equal(t, StateFinished, comp.State())
}

func testInvalidTransitions(t *testing.T, factory LifecycleFactory) {
	ctx := lifecycleContext(t)
	comp := factory(t)

	err := comp.Start(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "start before create: %v", err)
	err = comp.Suspend(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "suspend before start: %v", err)

	require.NoError(t, comp.Create(ctx))
	err = comp.Create(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "double create: %v", err)

	require.NoError(t, comp.Kill(ctx))
	err = comp.Kill(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "double kill: %v", err)
	err = comp.Start(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "start after kill: %v", err)
}

func testConcurrentKill(t *testing.T, factory LifecycleFactory) {
	ctx := lifecycleContext(t)
	comp := factory(t)
	require.NoError(t, comp.Create(ctx))
	require.NoError(t, comp.Start(ctx))

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if comp.Kill(ctx) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load(), "exactly one Kill wins")
	assert.Equal(t, StateFinished, comp.State())
}

func testNoGoroutineLeaks(t *testing.T, factory LifecycleFactory) {
	ctx := lifecycleContext(t)
	runtime.GC()
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		comp := factory(t)
		require.NoError(t, comp.Create(ctx))
		require.NoError(t, comp.Start(ctx))
		require.NoError(t, comp.Suspend(ctx))
		require.NoError(t, comp.Kill(ctx))
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine()-before < 5
	}, 2*time.Second, 20*time.Millisecond, "goroutines grew from %d", before)
}
