package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
)

func newMailbox(t *testing.T, capacity int, opts ...Option) *Mailbox {
	t.Helper()
	m, err := New("test", capacity, opts...)
	require.NoError(t, err)
	return m
}

func TestMailbox_CapacityScenario(t *testing.T) {
	m := newMailbox(t, 2)
	ctx := context.Background()

	var got []int
	write := func(v int) *Call {
		return NewCall("SetValue", func(context.Context) error {
			got = append(got, v)
			return nil
		})
	}

	require.NoError(t, m.Enqueue(write(1)))
	require.NoError(t, m.Enqueue(write(2)))

	err := m.Enqueue(write(3))
	require.ErrorIs(t, err, errors.ErrQueueFull)
	assert.True(t, errors.IsTransient(err))

	assert.True(t, m.ExecuteNext(ctx))
	require.NoError(t, m.Enqueue(write(4)))

	assert.Equal(t, 2, m.Drain(ctx, 0))
	assert.False(t, m.ExecuteNext(ctx))
	assert.Equal(t, []int{1, 2, 4}, got)
}

func TestMailbox_FIFOAcrossProducers(t *testing.T) {
	m := newMailbox(t, 1000)
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var enqueued []int

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				v := p*1000 + i
				mu.Lock()
				// hold the lock across enqueue so enqueued mirrors queue order
				assert.NoError(t, m.Enqueue(NewCall("op", func(context.Context) error {
					order = append(order, v)
					return nil
				})))
				enqueued = append(enqueued, v)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	for m.ExecuteNext(ctx) {
	}
	assert.Equal(t, enqueued, order)
}

func TestMailbox_CompletionAndWait(t *testing.T) {
	m := newMailbox(t, 4)
	ctx := context.Background()

	failure := errors.New("boom")
	ok := NewCall("ok", func(context.Context) error { return nil })
	bad := NewCall("bad", func(context.Context) error { return failure })
	require.NoError(t, m.Enqueue(ok))
	require.NoError(t, m.Enqueue(bad))

	assert.NoError(t, ok.Err())

	done := make(chan error, 1)
	go func() { done <- bad.Wait(ctx) }()

	m.Drain(ctx, 0)
	assert.NoError(t, ok.Wait(ctx))
	assert.ErrorIs(t, <-done, failure)
}

func TestMailbox_WaitTimeout(t *testing.T) {
	m := newMailbox(t, 1)
	call := NewCall("slow", func(context.Context) error { return nil })
	require.NoError(t, m.Enqueue(call))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := call.Wait(ctx)
	require.ErrorIs(t, err, errors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, errors.IsTransient(err))

	// still executes later
	assert.True(t, m.ExecuteNext(context.Background()))
	assert.NoError(t, call.Wait(context.Background()))
}

func TestMailbox_PanicBecomesError(t *testing.T) {
	m := newMailbox(t, 1)
	call := NewCall("explode", func(context.Context) error { panic("bad state") })
	require.NoError(t, m.Enqueue(call))

	assert.True(t, m.ExecuteNext(context.Background()))
	err := call.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}

func TestMailbox_CloseReleasesWaiters(t *testing.T) {
	m := newMailbox(t, 2)
	call := NewCall("pending", func(context.Context) error { return nil })
	require.NoError(t, m.Enqueue(call))

	m.Close()

	assert.ErrorIs(t, call.Wait(context.Background()), errors.ErrMailboxClosed)
	assert.ErrorIs(t, m.Enqueue(NewCall("late", func(context.Context) error { return nil })), errors.ErrMailboxClosed)
	assert.Equal(t, 0, m.Available())
}

func TestMailbox_Notifier(t *testing.T) {
	var notified int
	m := newMailbox(t, 2, WithNotifier(func() { notified++ }))

	require.NoError(t, m.Enqueue(NewCall("a", func(context.Context) error { return nil })))
	require.NoError(t, m.Enqueue(NewCall("b", func(context.Context) error { return nil })))
	require.Error(t, m.Enqueue(NewCall("c", func(context.Context) error { return nil })))

	assert.Equal(t, 2, notified)

	m.SetNotifier(nil)
	m.Drain(context.Background(), 0)
	require.NoError(t, m.Enqueue(NewCall("d", func(context.Context) error { return nil })))
	assert.Equal(t, 2, notified)
}

func TestMailbox_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := newMailbox(t, 1, WithMetrics(registry))

	require.NoError(t, m.Enqueue(NewCall("a", func(context.Context) error { return nil })))
	require.Error(t, m.Enqueue(NewCall("b", func(context.Context) error { return nil })))
	m.Drain(context.Background(), 0)

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.MailboxQueueFull.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.MailboxProcessed.WithLabelValues("test")))
	assert.Equal(t, int64(1), m.Stats().Overflows)
}

func TestMailbox_Defaults(t *testing.T) {
	m := newMailbox(t, 0)
	assert.Equal(t, DefaultCapacity, m.Capacity())
	assert.Equal(t, "test", m.Name())
	assert.ErrorIs(t, m.Enqueue(nil), errors.ErrInvalidData)
}
