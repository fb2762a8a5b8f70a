package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/errors"
)

func TestVoidEvent_Multicast(t *testing.T) {
	ctx := context.Background()
	ev := NewVoidEvent("Started")

	var a, b int
	ha := NewVoid("Started", func(context.Context) error { a++; return nil })
	hb := NewVoid("Started", func(context.Context) error { b++; return nil })

	require.NoError(t, ev.AddObserver(ha))
	require.NoError(t, ev.AddObserver(hb))
	assert.Equal(t, 2, ev.Observers())
	assert.ErrorIs(t, ev.AddObserver(ha), errors.ErrDuplicateName)

	require.NoError(t, ev.Trigger(ctx))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	assert.True(t, ev.RemoveObserver(ha))
	assert.False(t, ev.RemoveObserver(ha))
	require.NoError(t, ev.TriggerAny(ctx, nil))
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestWriteEvent_TypeChecked(t *testing.T) {
	ctx := context.Background()
	ev := NewWriteEvent[float64]("Crossed")

	err := ev.AddObserver(NewWrite("Crossed", func(context.Context, int) error { return nil }))
	require.ErrorIs(t, err, errors.ErrTypeMismatch)

	err = ev.AddObserver(NewVoid("Crossed", func(context.Context) error { return nil }))
	require.ErrorIs(t, err, errors.ErrTypeMismatch)

	var got []float64
	require.NoError(t, ev.AddObserver(NewWrite("Crossed", func(_ context.Context, v float64) error {
		got = append(got, v)
		return nil
	})))

	require.NoError(t, ev.Trigger(ctx, 1.5))
	require.NoError(t, ev.TriggerAny(ctx, 2.5))
	assert.ErrorIs(t, ev.TriggerAny(ctx, "x"), errors.ErrTypeMismatch)
	assert.Equal(t, []float64{1.5, 2.5}, got)
}

func TestEvent_FailuresDoNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	ev := NewWriteEvent[int]("Value")
	mb := newMailbox(t, 1)

	var direct []int
	queued := QueueWrite[int](NewWrite("Value", func(context.Context, int) error { return nil }), mb)
	require.NoError(t, ev.AddObserver(queued))
	require.NoError(t, ev.AddObserver(NewWrite("Value", func(_ context.Context, v int) error {
		direct = append(direct, v)
		return nil
	})))

	require.NoError(t, ev.Trigger(ctx, 1))
	// mailbox now full: queued observer fails, direct one still runs
	err := ev.Trigger(ctx, 2)
	require.ErrorIs(t, err, errors.ErrQueueFull)
	assert.Contains(t, err.Error(), "event Value")
	assert.Equal(t, []int{1, 2}, direct)
}

func TestEvent_TriggerHook(t *testing.T) {
	ev := NewWriteEvent[int]("Moved")
	var triggers int
	ev.SetTriggerHook(func() { triggers++ })

	require.NoError(t, ev.Trigger(context.Background(), 1))
	require.NoError(t, ev.Trigger(context.Background(), 2))
	assert.Equal(t, 2, triggers, "hook runs even without observers")
}

func TestEvent_Listeners(t *testing.T) {
	ctx := context.Background()
	ev := NewWriteEvent[string]("Status")

	var got []any
	remove := ev.AddListener(func(_ context.Context, payload any) { got = append(got, payload) })
	require.NoError(t, ev.Trigger(ctx, "up"))
	assert.Equal(t, 0, ev.Observers(), "listeners are not observers")

	remove()
	remove()
	require.NoError(t, ev.Trigger(ctx, "down"))
	assert.Equal(t, []any{"up"}, got)

	void := NewVoidEvent("Tick")
	var ticks int
	void.AddListener(func(_ context.Context, payload any) {
		assert.Nil(t, payload)
		ticks++
	})
	require.NoError(t, void.TriggerAny(ctx, nil))
	assert.Equal(t, 1, ticks)
}
