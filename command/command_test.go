package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/mailbox"
)

type vec3 [3]float64

func newMailbox(t *testing.T, capacity int) *mailbox.Mailbox {
	t.Helper()
	mb, err := mailbox.New("server", capacity)
	require.NoError(t, err)
	return mb
}

func TestShape_Properties(t *testing.T) {
	tests := []struct {
		shape     Shape
		name      string
		hasArg    bool
		hasResult bool
		queued    bool
	}{
		{ShapeVoid, "Void", false, false, true},
		{ShapeVoidReturn, "VoidReturn", false, true, true},
		{ShapeWrite, "Write", true, false, true},
		{ShapeWriteReturn, "WriteReturn", true, true, true},
		{ShapeRead, "Read", false, true, false},
		{ShapeQualifiedRead, "QualifiedRead", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.shape.String())
			assert.Equal(t, tt.hasArg, tt.shape.HasArgument())
			assert.Equal(t, tt.hasResult, tt.shape.HasResult())
			assert.Equal(t, tt.queued, tt.shape.QueuedByDefault())
		})
	}
	assert.Equal(t, "Unknown", Shape(99).String())
}

func TestUnqueuedCommands(t *testing.T) {
	ctx := context.Background()
	var goal vec3
	var resets int

	reset := NewVoid("Reset", func(context.Context) error { resets++; return nil })
	setGoal := NewWrite("SetGoal", func(_ context.Context, v vec3) error { goal = v; return nil })
	getGoal := NewRead("GetGoal", func(context.Context) (vec3, error) { return goal, nil })
	tick := NewVoidReturn("Tick", func(context.Context) (int, error) { return resets, nil })
	scale := NewQualifiedRead("Scale", func(_ context.Context, k float64) (vec3, error) {
		return vec3{goal[0] * k, goal[1] * k, goal[2] * k}, nil
	})
	swap := NewWriteReturn("Swap", func(_ context.Context, v vec3) (vec3, error) {
		old := goal
		goal = v
		return old, nil
	})

	require.NoError(t, reset.Execute(ctx))
	require.NoError(t, setGoal.Execute(ctx, vec3{1, 2, 3}))

	got, err := getGoal.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, vec3{1, 2, 3}, got)

	n, err := tick.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	scaled, err := scale.Execute(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, vec3{2, 4, 6}, scaled)

	old, err := swap.Execute(ctx, vec3{7, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, vec3{1, 2, 3}, old)
	assert.Equal(t, vec3{7, 8, 9}, goal)

	assert.Equal(t, ShapeVoidReturn, tick.Shape())
	assert.Equal(t, ShapeWriteReturn, swap.Shape())
	assert.False(t, swap.Queued())
}

func TestInvoke_TypeChecks(t *testing.T) {
	ctx := context.Background()
	var got int
	w := NewWrite("Set", func(_ context.Context, v int) error { got = v; return nil })

	_, err := w.Invoke(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	_, err = w.Invoke(ctx, "five")
	require.ErrorIs(t, err, errors.ErrTypeMismatch)
	assert.True(t, errors.IsInvalid(err))

	q := NewQualifiedRead("Double", func(_ context.Context, v int) (int, error) { return v * 2, nil })
	res, err := q.Invoke(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestCommand_Disable(t *testing.T) {
	ctx := context.Background()
	c := NewVoid("Reset", func(context.Context) error { return nil })

	c.Disable()
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Execute(ctx), errors.ErrDisabled)

	c.Enable()
	assert.NoError(t, c.Execute(ctx))
}

func TestQueuedWrite_DeferredUntilDrain(t *testing.T) {
	ctx := context.Background()
	mb := newMailbox(t, 4)
	var goal vec3

	setGoal := QueueWrite[vec3](NewWrite("SetGoal", func(_ context.Context, v vec3) error {
		goal = v
		return nil
	}), mb)

	require.NoError(t, setGoal.Execute(ctx, vec3{1, 2, 3}))
	assert.Equal(t, vec3{}, goal, "queued write must not run before the owner drains")
	assert.True(t, setGoal.Queued())
	assert.Equal(t, "SetGoal", setGoal.Name())

	mb.Drain(ctx, 0)
	assert.Equal(t, vec3{1, 2, 3}, goal)
}

func TestQueuedWrite_ArgumentCapturedPerCall(t *testing.T) {
	ctx := context.Background()
	mb := newMailbox(t, 4)
	var seen []int

	w := QueueWrite[int](NewWrite("Push", func(_ context.Context, v int) error {
		seen = append(seen, v)
		return nil
	}), mb)

	for i := 1; i <= 3; i++ {
		require.NoError(t, w.Execute(ctx, i))
	}
	mb.Drain(ctx, 0)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestQueued_FailFastWhenFull(t *testing.T) {
	ctx := context.Background()
	mb := newMailbox(t, 2)
	v := QueueVoid(NewVoid("Poke", func(context.Context) error { return nil }), mb)

	require.NoError(t, v.Execute(ctx))
	require.NoError(t, v.Execute(ctx))
	assert.ErrorIs(t, v.Execute(ctx), errors.ErrQueueFull)

	r := QueueRead[int](NewVoidReturn("Count", func(context.Context) (int, error) { return 1, nil }), mb)
	_, err := r.Execute(ctx)
	assert.ErrorIs(t, err, errors.ErrQueueFull)
}

func TestQueuedRead_WaitsForOwner(t *testing.T) {
	mb := newMailbox(t, 4)
	state := 10

	r := QueueRead[int](NewVoidReturn("Get", func(context.Context) (int, error) { return state, nil }), mb)
	q := QueueQualified[int, int](NewWriteReturn("Add", func(_ context.Context, d int) (int, error) {
		state += d
		return state, nil
	}), mb)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if !mb.ExecuteNext(context.Background()) {
					time.Sleep(time.Millisecond)
				}
			}
		}
	}()
	defer close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := r.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	sum, err := q.Execute(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 15, sum)

	res, err := q.Invoke(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 16, res)
}

func TestQueuedRead_TimeoutWithoutConsumer(t *testing.T) {
	mb := newMailbox(t, 4)
	r := QueueRead[int](NewVoidReturn("Get", func(context.Context) (int, error) { return 1, nil }), mb)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Execute(ctx)
	require.ErrorIs(t, err, errors.ErrTimeout)
	assert.Equal(t, 1, mb.Available())
}

func TestQueuedVoid_ExecuteBlocking(t *testing.T) {
	mb := newMailbox(t, 4)
	var ran bool
	v := QueueVoid(NewVoid("Run", func(context.Context) error { ran = true; return nil }), mb)

	done := make(chan error, 1)
	go func() { done <- v.ExecuteBlocking(context.Background()) }()

	require.Eventually(t, func() bool { return mb.Available() == 1 }, time.Second, time.Millisecond)
	mb.Drain(context.Background(), 0)

	require.NoError(t, <-done)
	assert.True(t, ran)
}

func TestQueued_DisableIsPerWrapper(t *testing.T) {
	ctx := context.Background()
	mb := newMailbox(t, 4)
	inner := NewVoid("Poke", func(context.Context) error { return nil })
	a := QueueVoid(inner, mb)
	b := QueueVoid(inner, mb)

	a.Disable()
	assert.ErrorIs(t, a.Execute(ctx), errors.ErrDisabled)
	assert.NoError(t, b.Execute(ctx))
	assert.True(t, inner.Enabled())
}

func TestDescribe(t *testing.T) {
	mb := newMailbox(t, 1)
	info := Describe(QueueQualified[int, string](
		NewWriteReturn("Format", func(_ context.Context, v int) (string, error) { return "", nil }), mb))

	assert.Equal(t, Info{
		Name:     "Format",
		Shape:    "WriteReturn",
		Argument: "int",
		Result:   "string",
		Queued:   true,
		Enabled:  true,
	}, info)
}
