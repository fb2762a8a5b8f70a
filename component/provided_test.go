package component

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestTask(t *testing.T, name string, opts ...Option) *Task {
	t.Helper()
	task, err := NewTask(name, 0, opts...)
	require.NoError(t, err)
	return task
}

func TestProvided_DuplicateNamesAcrossShapes(t *testing.T) {
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)

	_, err = pi.AddCommandVoid("Reset", func(context.Context) error { return nil })
	require.NoError(t, err)

	_, err = AddCommandWrite(pi, "Reset", func(context.Context, int) error { return nil })
	assert.True(t, errors.Is(err, errors.ErrDuplicateName), "write with void name: %v", err)

	_, err = pi.AddEventVoid("Reset")
	assert.True(t, errors.Is(err, errors.ErrDuplicateName), "event with command name: %v", err)

	_, err = AddEventWrite[int](pi, "Moved")
	require.NoError(t, err)
	_, err = AddCommandRead(pi, "Moved", func(context.Context) (int, error) { return 0, nil })
	assert.True(t, errors.Is(err, errors.ErrDuplicateName), "command with event name: %v", err)

	_, err = pi.AddCommandVoid("bad name", func(context.Context) error { return nil })
	assert.True(t, errors.IsInvalid(err))

	assert.Equal(t, []string{"Reset"}, pi.CommandNames())
	assert.Equal(t, []string{"Moved"}, pi.EventNames())
}

func TestProvided_EndUserInterfaceIsPerClient(t *testing.T) {
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)
	_, err = pi.AddCommandVoid("Reset", func(context.Context) error { return nil })
	require.NoError(t, err)

	a1, err := pi.GetEndUserInterface("clientA")
	require.NoError(t, err)
	a2, err := pi.GetEndUserInterface("clientA")
	require.NoError(t, err)
	b, err := pi.GetEndUserInterface("clientB")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	require.NotNil(t, a1.Mailbox())
	assert.Equal(t, "server.Main.clientA", a1.Mailbox().Name())
	assert.NotSame(t, a1.Mailbox(), b.Mailbox())
	assert.ElementsMatch(t, []string{"clientA", "clientB"}, pi.UserNames())

	c1, err := a1.Command("Reset")
	require.NoError(t, err)
	c2, err := a1.Command("Reset")
	require.NoError(t, err)
	assert.Same(t, c1, c2, "wrapper is cached per view")
	assert.True(t, c1.Queued())

	_, err = pi.GetEndUserInterface("")
	assert.True(t, errors.Is(err, errors.ErrInvalidData))
}

func TestProvided_QueueingDefaultsByShape(t *testing.T) {
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)

	_, err = AddCommandRead(pi, "Get", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = AddCommandQualifiedRead(pi, "Scale", func(_ context.Context, x int) (int, error) { return 2 * x, nil })
	require.NoError(t, err)
	_, err = AddCommandVoidReturn(pi, "Tick", func(context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)
	_, err = AddCommandWriteReturn(pi, "Push", func(_ context.Context, x int) (int, error) { return x, nil })
	require.NoError(t, err)
	_, err = AddCommandRead(pi, "GetQueued", func(context.Context) (int, error) { return 1, nil }, Queued())
	require.NoError(t, err)
	_, err = pi.AddCommandVoid("ResetNow", func(context.Context) error { return nil }, NotQueued())
	require.NoError(t, err)

	view, err := pi.GetEndUserInterface("client")
	require.NoError(t, err)

	queued := map[string]bool{}
	for _, name := range pi.CommandNames() {
		cmd, err := view.Command(name)
		require.NoError(t, err)
		queued[name] = cmd.Queued()
	}
	assert.Equal(t, map[string]bool{
		"Get": false, "Scale": false, "Tick": true, "Push": true, "GetQueued": true, "ResetNow": false,
	}, queued)

	info := pi.Describe()
	assert.Equal(t, "queued", info.Policy)
	require.Len(t, info.Commands, 6)
	assert.Equal(t, "Scale", info.Commands[1].Name)
	assert.Equal(t, "int", info.Commands[1].Argument)
	assert.False(t, info.Commands[1].Queued)
}

func TestProvided_QueuedCommandRunsOnProcess(t *testing.T) {
	ctx := context.Background()
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)

	var got []int
	_, err = AddCommandWrite(pi, "Append", func(_ context.Context, v int) error {
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)

	view, err := pi.GetEndUserInterface("client")
	require.NoError(t, err)
	cmd, err := view.Command("Append")
	require.NoError(t, err)
	write, ok := cmd.(command.WriteCaller[int])
	require.True(t, ok)

	require.NoError(t, write.Execute(ctx, 1))
	require.NoError(t, write.Execute(ctx, 2))
	assert.Empty(t, got, "queued writes wait for the owner")

	assert.Equal(t, 2, pi.ProcessMailBoxes(ctx))
	assert.Equal(t, []int{1, 2}, got)
}

func TestProvided_NotQueuedPolicy(t *testing.T) {
	comp, err := NewComponent("passive")
	require.NoError(t, err)
	pi, err := comp.AddInterfaceProvided("Main")
	require.NoError(t, err)
	assert.Equal(t, CommandsShouldNotBeQueued, pi.Policy())

	ran := false
	_, err = pi.AddCommandVoid("Reset", func(context.Context) error { ran = true; return nil }, Queued())
	require.NoError(t, err)

	view, err := pi.GetEndUserInterface("client")
	require.NoError(t, err)
	assert.Nil(t, view.Mailbox())

	cmd, err := view.Command("Reset")
	require.NoError(t, err)
	_, err = cmd.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestProvided_RemoveEndUserInterfaceDrainsPending(t *testing.T) {
	ctx := context.Background()
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)

	count := 0
	_, err = pi.AddCommandVoid("Inc", func(context.Context) error { count++; return nil })
	require.NoError(t, err)

	view, err := pi.GetEndUserInterface("client")
	require.NoError(t, err)
	cmd, err := view.Command("Inc")
	require.NoError(t, err)
	require.NoError(t, cmd.(command.VoidCaller).Execute(ctx))

	require.NoError(t, pi.RemoveEndUserInterface(view, "client"))
	assert.Empty(t, pi.UserNames())
	_, err = view.Command("Inc")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	assert.Equal(t, 1, pi.ProcessMailBoxes(ctx))
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, pi.ProcessMailBoxes(ctx))

	err = pi.RemoveEndUserInterface(view, "client")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestProvided_ClosedRefusesNewViews(t *testing.T) {
	ctx := context.Background()
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)
	_, err = pi.AddCommandVoid("Inc", func(context.Context) error { return nil })
	require.NoError(t, err)

	view, err := pi.GetEndUserInterface("early")
	require.NoError(t, err)
	cmd, err := view.Command("Inc")
	require.NoError(t, err)

	require.NoError(t, task.Kill(ctx))

	_, err = pi.GetEndUserInterface("late")
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.True(t, errors.IsInvalid(err))
	_, err = pi.GetEndUserInterface("early")
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "existing views are not handed out either")
	assert.Equal(t, []string{"early"}, pi.UserNames())

	err = cmd.(command.VoidCaller).Execute(ctx)
	assert.True(t, errors.Is(err, errors.ErrMailboxClosed))
	require.NoError(t, pi.RemoveEndUserInterface(view, "early"))
}

func TestProvided_AddObserverListReportsPerEvent(t *testing.T) {
	task := newTestTask(t, "server")
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)
	_, err = AddEventWrite[int](pi, "Moved")
	require.NoError(t, err)

	ok := command.NewWrite("Moved", func(context.Context, int) error { return nil })
	wrongType := command.NewWrite("Moved", func(context.Context, string) error { return nil })
	missing := command.NewVoid("Stopped", func(context.Context) error { return nil })

	results := pi.AddObserverList([]ObserverRequest{
		{Name: "Moved", Handler: ok, Requirement: Required},
		{Name: "Moved", Handler: wrongType, Requirement: Optional},
		{Name: "Stopped", Handler: missing, Requirement: Optional},
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, errors.ErrTypeMismatch))
	assert.True(t, errors.Is(results[2].Err, errors.ErrNotFound))
	assert.Equal(t, Optional, results[2].Requirement)

	ev, err := pi.Event("Moved")
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Observers())
}

func TestProvided_Metrics(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()
	comp, err := NewComponent("server", WithMetrics(registry))
	require.NoError(t, err)
	pi, err := comp.AddInterfaceProvided("Main")
	require.NoError(t, err)

	get, err := AddCommandRead(pi, "Get", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	ev, err := pi.AddEventVoid("Changed")
	require.NoError(t, err)

	v, err := get.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	require.NoError(t, ev.Trigger(ctx))

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.CommandsExecuted.WithLabelValues("server", "Main", "Get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.EventsTriggered.WithLabelValues("server", "Main", "Changed")))
}
