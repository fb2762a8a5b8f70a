package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/errors"
)

type testServer struct {
	task    *Task
	main    *ProvidedInterface
	value   int
	resets  int
	changed *command.WriteEvent[int]
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{task: newTestTask(t, "server")}
	var err error
	s.main, err = s.task.AddInterfaceProvided("Main")
	require.NoError(t, err)

	_, err = AddCommandRead(s.main, "GetValue", func(context.Context) (int, error) { return s.value, nil })
	require.NoError(t, err)
	_, err = s.main.AddCommandVoid("Reset", func(context.Context) error { s.resets++; return nil })
	require.NoError(t, err)
	s.changed, err = AddEventWrite[int](s.main, "Changed")
	require.NoError(t, err)
	return s
}

type testClient struct {
	task     *Task
	source   *RequiredInterface
	getValue *command.ReadFunction[int]
	reset    *command.VoidFunction
	seen     []int
}

func newTestClient(t *testing.T, extra func(ri *RequiredInterface)) *testClient {
	t.Helper()
	c := &testClient{
		task:     newTestTask(t, "client"),
		getValue: command.NewReadFunction[int](),
		reset:    command.NewVoidFunction(),
	}
	var err error
	c.source, err = c.task.AddInterfaceRequired("Source")
	require.NoError(t, err)
	require.NoError(t, c.source.AddFunction("GetValue", c.getValue, Required))
	require.NoError(t, c.source.AddFunction("Reset", c.reset, Required))
	require.NoError(t, AddEventHandlerWrite(c.source, "Changed", func(_ context.Context, v int) error {
		c.seen = append(c.seen, v)
		return nil
	}, EventQueued))
	if extra != nil {
		extra(c.source)
	}
	return c
}

func TestRequired_ConnectBindsEverything(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	client := newTestClient(t, nil)

	report, err := client.source.ConnectTo(ctx, server.main)
	require.NoError(t, err)
	assert.Equal(t, "client:Source", report.Client)
	assert.Equal(t, "server.Main", report.Server)
	assert.Len(t, report.Results, 3)
	assert.Empty(t, report.Failed())
	assert.True(t, client.source.IsConnected())
	assert.Same(t, server.main, client.source.ConnectedTo())
	assert.Equal(t, []string{"client:Source"}, server.main.UserNames())

	server.value = 42
	v, err := client.getValue.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v, "reads run in the caller")

	require.NoError(t, client.reset.Execute(ctx))
	assert.Equal(t, 0, server.resets, "void command waits for the server cycle")
	server.task.ProcessMailBoxes(ctx)
	assert.Equal(t, 1, server.resets)

	require.NoError(t, server.changed.Trigger(ctx, 7))
	assert.Empty(t, client.seen, "queued handler waits for the client cycle")
	client.task.ProcessMailBoxes(ctx)
	assert.Equal(t, []int{7}, client.seen)
}

func TestRequired_BindFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	missing := command.NewWriteFunction[string]()
	client := newTestClient(t, func(ri *RequiredInterface) {
		require.NoError(t, ri.AddFunction("SetName", missing, Required))
	})

	report, err := client.source.ConnectTo(ctx, server.main)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBindFailed))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Contains(t, err.Error(), "function SetName")
	require.NotNil(t, report)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "SetName", report.Failed()[0].Name)

	assert.False(t, client.source.IsConnected())
	assert.False(t, client.getValue.IsBound(), "successful bindings are undone")
	assert.False(t, client.reset.IsBound())
	ev, err := server.main.Event("Changed")
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Observers())
	assert.Empty(t, server.main.UserNames())
}

func TestRequired_OptionalElementsTolerated(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	optional := command.NewVoidFunction()
	client := newTestClient(t, func(ri *RequiredInterface) {
		require.NoError(t, ri.AddFunction("Calibrate", optional, Optional))
		require.NoError(t, ri.AddEventHandlerVoid("Stopped", func(context.Context) error { return nil }, EventDefault))
	})

	report, err := client.source.ConnectTo(ctx, server.main)
	require.NoError(t, err)
	assert.Len(t, report.Skipped(), 2)

	err = optional.Execute(ctx)
	assert.True(t, errors.Is(err, errors.ErrUnbound))
}

func TestRequired_RequiredHandlerMissingFails(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, func(ri *RequiredInterface) {
		require.NoError(t, ri.AddEventHandlerVoid("Stopped", func(context.Context) error { return nil },
			EventNotQueued, HandlerRequired()))
	})

	_, err := client.source.ConnectTo(context.Background(), server.main)
	assert.True(t, errors.Is(err, errors.ErrBindFailed))
}

func TestRequired_SingleConnection(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	client := newTestClient(t, nil)

	_, err := client.source.ConnectTo(ctx, server.main)
	require.NoError(t, err)
	_, err = client.source.ConnectTo(ctx, server.main)
	assert.True(t, errors.Is(err, errors.ErrAlreadyConnected))
}

func TestRequired_DisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	client := newTestClient(t, nil)

	_, err := client.source.ConnectTo(ctx, server.main)
	require.NoError(t, err)

	require.NoError(t, client.source.Disconnect())
	require.NoError(t, client.source.Disconnect())

	assert.False(t, client.source.IsConnected())
	assert.False(t, client.getValue.IsBound())
	ev, err := server.main.Event("Changed")
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Observers())
	assert.Empty(t, server.main.UserNames())

	_, err = client.getValue.Execute(ctx)
	assert.True(t, errors.Is(err, errors.ErrUnbound))

	_, err = client.source.ConnectTo(ctx, server.main)
	assert.NoError(t, err, "reconnect after disconnect")
}

func TestRequired_QueuedHandlerNeedsMailbox(t *testing.T) {
	comp, err := NewComponent("passive")
	require.NoError(t, err)
	ri, err := comp.AddInterfaceRequired("Source")
	require.NoError(t, err)
	assert.Nil(t, ri.Mailbox())

	err = ri.AddEventHandlerVoid("Changed", func(context.Context) error { return nil }, EventQueued)
	assert.True(t, errors.Is(err, errors.ErrNoMailbox))

	err = ri.AddEventHandlerVoid("Changed", func(context.Context) error { return nil }, EventDefault)
	assert.NoError(t, err, "default policy runs unqueued without a mailbox")

	err = ri.AddFunction("Changed", command.NewVoidFunction(), Required)
	assert.True(t, errors.Is(err, errors.ErrDuplicateName))
}

func TestRequired_Describe(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, nil)
	_, err := client.source.ConnectTo(context.Background(), server.main)
	require.NoError(t, err)

	info := client.source.Describe()
	assert.Equal(t, "Source", info.Name)
	assert.Equal(t, "required", info.Requirement)
	assert.Equal(t, []string{"GetValue", "Reset"}, info.Functions)
	assert.Equal(t, []string{"Changed"}, info.EventHandlers)
	assert.Equal(t, "server.Main", info.ConnectedTo)
}

func TestRequired_DottedNamesGetDistinctViews(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	connect := func(taskName, ifaceName string) *command.VoidFunction {
		task := newTestTask(t, taskName)
		ri, err := task.AddInterfaceRequired(ifaceName)
		require.NoError(t, err)
		reset := command.NewVoidFunction()
		require.NoError(t, ri.AddFunction("Reset", reset, Required))
		_, err = ri.ConnectTo(ctx, server.main)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ri.Disconnect() })
		return reset
	}
	first := connect("a.b", "c")
	second := connect("a", "b.c")
	assert.Equal(t, []string{"a.b:c", "a:b.c"}, server.main.UserNames())

	for _, user := range server.main.UserNames() {
		view, err := server.main.GetEndUserInterface(user)
		require.NoError(t, err)
		assert.True(t, view.InUse(), user)
	}

	require.NoError(t, first.Execute(ctx))
	require.NoError(t, second.Execute(ctx))
	server.task.ProcessMailBoxes(ctx)
	assert.Equal(t, 2, server.resets, "each client posts to its own mailbox")
}

func TestRequired_DisconnectLeavesOtherClientAlone(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	var resets []*command.VoidFunction
	var ifaces []*RequiredInterface
	for _, names := range [][2]string{{"a.b", "c"}, {"a", "b.c"}} {
		task := newTestTask(t, names[0])
		ri, err := task.AddInterfaceRequired(names[1])
		require.NoError(t, err)
		reset := command.NewVoidFunction()
		require.NoError(t, ri.AddFunction("Reset", reset, Required))
		_, err = ri.ConnectTo(ctx, server.main)
		require.NoError(t, err)
		resets = append(resets, reset)
		ifaces = append(ifaces, ri)
	}

	require.NoError(t, ifaces[0].Disconnect())
	server.task.ProcessMailBoxes(ctx)
	assert.Equal(t, []string{"a:b.c"}, server.main.UserNames())
	assert.True(t, errors.Is(resets[0].Execute(ctx), errors.ErrUnbound))

	require.NoError(t, resets[1].Execute(ctx), "the other client keeps its view")
	server.task.ProcessMailBoxes(ctx)
	assert.Equal(t, 1, server.resets)
	assert.True(t, ifaces[1].IsConnected())
}

func TestRequired_ViewHeldByAnotherInterface(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	client := newTestClient(t, nil)
	_, err := client.source.ConnectTo(ctx, server.main)
	require.NoError(t, err)

	view, err := server.main.GetEndUserInterface(client.source.ClientName())
	require.NoError(t, err)
	assert.True(t, view.InUse())

	intruder := newTestClient(t, nil)
	_, err = intruder.source.BindCommandsAndEvents(view)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyConnected))
	assert.True(t, errors.IsInvalid(err))
	assert.False(t, intruder.source.IsConnected())
	assert.False(t, intruder.reset.IsBound())

	assert.Equal(t, []string{"client:Source"}, server.main.UserNames(), "the view stays with its owner")
	assert.True(t, view.InUse())
	require.NoError(t, client.reset.Execute(ctx))
	server.task.ProcessMailBoxes(ctx)
	assert.Equal(t, 1, server.resets)

	require.NoError(t, client.source.Disconnect())
	assert.False(t, view.InUse())
}

func TestRequired_CallsAfterServerKilled(t *testing.T) {
	ctx := context.Background()

	t.Run("disconnected first", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, nil)
		_, err := client.source.ConnectTo(ctx, server.main)
		require.NoError(t, err)

		require.NoError(t, client.source.Disconnect())
		require.NoError(t, server.task.Kill(ctx))

		assert.True(t, errors.Is(client.reset.Execute(ctx), errors.ErrUnbound))
		_, err = client.getValue.Execute(ctx)
		assert.True(t, errors.Is(err, errors.ErrUnbound))
		assert.Equal(t, 0, server.resets)
	})

	t.Run("still connected", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, nil)
		_, err := client.source.ConnectTo(ctx, server.main)
		require.NoError(t, err)

		require.NoError(t, server.task.Kill(ctx))
		err = client.reset.Execute(ctx)
		assert.True(t, errors.Is(err, errors.ErrMailboxClosed), "queued calls are refused, not lost")
		assert.Equal(t, 0, server.resets)

		require.NoError(t, client.source.Disconnect())
		assert.True(t, errors.Is(client.reset.Execute(ctx), errors.ErrUnbound))
	})

	t.Run("connect after kill", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, nil)
		require.NoError(t, server.task.Kill(ctx))

		_, err := client.source.ConnectTo(ctx, server.main)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		assert.False(t, client.source.IsConnected())
		assert.Empty(t, server.main.UserNames())
	})
}
