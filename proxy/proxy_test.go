package proxy

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

type sample struct {
	Value float64 `json:"value"`
	Tick  int     `json:"tick"`
}

type remoteServer struct {
	comp    *component.Component
	pi      *component.ProvidedInterface
	tick    *command.VoidEvent
	crossed *command.WriteEvent[sample]

	mu        sync.Mutex
	amplitude float64
	resets    int
}

func newRemoteServer(t *testing.T) *remoteServer {
	t.Helper()
	s := &remoteServer{amplitude: 1}

	comp, err := component.NewComponent("sine")
	require.NoError(t, err)
	pi, err := comp.AddInterfaceProvided("Main")
	require.NoError(t, err)
	s.comp, s.pi = comp, pi

	_, err = component.AddCommandRead(pi, "GetData", func(context.Context) (sample, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return sample{Value: s.amplitude, Tick: 7}, nil
	})
	require.NoError(t, err)
	_, err = component.AddCommandWrite(pi, "SetAmplitude", func(_ context.Context, a float64) error {
		if a < 0 {
			return errors.WrapInvalid(errors.ErrInvalidData, "sine", "SetAmplitude", "negative amplitude")
		}
		s.mu.Lock()
		s.amplitude = a
		s.mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	_, err = pi.AddCommandVoid("Reset", func(context.Context) error {
		s.mu.Lock()
		s.resets++
		s.mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	_, err = component.AddCommandVoidReturn(pi, "GetTick", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	_, err = component.AddCommandQualifiedRead(pi, "Scale", func(_ context.Context, f float64) (float64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return f * s.amplitude, nil
	})
	require.NoError(t, err)
	_, err = component.AddCommandWriteReturn(pi, "Label", func(_ context.Context, in string) (string, error) {
		return strings.ToUpper(in), nil
	})
	require.NoError(t, err)

	s.tick, err = pi.AddEventVoid("Tick")
	require.NoError(t, err)
	s.crossed, err = component.AddEventWrite[sample](pi, "ThresholdCrossed")
	require.NoError(t, err)
	return s
}

func declareMain(ctx context.Context, c *Client) error {
	return errors.Join(
		RemoteRead[sample](c, "GetData"),
		RemoteWrite[float64](c, "SetAmplitude"),
		RemoteVoid(c, "Reset"),
		RemoteVoidReturn[int](c, "GetTick"),
		RemoteQualified[float64, float64](c, "Scale"),
		RemoteWriteReturn[string, string](c, "Label"),
		RemoteEventVoid(ctx, c, "Tick"),
		RemoteEventWrite[sample](ctx, c, "ThresholdCrossed"),
	)
}

func startServer(t *testing.T, mem *memTransport, pi *component.ProvidedInterface) *Server {
	t.Helper()
	srv, err := NewServer(mem, "mts", WithWorkers(2))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	_, err = srv.Export(context.Background(), pi)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(time.Second) })
	return srv
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "mts.sine.Main.cmd.GetData", CommandSubject("mts", "sine", "Main", "GetData"))
	assert.Equal(t, "lab.sine.Main.evt.Tick", EventSubject("lab", "sine", "Main", "Tick"))
	assert.Equal(t, "mts.sine.Main.describe", DescribeSubject("", "sine", "Main"))
}

func TestServer_ExportServesEverySubject(t *testing.T) {
	mem := newMemTransport()
	remote := newRemoteServer(t)
	srv := startServer(t, mem, remote.pi)

	for _, name := range remote.pi.CommandNames() {
		assert.True(t, mem.served(CommandSubject("mts", "sine", "Main", name)), name)
	}
	assert.True(t, mem.served(DescribeSubject("mts", "sine", "Main")))
	assert.Equal(t, []string{"sine.Main"}, srv.Exports())
	assert.Len(t, remote.pi.UserNames(), 1, "the export holds one end-user interface")

	_, err := srv.Export(context.Background(), remote.pi)
	assert.ErrorIs(t, err, errors.ErrDuplicateName)

	require.NoError(t, srv.Unexport("sine.Main"))
	assert.False(t, mem.served(CommandSubject("mts", "sine", "Main", "GetData")))
	assert.Empty(t, remote.pi.UserNames())
	assert.ErrorIs(t, srv.Unexport("sine.Main"), errors.ErrNotFound)
}

func TestProxy_RoundTripThroughRequiredInterface(t *testing.T) {
	ctx := context.Background()
	mem := newMemTransport()
	remote := newRemoteServer(t)
	startServer(t, mem, remote.pi)

	client, err := NewClient(mem, "mts", "sine", "Main")
	require.NoError(t, err)
	require.NoError(t, declareMain(ctx, client))
	require.NoError(t, client.Verify(ctx))
	assert.Equal(t, "sine.proxy", client.Component().Name())

	local, err := component.NewComponent("collector")
	require.NoError(t, err)
	ri, err := local.AddInterfaceRequired("Source")
	require.NoError(t, err)

	getData := command.NewReadFunction[sample]()
	setAmp := command.NewWriteFunction[float64]()
	reset := command.NewVoidFunction()
	getTick := command.NewVoidReturnFunction[int]()
	scale := command.NewQualifiedReadFunction[float64, float64]()
	label := command.NewWriteReturnFunction[string, string]()
	require.NoError(t, ri.AddFunction("GetData", getData, component.Required))
	require.NoError(t, ri.AddFunction("SetAmplitude", setAmp, component.Required))
	require.NoError(t, ri.AddFunction("Reset", reset, component.Required))
	require.NoError(t, ri.AddFunction("GetTick", getTick, component.Required))
	require.NoError(t, ri.AddFunction("Scale", scale, component.Required))
	require.NoError(t, ri.AddFunction("Label", label, component.Required))

	var ticks int
	var crossings []sample
	require.NoError(t, ri.AddEventHandlerVoid("Tick", func(context.Context) error {
		ticks++
		return nil
	}, component.EventNotQueued))
	require.NoError(t, component.AddEventHandlerWrite(ri, "ThresholdCrossed", func(_ context.Context, s sample) error {
		crossings = append(crossings, s)
		return nil
	}, component.EventNotQueued))

	report, err := ri.ConnectTo(ctx, client.Interface())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())

	require.NoError(t, setAmp.Execute(ctx, 2.5))
	got, err := getData.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample{Value: 2.5, Tick: 7}, got)

	require.NoError(t, reset.Execute(ctx))
	assert.Equal(t, 1, remote.resets)

	tick, err := getTick.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, tick)

	scaled, err := scale.Execute(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, scaled)

	upper, err := label.Execute(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", upper)

	require.NoError(t, remote.tick.Trigger(ctx))
	require.NoError(t, remote.crossed.Trigger(ctx, sample{Value: 3, Tick: 9}))
	assert.Equal(t, 1, ticks)
	assert.Equal(t, []sample{{Value: 3, Tick: 9}}, crossings)

	require.NoError(t, client.Close(ctx))
	require.NoError(t, remote.tick.Trigger(ctx))
	assert.Equal(t, 1, ticks, "no delivery after close")
}

func TestProxy_RemoteErrorsKeepTheirSentinel(t *testing.T) {
	ctx := context.Background()
	mem := newMemTransport()
	remote := newRemoteServer(t)
	startServer(t, mem, remote.pi)

	client, err := NewClient(mem, "mts", "sine", "Main")
	require.NoError(t, err)
	require.NoError(t, RemoteWrite[float64](client, "SetAmplitude"))
	require.NoError(t, RemoteVoid(client, "Missing"))

	cmd, err := client.Interface().Command("SetAmplitude")
	require.NoError(t, err)
	err = cmd.(command.WriteCaller[float64]).Execute(ctx, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
	assert.True(t, errors.IsInvalid(err))

	missing, err := client.Interface().Command("Missing")
	require.NoError(t, err)
	err = missing.(command.VoidCaller).Execute(ctx)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	remoteCmd, err := remote.pi.Command("SetAmplitude")
	require.NoError(t, err)
	remoteCmd.Disable()
	// a passive owner's view hands out the command itself
	err = cmd.(command.WriteCaller[float64]).Execute(ctx, 1)
	assert.ErrorIs(t, err, errors.ErrDisabled)
}

func TestProxy_VerifyDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	mem := newMemTransport()
	remote := newRemoteServer(t)
	startServer(t, mem, remote.pi)

	client, err := NewClient(mem, "mts", "sine", "Main")
	require.NoError(t, err)
	require.NoError(t, RemoteRead[int](client, "GetData"))
	require.NoError(t, RemoteEventVoid(ctx, client, "Nope"))

	err = client.Verify(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Contains(t, err.Error(), "GetData")
	assert.Contains(t, err.Error(), "Nope")
}

func TestProxy_QueuedCommandRunsInOwnerTask(t *testing.T) {
	ctx := context.Background()
	mem := newMemTransport()

	task, err := component.NewTask("counter", 0)
	require.NoError(t, err)
	pi, err := task.AddInterfaceProvided("Main")
	require.NoError(t, err)

	var total int
	_, err = component.AddCommandWrite(pi, "Add", func(_ context.Context, n int) error {
		total += n
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, task.Create(ctx))
	require.NoError(t, task.Start(ctx))
	t.Cleanup(func() { _ = task.Kill(context.Background()) })

	startServer(t, mem, pi)

	client, err := NewClient(mem, "mts", "counter", "Main")
	require.NoError(t, err)
	require.NoError(t, RemoteWrite[int](client, "Add"))

	cmd, err := client.Interface().Command("Add")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, cmd.(command.WriteCaller[int]).Execute(ctx, i))
	}
	// each remote call returned only after the task drained it
	assert.Equal(t, 6, total)
}

func TestServer_RejectsMalformedRequests(t *testing.T) {
	mem := newMemTransport()
	remote := newRemoteServer(t)
	startServer(t, mem, remote.pi)

	ctx := context.Background()
	reply, err := mem.Request(ctx, CommandSubject("mts", "sine", "Main", "SetAmplitude"), []byte(`{"arg":"high"}`))
	require.NoError(t, err)
	err = decodeReply("SetAmplitude", reply, nil)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	reply, err = mem.Request(ctx, CommandSubject("mts", "sine", "Main", "Reset"), []byte(`not json`))
	require.NoError(t, err)
	err = decodeReply("Reset", reply, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestServer_NotStartedRepliesWithError(t *testing.T) {
	mem := newMemTransport()
	remote := newRemoteServer(t)

	srv, err := NewServer(mem, "mts")
	require.NoError(t, err)
	_, err = srv.Export(context.Background(), remote.pi)
	require.NoError(t, err)

	reply, err := mem.Request(context.Background(), CommandSubject("mts", "sine", "Main", "Reset"), nil)
	require.NoError(t, err)
	err = decodeReply("Reset", reply, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, codeQueueFull, errorCode(errors.WrapTransient(errors.ErrQueueFull, "a", "b", "c")))
	assert.Equal(t, codeTimeout, errorCode(context.DeadlineExceeded))
	assert.Equal(t, codeInternal, errorCode(errors.New("boom")))

	err := remoteError("X", codeQueueFull, "full")
	assert.ErrorIs(t, err, errors.ErrQueueFull)
	assert.True(t, errors.IsTransient(err))

	err = remoteError("X", "", "boom")
	assert.Contains(t, err.Error(), "remote: boom")
}
