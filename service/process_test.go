package service

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/classregister"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/config"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/input/sine"
	"github.com/c360/mtscore/manager"
	"github.com/c360/mtscore/natsclient"
	"github.com/c360/mtscore/output/collector"
	"github.com/c360/mtscore/proxy"
	"github.com/c360/mtscore/testutil"
)

func build(t *testing.T, cfg *config.Config, deps Dependencies) *Process {
	t.Helper()
	p, err := Build(context.Background(), cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Stop(time.Second) })
	return p
}

func collectorOf(t *testing.T, p *Process, name string) *collector.Collector[sine.Sample] {
	t.Helper()
	c, err := p.Manager().Component(name)
	require.NoError(t, err)
	col, ok := c.(*collector.Collector[sine.Sample])
	require.True(t, ok, "component %s is %T", name, c)
	return col
}

func written(col *collector.Collector[sine.Sample]) func() bool {
	return func() bool {
		n, _, _ := col.Stats()
		return n > 0
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "stopped", StatusStopped.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestBuild_LocalGraph(t *testing.T) {
	cfg, err := testutil.NewConfigBuilder("lab").
		AddSine("wave", map[string]any{"period": "5ms"}).
		AddCollector("log", filepath.Join(t.TempDir(), "wave.jsonl")).
		Connect("log", collector.InterfaceSource, "wave", sine.InterfaceMain).
		Build()
	require.NoError(t, err)

	p := build(t, cfg, Dependencies{})
	assert.Equal(t, StatusStopped, p.Status())
	assert.Equal(t, []string{"log", "wave"}, p.Manager().ComponentNames())
	conns := p.Manager().Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, manager.Connected, conns[0].State)
	assert.Nil(t, p.Gateway())

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StatusRunning, p.Status())
	require.NoError(t, p.Start(context.Background()), "start is idempotent")

	require.Eventually(t, written(collectorOf(t, p, "log")), 2*time.Second, 10*time.Millisecond)
	assert.True(t, p.Health().IsHealthy())
	assert.Greater(t, p.Uptime(), time.Duration(0))

	require.NoError(t, p.Stop(time.Second))
	assert.Equal(t, StatusStopped, p.Status())
	assert.Zero(t, p.Uptime())
	for _, info := range p.Manager().Describe() {
		assert.Equal(t, component.StateFinished, info.State, info.Name)
	}
}

func TestBuild_DisabledComponent(t *testing.T) {
	cfg, err := testutil.NewConfigBuilder("lab").
		AddSine("wave", nil).
		AddSine("spare", nil).
		Build()
	require.NoError(t, err)
	cfg.Components[1].Disabled = true

	p := build(t, cfg, Dependencies{})
	assert.Equal(t, []string{"wave"}, p.Manager().ComponentNames())
}

func TestBuild_Failures(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := Build(context.Background(), nil, Dependencies{})
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Manager.MailboxSize = 0
		_, err := Build(context.Background(), cfg, Dependencies{})
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("unknown class", func(t *testing.T) {
		cfg, err := testutil.NewConfigBuilder("lab").AddComponent("x", "nope", nil).Build()
		require.NoError(t, err)
		_, err = Build(context.Background(), cfg, Dependencies{})
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("bad component settings", func(t *testing.T) {
		cfg, err := testutil.NewConfigBuilder("lab").
			AddSine("wave", map[string]any{"period": "soon"}).Build()
		require.NoError(t, err)
		_, err = Build(context.Background(), cfg, Dependencies{})
		assert.Error(t, err)
	})

	t.Run("interface mismatch", func(t *testing.T) {
		cfg, err := testutil.NewConfigBuilder("lab").
			AddSine("wave", nil).
			AddCollector("log", filepath.Join(t.TempDir(), "out.jsonl")).
			Connect("log", collector.InterfaceSource, "wave", "Missing").
			Build()
		require.NoError(t, err)
		_, err = Build(context.Background(), cfg, Dependencies{})
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestBuild_CustomClasses(t *testing.T) {
	classes := classregister.New(nil)
	require.NoError(t, sine.Register(classes))

	cfg, err := testutil.NewConfigBuilder("lab").
		AddCollector("log", filepath.Join(t.TempDir(), "out.jsonl")).
		Build()
	require.NoError(t, err)
	_, err = Build(context.Background(), cfg, Dependencies{Classes: classes})
	assert.ErrorIs(t, err, errors.ErrNotFound, "collector is not registered")
}

func TestBuild_ProxiedGraph(t *testing.T) {
	transport := testutil.NewMemTransport()

	serverCfg, err := testutil.NewConfigBuilder("server").
		AddSine("wave", map[string]any{"period": "5ms"}).
		Export("wave", sine.InterfaceMain).
		Build()
	require.NoError(t, err)
	server := build(t, serverCfg, Dependencies{Transport: transport})
	require.NoError(t, server.Start(context.Background()))
	assert.True(t, transport.Served(proxy.DescribeSubject("mts", "wave", sine.InterfaceMain)))

	clientCfg, err := testutil.NewConfigBuilder("client").
		AddCollector("log", filepath.Join(t.TempDir(), "remote.jsonl")).
		Import("wave", sine.InterfaceMain, sine.ClassName).
		Connect("log", collector.InterfaceSource, "wave.proxy", sine.InterfaceMain).
		Build()
	require.NoError(t, err)
	client := build(t, clientCfg, Dependencies{Transport: transport})

	conns := client.Manager().Connections()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].Remote)

	require.NoError(t, client.Start(context.Background()))
	require.Eventually(t, written(collectorOf(t, client, "log")), 2*time.Second, 10*time.Millisecond)
	assert.False(t, client.Health().IsUnhealthy())

	require.NoError(t, server.Stop(time.Second))
	assert.False(t, transport.Served(proxy.DescribeSubject("mts", "wave", sine.InterfaceMain)))
}

func TestBuild_ImportWithoutProfile(t *testing.T) {
	cfg, err := testutil.NewConfigBuilder("client").
		Import("log", collector.InterfaceSource, collector.ClassName).
		Build()
	require.NoError(t, err)
	_, err = Build(context.Background(), cfg, Dependencies{Transport: testutil.NewMemTransport()})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestProcess_Gateway(t *testing.T) {
	cfg, err := testutil.NewConfigBuilder("lab").
		AddSine("wave", nil).
		HTTP("127.0.0.1:0").
		Build()
	require.NoError(t, err)

	p := build(t, cfg, Dependencies{})
	require.NotNil(t, p.Gateway())
	require.NoError(t, p.Start(context.Background()))

	resp, err := http.Get("http://" + p.Gateway().Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProcess_Run(t *testing.T) {
	cfg, err := testutil.NewConfigBuilder("lab").AddSine("wave", nil).Build()
	require.NoError(t, err)
	p := build(t, cfg, Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Status() == StatusRunning }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StatusStopped, p.Status())
}

func TestProcess_SuppliedNATSClientFeedsHealth(t *testing.T) {
	nc, err := natsclient.NewClient("nats://127.0.0.1:4222", natsclient.WithName("offline"))
	require.NoError(t, err)
	cfg, err := testutil.NewConfigBuilder("lab").AddSine("wave", nil).Build()
	require.NoError(t, err)

	p := build(t, cfg, Dependencies{NATSClient: nc, Transport: testutil.NewMemTransport()})
	status, ok := p.Monitor().Get("nats")
	require.True(t, ok, "the client state is recorded at build")
	assert.True(t, status.IsDegraded())
	assert.False(t, p.Health().Healthy)

	p.observeNATS(true)
	status, _ = p.Monitor().Get("nats")
	assert.True(t, status.IsHealthy())

	p.observeNATS(false)
	status, _ = p.Monitor().Get("nats")
	assert.True(t, status.IsDegraded())
	assert.Equal(t, "NATS disconnected", status.Message)
}
