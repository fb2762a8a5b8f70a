package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/health"
	"github.com/c360/mtscore/input/sine"
	"github.com/c360/mtscore/manager"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/output/collector"
	"github.com/c360/mtscore/pkg/security"
	"github.com/c360/mtscore/pkg/tlsutil"
	"github.com/c360/mtscore/testutil"
)

type fixture struct {
	mgr  *manager.Manager
	gw   *Server
	http *httptest.Server
	conn manager.Connection
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	registry := metric.NewMetricsRegistry()
	mgr := manager.New(manager.WithMetrics(registry))

	gen, err := sine.New("wave", sine.DefaultConfig(), component.Dependencies{})
	require.NoError(t, err)
	cfg := collector.DefaultConfig()
	cfg.Path = t.TempDir() + "/wave.jsonl"
	col, err := collector.New[sine.Sample]("log", cfg, component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, mgr.AddComponent(gen))
	require.NoError(t, mgr.AddComponent(col))

	gw, err := New(mgr, append([]Option{WithProcessName("lab")}, opts...)...)
	require.NoError(t, err)

	conn, err := mgr.Connect(context.Background(), manager.ConnectionSpec{
		ClientComponent: "log", ClientInterface: collector.InterfaceSource,
		ServerComponent: "wave", ServerInterface: sine.InterfaceMain,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Stop(time.Second)
		_ = mgr.KillAll(context.Background())
	})
	return &fixture{mgr: mgr, gw: gw, http: srv, conn: conn}
}

func (f *fixture) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestGateway_Components(t *testing.T) {
	f := newFixture(t)

	var infos []component.Info
	resp := f.get(t, "/components", &infos)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	require.Len(t, infos, 2)

	var view ComponentView
	f.get(t, "/components/wave", &view)
	assert.Equal(t, "wave", view.Name)
	require.Len(t, view.Provided, 1)
	assert.Equal(t, sine.InterfaceMain, view.Provided[0].Name)
	require.Len(t, view.Connections, 1)
	assert.Equal(t, f.conn.ID, view.Connections[0].ID)

	var body errorBody
	resp = f.get(t, "/components/ghost", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body.Code)
}

func TestGateway_ConnectionsAndGraph(t *testing.T) {
	f := newFixture(t)

	var conns []manager.Connection
	f.get(t, "/connections", &conns)
	require.Len(t, conns, 1)
	assert.Equal(t, manager.Connected, conns[0].State)

	conns = nil
	f.get(t, "/connections?state=bind_failed", &conns)
	assert.Empty(t, conns)

	var graph GraphView
	f.get(t, "/graph", &graph)
	require.Len(t, graph.Nodes, 2)
	assert.Equal(t, "log", graph.Nodes[0].ComponentName)
	assert.Len(t, graph.Edges, 1)

	resp, err := http.Get(f.http.URL + "/graph.dot")
	require.NoError(t, err)
	defer resp.Body.Close()
	dot, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(dot), `"log:Source" -> "wave:Main"`)
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	monitor := health.NewMonitor()
	f := newFixture(t, WithMonitor(monitor))
	f.mgr.OnStateChange(monitor.ObserveState)

	var status health.Status
	resp := f.get(t, "/health", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, status.IsHealthy(), "nothing observed yet")

	require.NoError(t, f.mgr.CreateAll(context.Background()))
	f.get(t, "/health", &status)
	assert.True(t, status.IsDegraded())
	assert.Equal(t, "lab", status.Component)

	monitor.RecordError("log", assert.AnError)
	resp = f.get(t, "/health", &status)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "mts_manager_connections_active 1")
	assert.Contains(t, string(text), "mts_gateway_requests_total")
}

func TestGateway_EventStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return testutil.ToFloat64(f.gw.clientsGauge) == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.mgr.Disconnect(context.Background(), f.conn.ID))
	require.NoError(t, f.mgr.CreateAll(context.Background()))

	seen := map[string]Event{}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(seen) < 3 {
		var ev Event
		require.NoError(t, ws.ReadJSON(&ev))
		seen[ev.Type+":"+ev.Component] = ev
	}

	conn := seen[EventConnection+":log"]
	require.NotNil(t, conn.Connection)
	assert.Equal(t, "unconnected", conn.To)
	assert.Equal(t, f.conn.ID, conn.Connection.ID)
	assert.Equal(t, "ready", seen[EventState+":wave"].To)
	assert.Equal(t, "constructed", seen[EventState+":log"].From)
}

func TestGateway_StartStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gw.Start(context.Background(), "127.0.0.1:0"))
	addr := f.gw.Addr()
	require.NotEmpty(t, addr)

	err := f.gw.Start(context.Background(), "127.0.0.1:0")
	assert.Error(t, err)

	resp, err := http.Get("http://" + addr + "/components")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.gw.Stop(time.Second))
	assert.Empty(t, f.gw.Addr())
}

func TestGateway_TLS(t *testing.T) {
	certs := testutil.WriteSelfSignedCert(t, t.TempDir(), "localhost")
	serverTLS, err := tlsutil.LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: certs.Cert, KeyFile: certs.Key,
	})
	require.NoError(t, err)

	f := newFixture(t, WithTLS(serverTLS))
	require.NoError(t, f.gw.Start(context.Background(), "127.0.0.1:0"))

	clientTLS, err := tlsutil.LoadClientTLSConfig(security.ClientTLSConfig{Enabled: true, CAFiles: []string{certs.Cert}})
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientTLS}, Timeout: 2 * time.Second}

	resp, err := client.Get("https://" + f.gw.Addr() + "/components")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	plain, err := http.Get("http://" + f.gw.Addr() + "/components")
	if err == nil {
		defer plain.Body.Close()
		assert.Equal(t, http.StatusBadRequest, plain.StatusCode)
	}
}
