//go:build integration

package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/natsclient"
)

func TestIntegration_ProxyOverNATS(t *testing.T) {
	ctx := context.Background()
	tc := natsclient.NewTestClient(t)
	transport := NATS(tc.Client)

	remote := newRemoteServer(t)
	srv, err := NewServer(transport, "it", WithQueueGroup("servers"))
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	_, err = srv.Export(ctx, remote.pi)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(time.Second) })

	client, err := NewClient(transport, "it", "sine", "Main")
	require.NoError(t, err)
	require.NoError(t, declareMain(ctx, client))
	require.NoError(t, tc.Client.GetConnection().Flush())
	require.NoError(t, client.Verify(ctx))

	setAmp, err := client.Interface().Command("SetAmplitude")
	require.NoError(t, err)
	require.NoError(t, setAmp.(command.WriteCaller[float64]).Execute(ctx, 4))

	getData, err := client.Interface().Command("GetData")
	require.NoError(t, err)
	got, err := getData.(command.ReadCaller[sample]).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Value)

	received := make(chan sample, 1)
	ev, err := client.Interface().Event("ThresholdCrossed")
	require.NoError(t, err)
	remove := ev.AddListener(func(_ context.Context, payload any) { received <- payload.(sample) })
	defer remove()

	require.NoError(t, remote.crossed.Trigger(ctx, sample{Value: 1, Tick: 2}))
	select {
	case s := <-received:
		assert.Equal(t, sample{Value: 1, Tick: 2}, s)
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
}
