package sine

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
)

func newGenerator(t *testing.T, mutate func(*Config)) *Generator {
	t.Helper()
	cfg := DefaultConfig()
	// quarter wave every tick: 0, 1, 0, -1, ...
	cfg.FrequencyHz = 25
	cfg.Period = "10ms"
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New("sine", cfg, component.Dependencies{})
	require.NoError(t, err)
	return g
}

func view(t *testing.T, g *Generator) *component.EndUserInterface {
	t.Helper()
	pi, err := g.InterfaceProvided(InterfaceMain)
	require.NoError(t, err)
	v, err := pi.GetEndUserInterface("test")
	require.NoError(t, err)
	return v
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad period", func(c *Config) { c.Period = "soon" }},
		{"zero period", func(c *Config) { c.Period = "0s" }},
		{"negative frequency", func(c *Config) { c.FrequencyHz = -1 }},
		{"negative threshold", func(c *Config) { c.Threshold = -0.5 }},
		{"negative history", func(c *Config) { c.History = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestGenerator_Declaration(t *testing.T) {
	g := newGenerator(t, nil)
	pi, err := g.InterfaceProvided(InterfaceMain)
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{CmdGetData, CmdGetDelayed, CmdSetAmplitude, CmdReset, CmdGetTick}, pi.CommandNames())
	assert.Equal(t, []string{EvtThreshold}, pi.EventNames())
	assert.Contains(t, g.StateTable().ElementNames(), ElementData)
	assert.Equal(t, 10*time.Millisecond, g.Period())
}

func TestGenerator_SamplesIntoStateTable(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(t, nil)
	v := view(t, g)

	for i := 0; i < 2; i++ {
		require.NoError(t, g.RunOnce(ctx))
	}

	getData, err := v.Command(CmdGetData)
	require.NoError(t, err)
	s, err := getData.(command.ReadCaller[Sample]).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Tick)
	assert.InDelta(t, 0, s.Value, 1e-9)

	getDelayed, err := v.Command(CmdGetDelayed)
	require.NoError(t, err)
	prev, err := getDelayed.(command.QualifiedCaller[int, Sample]).Execute(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, prev.Tick)
	assert.InDelta(t, 1, prev.Value, 1e-9)

	_, err = getDelayed.(command.QualifiedCaller[int, Sample]).Execute(ctx, -1)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestGenerator_QueuedCommandsRunInCycle(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(t, nil)
	v := view(t, g)

	setAmp, err := v.Command(CmdSetAmplitude)
	require.NoError(t, err)
	require.NoError(t, setAmp.(command.WriteCaller[float64]).Execute(ctx, 3))
	assert.Equal(t, 1.0, g.amplitude, "queued write must wait for the cycle")

	require.NoError(t, g.RunOnce(ctx))
	assert.Equal(t, 3.0, g.amplitude)
	assert.InDelta(t, 3, g.data.Value, 1e-9)

	reset, err := v.Command(CmdReset)
	require.NoError(t, err)
	require.NoError(t, reset.(command.VoidCaller).Execute(ctx))
	require.NoError(t, g.RunOnce(ctx))
	assert.Equal(t, 1, g.tick)
	assert.Equal(t, 1.0, g.amplitude)
}

func TestGenerator_ThresholdEvent(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()
	cfg := DefaultConfig()
	cfg.FrequencyHz = 25
	g, err := New("sine", cfg, component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)

	v := view(t, g)
	ev, err := v.Event(EvtThreshold)
	require.NoError(t, err)
	var seen []Sample
	remove := ev.AddListener(func(_ context.Context, payload any) {
		seen = append(seen, payload.(Sample))
	})
	defer remove()

	// 0 -> 1 -> 0 -> -1 -> 0 -> 1: two rising edges
	for i := 0; i < 5; i++ {
		require.NoError(t, g.RunOnce(ctx))
	}
	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Tick)
	assert.Equal(t, 5, seen[1].Tick)
	assert.Equal(t, float64(2), testutil.ToFloat64(g.crossings))
}

func TestGenerator_ValueRejectsBadAmplitude(t *testing.T) {
	g := newGenerator(t, nil)
	for _, a := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := g.setAmplitude(context.Background(), a)
		assert.ErrorIs(t, err, errors.ErrInvalidData)
	}
}

func TestGenerator_Configure(t *testing.T) {
	var g Generator
	raw := json.RawMessage(`{"amplitude": 2, "period": "5ms"}`)
	require.NoError(t, g.Configure("wave", raw, component.Dependencies{}))
	assert.Equal(t, "wave", g.Name())
	assert.Equal(t, 5*time.Millisecond, g.Period())
	assert.Equal(t, 2.0, g.amplitude)

	var bad Generator
	err := bad.Configure("wave", json.RawMessage(`{"period": "never"}`), component.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestGenerator_RunsAsTask(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g := newGenerator(t, func(c *Config) { c.Period = "1ms" })

	require.NoError(t, g.Create(ctx))
	require.NoError(t, g.Start(ctx))
	assert.Eventually(t, func() bool { return g.StateTable().Ticks() >= 5 }, 2*time.Second, 5*time.Millisecond)

	v := view(t, g)
	tick, err := v.Command(CmdGetTick)
	require.NoError(t, err)
	n, err := tick.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n.(int), 5)

	require.NoError(t, g.Kill(ctx))
	assert.Equal(t, component.StateFinished, g.State())
}
