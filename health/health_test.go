package health

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

func TestFromState(t *testing.T) {
	tests := []struct {
		state component.State
		want  string
	}{
		{component.StateConstructed, "degraded"},
		{component.StateReady, "degraded"},
		{component.StateActive, "healthy"},
		{component.StateFinishing, "unhealthy"},
		{component.StateFinished, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			s := FromState("sine", tt.state, "")
			assert.Equal(t, tt.want, s.Status)
			assert.Equal(t, tt.want == "healthy", s.Healthy)
		})
	}

	s := FromState("sine", component.StateActive, "dial nats://10.0.0.1:4222: password=hunter2")
	assert.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "10.0.0.1")
	assert.NotContains(t, s.Message, "hunter2")
}

func TestMonitor_FollowsLifecycle(t *testing.T) {
	m := NewMonitor()
	m.ObserveState("sine", component.StateConstructed, component.StateReady)
	s, ok := m.Get("sine")
	require.True(t, ok)
	assert.True(t, s.IsDegraded())

	m.ObserveState("sine", component.StateReady, component.StateActive)
	s, _ = m.Get("sine")
	assert.True(t, s.IsHealthy())
	require.NotNil(t, s.Metrics)
	assert.Zero(t, s.Metrics.ErrorCount)

	m.ObserveState("sine", component.StateActive, component.StateFinishing)
	m.ObserveState("sine", component.StateFinishing, component.StateFinished)
	s, _ = m.Get("sine")
	assert.True(t, s.IsUnhealthy())
	assert.Equal(t, "Component finished", s.Message)
}

func TestMonitor_RecordErrorUntilActive(t *testing.T) {
	m := NewMonitor()
	m.ObserveState("log", component.StateConstructed, component.StateReady)
	m.RecordError("log", errors.ErrBindFailed)
	m.RecordError("log", nil)

	s, _ := m.Get("log")
	assert.True(t, s.IsUnhealthy())
	assert.Equal(t, 1, s.Metrics.ErrorCount)

	m.ObserveState("log", component.StateReady, component.StateActive)
	s, _ = m.Get("log")
	assert.True(t, s.IsHealthy())
	assert.Equal(t, 1, s.Metrics.ErrorCount, "error count is kept")
}

func TestMonitor_AggregateHealth(t *testing.T) {
	m := NewMonitor()
	assert.True(t, m.AggregateHealth("lab").IsHealthy())

	m.ObserveState("wave", component.StateReady, component.StateActive)
	m.ObserveState("log", component.StateReady, component.StateActive)
	agg := m.AggregateHealth("lab")
	assert.True(t, agg.IsHealthy())
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "log", agg.SubStatuses[0].Component)

	m.ObserveState("log", component.StateActive, component.StateReady)
	assert.True(t, m.AggregateHealth("lab").IsDegraded())

	m.RecordError("wave", errors.ErrTimeout)
	assert.True(t, m.AggregateHealth("lab").IsUnhealthy())

	m.Remove("wave")
	assert.Equal(t, []string{"log"}, m.ListComponents())
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_UpdateOverridesName(t *testing.T) {
	m := NewMonitor()
	m.Update("nats", NewDegraded("other", "reconnecting"))
	s, ok := m.Get("nats")
	require.True(t, ok)
	assert.Equal(t, "nats", s.Component)
	assert.False(t, s.Timestamp.IsZero())
	assert.Len(t, m.GetAll(), 1)
}

func TestStatus_WithSubStatusIsolation(t *testing.T) {
	parent := NewHealthy("lab", "ok")
	a := parent.WithSubStatus(NewHealthy("a", ""))
	b := parent.WithSubStatus(NewUnhealthy("b", ""))
	assert.Empty(t, parent.SubStatuses)
	assert.Equal(t, "a", a.SubStatuses[0].Component)
	assert.Equal(t, "b", b.SubStatuses[0].Component)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i)
			for j := 0; j < 50; j++ {
				m.ObserveState(name, component.StateReady, component.StateActive)
				m.RecordError(name, errors.ErrTimeout)
				_ = m.AggregateHealth("lab")
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, m.Count())
}
