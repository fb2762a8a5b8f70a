package flowgraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

func serverInfo(name string) component.Info {
	return component.Info{
		Name:  name,
		Kind:  "task",
		State: component.StateActive,
		Provided: []component.InterfaceInfo{{
			Name:   "Main",
			Events: []component.EventInfo{{Name: "ThresholdCrossed", Shape: "write"}},
		}},
	}
}

func clientInfo(name, requirement string) component.Info {
	return component.Info{
		Name:  name,
		Kind:  "task",
		State: component.StateReady,
		Required: []component.RequiredInfo{{
			Name: "Source", Requirement: requirement, Functions: []string{"GetData"},
		}},
	}
}

func TestFlowGraphConstruction(t *testing.T) {
	t.Run("create empty FlowGraph", func(t *testing.T) {
		graph := NewFlowGraph()
		assert.Empty(t, graph.GetNodes())
		assert.Empty(t, graph.GetEdges())
	})

	t.Run("add component node", func(t *testing.T) {
		graph := NewFlowGraph()
		require.NoError(t, graph.AddComponentNode(serverInfo("sine")))

		nodes := graph.GetNodes()
		require.Contains(t, nodes, "sine")
		node := nodes["sine"]
		require.Len(t, node.Provided, 1)
		assert.Equal(t, []string{"ThresholdCrossed"}, node.Provided[0].Members)
	})

	t.Run("duplicate node returns error", func(t *testing.T) {
		graph := NewFlowGraph()
		require.NoError(t, graph.AddComponentNode(serverInfo("sine")))
		err := graph.AddComponentNode(serverInfo("sine"))
		assert.True(t, errors.Is(err, errors.ErrDuplicateName))
	})
}

func TestAddEdgeValidatesEndpoints(t *testing.T) {
	graph := NewFlowGraph()
	require.NoError(t, graph.AddComponentNode(serverInfo("sine")))
	require.NoError(t, graph.AddComponentNode(clientInfo("collector", "required")))

	err := graph.AddEdge(FlowEdge{
		From: ComponentPortRef{"collector", "Missing"},
		To:   ComponentPortRef{"sine", "Main"},
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	err = graph.AddEdge(FlowEdge{
		From: ComponentPortRef{"sine", "Main"},
		To:   ComponentPortRef{"collector", "Source"},
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound), "direction matters")

	require.NoError(t, graph.AddEdge(FlowEdge{
		From: ComponentPortRef{"collector", "Source"},
		To:   ComponentPortRef{"sine", "Main"},
	}))
	assert.Equal(t, PatternLocal, graph.GetEdges()[0].Pattern)
}

func TestAnalyzeConnectivity(t *testing.T) {
	t.Run("fully connected graph is healthy", func(t *testing.T) {
		graph := NewFlowGraph()
		require.NoError(t, graph.AddComponentNode(serverInfo("sine")))
		require.NoError(t, graph.AddComponentNode(clientInfo("collector", "required")))
		require.NoError(t, graph.AddEdge(FlowEdge{
			From: ComponentPortRef{"collector", "Source"},
			To:   ComponentPortRef{"sine", "Main"},
		}))

		result := graph.AnalyzeConnectivity()
		assert.Equal(t, StatusHealthy, result.ValidationStatus)
		assert.Equal(t, [][]string{{"collector", "sine"}}, result.ConnectedComponents)
		assert.Empty(t, result.DisconnectedNodes)
		assert.Empty(t, result.OrphanedPorts)
	})

	t.Run("unconnected required interface is an error", func(t *testing.T) {
		graph := NewFlowGraph()
		require.NoError(t, graph.AddComponentNode(serverInfo("sine")))
		require.NoError(t, graph.AddComponentNode(clientInfo("collector", "required")))

		result := graph.AnalyzeConnectivity()
		assert.Equal(t, StatusErrors, result.ValidationStatus)
		assert.Len(t, result.DisconnectedNodes, 2)
		assert.Equal(t, [][]string{{"collector"}, {"sine"}}, result.ConnectedComponents)
		require.Len(t, result.OrphanedPorts, 2)
		assert.Equal(t, "not_connected", result.OrphanedPorts[1].Issue)
	})

	t.Run("unconnected optional interface is a warning", func(t *testing.T) {
		graph := NewFlowGraph()
		require.NoError(t, graph.AddComponentNode(clientInfo("collector", "optional")))

		result := graph.AnalyzeConnectivity()
		assert.Equal(t, StatusWarnings, result.ValidationStatus)
	})
}

func TestWriteDot(t *testing.T) {
	graph := NewFlowGraph()
	require.NoError(t, graph.AddComponentNode(serverInfo("sine")))
	require.NoError(t, graph.AddComponentNode(clientInfo("collector", "required")))
	require.NoError(t, graph.AddEdge(FlowEdge{
		From:    ComponentPortRef{"collector", "Source"},
		To:      ComponentPortRef{"sine", "Main"},
		Pattern: PatternProxy,
	}))

	var buf bytes.Buffer
	require.NoError(t, graph.WriteDot(&buf))
	dot := buf.String()

	assert.Contains(t, dot, "digraph mts {")
	assert.Contains(t, dot, `label="sine (active)"`)
	assert.Contains(t, dot, `"sine:Main" [label="P: Main", shape=house];`)
	assert.Contains(t, dot, `"collector:Source" -> "sine:Main" [style=dashed];`)
}
