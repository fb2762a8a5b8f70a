package manager

import (
	"io"
	"sync"

	"github.com/c360/mtscore/component/flowgraph"
	"github.com/c360/mtscore/errors"
)

type graphCache struct {
	mu    sync.Mutex
	graph *flowgraph.FlowGraph
}

func (c *graphCache) invalidate() {
	c.mu.Lock()
	c.graph = nil
	c.mu.Unlock()
}

// Graph returns the component graph with one edge per Connected connection.
// The result is cached until a component or connection changes.
func (m *Manager) Graph() (*flowgraph.FlowGraph, error) {
	m.graphCache.mu.Lock()
	defer m.graphCache.mu.Unlock()
	if m.graphCache.graph != nil {
		return m.graphCache.graph, nil
	}

	g := flowgraph.NewFlowGraph()
	for _, info := range m.Describe() {
		if err := g.AddComponentNode(info); err != nil {
			return nil, errors.Wrap(err, "Manager", "Graph", "add "+info.Name)
		}
	}
	for _, conn := range m.Connections() {
		if conn.State != Connected {
			continue
		}
		pattern := flowgraph.PatternLocal
		if conn.Remote {
			pattern = flowgraph.PatternProxy
		}
		edge := flowgraph.FlowEdge{
			From:         flowgraph.ComponentPortRef{ComponentName: conn.Spec.ClientComponent, PortName: conn.Spec.ClientInterface},
			To:           flowgraph.ComponentPortRef{ComponentName: conn.Spec.ServerComponent, PortName: conn.Spec.ServerInterface},
			Pattern:      pattern,
			ConnectionID: conn.ID,
		}
		if err := g.AddEdge(edge); err != nil {
			return nil, errors.Wrap(err, "Manager", "Graph", "edge "+conn.Spec.String())
		}
	}
	m.graphCache.graph = g
	return g, nil
}

// WriteDot writes the component graph in Graphviz DOT format.
func (m *Manager) WriteDot(w io.Writer) error {
	g, err := m.Graph()
	if err != nil {
		return err
	}
	return g.WriteDot(w)
}
