// Package flowgraph provides analysis and export of the component connection graph.
package flowgraph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

// Direction tells which side of a connection an interface sits on.
type Direction string

const (
	// DirectionProvided marks a provided interface (server side).
	DirectionProvided Direction = "provided"
	// DirectionRequired marks a required interface (client side).
	DirectionRequired Direction = "required"
)

// FlowGraph is a directed graph of components. Edges go from a required
// interface to the provided interface it is connected to.
type FlowGraph struct {
	nodes map[string]*ComponentNode
	order []string
	edges []FlowEdge
}

// ComponentNode is one component in the graph.
type ComponentNode struct {
	ComponentName string          `json:"component_name"`
	Kind          string          `json:"kind"`
	State         component.State `json:"state"`
	Provided      []PortInfo      `json:"provided"`
	Required      []PortInfo      `json:"required"`
}

// PortInfo describes one interface of a component.
type PortInfo struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Required  bool      `json:"required"`
	Members   []string  `json:"members"`
}

// ComponentPortRef references an interface on a component.
type ComponentPortRef struct {
	ComponentName string `json:"component_name"`
	PortName      string `json:"port_name"`
}

func (r ComponentPortRef) String() string {
	return r.ComponentName + "." + r.PortName
}

// InteractionPattern tells how a connection is carried.
type InteractionPattern string

const (
	// PatternLocal is an in-process connection.
	PatternLocal InteractionPattern = "local"
	// PatternProxy is a connection to a provided interface exported over NATS.
	PatternProxy InteractionPattern = "proxy"
)

// FlowEdge is one connection.
type FlowEdge struct {
	From         ComponentPortRef   `json:"from"`
	To           ComponentPortRef   `json:"to"`
	Pattern      InteractionPattern `json:"pattern"`
	ConnectionID string             `json:"connection_id"`
}

// FlowAnalysisResult contains the results of connectivity analysis.
type FlowAnalysisResult struct {
	ConnectedComponents [][]string         `json:"connected_components"`
	ConnectedEdges      []FlowEdge         `json:"connected_edges"`
	DisconnectedNodes   []DisconnectedNode `json:"disconnected_nodes"`
	OrphanedPorts       []OrphanedPort     `json:"orphaned_ports"`
	ValidationStatus    string             `json:"validation_status"`
}

// DisconnectedNode is a component with no connections.
type DisconnectedNode struct {
	ComponentName string   `json:"component_name"`
	Issue         string   `json:"issue"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

// OrphanedPort is an interface with no connections.
type OrphanedPort struct {
	ComponentName string    `json:"component_name"`
	PortName      string    `json:"port_name"`
	Direction     Direction `json:"direction"`
	Issue         string    `json:"issue"`
	Required      bool      `json:"required"`
}

// Validation statuses reported by AnalyzeConnectivity.
const (
	StatusHealthy  = "healthy"
	StatusWarnings = "warnings"
	StatusErrors   = "errors"
)

// NewFlowGraph creates an empty FlowGraph.
func NewFlowGraph() *FlowGraph {
	return &FlowGraph{nodes: make(map[string]*ComponentNode)}
}

// AddComponentNode adds the component described by info.
func (g *FlowGraph) AddComponentNode(info component.Info) error {
	if info.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "FlowGraph", "AddComponentNode", "empty name")
	}
	if _, exists := g.nodes[info.Name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: component %s already exists in graph", errors.ErrDuplicateName, info.Name),
			"FlowGraph", "AddComponentNode", "node uniqueness")
	}

	node := &ComponentNode{ComponentName: info.Name, Kind: info.Kind, State: info.State}
	for _, pi := range info.Provided {
		port := PortInfo{Name: pi.Name, Direction: DirectionProvided}
		for _, c := range pi.Commands {
			port.Members = append(port.Members, c.Name)
		}
		for _, e := range pi.Events {
			port.Members = append(port.Members, e.Name)
		}
		node.Provided = append(node.Provided, port)
	}
	for _, ri := range info.Required {
		port := PortInfo{Name: ri.Name, Direction: DirectionRequired, Required: ri.Requirement == "required"}
		port.Members = append(port.Members, ri.Functions...)
		port.Members = append(port.Members, ri.EventHandlers...)
		node.Required = append(node.Required, port)
	}

	g.nodes[info.Name] = node
	g.order = append(g.order, info.Name)
	return nil
}

func (g *FlowGraph) hasPort(ref ComponentPortRef, dir Direction) bool {
	node, ok := g.nodes[ref.ComponentName]
	if !ok {
		return false
	}
	ports := node.Provided
	if dir == DirectionRequired {
		ports = node.Required
	}
	for _, p := range ports {
		if p.Name == ref.PortName {
			return true
		}
	}
	return false
}

// AddEdge adds a connection. Both interfaces must already be in the graph.
func (g *FlowGraph) AddEdge(edge FlowEdge) error {
	if !g.hasPort(edge.From, DirectionRequired) {
		return errors.WrapInvalid(fmt.Errorf("%w: required interface %s", errors.ErrNotFound, edge.From),
			"FlowGraph", "AddEdge", "client lookup")
	}
	if !g.hasPort(edge.To, DirectionProvided) {
		return errors.WrapInvalid(fmt.Errorf("%w: provided interface %s", errors.ErrNotFound, edge.To),
			"FlowGraph", "AddEdge", "server lookup")
	}
	if edge.Pattern == "" {
		edge.Pattern = PatternLocal
	}
	g.edges = append(g.edges, edge)
	return nil
}

// GetNodes returns a copy of the nodes keyed by component name.
func (g *FlowGraph) GetNodes() map[string]*ComponentNode {
	result := make(map[string]*ComponentNode, len(g.nodes))
	for name, node := range g.nodes {
		clone := *node
		clone.Provided = append([]PortInfo(nil), node.Provided...)
		clone.Required = append([]PortInfo(nil), node.Required...)
		result[name] = &clone
	}
	return result
}

// GetEdges returns a copy of the edges.
func (g *FlowGraph) GetEdges() []FlowEdge {
	return append([]FlowEdge(nil), g.edges...)
}

// AnalyzeConnectivity finds clusters, isolated components and unconnected
// interfaces. An unconnected Required required interface is an error; other
// findings are warnings.
func (g *FlowGraph) AnalyzeConnectivity() *FlowAnalysisResult {
	result := &FlowAnalysisResult{
		ConnectedComponents: g.findConnectedComponents(),
		ConnectedEdges:      g.GetEdges(),
		DisconnectedNodes:   []DisconnectedNode{},
		OrphanedPorts:       g.findOrphanedPorts(),
		ValidationStatus:    StatusHealthy,
	}

	linked := make(map[string]bool)
	for _, e := range g.edges {
		linked[e.From.ComponentName] = true
		linked[e.To.ComponentName] = true
	}
	for _, name := range g.order {
		if !linked[name] {
			result.DisconnectedNodes = append(result.DisconnectedNodes, DisconnectedNode{
				ComponentName: name,
				Issue:         "Component has no connections",
				Suggestions:   []string{"Add a connection in the configuration", "Remove the component if unused"},
			})
		}
	}

	if len(result.DisconnectedNodes) > 0 || len(result.OrphanedPorts) > 0 {
		result.ValidationStatus = StatusWarnings
	}
	for _, p := range result.OrphanedPorts {
		if p.Direction == DirectionRequired && p.Required {
			result.ValidationStatus = StatusErrors
			break
		}
	}
	return result
}

// findConnectedComponents groups components reachable from each other,
// ignoring edge direction. Groups and their members are sorted.
func (g *FlowGraph) findConnectedComponents() [][]string {
	adj := make(map[string][]string)
	for _, e := range g.edges {
		adj[e.From.ComponentName] = append(adj[e.From.ComponentName], e.To.ComponentName)
		adj[e.To.ComponentName] = append(adj[e.To.ComponentName], e.From.ComponentName)
	}

	visited := make(map[string]bool)
	clusters := [][]string{}
	for _, name := range g.order {
		if visited[name] {
			continue
		}
		var cluster []string
		stack := []string{name}
		visited[name] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cluster = append(cluster, n)
			for _, next := range adj[n] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Strings(cluster)
		clusters = append(clusters, cluster)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}

func (g *FlowGraph) findOrphanedPorts() []OrphanedPort {
	used := make(map[string]bool)
	for _, e := range g.edges {
		used[string(DirectionRequired)+":"+e.From.String()] = true
		used[string(DirectionProvided)+":"+e.To.String()] = true
	}

	orphans := []OrphanedPort{}
	for _, name := range g.order {
		node := g.nodes[name]
		for _, p := range node.Required {
			ref := ComponentPortRef{ComponentName: name, PortName: p.Name}
			if !used[string(DirectionRequired)+":"+ref.String()] {
				orphans = append(orphans, OrphanedPort{
					ComponentName: name, PortName: p.Name, Direction: DirectionRequired,
					Issue: "not_connected", Required: p.Required,
				})
			}
		}
		for _, p := range node.Provided {
			ref := ComponentPortRef{ComponentName: name, PortName: p.Name}
			if !used[string(DirectionProvided)+":"+ref.String()] {
				orphans = append(orphans, OrphanedPort{
					ComponentName: name, PortName: p.Name, Direction: DirectionProvided,
					Issue: "no_clients",
				})
			}
		}
	}
	return orphans
}

// WriteDot writes the graph in Graphviz DOT format. Components are clusters,
// interfaces are nodes, and connections are edges from client to server.
func (g *FlowGraph) WriteDot(w io.Writer) error {
	var b strings.Builder
	b.WriteString("digraph mts {\n\trankdir=LR;\n\tnode [shape=box];\n")
	for i, name := range g.order {
		node := g.nodes[name]
		fmt.Fprintf(&b, "\tsubgraph cluster_%d {\n\t\tlabel=%q;\n", i, fmt.Sprintf("%s (%s)", name, node.State))
		for _, p := range node.Required {
			fmt.Fprintf(&b, "\t\t%q [label=%q, shape=invhouse];\n", dotID(name, p.Name), "R: "+p.Name)
		}
		for _, p := range node.Provided {
			fmt.Fprintf(&b, "\t\t%q [label=%q, shape=house];\n", dotID(name, p.Name), "P: "+p.Name)
		}
		b.WriteString("\t}\n")
	}
	for _, e := range g.edges {
		style := "solid"
		if e.Pattern == PatternProxy {
			style = "dashed"
		}
		fmt.Fprintf(&b, "\t%q -> %q [style=%s];\n",
			dotID(e.From.ComponentName, e.From.PortName), dotID(e.To.ComponentName, e.To.PortName), style)
	}
	b.WriteString("}\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.WrapTransient(err, "FlowGraph", "WriteDot", "write")
	}
	return nil
}

func dotID(componentName, port string) string {
	return componentName + ":" + port
}
