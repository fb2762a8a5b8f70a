package gateway

import (
	"net/http"
	"sort"
	"strings"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/component/flowgraph"
	"github.com/c360/mtscore/health"
	"github.com/c360/mtscore/manager"
)

// ComponentView is the body of GET /components/{name}: the description of a
// component and the connections it takes part in.
type ComponentView struct {
	component.Info
	Connections []manager.Connection `json:"connections"`
}

// GraphView is the body of GET /graph.
type GraphView struct {
	Nodes    []*flowgraph.ComponentNode    `json:"nodes"`
	Edges    []flowgraph.FlowEdge          `json:"edges"`
	Analysis *flowgraph.FlowAnalysisResult `json:"analysis"`
}

func (s *Server) handleComponents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mgr.Describe())
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	c, err := s.mgr.Component(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	view := ComponentView{Info: c.Base().Describe()}
	for _, conn := range s.mgr.Connections() {
		if conn.Spec.ClientComponent == name || conn.Spec.ServerComponent == name {
			view.Connections = append(view.Connections, conn)
		}
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.mgr.Connections()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := conns[:0]
		for _, conn := range conns {
			if strings.EqualFold(conn.State.String(), state) {
				filtered = append(filtered, conn)
			}
		}
		conns = filtered
	}
	if conns == nil {
		conns = []manager.Connection{}
	}
	s.writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	g, err := s.mgr.Graph()
	if err != nil {
		s.writeError(w, err)
		return
	}
	nodes := g.GetNodes()
	view := GraphView{Edges: g.GetEdges(), Analysis: g.AnalyzeConnectivity()}
	for _, n := range nodes {
		view.Nodes = append(view.Nodes, n)
	}
	sort.Slice(view.Nodes, func(i, j int) bool { return view.Nodes[i].ComponentName < view.Nodes[j].ComponentName })
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	if err := s.mgr.WriteDot(w); err != nil {
		s.writeError(w, err)
	}
}

// handleHealth answers 200 when the process is healthy or degraded and 503
// when any component is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var status health.Status
	if s.monitor != nil {
		status = s.monitor.AggregateHealth(s.process)
	} else {
		subs := make([]health.Status, 0)
		for _, info := range s.mgr.Describe() {
			subs = append(subs, health.FromState(info.Name, info.State, ""))
		}
		status = health.Aggregate(s.process, subs)
	}
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}
