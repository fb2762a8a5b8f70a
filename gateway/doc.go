// Package gateway serves a read-only HTTP view of a running process.
//
// Routes:
//
//	GET /components          descriptions of every component
//	GET /components/{name}   one component and its connections
//	GET /connections         the connection list, ?state=connected filters
//	GET /graph               nodes, edges and connectivity analysis as JSON
//	GET /graph.dot           the same graph in Graphviz DOT
//	GET /health              aggregate health, 503 when unhealthy
//	GET /metrics             Prometheus exposition of the process registry
//	GET /ws/events           websocket stream of state and connection events
//
// Each event stream client has a bounded queue; when a client falls behind
// its oldest events are dropped.
package gateway
