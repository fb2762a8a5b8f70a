package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/health"
	"github.com/c360/mtscore/manager"
	"github.com/c360/mtscore/metric"
)

// Server is the inspection gateway of a process.
type Server struct {
	mgr      *manager.Manager
	monitor  *health.Monitor
	registry *metric.MetricsRegistry
	logger   *slog.Logger
	process  string

	upgrader  websocket.Upgrader
	clientsMu sync.Mutex
	clients   map[*client]struct{}
	wg        sync.WaitGroup

	tlsConfig *tls.Config
	srvMu     sync.Mutex
	srv       *http.Server
	listener  net.Listener

	clientsGauge prometheus.Gauge
	eventsTotal  *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMonitor serves /health from monitor. Without it /health reports the
// aggregate of component states read from the manager.
func WithMonitor(monitor *health.Monitor) Option {
	return func(s *Server) { s.monitor = monitor }
}

// WithMetrics serves /metrics from registry and records gateway metrics in it.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithProcessName names the aggregate health status.
func WithProcessName(name string) Option {
	return func(s *Server) { s.process = name }
}

// WithTLS serves HTTPS and WSS with cfg. A nil cfg keeps plain HTTP.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// New creates a gateway over mgr and subscribes to its state and connection
// hooks for the event stream.
func New(mgr *manager.Manager, opts ...Option) (*Server, error) {
	if mgr == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "New", "nil manager")
	}
	s := &Server{
		mgr:     mgr,
		logger:  slog.Default(),
		process: "mts",
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = mgr.MetricsRegistry()
	}
	s.logger = s.logger.With("component", "gateway")
	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	mgr.OnStateChange(s.publishState)
	mgr.OnConnection(s.publishConnection)
	return s, nil
}

func (s *Server) initMetrics() error {
	s.clientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mts", Subsystem: "gateway", Name: "event_clients",
		Help: "Connected event stream clients",
	})
	s.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mts", Subsystem: "gateway", Name: "events_total",
		Help: "Events sent to stream clients by type",
	}, []string{"type"})
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mts", Subsystem: "gateway", Name: "requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
	if s.registry == nil {
		return nil
	}
	if err := s.registry.RegisterGauge("gateway", "event_clients", s.clientsGauge); err != nil {
		return errors.Wrap(err, "Gateway", "New", "register metrics")
	}
	if err := s.registry.RegisterCounterVec("gateway", "events_total", s.eventsTotal); err != nil {
		return errors.Wrap(err, "Gateway", "New", "register metrics")
	}
	if err := s.registry.RegisterCounterVec("gateway", "requests_total", s.requests); err != nil {
		return errors.Wrap(err, "Gateway", "New", "register metrics")
	}
	return nil
}

// Handler returns the routes of the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /components", s.route("components", s.handleComponents))
	mux.HandleFunc("GET /components/{name}", s.route("component", s.handleComponent))
	mux.HandleFunc("GET /connections", s.route("connections", s.handleConnections))
	mux.HandleFunc("GET /graph", s.route("graph", s.handleGraph))
	mux.HandleFunc("GET /graph.dot", s.route("graph.dot", s.handleDot))
	mux.HandleFunc("GET /health", s.route("health", s.handleHealth))
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens on addr and serves in the background. Use ":0" for an
// ephemeral port and Addr to learn it.
func (s *Server) Start(_ context.Context, addr string) error {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.srv != nil {
		return errors.WrapInvalid(errors.ErrInvalidTransition, "Gateway", "Start", "already serving")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start", "listen "+addr)
	}
	scheme := "http"
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
		scheme = "https"
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Gateway stopped", "error", err)
		}
	}(s.srv)
	s.logger.Info("Gateway listening", "addr", ln.Addr().String(), "scheme", scheme)
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down and disconnects stream clients.
func (s *Server) Stop(timeout time.Duration) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srv, s.listener = nil, nil
	s.srvMu.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if e := srv.Shutdown(ctx); e != nil {
			err = errors.WrapTransient(e, "Gateway", "Stop", "shutdown http server")
		}
	}
	s.closeClients()
	s.wg.Wait()
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// route adds the request id header, counts the request and logs it at debug.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		h(rec, r)
		s.requests.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
		s.logger.Debug("Request served", "route", name, "path", r.URL.Path,
			"status", rec.code, "request_id", id, "duration", time.Since(start))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Response not written", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, class := http.StatusInternalServerError, "fatal"
	switch {
	case errors.Is(err, errors.ErrNotFound):
		code, class = http.StatusNotFound, "not_found"
	case errors.IsInvalid(err):
		code, class = http.StatusBadRequest, "invalid"
	case errors.IsTransient(err):
		code, class = http.StatusServiceUnavailable, "transient"
	}
	s.writeJSON(w, code, errorBody{Error: err.Error(), Code: class})
}
