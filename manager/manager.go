package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/pkg/retry"
)

// Manager owns the components of one process and the connections between
// them. Its connection list is the authority on who is connected to whom.
type Manager struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics

	mu          sync.RWMutex
	components  map[string]*managed
	order       []string
	connections map[string]*Connection

	hooksMu        sync.RWMutex
	stateHooks     []component.StateListener
	connectionHook []ConnectionListener

	graphCache graphCache
}

type managed struct {
	comp   component.Lifecycle
	remote bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics reports connection counts and bind failures.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.registry = registry
		if registry != nil {
			m.metrics = registry.CoreMetrics()
		}
	}
}

// New creates an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:      slog.Default(),
		components:  make(map[string]*managed),
		connections: make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("service", "manager")
	return m
}

// MetricsRegistry returns the registry given with WithMetrics, or nil.
func (m *Manager) MetricsRegistry() *metric.MetricsRegistry { return m.registry }

// AddOption configures how a component is added.
type AddOption func(*managed)

// AsRemote marks the component as a local stand-in for an interface served
// by another process. Connections to it are drawn as proxy edges.
func AsRemote() AddOption {
	return func(mc *managed) { mc.remote = true }
}

// AddComponent registers c under its name.
func (m *Manager) AddComponent(c component.Lifecycle, opts ...AddOption) error {
	if c == nil || c.Base() == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Manager", "AddComponent", "nil component")
	}
	name := c.Name()
	if err := component.ValidateName(name); err != nil {
		return errors.Wrap(err, "Manager", "AddComponent", "name validation")
	}

	mc := &managed{comp: c}
	for _, opt := range opts {
		opt(mc)
	}

	m.mu.Lock()
	if _, exists := m.components[name]; exists {
		m.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: component %s", errors.ErrDuplicateName, name), "Manager", "AddComponent", name)
	}
	m.components[name] = mc
	m.order = append(m.order, name)
	m.mu.Unlock()

	c.Base().OnStateChange(m.stateChanged)
	m.graphCache.invalidate()
	m.logger.Debug("Component added", "component", name, "state", c.State(), "remote", mc.remote)
	return nil
}

// RemoveComponent disconnects every connection of the component and forgets
// it. An Active component must be suspended or killed first.
func (m *Manager) RemoveComponent(ctx context.Context, name string) error {
	c, err := m.Component(name)
	if err != nil {
		return err
	}
	if c.State() == component.StateActive {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is active", errors.ErrInvalidTransition, name), "Manager", "RemoveComponent", name)
	}

	var errs []error
	for _, conn := range m.Connections() {
		if conn.Spec.ClientComponent != name && conn.Spec.ServerComponent != name {
			continue
		}
		if err := m.Disconnect(ctx, conn.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "Manager", "RemoveComponent", "disconnect "+name)
	}

	m.mu.Lock()
	delete(m.components, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.graphCache.invalidate()
	m.logger.Debug("Component removed", "component", name)
	return nil
}

// Component returns the component registered as name.
func (m *Manager) Component(name string) (component.Lifecycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.components[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: component %s", errors.ErrNotFound, name), "Manager", "Component", name)
	}
	return mc.comp, nil
}

// Components returns every component in the order they were added.
func (m *Manager) Components() []component.Lifecycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]component.Lifecycle, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.components[name].comp)
	}
	return out
}

// ComponentNames returns the registered names in the order they were added.
func (m *Manager) ComponentNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Describe returns the introspection record of every component.
func (m *Manager) Describe() []component.Info {
	comps := m.Components()
	out := make([]component.Info, 0, len(comps))
	for _, c := range comps {
		out = append(out, c.Base().Describe())
	}
	return out
}

// OnStateChange registers a listener for lifecycle transitions of every
// managed component.
func (m *Manager) OnStateChange(fn component.StateListener) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.stateHooks = append(m.stateHooks, fn)
}

// OnConnection registers a listener for connection state changes.
func (m *Manager) OnConnection(fn ConnectionListener) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.connectionHook = append(m.connectionHook, fn)
}

func (m *Manager) stateChanged(name string, from, to component.State) {
	m.graphCache.invalidate()
	m.hooksMu.RLock()
	hooks := append([]component.StateListener(nil), m.stateHooks...)
	m.hooksMu.RUnlock()
	for _, h := range hooks {
		h(name, from, to)
	}
}

func (m *Manager) notifyConnection(conn Connection) {
	m.graphCache.invalidate()
	m.hooksMu.RLock()
	hooks := append([]ConnectionListener(nil), m.connectionHook...)
	m.hooksMu.RUnlock()
	for _, h := range hooks {
		h(conn)
	}
}

func (m *Manager) lookupInterfaces(spec ConnectionSpec) (
	*component.RequiredInterface, *component.ProvidedInterface, bool, error,
) {
	m.mu.RLock()
	client, okClient := m.components[spec.ClientComponent]
	server, okServer := m.components[spec.ServerComponent]
	m.mu.RUnlock()

	if !okClient {
		return nil, nil, false, errors.WrapInvalid(
			fmt.Errorf("%w: client component %s", errors.ErrNotFound, spec.ClientComponent),
			"Manager", "Connect", "client lookup")
	}
	if !okServer {
		return nil, nil, false, errors.WrapInvalid(
			fmt.Errorf("%w: server component %s", errors.ErrNotFound, spec.ServerComponent),
			"Manager", "Connect", "server lookup")
	}
	for _, e := range []*managed{client, server} {
		if st := e.comp.State(); st == component.StateFinishing || st == component.StateFinished {
			return nil, nil, false, errors.WrapInvalid(
				fmt.Errorf("%w: %s is %s", errors.ErrInvalidTransition, e.comp.Name(), st),
				"Manager", "Connect", "state check")
		}
	}
	ri, err := client.comp.Base().InterfaceRequired(spec.ClientInterface)
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "Manager", "Connect", "required interface lookup")
	}
	pi, err := server.comp.Base().InterfaceProvided(spec.ServerInterface)
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "Manager", "Connect", "provided interface lookup")
	}
	return ri, pi, server.remote, nil
}

// Connect binds the client's required interface to the server's provided
// interface. When binding fails the attempt is rolled back, the returned
// record is in BindFailed and the error wraps ErrBindFailed with the names of
// the elements that could not be bound.
func (m *Manager) Connect(ctx context.Context, spec ConnectionSpec) (Connection, error) {
	if err := spec.Validate(); err != nil {
		return Connection{Spec: spec}, err
	}
	ri, pi, remote, err := m.lookupInterfaces(spec)
	if err != nil {
		return Connection{Spec: spec}, err
	}

	conn := &Connection{
		ID:        uuid.NewString(),
		Spec:      spec,
		State:     Binding,
		Remote:    remote,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	for _, existing := range m.connections {
		if existing.Spec.ClientComponent == spec.ClientComponent && existing.Spec.ClientInterface == spec.ClientInterface {
			m.mu.Unlock()
			return Connection{Spec: spec}, errors.WrapInvalid(
				fmt.Errorf("%w: %s is connected to %s", errors.ErrAlreadyConnected, spec.Client(), existing.Spec.Server()),
				"Manager", "Connect", "client check")
		}
	}
	m.connections[conn.ID] = conn
	m.mu.Unlock()
	m.notifyConnection(*conn)

	report, bindErr := ri.ConnectTo(ctx, pi)

	m.mu.Lock()
	conn.Report = report
	if bindErr != nil {
		conn.State = BindFailed
		conn.Error = bindErr.Error()
		delete(m.connections, conn.ID)
	} else {
		conn.State = Connected
	}
	snapshot := *conn
	count := m.countConnectedLocked()
	m.mu.Unlock()

	if bindErr != nil {
		if m.metrics != nil {
			m.metrics.RecordBindFailure(spec.Client(), spec.Server())
		}
		m.logger.Warn("Connection failed", "connection", spec.String(), "error", bindErr)
		m.notifyConnection(snapshot)
		return snapshot, errors.Wrap(bindErr, "Manager", "Connect", spec.String())
	}

	if m.metrics != nil {
		m.metrics.RecordConnections(count)
	}
	m.logger.Info("Connected", "connection", spec.String(), "id", conn.ID, "remote", remote)
	m.notifyConnection(snapshot)
	return snapshot, nil
}

// ConnectWithRetry retries Connect while either component or interface is
// missing, for components that register late.
func (m *Manager) ConnectWithRetry(ctx context.Context, spec ConnectionSpec, cfg retry.Config) (Connection, error) {
	cfg.Retryable = func(err error) bool {
		return errors.Is(err, errors.ErrNotFound) && !errors.Is(err, errors.ErrBindFailed)
	}
	return retry.DoWithResult(ctx, cfg, func() (Connection, error) {
		return m.Connect(ctx, spec)
	})
}

// Disconnect undoes the connection with the given id. Only a Connected
// connection can be disconnected.
func (m *Manager) Disconnect(_ context.Context, id string) error {
	m.mu.Lock()
	conn, ok := m.connections[id]
	if !ok {
		m.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: connection %s", errors.ErrNotFound, id), "Manager", "Disconnect", id)
	}
	if conn.State != Connected {
		m.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: connection %s is %s", errors.ErrInvalidTransition, id, conn.State),
			"Manager", "Disconnect", "state check")
	}
	delete(m.connections, id)
	conn.State = Unconnected
	snapshot := *conn
	count := m.countConnectedLocked()
	client := m.components[conn.Spec.ClientComponent]
	m.mu.Unlock()

	var err error
	if client != nil {
		var ri *component.RequiredInterface
		if ri, err = client.comp.Base().InterfaceRequired(conn.Spec.ClientInterface); err == nil {
			err = ri.Disconnect()
		}
	}

	if m.metrics != nil {
		m.metrics.RecordConnections(count)
	}
	m.logger.Info("Disconnected", "connection", conn.Spec.String(), "id", id)
	m.notifyConnection(snapshot)
	if err != nil {
		return errors.Wrap(err, "Manager", "Disconnect", conn.Spec.String())
	}
	return nil
}

// DisconnectByName disconnects the connection matching spec.
func (m *Manager) DisconnectByName(ctx context.Context, spec ConnectionSpec) error {
	m.mu.RLock()
	var id string
	for _, conn := range m.connections {
		if conn.Spec == spec {
			id = conn.ID
			break
		}
	}
	m.mu.RUnlock()
	if id == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: connection %s", errors.ErrNotFound, spec), "Manager", "DisconnectByName", spec.String())
	}
	return m.Disconnect(ctx, id)
}

// DisconnectAll disconnects every connection.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	var errs []error
	for _, conn := range m.Connections() {
		if conn.State != Connected {
			continue
		}
		if err := m.Disconnect(ctx, conn.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connections returns a snapshot of every connection ordered by creation.
func (m *Manager) Connections() []Connection {
	m.mu.RLock()
	out := make([]Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		out = append(out, *conn)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Connection returns the connection with the given id.
func (m *Manager) Connection(id string) (Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[id]
	if !ok {
		return Connection{}, errors.WrapInvalid(
			fmt.Errorf("%w: connection %s", errors.ErrNotFound, id), "Manager", "Connection", id)
	}
	return *conn, nil
}

// ConnectionsOf returns the connected clients of a provided interface.
func (m *Manager) ConnectionsOf(componentName, providedInterface string) []Connection {
	var out []Connection
	for _, conn := range m.Connections() {
		if conn.State == Connected && conn.Spec.ServerComponent == componentName &&
			conn.Spec.ServerInterface == providedInterface {
			out = append(out, conn)
		}
	}
	return out
}

func (m *Manager) countConnectedLocked() int {
	n := 0
	for _, conn := range m.connections {
		if conn.State == Connected {
			n++
		}
	}
	return n
}
