package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/mailbox"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/statetable"
)

// DefaultStateTable is the name of the table every component owns.
const DefaultStateTable = "StateTable"

// Option configures a Component or Task.
type Option func(*Component)

// WithLogger sets the base logger. The component adds its own name attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Component) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records lifecycle, command and mailbox metrics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Component) { c.registry = registry }
}

// WithMailboxSize sets the default end-user mailbox size of provided interfaces.
func WithMailboxSize(size int) Option {
	return func(c *Component) {
		if size > 0 {
			c.mailboxSize = size
		}
	}
}

// WithEventQueueSize sets the default event mailbox size of required
// interfaces. Zero disables event queueing.
func WithEventQueueSize(size int) Option {
	return func(c *Component) {
		if size >= 0 {
			c.eventQueueSize = size
		}
	}
}

// WithQueueingPolicy sets the default policy of provided interfaces.
func WithQueueingPolicy(policy QueueingPolicy) Option {
	return func(c *Component) { c.policy = policy }
}

// WithHistoryLength sets the length of the default state table.
func WithHistoryLength(n int) Option {
	return func(c *Component) { c.historyLength = n }
}

// WithBehavior registers the value whose Startup, Run and Cleanup methods the
// lifecycle calls. Components embedding *Component or *Task pass themselves.
func WithBehavior(behavior any) Option {
	return func(c *Component) { c.behavior = behavior }
}

// WithLogMirror publishes the component's log records to NATS.
func WithLogMirror(pub Publisher, process string) Option {
	return func(c *Component) {
		c.mirror = pub
		c.process = process
	}
}

// Component is a passive component: it owns interfaces and state tables but
// no goroutine. Its mailboxes are drained by whoever calls ProcessMailBoxes.
type Component struct {
	name           string
	logger         *slog.Logger
	registry       *metric.MetricsRegistry
	policy         QueueingPolicy
	mailboxSize    int
	eventQueueSize int
	historyLength  int
	behavior       any
	mirror         Publisher
	process        string

	// notify is signalled on every mailbox post; tasks wait on it
	notify chan struct{}

	mu            sync.RWMutex
	provided      map[string]*ProvidedInterface
	providedOrder []string
	required      map[string]*RequiredInterface
	requiredOrder []string
	tables        map[string]*statetable.Table
	tableOrder    []string

	// lifecycleMu serializes Create, Start, Suspend and Kill
	lifecycleMu sync.Mutex
	stateMu     sync.Mutex
	state       State
	stateCh     chan struct{}
	listeners   []StateListener

	onStart func(ctx context.Context) error
	onStop  func()
}

// NewComponent creates a passive component. Its provided interfaces do not
// queue commands unless WithQueueingPolicy says otherwise.
func NewComponent(name string, opts ...Option) (*Component, error) {
	return newComponent(name, CommandsShouldNotBeQueued, 0, opts)
}

func newComponent(name string, policy QueueingPolicy, eventQueue int, opts []Option) (*Component, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "name validation")
	}
	c := &Component{
		name:           name,
		logger:         slog.Default(),
		policy:         policy,
		mailboxSize:    mailbox.DefaultCapacity,
		eventQueueSize: eventQueue,
		notify:         make(chan struct{}, 1),
		provided:       make(map[string]*ProvidedInterface),
		required:       make(map[string]*RequiredInterface),
		tables:         make(map[string]*statetable.Table),
		state:          StateConstructed,
		stateCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mirror != nil {
		c.logger = slog.New(NewLogMirror(c.logger.Handler(), c.mirror, c.process, name, slog.LevelInfo))
	}
	c.logger = c.logger.With("component", name)
	if c.behavior == nil {
		c.behavior = c
	}

	table := statetable.New(DefaultStateTable, c.historyLength)
	c.tables[DefaultStateTable] = table
	c.tableOrder = append(c.tableOrder, DefaultStateTable)

	c.recordState(StateConstructed)
	return c, nil
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// Base returns c. It lets the manager reach the Component embedded in a
// concrete type.
func (c *Component) Base() *Component { return c }

// Logger returns the component's logger.
func (c *Component) Logger() *slog.Logger { return c.logger }

// MetricsRegistry returns the registry given with WithMetrics, or nil.
func (c *Component) MetricsRegistry() *metric.MetricsRegistry { return c.registry }

// wake signals the task loop without blocking.
func (c *Component) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// ProvidedOption configures one provided interface.
type ProvidedOption func(*providedConfig)

type providedConfig struct {
	policy      QueueingPolicy
	mailboxSize int
}

// WithInterfacePolicy overrides the component's queueing policy for one interface.
func WithInterfacePolicy(policy QueueingPolicy) ProvidedOption {
	return func(cfg *providedConfig) { cfg.policy = policy }
}

// WithInterfaceMailboxSize overrides the end-user mailbox size for one interface.
func WithInterfaceMailboxSize(size int) ProvidedOption {
	return func(cfg *providedConfig) {
		if size > 0 {
			cfg.mailboxSize = size
		}
	}
}

func (c *Component) checkAlive(method string) error {
	if s := c.State(); s == StateFinishing || s == StateFinished {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is %s", errors.ErrInvalidTransition, c.name, s),
			"Component", method, "state check")
	}
	return nil
}

func (c *Component) duplicate(method, kind, name string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s interface %s in %s", errors.ErrDuplicateName, kind, name, c.name),
		"Component", method, "name uniqueness")
}

func (c *Component) notFound(method, kind, name string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s interface %s in %s", errors.ErrNotFound, kind, name, c.name),
		"Component", method, "interface lookup")
}

// AddInterfaceProvided creates a provided interface.
func (c *Component) AddInterfaceProvided(name string, opts ...ProvidedOption) (*ProvidedInterface, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Component", "AddInterfaceProvided", "name validation")
	}
	if err := c.checkAlive("AddInterfaceProvided"); err != nil {
		return nil, err
	}
	cfg := providedConfig{policy: c.policy, mailboxSize: c.mailboxSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.provided[name]; exists {
		return nil, c.duplicate("AddInterfaceProvided", "provided", name)
	}
	pi := newProvidedInterface(c, name, cfg.policy, cfg.mailboxSize)
	c.provided[name] = pi
	c.providedOrder = append(c.providedOrder, name)
	return pi, nil
}

// AddInterfaceRequired creates a required interface. Required interfaces
// must be connected before Start.
func (c *Component) AddInterfaceRequired(name string, opts ...RequiredOption) (*RequiredInterface, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Component", "AddInterfaceRequired", "name validation")
	}
	if err := c.checkAlive("AddInterfaceRequired"); err != nil {
		return nil, err
	}
	cfg := requiredConfig{req: Required, queueSize: c.eventQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.required[name]; exists {
		return nil, c.duplicate("AddInterfaceRequired", "required", name)
	}
	ri, err := newRequiredInterface(c, name, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Component", "AddInterfaceRequired", "interface creation")
	}
	c.required[name] = ri
	c.requiredOrder = append(c.requiredOrder, name)
	return ri, nil
}

// InterfaceProvided returns the provided interface called name.
func (c *Component) InterfaceProvided(name string) (*ProvidedInterface, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pi, ok := c.provided[name]
	if !ok {
		return nil, c.notFound("InterfaceProvided", "provided", name)
	}
	return pi, nil
}

// InterfaceRequired returns the required interface called name.
func (c *Component) InterfaceRequired(name string) (*RequiredInterface, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ri, ok := c.required[name]
	if !ok {
		return nil, c.notFound("InterfaceRequired", "required", name)
	}
	return ri, nil
}

// ProvidedInterfaces returns the provided interfaces in creation order.
func (c *Component) ProvidedInterfaces() []*ProvidedInterface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ProvidedInterface, 0, len(c.providedOrder))
	for _, name := range c.providedOrder {
		out = append(out, c.provided[name])
	}
	return out
}

// RequiredInterfaces returns the required interfaces in creation order.
func (c *Component) RequiredInterfaces() []*RequiredInterface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RequiredInterface, 0, len(c.requiredOrder))
	for _, name := range c.requiredOrder {
		out = append(out, c.required[name])
	}
	return out
}

func removeName(order []string, name string) []string {
	for i, n := range order {
		if n == name {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

// RemoveInterfaceProvided deletes a provided interface no client is using.
func (c *Component) RemoveInterfaceProvided(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pi, ok := c.provided[name]
	if !ok {
		return c.notFound("RemoveInterfaceProvided", "provided", name)
	}
	if users := pi.UserNames(); len(users) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s.%s has users %v", errors.ErrAlreadyConnected, c.name, name, users),
			"Component", "RemoveInterfaceProvided", "connection check")
	}
	pi.close()
	delete(c.provided, name)
	c.providedOrder = removeName(c.providedOrder, name)
	return nil
}

// RemoveInterfaceRequired deletes a disconnected required interface.
func (c *Component) RemoveInterfaceRequired(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ri, ok := c.required[name]
	if !ok {
		return c.notFound("RemoveInterfaceRequired", "required", name)
	}
	if ri.IsConnected() {
		return ri.alreadyConnected("RemoveInterfaceRequired")
	}
	ri.close()
	delete(c.required, name)
	c.requiredOrder = removeName(c.requiredOrder, name)
	return nil
}

// StateTable returns the default state table.
func (c *Component) StateTable() *statetable.Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[DefaultStateTable]
}

// AddStateTable creates an additional state table the component advances itself.
func (c *Component) AddStateTable(name string, historyLength int) (*statetable.Table, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Component", "AddStateTable", "name validation")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[name]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: state table %s in %s", errors.ErrDuplicateName, name, c.name),
			"Component", "AddStateTable", "name uniqueness")
	}
	t := statetable.New(name, historyLength)
	c.tables[name] = t
	c.tableOrder = append(c.tableOrder, name)
	return t, nil
}

// StateTableByName returns the state table called name.
func (c *Component) StateTableByName(name string) (*statetable.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: state table %s in %s", errors.ErrNotFound, name, c.name),
			"Component", "StateTableByName", "table lookup")
	}
	return t, nil
}

// ProcessMailBoxes runs queued event handlers, then queued commands, and
// returns how many calls ran.
func (c *Component) ProcessMailBoxes(ctx context.Context) int {
	processed := 0
	for _, ri := range c.RequiredInterfaces() {
		processed += ri.ProcessMailBoxes(ctx)
	}
	for _, pi := range c.ProvidedInterfaces() {
		processed += pi.ProcessMailBoxes(ctx)
	}
	return processed
}

// State returns the current lifecycle state.
func (c *Component) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// OnStateChange registers a listener called after every transition.
func (c *Component) OnStateChange(listener StateListener) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// WaitForState blocks until the component reaches state or ctx ends.
func (c *Component) WaitForState(ctx context.Context, state State) error {
	for {
		c.stateMu.Lock()
		current, ch := c.state, c.stateCh
		c.stateMu.Unlock()

		if current == state {
			return nil
		}
		if current == StateFinished {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s finished before reaching %s", errors.ErrInvalidTransition, c.name, state),
				"Component", "WaitForState", "state wait")
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return errors.WrapTransient(
				fmt.Errorf("%w: %s waiting for %s in %s: %w", errors.ErrTimeout, c.name, state, current, ctx.Err()),
				"Component", "WaitForState", "state wait")
		}
	}
}

func (c *Component) transition(method string, to State) error {
	c.stateMu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.stateMu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot go from %s to %s", errors.ErrInvalidTransition, c.name, from, to),
			"Component", method, "state transition")
	}
	c.state = to
	close(c.stateCh)
	c.stateCh = make(chan struct{})
	listeners := append([]StateListener(nil), c.listeners...)
	c.stateMu.Unlock()

	c.recordState(to)
	c.logger.Debug("State changed", "from", from, "to", to)
	for _, l := range listeners {
		l(c.name, from, to)
	}
	return nil
}

func (c *Component) checkTransition(method string, to State) error {
	if from := c.State(); !CanTransition(from, to) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot go from %s to %s", errors.ErrInvalidTransition, c.name, from, to),
			"Component", method, "state transition")
	}
	return nil
}

func (c *Component) recordState(s State) {
	if c.registry != nil {
		c.registry.CoreMetrics().RecordComponentState(c.name, int(s))
	}
}

// Create runs Startup and moves the component to Ready. A failed Startup
// leaves it Constructed.
func (c *Component) Create(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.checkTransition("Create", StateReady); err != nil {
		return err
	}
	if s, ok := c.behavior.(Starter); ok {
		if err := s.Startup(ctx); err != nil {
			return errors.Wrap(err, "Component", "Create", "startup")
		}
	}
	return c.transition("Create", StateReady)
}

// Start moves a Ready component to Active. Every Required required
// interface must be connected.
func (c *Component) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.checkTransition("Start", StateActive); err != nil {
		return err
	}
	for _, ri := range c.RequiredInterfaces() {
		if ri.Requirement() == Required && !ri.IsConnected() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: required interface %s.%s is not connected", errors.ErrNoConnection, c.name, ri.Name()),
				"Component", "Start", "connection check")
		}
	}
	if c.onStart != nil {
		if err := c.onStart(ctx); err != nil {
			return errors.Wrap(err, "Component", "Start", "task start")
		}
	}
	c.logger.Info("Component started")
	return c.transition("Start", StateActive)
}

// Suspend stops an Active component's cycle and returns it to Ready.
func (c *Component) Suspend(_ context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.checkTransition("Suspend", StateReady); err != nil {
		return err
	}
	if c.onStop != nil {
		c.onStop()
	}
	c.logger.Info("Component suspended")
	return c.transition("Suspend", StateReady)
}

// Kill stops the component, runs Cleanup and releases its mailboxes. Calls
// still pending in them fail with ErrMailboxClosed. Killing a component that
// is already finishing or finished is an invalid transition.
func (c *Component) Kill(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	wasActive := c.State() == StateActive
	if err := c.transition("Kill", StateFinishing); err != nil {
		return err
	}
	if wasActive && c.onStop != nil {
		c.onStop()
	}

	var cleanupErr error
	if cl, ok := c.behavior.(Cleaner); ok {
		if err := cl.Cleanup(ctx); err != nil {
			cleanupErr = errors.Wrap(err, "Component", "Kill", "cleanup")
			c.logger.Error("Cleanup failed", "error", err)
		}
	}
	for _, ri := range c.RequiredInterfaces() {
		ri.close()
	}
	for _, pi := range c.ProvidedInterfaces() {
		pi.close()
	}

	if err := c.transition("Kill", StateFinished); err != nil {
		return err
	}
	c.logger.Info("Component finished")
	return cleanupErr
}

// Info describes a component for introspection.
type Info struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	State    State           `json:"state"`
	Provided []InterfaceInfo `json:"provided"`
	Required []RequiredInfo  `json:"required"`
	Tables   []TableInfo     `json:"state_tables"`
}

// TableInfo describes a state table for introspection.
type TableInfo struct {
	Name       string                      `json:"name"`
	Elements   []string                    `json:"elements"`
	Ticks      uint64                      `json:"ticks"`
	Statistics statetable.PeriodStatistics `json:"statistics"`
}

// Describe returns the introspection record of c.
func (c *Component) Describe() Info {
	info := Info{Name: c.name, Kind: "passive", State: c.State()}
	if c.onStart != nil {
		info.Kind = "task"
	}
	for _, pi := range c.ProvidedInterfaces() {
		info.Provided = append(info.Provided, pi.Describe())
	}
	for _, ri := range c.RequiredInterfaces() {
		info.Required = append(info.Required, ri.Describe())
	}

	c.mu.RLock()
	tables := make([]*statetable.Table, 0, len(c.tableOrder))
	for _, name := range c.tableOrder {
		tables = append(tables, c.tables[name])
	}
	c.mu.RUnlock()
	for _, t := range tables {
		info.Tables = append(info.Tables, TableInfo{
			Name: t.Name(), Elements: t.ElementNames(), Ticks: t.Ticks(), Statistics: t.Statistics(),
		})
	}
	return info
}
