package component

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/mailbox"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/statetable"
)

// QueueingPolicy decides whether a provided interface routes commands through
// per-client mailboxes.
type QueueingPolicy int

const (
	// CommandsShouldBeQueued gives every client its own mailbox drained by the owner.
	CommandsShouldBeQueued QueueingPolicy = iota
	// CommandsShouldNotBeQueued runs every command in the caller's goroutine.
	CommandsShouldNotBeQueued
)

func (p QueueingPolicy) String() string {
	if p == CommandsShouldNotBeQueued {
		return "not-queued"
	}
	return "queued"
}

// CommandOption adjusts a single command registration.
type CommandOption func(*commandEntry)

// Queued forces the command through the client's mailbox.
func Queued() CommandOption {
	return func(e *commandEntry) { e.queued = true }
}

// NotQueued runs the command in the caller's goroutine.
func NotQueued() CommandOption {
	return func(e *commandEntry) { e.queued = false }
}

type commandEntry struct {
	cmd    command.Command
	queued bool
	wrap   func(mb *mailbox.Mailbox) command.Command
}

// ProvidedInterface is a named set of commands and events exposed by a component.
// Clients never use it directly: each gets an EndUserInterface from
// GetEndUserInterface.
type ProvidedInterface struct {
	name        string
	owner       string
	policy      QueueingPolicy
	mailboxSize int
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	notify      func()

	mu         sync.RWMutex
	commands   map[string]*commandEntry
	cmdOrder   []string
	events     map[string]command.Event
	eventOrder []string
	users      map[string]*EndUserInterface
	retired    []*EndUserInterface
	closed     bool
}

func newProvidedInterface(owner *Component, name string, policy QueueingPolicy, mailboxSize int) *ProvidedInterface {
	return &ProvidedInterface{
		name:        name,
		owner:       owner.name,
		policy:      policy,
		mailboxSize: mailboxSize,
		logger:      owner.logger.With("provided", name),
		registry:    owner.registry,
		notify:      owner.wake,
		commands:    make(map[string]*commandEntry),
		events:      make(map[string]command.Event),
		users:       make(map[string]*EndUserInterface),
	}
}

// Name returns the interface name.
func (pi *ProvidedInterface) Name() string { return pi.name }

// Owner returns the owning component's name.
func (pi *ProvidedInterface) Owner() string { return pi.owner }

// Policy returns the queueing policy.
func (pi *ProvidedInterface) Policy() QueueingPolicy { return pi.policy }

func (pi *ProvidedInterface) checkNameLocked(method, name string) error {
	if err := ValidateName(name); err != nil {
		return errors.Wrap(err, "ProvidedInterface", method, "name validation")
	}
	_, isCmd := pi.commands[name]
	_, isEvent := pi.events[name]
	if isCmd || isEvent {
		pi.logger.Warn("Duplicate name in provided interface", "name", name)
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s already defined in %s.%s", errors.ErrDuplicateName, name, pi.owner, pi.name),
			"ProvidedInterface", method, "name uniqueness")
	}
	return nil
}

func (pi *ProvidedInterface) addCommand(
	method string, cmd command.Command, wrap func(*mailbox.Mailbox) command.Command, opts []CommandOption,
) error {
	entry := &commandEntry{
		cmd:    cmd,
		queued: pi.policy == CommandsShouldBeQueued && cmd.Shape().QueuedByDefault(),
		wrap:   wrap,
	}
	for _, opt := range opts {
		opt(entry)
	}
	if pi.policy == CommandsShouldNotBeQueued {
		entry.queued = false
	}

	pi.mu.Lock()
	defer pi.mu.Unlock()
	if err := pi.checkNameLocked(method, cmd.Name()); err != nil {
		return err
	}
	pi.commands[cmd.Name()] = entry
	pi.cmdOrder = append(pi.cmdOrder, cmd.Name())
	return nil
}

func (pi *ProvidedInterface) observe(name string, start time.Time, err error) {
	if pi.registry != nil {
		pi.registry.CoreMetrics().RecordCommand(pi.owner, pi.name, name, time.Since(start), err)
	}
}

// AddCommandVoid registers a Void command.
func (pi *ProvidedInterface) AddCommandVoid(
	name string, fn func(ctx context.Context) error, opts ...CommandOption,
) (*command.Void, error) {
	cmd := command.NewVoid(name, func(ctx context.Context) error {
		start := time.Now()
		err := fn(ctx)
		pi.observe(name, start, err)
		return err
	})
	wrap := func(mb *mailbox.Mailbox) command.Command { return command.QueueVoid(cmd, mb) }
	if err := pi.addCommand("AddCommandVoid", cmd, wrap, opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

// AddCommandWrite registers a Write command on pi.
func AddCommandWrite[A any](
	pi *ProvidedInterface, name string, fn func(ctx context.Context, arg A) error, opts ...CommandOption,
) (*command.Write[A], error) {
	cmd := command.NewWrite(name, func(ctx context.Context, arg A) error {
		start := time.Now()
		err := fn(ctx, arg)
		pi.observe(name, start, err)
		return err
	})
	wrap := func(mb *mailbox.Mailbox) command.Command { return command.QueueWrite[A](cmd, mb) }
	if err := pi.addCommand("AddCommandWrite", cmd, wrap, opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

func addReader[R any](
	pi *ProvidedInterface, method string, cmd *command.Read[R], opts []CommandOption,
) (*command.Read[R], error) {
	wrap := func(mb *mailbox.Mailbox) command.Command { return command.QueueRead[R](cmd, mb) }
	if err := pi.addCommand(method, cmd, wrap, opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

func timedRead[R any](pi *ProvidedInterface, name string, fn func(ctx context.Context) (R, error)) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		start := time.Now()
		r, err := fn(ctx)
		pi.observe(name, start, err)
		return r, err
	}
}

// AddCommandRead registers a Read command on pi. Reads run in the caller
// unless Queued is given.
func AddCommandRead[R any](
	pi *ProvidedInterface, name string, fn func(ctx context.Context) (R, error), opts ...CommandOption,
) (*command.Read[R], error) {
	return addReader(pi, "AddCommandRead", command.NewRead(name, timedRead(pi, name, fn)), opts)
}

// AddCommandVoidReturn registers a VoidReturn command on pi.
func AddCommandVoidReturn[R any](
	pi *ProvidedInterface, name string, fn func(ctx context.Context) (R, error), opts ...CommandOption,
) (*command.Read[R], error) {
	return addReader(pi, "AddCommandVoidReturn", command.NewVoidReturn(name, timedRead(pi, name, fn)), opts)
}

// AddCommandReadState registers a Read command returning the latest sample of
// a state table element.
func AddCommandReadState[T any](
	pi *ProvidedInterface, name string, acc *statetable.Accessor[T], opts ...CommandOption,
) (*command.Read[T], error) {
	if acc == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "ProvidedInterface", "AddCommandReadState", "nil accessor")
	}
	return AddCommandRead(pi, name, func(context.Context) (T, error) { return acc.Latest() }, opts...)
}

func addQualified[A, R any](
	pi *ProvidedInterface, method string, cmd *command.Qualified[A, R], opts []CommandOption,
) (*command.Qualified[A, R], error) {
	wrap := func(mb *mailbox.Mailbox) command.Command { return command.QueueQualified[A, R](cmd, mb) }
	if err := pi.addCommand(method, cmd, wrap, opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

func timedQualified[A, R any](
	pi *ProvidedInterface, name string, fn func(ctx context.Context, arg A) (R, error),
) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		start := time.Now()
		r, err := fn(ctx, arg)
		pi.observe(name, start, err)
		return r, err
	}
}

// AddCommandQualifiedRead registers a QualifiedRead command on pi.
func AddCommandQualifiedRead[A, R any](
	pi *ProvidedInterface, name string, fn func(ctx context.Context, arg A) (R, error), opts ...CommandOption,
) (*command.Qualified[A, R], error) {
	return addQualified(pi, "AddCommandQualifiedRead",
		command.NewQualifiedRead(name, timedQualified(pi, name, fn)), opts)
}

// AddCommandWriteReturn registers a WriteReturn command on pi.
func AddCommandWriteReturn[A, R any](
	pi *ProvidedInterface, name string, fn func(ctx context.Context, arg A) (R, error), opts ...CommandOption,
) (*command.Qualified[A, R], error) {
	return addQualified(pi, "AddCommandWriteReturn",
		command.NewWriteReturn(name, timedQualified(pi, name, fn)), opts)
}

type triggerHooked interface {
	SetTriggerHook(fn func())
}

func (pi *ProvidedInterface) addEvent(method string, ev command.Event) error {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if err := pi.checkNameLocked(method, ev.Name()); err != nil {
		return err
	}
	if h, ok := ev.(triggerHooked); ok && pi.registry != nil {
		metrics, name := pi.registry.CoreMetrics(), ev.Name()
		h.SetTriggerHook(func() { metrics.RecordEvent(pi.owner, pi.name, name) })
	}
	pi.events[ev.Name()] = ev
	pi.eventOrder = append(pi.eventOrder, ev.Name())
	return nil
}

// AddEventVoid registers a Void event and returns its generator.
func (pi *ProvidedInterface) AddEventVoid(name string) (*command.VoidEvent, error) {
	ev := command.NewVoidEvent(name)
	if err := pi.addEvent("AddEventVoid", ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// AddEventWrite registers a Write event on pi and returns its generator.
func AddEventWrite[A any](pi *ProvidedInterface, name string) (*command.WriteEvent[A], error) {
	ev := command.NewWriteEvent[A](name)
	if err := pi.addEvent("AddEventWrite", ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Command returns the unqueued command registered under name.
func (pi *ProvidedInterface) Command(name string) (command.Command, error) {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	entry, ok := pi.commands[name]
	if !ok {
		return nil, pi.notFound("Command", "command", name)
	}
	return entry.cmd, nil
}

// Event returns the event generator registered under name.
func (pi *ProvidedInterface) Event(name string) (command.Event, error) {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	ev, ok := pi.events[name]
	if !ok {
		return nil, pi.notFound("Event", "event", name)
	}
	return ev, nil
}

func (pi *ProvidedInterface) notFound(method, kind, name string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s %s in %s.%s", errors.ErrNotFound, kind, name, pi.owner, pi.name),
		"ProvidedInterface", method, kind+" lookup")
}

// CommandNames returns command names in registration order.
func (pi *ProvidedInterface) CommandNames() []string {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return append([]string(nil), pi.cmdOrder...)
}

// EventNames returns event names in registration order.
func (pi *ProvidedInterface) EventNames() []string {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return append([]string(nil), pi.eventOrder...)
}

// UserNames returns the sorted client names holding an end-user interface.
func (pi *ProvidedInterface) UserNames() []string {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	names := make([]string, 0, len(pi.users))
	for name := range pi.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEndUserInterface returns the view dedicated to clientName, creating it
// on first use. Repeated calls with the same client name return the same view.
func (pi *ProvidedInterface) GetEndUserInterface(clientName string) (*EndUserInterface, error) {
	if clientName == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "ProvidedInterface", "GetEndUserInterface", "empty client name")
	}

	pi.mu.Lock()
	defer pi.mu.Unlock()

	// nothing drains the mailboxes of a closed interface
	if pi.closed {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s.%s is closed", errors.ErrInvalidTransition, pi.owner, pi.name),
			"ProvidedInterface", "GetEndUserInterface", "state check")
	}
	if view, ok := pi.users[clientName]; ok {
		return view, nil
	}

	view := &EndUserInterface{
		provided: pi,
		user:     clientName,
		wrapped:  make(map[string]command.Command),
	}
	if pi.policy == CommandsShouldBeQueued {
		mb, err := mailbox.New(fmt.Sprintf("%s.%s.%s", pi.owner, pi.name, clientName), pi.mailboxSize,
			mailbox.WithLogger(pi.logger),
			mailbox.WithMetrics(pi.registry),
			mailbox.WithNotifier(pi.notify))
		if err != nil {
			return nil, errors.Wrap(err, "ProvidedInterface", "GetEndUserInterface", "mailbox creation")
		}
		view.mb = mb
	}
	pi.users[clientName] = view

	pi.logger.Debug("Created end-user interface", "user", clientName, "queued", view.mb != nil)
	return view, nil
}

// RemoveEndUserInterface releases the view created for clientName. Calls
// already queued in its mailbox still run during the next ProcessMailBoxes.
func (pi *ProvidedInterface) RemoveEndUserInterface(view *EndUserInterface, clientName string) error {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	current, ok := pi.users[clientName]
	if !ok || current != view {
		return pi.notFound("RemoveEndUserInterface", "end-user interface", clientName)
	}
	delete(pi.users, clientName)
	view.retired.Store(true)
	if view.mb != nil {
		pi.retired = append(pi.retired, view)
	}

	pi.logger.Debug("Removed end-user interface", "user", clientName)
	return nil
}

// ObserverRequest asks for handler to be attached to the event named Name.
type ObserverRequest struct {
	Name        string
	Handler     command.Command
	Requirement Requirement
}

// ObserverResult reports the outcome of one ObserverRequest.
type ObserverResult struct {
	Name        string
	Requirement Requirement
	Err         error
}

// AddObserverList attaches every handler to its like-named event and reports
// the outcome of each request individually.
func (pi *ProvidedInterface) AddObserverList(requests []ObserverRequest) []ObserverResult {
	results := make([]ObserverResult, len(requests))
	for i, req := range requests {
		results[i] = ObserverResult{Name: req.Name, Requirement: req.Requirement}
		ev, err := pi.Event(req.Name)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Err = ev.AddObserver(req.Handler)
	}
	return results
}

// RemoveObserverList detaches handlers previously added by AddObserverList.
func (pi *ProvidedInterface) RemoveObserverList(requests []ObserverRequest) {
	for _, req := range requests {
		if ev, err := pi.Event(req.Name); err == nil {
			ev.RemoveObserver(req.Handler)
		}
	}
}

// ProcessMailBoxes executes the calls queued by every client and returns how
// many ran. Only the owning component's goroutine may call it.
func (pi *ProvidedInterface) ProcessMailBoxes(ctx context.Context) int {
	pi.mu.Lock()
	boxes := make([]*mailbox.Mailbox, 0, len(pi.users))
	for _, view := range pi.users {
		if view.mb != nil {
			boxes = append(boxes, view.mb)
		}
	}
	retired := pi.retired
	pi.retired = nil
	pi.mu.Unlock()

	processed := 0
	for _, mb := range boxes {
		// second pass picks up calls that arrived while the first ran
		processed += mb.Drain(ctx, 0)
		processed += mb.Drain(ctx, 0)
	}
	for _, view := range retired {
		processed += view.mb.Drain(ctx, 0)
		view.mb.Close()
	}
	return processed
}

// close releases every client mailbox. Pending waiters get ErrMailboxClosed
// and no new end-user interface can be obtained.
func (pi *ProvidedInterface) close() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.closed = true
	for _, view := range pi.users {
		if view.mb != nil {
			view.mb.Close()
		}
	}
	for _, view := range pi.retired {
		view.mb.Close()
	}
	pi.retired = nil
}

// InterfaceInfo describes a provided interface for introspection.
type InterfaceInfo struct {
	Name     string         `json:"name"`
	Policy   string         `json:"policy"`
	Commands []command.Info `json:"commands"`
	Events   []EventInfo    `json:"events"`
	Users    []string       `json:"users"`
}

// EventInfo describes an event for introspection.
type EventInfo struct {
	Name      string `json:"name"`
	Shape     string `json:"shape"`
	Argument  string `json:"argument,omitempty"`
	Observers int    `json:"observers"`
}

// Describe returns the introspection record of pi.
func (pi *ProvidedInterface) Describe() InterfaceInfo {
	info := InterfaceInfo{
		Name:   pi.name,
		Policy: pi.policy.String(),
		Users:  pi.UserNames(),
	}

	pi.mu.RLock()
	defer pi.mu.RUnlock()
	for _, name := range pi.cmdOrder {
		entry := pi.commands[name]
		ci := command.Describe(entry.cmd)
		ci.Queued = entry.queued
		info.Commands = append(info.Commands, ci)
	}
	for _, name := range pi.eventOrder {
		ev := pi.events[name]
		ei := EventInfo{Name: name, Shape: ev.Shape().String(), Observers: ev.Observers()}
		if t := ev.ArgumentType(); t != nil {
			ei.Argument = t.String()
		}
		info.Events = append(info.Events, ei)
	}
	return info
}
