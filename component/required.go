package component

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/mailbox"
)

// DefaultEventQueueSize is the event mailbox size given to tasks' required
// interfaces when none is configured.
const DefaultEventQueueSize = 16

// Requirement states whether a connection or binding must succeed.
type Requirement int

const (
	// Required elements make the bind fail when they cannot be satisfied.
	Required Requirement = iota
	// Optional elements are skipped when the server does not offer them.
	Optional
)

func (r Requirement) String() string {
	if r == Optional {
		return "optional"
	}
	return "required"
}

// EventPolicy selects how an event handler runs.
type EventPolicy int

const (
	// EventDefault queues the handler when the interface has an event mailbox.
	EventDefault EventPolicy = iota
	// EventQueued defers the handler to the event mailbox.
	EventQueued
	// EventNotQueued runs the handler in the goroutine that triggers the event.
	EventNotQueued
)

// HandlerOption adjusts an event handler registration.
type HandlerOption func(*handlerEntry)

// HandlerRequired makes the bind fail when the server has no matching event.
func HandlerRequired() HandlerOption {
	return func(h *handlerEntry) { h.req = Required }
}

type functionEntry struct {
	fn  command.Function
	req Requirement
}

type handlerEntry struct {
	handler command.Command
	req     Requirement
}

// RequiredInterface is a named set of function slots and event handlers a
// component needs from a provided interface of another component.
type RequiredInterface struct {
	name   string
	owner  string
	req    Requirement
	logger *slog.Logger
	mb     *mailbox.Mailbox

	mu           sync.RWMutex
	functions    map[string]*functionEntry
	funcOrder    []string
	handlers     map[string]*handlerEntry
	handlerOrder []string

	connected *ProvidedInterface
	view      *EndUserInterface
	observed  []ObserverRequest
}

// RequiredOption configures a required interface.
type RequiredOption func(*requiredConfig)

type requiredConfig struct {
	req       Requirement
	queueSize int
}

// WithRequirement marks the interface itself Required or Optional.
func WithRequirement(req Requirement) RequiredOption {
	return func(c *requiredConfig) { c.req = req }
}

// WithEventMailbox gives the interface an event mailbox of the given size.
// A size of zero removes it; queued handlers then cannot be added.
func WithEventMailbox(size int) RequiredOption {
	return func(c *requiredConfig) { c.queueSize = size }
}

func newRequiredInterface(owner *Component, name string, cfg requiredConfig) (*RequiredInterface, error) {
	ri := &RequiredInterface{
		name:      name,
		owner:     owner.name,
		req:       cfg.req,
		logger:    owner.logger.With("required", name),
		functions: make(map[string]*functionEntry),
		handlers:  make(map[string]*handlerEntry),
	}
	if cfg.queueSize > 0 {
		mb, err := mailbox.New(owner.name+"."+name+".events", cfg.queueSize,
			mailbox.WithLogger(ri.logger),
			mailbox.WithMetrics(owner.registry),
			mailbox.WithNotifier(owner.wake))
		if err != nil {
			return nil, err
		}
		ri.mb = mb
	}
	return ri, nil
}

// Name returns the interface name.
func (ri *RequiredInterface) Name() string { return ri.name }

// Owner returns the owning component's name.
func (ri *RequiredInterface) Owner() string { return ri.owner }

// Requirement reports whether the interface must be connected before start.
func (ri *RequiredInterface) Requirement() Requirement { return ri.req }

// Mailbox returns the event mailbox, nil when handlers are never queued.
func (ri *RequiredInterface) Mailbox() *mailbox.Mailbox { return ri.mb }

func (ri *RequiredInterface) checkNameLocked(method, name string) error {
	if err := ValidateName(name); err != nil {
		return errors.Wrap(err, "RequiredInterface", method, "name validation")
	}
	_, isFn := ri.functions[name]
	_, isHandler := ri.handlers[name]
	if isFn || isHandler {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s already defined in %s.%s", errors.ErrDuplicateName, name, ri.owner, ri.name),
			"RequiredInterface", method, "name uniqueness")
	}
	return nil
}

// AddFunction registers a function slot bound at connection time to the
// like-named command of the server.
func (ri *RequiredInterface) AddFunction(name string, fn command.Function, req Requirement) error {
	if fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "RequiredInterface", "AddFunction", "nil function")
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if err := ri.checkNameLocked("AddFunction", name); err != nil {
		return err
	}
	ri.functions[name] = &functionEntry{fn: fn, req: req}
	ri.funcOrder = append(ri.funcOrder, name)
	return nil
}

func (ri *RequiredInterface) queueHandler(method string, policy EventPolicy) (bool, error) {
	switch policy {
	case EventNotQueued:
		return false, nil
	case EventQueued:
		if ri.mb == nil {
			return false, errors.WrapInvalid(
				fmt.Errorf("%w: %s.%s", errors.ErrNoMailbox, ri.owner, ri.name),
				"RequiredInterface", method, "queued handler")
		}
		return true, nil
	default:
		return ri.mb != nil, nil
	}
}

func (ri *RequiredInterface) addHandler(method string, handler command.Command, opts []HandlerOption) error {
	entry := &handlerEntry{handler: handler, req: Optional}
	for _, opt := range opts {
		opt(entry)
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if err := ri.checkNameLocked(method, handler.Name()); err != nil {
		return err
	}
	ri.handlers[handler.Name()] = entry
	ri.handlerOrder = append(ri.handlerOrder, handler.Name())
	return nil
}

// AddEventHandlerVoid registers fn as the handler of the Void event name.
// Handlers are optional unless HandlerRequired is given.
func (ri *RequiredInterface) AddEventHandlerVoid(
	name string, fn func(ctx context.Context) error, policy EventPolicy, opts ...HandlerOption,
) error {
	queue, err := ri.queueHandler("AddEventHandlerVoid", policy)
	if err != nil {
		return err
	}
	var handler command.Command = command.NewVoid(name, fn)
	if queue {
		handler = command.QueueVoid(handler.(*command.Void), ri.mb)
	}
	return ri.addHandler("AddEventHandlerVoid", handler, opts)
}

// AddEventHandlerWrite registers fn as the handler of the Write event name.
func AddEventHandlerWrite[A any](
	ri *RequiredInterface, name string, fn func(ctx context.Context, payload A) error,
	policy EventPolicy, opts ...HandlerOption,
) error {
	queue, err := ri.queueHandler("AddEventHandlerWrite", policy)
	if err != nil {
		return err
	}
	cmd := command.NewWrite(name, fn)
	var handler command.Command = cmd
	if queue {
		handler = command.QueueWrite[A](cmd, ri.mb)
	}
	return ri.addHandler("AddEventHandlerWrite", handler, opts)
}

// Function returns the function slot registered under name.
func (ri *RequiredInterface) Function(name string) (command.Function, error) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	entry, ok := ri.functions[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: function %s in %s.%s", errors.ErrNotFound, name, ri.owner, ri.name),
			"RequiredInterface", "Function", "function lookup")
	}
	return entry.fn, nil
}

// FunctionNames returns function names in registration order.
func (ri *RequiredInterface) FunctionNames() []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return append([]string(nil), ri.funcOrder...)
}

// EventHandlerNames returns handler names in registration order.
func (ri *RequiredInterface) EventHandlerNames() []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return append([]string(nil), ri.handlerOrder...)
}

// IsConnected reports whether the interface is bound to a provided interface.
func (ri *RequiredInterface) IsConnected() bool {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.connected != nil
}

// ConnectedTo returns the provided interface currently bound, or nil.
func (ri *RequiredInterface) ConnectedTo() *ProvidedInterface {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.connected
}

// ClientSeparator joins the owner and interface names of a client. Names
// cannot contain it, so every required interface maps to a distinct
// end-user interface.
const ClientSeparator = ":"

// ClientName is the name a required interface presents to the servers it
// connects to.
func (ri *RequiredInterface) ClientName() string {
	return ri.owner + ClientSeparator + ri.name
}

// BindResult is the outcome of binding one function or event handler.
type BindResult struct {
	Kind        string      `json:"kind"`
	Name        string      `json:"name"`
	Requirement Requirement `json:"requirement"`
	Err         error       `json:"-"`
}

// BindReport collects the results of one connection attempt.
type BindReport struct {
	Client  string       `json:"client"`
	Server  string       `json:"server"`
	Results []BindResult `json:"results"`
}

// Failed returns the results of required elements that could not be bound.
func (r *BindReport) Failed() []BindResult {
	var failed []BindResult
	for _, res := range r.Results {
		if res.Err != nil && res.Requirement == Required {
			failed = append(failed, res)
		}
	}
	return failed
}

// Skipped returns the optional elements left unbound.
func (r *BindReport) Skipped() []BindResult {
	var skipped []BindResult
	for _, res := range r.Results {
		if res.Err != nil && res.Requirement == Optional {
			skipped = append(skipped, res)
		}
	}
	return skipped
}

// ConnectTo obtains an end-user view of pi and binds every function and
// event handler to it. On failure nothing stays bound.
func (ri *RequiredInterface) ConnectTo(ctx context.Context, pi *ProvidedInterface) (*BindReport, error) {
	if pi == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "RequiredInterface", "ConnectTo", "nil provided interface")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "RequiredInterface", "ConnectTo", "context check")
	}
	if ri.IsConnected() {
		return nil, ri.alreadyConnected("ConnectTo")
	}

	view, err := pi.GetEndUserInterface(ri.ClientName())
	if err != nil {
		return nil, errors.Wrap(err, "RequiredInterface", "ConnectTo", "end-user interface")
	}
	report, err := ri.BindCommandsAndEvents(view)
	if err != nil {
		// a view held by another connection is not ours to release
		if !errors.Is(err, errors.ErrAlreadyConnected) {
			_ = pi.RemoveEndUserInterface(view, view.UserName())
		}
		return report, err
	}
	return report, nil
}

func (ri *RequiredInterface) alreadyConnected(method string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s.%s", errors.ErrAlreadyConnected, ri.owner, ri.name),
		"RequiredInterface", method, "connection check")
}

// BindCommandsAndEvents binds every function to the view's like-named command
// and registers every handler as an observer of the like-named event. All
// results are collected before deciding; if a required element failed, the
// bindings made by this call are undone and ErrBindFailed lists the failures.
func (ri *RequiredInterface) BindCommandsAndEvents(view *EndUserInterface) (*BindReport, error) {
	if view == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "RequiredInterface", "BindCommandsAndEvents", "nil view")
	}
	pi := view.Provided()

	ri.mu.Lock()
	defer ri.mu.Unlock()
	if ri.connected != nil {
		return nil, ri.alreadyConnected("BindCommandsAndEvents")
	}
	if !view.claim() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: end-user interface %s of %s.%s is in use", errors.ErrAlreadyConnected,
				view.UserName(), pi.Owner(), pi.Name()),
			"RequiredInterface", "BindCommandsAndEvents", "view check")
	}

	report := &BindReport{
		Client: ri.ClientName(),
		Server: pi.Owner() + "." + pi.Name(),
	}

	var bound []command.Function
	for _, name := range ri.funcOrder {
		entry := ri.functions[name]
		res := BindResult{Kind: "function", Name: name, Requirement: entry.req}
		cmd, err := view.Command(name)
		if err == nil {
			err = entry.fn.Bind(cmd)
		}
		if err == nil {
			bound = append(bound, entry.fn)
		}
		res.Err = err
		report.Results = append(report.Results, res)
	}

	requests := make([]ObserverRequest, 0, len(ri.handlerOrder))
	for _, name := range ri.handlerOrder {
		entry := ri.handlers[name]
		requests = append(requests, ObserverRequest{Name: name, Handler: entry.handler, Requirement: entry.req})
	}
	var observed []ObserverRequest
	for i, res := range pi.AddObserverList(requests) {
		if res.Err == nil {
			observed = append(observed, requests[i])
		}
		report.Results = append(report.Results, BindResult{
			Kind: "event", Name: res.Name, Requirement: res.Requirement, Err: res.Err,
		})
	}

	if failed := report.Failed(); len(failed) > 0 {
		for _, fn := range bound {
			fn.Detach()
		}
		pi.RemoveObserverList(observed)
		view.release()

		names := make([]string, 0, len(failed))
		causes := make([]error, 0, len(failed))
		for _, res := range failed {
			names = append(names, res.Kind+" "+res.Name)
			causes = append(causes, res.Err)
		}
		ri.logger.Warn("Bind failed", "server", report.Server, "failed", names)
		return report, errors.WrapFatal(
			fmt.Errorf("%w: %s to %s: %s: %w", errors.ErrBindFailed, report.Client, report.Server,
				strings.Join(names, ", "), errors.Join(causes...)),
			"RequiredInterface", "BindCommandsAndEvents", "required bindings")
	}

	for _, res := range report.Skipped() {
		ri.logger.Debug("Optional element not bound", "kind", res.Kind, "name", res.Name, "error", res.Err)
	}

	ri.connected = pi
	ri.view = view
	ri.observed = observed
	ri.logger.Info("Connected", "server", report.Server)
	return report, nil
}

// Disconnect undoes a successful connection. Calling it on an unconnected
// interface does nothing.
func (ri *RequiredInterface) Disconnect() error {
	ri.mu.Lock()
	pi, view, observed := ri.connected, ri.view, ri.observed
	ri.connected, ri.view, ri.observed = nil, nil, nil
	if pi == nil {
		ri.mu.Unlock()
		return nil
	}
	for _, name := range ri.funcOrder {
		ri.functions[name].fn.Detach()
	}
	ri.mu.Unlock()

	pi.RemoveObserverList(observed)
	view.release()
	if err := pi.RemoveEndUserInterface(view, view.UserName()); err != nil {
		return errors.Wrap(err, "RequiredInterface", "Disconnect", "end-user interface release")
	}
	ri.logger.Info("Disconnected", "server", pi.Owner()+"."+pi.Name())
	return nil
}

// ProcessMailBoxes runs queued event handlers and returns how many ran.
func (ri *RequiredInterface) ProcessMailBoxes(ctx context.Context) int {
	if ri.mb == nil {
		return 0
	}
	return ri.mb.Drain(ctx, 0) + ri.mb.Drain(ctx, 0)
}

func (ri *RequiredInterface) close() {
	if ri.mb != nil {
		ri.mb.Close()
	}
}

// RequiredInfo describes a required interface for introspection.
type RequiredInfo struct {
	Name          string   `json:"name"`
	Requirement   string   `json:"requirement"`
	Functions     []string `json:"functions"`
	EventHandlers []string `json:"event_handlers"`
	ConnectedTo   string   `json:"connected_to,omitempty"`
}

// Describe returns the introspection record of ri.
func (ri *RequiredInterface) Describe() RequiredInfo {
	info := RequiredInfo{
		Name:          ri.name,
		Requirement:   ri.req.String(),
		Functions:     ri.FunctionNames(),
		EventHandlers: ri.EventHandlerNames(),
	}
	if pi := ri.ConnectedTo(); pi != nil {
		info.ConnectedTo = pi.Owner() + "." + pi.Name()
	}
	return info
}

// MarshalText renders the requirement as "required" or "optional".
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts "required" or "optional".
func (r *Requirement) UnmarshalText(text []byte) error {
	switch string(text) {
	case Required.String():
		*r = Required
	case Optional.String():
		*r = Optional
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: requirement %q", errors.ErrInvalidData, text), "Requirement", "UnmarshalText", "parse")
	}
	return nil
}
