package command

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/c360/mtscore/errors"
)

// Event is a named notification a provided interface multicasts to the
// handlers registered by connected required interfaces.
type Event interface {
	Name() string
	Shape() Shape
	ArgumentType() reflect.Type
	// AddObserver registers a handler. Its shape and argument type must match.
	AddObserver(handler Command) error
	// RemoveObserver unregisters a handler; it reports whether it was registered.
	RemoveObserver(handler Command) bool
	Observers() int
	// TriggerAny is the dynamically typed trigger used by proxies.
	TriggerAny(ctx context.Context, arg any) error
	// AddListener registers fn to receive every trigger after the observers,
	// with the payload as any (nil for void events). Call the returned func
	// to remove it.
	AddListener(fn Listener) (remove func())
}

// Listener receives event payloads without static typing. Listeners serve
// bridges such as network proxies and event streams; they cannot fail a trigger.
type Listener func(ctx context.Context, payload any)

type observers[C Command] struct {
	name  string
	shape Shape
	arg   reflect.Type

	mu        sync.RWMutex
	list      []C
	hook      func()
	listeners map[int]Listener
	nextID    int
}

// SetTriggerHook installs fn to run at the start of every trigger.
func (o *observers[C]) SetTriggerHook(fn func()) {
	o.mu.Lock()
	o.hook = fn
	o.mu.Unlock()
}

func (o *observers[C]) Name() string               { return o.name }
func (o *observers[C]) Shape() Shape               { return o.shape }
func (o *observers[C]) ArgumentType() reflect.Type { return o.arg }

func (o *observers[C]) AddObserver(handler Command) error {
	if handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Event", "AddObserver", "nil handler")
	}
	typed, ok := handler.(C)
	if handler.Shape() != o.shape || !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: event %s %s cannot notify %s handler %s",
				errors.ErrTypeMismatch, o.name, signature(o.arg, nil),
				handler.Shape(), signature(handler.ArgumentType(), nil)),
			"Event", "AddObserver", o.name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.list {
		if Command(existing) == handler {
			return errors.WrapInvalid(errors.ErrDuplicateName, "Event", "AddObserver", o.name)
		}
	}
	o.list = append(o.list, typed)
	return nil
}

func (o *observers[C]) RemoveObserver(handler Command) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.list {
		if Command(existing) == handler {
			o.list = append(o.list[:i:i], o.list[i+1:]...)
			return true
		}
	}
	return false
}

func (o *observers[C]) Observers() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.list)
}

func (o *observers[C]) AddListener(fn Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listeners == nil {
		o.listeners = make(map[int]Listener)
	}
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers[C]) snapshot() ([]C, []Listener) {
	o.mu.RLock()
	hook, list := o.hook, append([]C(nil), o.list...)
	listeners := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.mu.RUnlock()
	if hook != nil {
		hook()
	}
	return list, listeners
}

// VoidEvent notifies handlers without a payload.
type VoidEvent struct {
	observers[VoidCaller]
}

// NewVoidEvent creates a VoidEvent with no observers.
func NewVoidEvent(name string) *VoidEvent {
	return &VoidEvent{observers[VoidCaller]{name: name, shape: ShapeVoid}}
}

// Trigger calls every observer. Queued observers are only enqueued. Failures
// do not stop delivery to the remaining observers and are returned joined.
func (e *VoidEvent) Trigger(ctx context.Context) error {
	handlers, listeners := e.snapshot()
	var errs []error
	for _, h := range handlers {
		if err := h.Execute(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.name, err))
		}
	}
	for _, l := range listeners {
		l(ctx, nil)
	}
	return errors.Join(errs...)
}

func (e *VoidEvent) TriggerAny(ctx context.Context, _ any) error {
	return e.Trigger(ctx)
}

// WriteEvent notifies handlers with a payload of type A.
type WriteEvent[A any] struct {
	observers[WriteCaller[A]]
}

// NewWriteEvent creates a WriteEvent with no observers.
func NewWriteEvent[A any](name string) *WriteEvent[A] {
	return &WriteEvent[A]{observers[WriteCaller[A]]{name: name, shape: ShapeWrite, arg: reflect.TypeFor[A]()}}
}

// Trigger calls every observer with payload. See VoidEvent.Trigger.
func (e *WriteEvent[A]) Trigger(ctx context.Context, payload A) error {
	handlers, listeners := e.snapshot()
	var errs []error
	for _, h := range handlers {
		if err := h.Execute(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.name, err))
		}
	}
	for _, l := range listeners {
		l(ctx, payload)
	}
	return errors.Join(errs...)
}

func (e *WriteEvent[A]) TriggerAny(ctx context.Context, arg any) error {
	payload, err := castArg[A](e.name, arg)
	if err != nil {
		return err
	}
	return e.Trigger(ctx, payload)
}
