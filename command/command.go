// Package command implements the server-side commands and client-side functions
// components use to call each other by name.
//
// A command wraps a callable of one of six shapes. Unqueued commands run in
// the caller's goroutine; queued commands (see QueueVoid and friends) wrap an
// unqueued one and defer execution to the owning component's mailbox.
// Functions start unbound, are bound to a command when a required interface
// connects, and are detached on disconnect. Bind checks the shape and the Go
// argument/result types, so a bound function never fails a call with a type error.
package command

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/c360/mtscore/errors"
)

// Command is the shape-independent view of a server-side command.
type Command interface {
	Name() string
	Shape() Shape
	// ArgumentType is nil for shapes without an argument.
	ArgumentType() reflect.Type
	// ResultType is nil for shapes without a result.
	ResultType() reflect.Type
	Enabled() bool
	Enable()
	Disable()
	Queued() bool
	// Invoke is the dynamically typed entry point used by proxies and tools.
	// Queued commands wait for completion. A wrong argument type returns ErrTypeMismatch.
	Invoke(ctx context.Context, arg any) (any, error)
}

// VoidCaller is implemented by Void-shaped commands.
type VoidCaller interface {
	Command
	Execute(ctx context.Context) error
}

// WriteCaller is implemented by Write-shaped commands and Write event handlers.
type WriteCaller[A any] interface {
	Command
	Execute(ctx context.Context, arg A) error
}

// ReadCaller is implemented by Read and VoidReturn commands.
type ReadCaller[R any] interface {
	Command
	Execute(ctx context.Context) (R, error)
}

// QualifiedCaller is implemented by QualifiedRead and WriteReturn commands.
type QualifiedCaller[A, R any] interface {
	Command
	Execute(ctx context.Context, arg A) (R, error)
}

// blockingVoid and blockingWrite are implemented by queued Void and Write commands, whose Execute
// returns as soon as the call is queued.
type blockingVoid interface {
	ExecuteBlocking(ctx context.Context) error
}

type blockingWrite[A any] interface {
	ExecuteBlocking(ctx context.Context, arg A) error
}

type base struct {
	name     string
	shape    Shape
	argType  reflect.Type
	resType  reflect.Type
	disabled atomic.Bool
}

func (b *base) init(name string, shape Shape, argType, resType reflect.Type) {
	b.name, b.shape, b.argType, b.resType = name, shape, argType, resType
}

func (b *base) Name() string               { return b.name }
func (b *base) Shape() Shape               { return b.shape }
func (b *base) ArgumentType() reflect.Type { return b.argType }
func (b *base) ResultType() reflect.Type   { return b.resType }
func (b *base) Enabled() bool              { return !b.disabled.Load() }
func (b *base) Enable()                    { b.disabled.Store(false) }
func (b *base) Disable()                   { b.disabled.Store(true) }

func (b *base) checkEnabled() error {
	if b.disabled.Load() {
		return errors.WrapInvalid(errors.ErrDisabled, "Command", "Execute", b.name)
	}
	return nil
}

func castArg[A any](name string, arg any) (A, error) {
	a, ok := arg.(A)
	if !ok {
		var zero A
		return zero, errors.WrapInvalid(
			fmt.Errorf("%w: command %s expects %v, got %T", errors.ErrTypeMismatch, name, reflect.TypeFor[A](), arg),
			"Command", "Invoke", "argument conversion")
	}
	return a, nil
}

// Void is an unqueued command without argument or result.
type Void struct {
	base
	fn func(ctx context.Context) error
}

// NewVoid wraps fn as a Void command.
func NewVoid(name string, fn func(ctx context.Context) error) *Void {
	c := &Void{fn: fn}
	c.init(name, ShapeVoid, nil, nil)
	return c
}

// Queued reports false. QueueVoid wraps the command for deferred execution.
func (c *Void) Queued() bool { return false }

// Execute runs the handler unless the command is disabled.
func (c *Void) Execute(ctx context.Context) error {
	if err := c.checkEnabled(); err != nil {
		return err
	}
	return c.fn(ctx)
}

// Invoke runs Execute and ignores the argument.
func (c *Void) Invoke(ctx context.Context, _ any) (any, error) {
	return nil, c.Execute(ctx)
}

// Write is an unqueued command taking one argument.
type Write[A any] struct {
	base
	fn func(ctx context.Context, arg A) error
}

// NewWrite wraps fn as a Write command.
func NewWrite[A any](name string, fn func(ctx context.Context, arg A) error) *Write[A] {
	c := &Write[A]{fn: fn}
	c.init(name, ShapeWrite, reflect.TypeFor[A](), nil)
	return c
}

// Queued reports false. QueueWrite wraps the command for deferred execution.
func (c *Write[A]) Queued() bool { return false }

// Execute runs the handler with arg unless the command is disabled.
func (c *Write[A]) Execute(ctx context.Context, arg A) error {
	if err := c.checkEnabled(); err != nil {
		return err
	}
	return c.fn(ctx, arg)
}

// Invoke checks that arg is an A and runs Execute with it.
func (c *Write[A]) Invoke(ctx context.Context, arg any) (any, error) {
	a, err := castArg[A](c.name, arg)
	if err != nil {
		return nil, err
	}
	return nil, c.Execute(ctx, a)
}

// Read is an unqueued command returning a result without taking an argument.
// It backs both the Read and the VoidReturn shapes.
type Read[R any] struct {
	base
	fn func(ctx context.Context) (R, error)
}

// NewRead wraps fn as a Read command.
func NewRead[R any](name string, fn func(ctx context.Context) (R, error)) *Read[R] {
	c := &Read[R]{fn: fn}
	c.init(name, ShapeRead, nil, reflect.TypeFor[R]())
	return c
}

// NewVoidReturn wraps fn as a VoidReturn command.
func NewVoidReturn[R any](name string, fn func(ctx context.Context) (R, error)) *Read[R] {
	c := &Read[R]{fn: fn}
	c.init(name, ShapeVoidReturn, nil, reflect.TypeFor[R]())
	return c
}

// Queued reports false. QueueRead wraps the command for deferred execution.
func (c *Read[R]) Queued() bool { return false }

// Execute runs the handler and returns its result.
func (c *Read[R]) Execute(ctx context.Context) (R, error) {
	if err := c.checkEnabled(); err != nil {
		var zero R
		return zero, err
	}
	return c.fn(ctx)
}

// Invoke runs Execute and ignores the argument.
func (c *Read[R]) Invoke(ctx context.Context, _ any) (any, error) {
	return c.Execute(ctx)
}

// Qualified is an unqueued command mapping an argument to a result.
// It backs both the QualifiedRead and the WriteReturn shapes.
type Qualified[A, R any] struct {
	base
	fn func(ctx context.Context, arg A) (R, error)
}

// NewQualifiedRead wraps fn as a QualifiedRead command.
func NewQualifiedRead[A, R any](name string, fn func(ctx context.Context, arg A) (R, error)) *Qualified[A, R] {
	c := &Qualified[A, R]{fn: fn}
	c.init(name, ShapeQualifiedRead, reflect.TypeFor[A](), reflect.TypeFor[R]())
	return c
}

// NewWriteReturn wraps fn as a WriteReturn command.
func NewWriteReturn[A, R any](name string, fn func(ctx context.Context, arg A) (R, error)) *Qualified[A, R] {
	c := &Qualified[A, R]{fn: fn}
	c.init(name, ShapeWriteReturn, reflect.TypeFor[A](), reflect.TypeFor[R]())
	return c
}

// Queued reports false. QueueQualified wraps the command for deferred execution.
func (c *Qualified[A, R]) Queued() bool { return false }

// Execute runs the handler with arg and returns its result.
func (c *Qualified[A, R]) Execute(ctx context.Context, arg A) (R, error) {
	if err := c.checkEnabled(); err != nil {
		var zero R
		return zero, err
	}
	return c.fn(ctx, arg)
}

// Invoke checks that arg is an A and runs Execute with it.
func (c *Qualified[A, R]) Invoke(ctx context.Context, arg any) (any, error) {
	a, err := castArg[A](c.name, arg)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, a)
}

// Info describes a command for introspection endpoints.
type Info struct {
	Name     string `json:"name"`
	Shape    string `json:"shape"`
	Argument string `json:"argument,omitempty"`
	Result   string `json:"result,omitempty"`
	Queued   bool   `json:"queued"`
	Enabled  bool   `json:"enabled"`
}

// Describe returns the introspection record of c.
func Describe(c Command) Info {
	info := Info{
		Name:    c.Name(),
		Shape:   c.Shape().String(),
		Queued:  c.Queued(),
		Enabled: c.Enabled(),
	}
	if t := c.ArgumentType(); t != nil {
		info.Argument = t.String()
	}
	if t := c.ResultType(); t != nil {
		info.Result = t.String()
	}
	return info
}
