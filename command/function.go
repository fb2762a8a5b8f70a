package command

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/c360/mtscore/errors"
)

// Function is the client-side handle a required interface binds to a
// like-named command. An unbound function returns ErrUnbound on every call.
type Function interface {
	Shape() Shape
	ArgumentType() reflect.Type
	ResultType() reflect.Type
	// Bind attaches the function to c. The shape and Go types must match exactly.
	Bind(c Command) error
	// Detach reverts the function to unbound. Safe to call repeatedly.
	Detach()
	IsBound() bool
	// Command returns the bound command, or nil.
	Command() Command
}

type slot[C Command] struct {
	mu    sync.RWMutex
	cmd   C
	bound bool
}

func (s *slot[C]) get() (C, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.bound {
		var zero C
		return zero, errors.ErrUnbound
	}
	return s.cmd, nil
}

func (s *slot[C]) set(c C) {
	s.mu.Lock()
	s.cmd, s.bound = c, true
	s.mu.Unlock()
}

func (s *slot[C]) Detach() {
	s.mu.Lock()
	var zero C
	s.cmd, s.bound = zero, false
	s.mu.Unlock()
}

func (s *slot[C]) IsBound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound
}

func (s *slot[C]) Command() Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.bound {
		return nil
	}
	return s.cmd
}

func signature(arg, res reflect.Type) string {
	name := func(t reflect.Type) string {
		if t == nil {
			return ""
		}
		return t.String()
	}
	return fmt.Sprintf("(%s) -> (%s)", name(arg), name(res))
}

func bind[C Command](s *slot[C], c Command, want Shape, arg, res reflect.Type) error {
	if c == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Function", "Bind", "nil command")
	}
	typed, ok := c.(C)
	if c.Shape() != want || !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s function %s cannot bind %s command %s %s",
				errors.ErrTypeMismatch, want, signature(arg, res),
				c.Shape(), c.Name(), signature(c.ArgumentType(), c.ResultType())),
			"Function", "Bind", c.Name())
	}
	s.set(typed)
	return nil
}

// VoidFunction calls a Void command.
type VoidFunction struct {
	slot[VoidCaller]
}

// NewVoidFunction returns an unbound VoidFunction.
func NewVoidFunction() *VoidFunction { return &VoidFunction{} }

func (f *VoidFunction) Shape() Shape               { return ShapeVoid }
func (f *VoidFunction) ArgumentType() reflect.Type { return nil }
func (f *VoidFunction) ResultType() reflect.Type   { return nil }

// Bind attaches f to c, which must be a Void command.
func (f *VoidFunction) Bind(c Command) error {
	return bind(&f.slot, c, ShapeVoid, nil, nil)
}

// Execute runs the command, or queues it when the command is queued.
func (f *VoidFunction) Execute(ctx context.Context) error {
	cmd, err := f.get()
	if err != nil {
		return errors.WrapInvalid(err, "VoidFunction", "Execute", "call")
	}
	return cmd.Execute(ctx)
}

// ExecuteBlocking runs the command and, for queued commands, waits until the
// server has executed it.
func (f *VoidFunction) ExecuteBlocking(ctx context.Context) error {
	cmd, err := f.get()
	if err != nil {
		return errors.WrapInvalid(err, "VoidFunction", "ExecuteBlocking", "call")
	}
	if b, ok := cmd.(blockingVoid); ok {
		return b.ExecuteBlocking(ctx)
	}
	return cmd.Execute(ctx)
}

// WriteFunction calls a Write command.
type WriteFunction[A any] struct {
	slot[WriteCaller[A]]
}

// NewWriteFunction returns an unbound WriteFunction.
func NewWriteFunction[A any]() *WriteFunction[A] { return &WriteFunction[A]{} }

func (f *WriteFunction[A]) Shape() Shape               { return ShapeWrite }
func (f *WriteFunction[A]) ArgumentType() reflect.Type { return reflect.TypeFor[A]() }
func (f *WriteFunction[A]) ResultType() reflect.Type   { return nil }

// Bind attaches f to c, which must be a Write command taking A.
func (f *WriteFunction[A]) Bind(c Command) error {
	return bind(&f.slot, c, ShapeWrite, f.ArgumentType(), nil)
}

// Execute runs the command with arg, or queues it when the command is queued.
func (f *WriteFunction[A]) Execute(ctx context.Context, arg A) error {
	cmd, err := f.get()
	if err != nil {
		return errors.WrapInvalid(err, "WriteFunction", "Execute", "call")
	}
	return cmd.Execute(ctx, arg)
}

func (f *WriteFunction[A]) ExecuteBlocking(ctx context.Context, arg A) error {
	cmd, err := f.get()
	if err != nil {
		return errors.WrapInvalid(err, "WriteFunction", "ExecuteBlocking", "call")
	}
	if b, ok := cmd.(blockingWrite[A]); ok {
		return b.ExecuteBlocking(ctx, arg)
	}
	return cmd.Execute(ctx, arg)
}

type readFunction[R any] struct {
	slot[ReadCaller[R]]
	shape Shape
}

func (f *readFunction[R]) Shape() Shape               { return f.shape }
func (f *readFunction[R]) ArgumentType() reflect.Type { return nil }
func (f *readFunction[R]) ResultType() reflect.Type   { return reflect.TypeFor[R]() }

// Bind attaches f to a command of the function's shape returning R.
func (f *readFunction[R]) Bind(c Command) error {
	return bind(&f.slot, c, f.shape, nil, f.ResultType())
}

// Execute runs the command and returns its result.
func (f *readFunction[R]) Execute(ctx context.Context) (R, error) {
	cmd, err := f.get()
	if err != nil {
		var zero R
		return zero, errors.WrapInvalid(err, f.shape.String()+"Function", "Execute", "call")
	}
	return cmd.Execute(ctx)
}

// ReadFunction calls a Read command.
type ReadFunction[R any] struct{ readFunction[R] }

// NewReadFunction returns an unbound ReadFunction.
func NewReadFunction[R any]() *ReadFunction[R] {
	return &ReadFunction[R]{readFunction[R]{shape: ShapeRead}}
}

// VoidReturnFunction calls a VoidReturn command.
type VoidReturnFunction[R any] struct{ readFunction[R] }

// NewVoidReturnFunction returns an unbound VoidReturnFunction.
func NewVoidReturnFunction[R any]() *VoidReturnFunction[R] {
	return &VoidReturnFunction[R]{readFunction[R]{shape: ShapeVoidReturn}}
}

type qualifiedFunction[A, R any] struct {
	slot[QualifiedCaller[A, R]]
	shape Shape
}

func (f *qualifiedFunction[A, R]) Shape() Shape               { return f.shape }
func (f *qualifiedFunction[A, R]) ArgumentType() reflect.Type { return reflect.TypeFor[A]() }
func (f *qualifiedFunction[A, R]) ResultType() reflect.Type   { return reflect.TypeFor[R]() }

// Bind attaches f to a command of the function's shape taking A and returning R.
func (f *qualifiedFunction[A, R]) Bind(c Command) error {
	return bind(&f.slot, c, f.shape, f.ArgumentType(), f.ResultType())
}

// Execute runs the command with arg and returns its result.
func (f *qualifiedFunction[A, R]) Execute(ctx context.Context, arg A) (R, error) {
	cmd, err := f.get()
	if err != nil {
		var zero R
		return zero, errors.WrapInvalid(err, f.shape.String()+"Function", "Execute", "call")
	}
	return cmd.Execute(ctx, arg)
}

// QualifiedReadFunction calls a QualifiedRead command.
type QualifiedReadFunction[A, R any] struct{ qualifiedFunction[A, R] }

// NewQualifiedReadFunction returns an unbound QualifiedReadFunction.
func NewQualifiedReadFunction[A, R any]() *QualifiedReadFunction[A, R] {
	return &QualifiedReadFunction[A, R]{qualifiedFunction[A, R]{shape: ShapeQualifiedRead}}
}

// WriteReturnFunction calls a WriteReturn command.
type WriteReturnFunction[A, R any] struct{ qualifiedFunction[A, R] }

// NewWriteReturnFunction returns an unbound WriteReturnFunction.
func NewWriteReturnFunction[A, R any]() *WriteReturnFunction[A, R] {
	return &WriteReturnFunction[A, R]{qualifiedFunction[A, R]{shape: ShapeWriteReturn}}
}
