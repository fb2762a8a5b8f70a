package classregister

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/c360/mtscore/errors"
)

// Services describes how to create, copy and dispose instances of one class.
type Services struct {
	name        string
	typ         reflect.Type
	description string
	logLevel    slog.Level
	dynamic     bool
	newDefault  func() (any, error)
	copyFrom    func(proto any) (any, error)
	dispose     func(obj any) error
}

// Option configures the Services of class T.
type Option[T any] func(*builder[T])

type builder[T any] struct {
	s          *Services
	newDefault func() (T, error)
	copyFrom   func(T) (T, error)
	dispose    func(T) error
}

// WithDynamicCreation allows instances to be created by name.
func WithDynamicCreation[T any]() Option[T] {
	return func(b *builder[T]) { b.s.dynamic = true }
}

// WithDefaultConstructor sets the function Create uses. It implies dynamic creation.
func WithDefaultConstructor[T any](fn func() (T, error)) Option[T] {
	return func(b *builder[T]) {
		b.newDefault = fn
		b.s.dynamic = true
	}
}

// WithCopyConstructor sets the function CreateCopy uses.
func WithCopyConstructor[T any](fn func(proto T) (T, error)) Option[T] {
	return func(b *builder[T]) { b.copyFrom = fn }
}

// WithDispose sets the function Delete uses.
func WithDispose[T any](fn func(obj T) error) Option[T] {
	return func(b *builder[T]) { b.dispose = fn }
}

// WithLogLevel sets the minimum level of the loggers returned by Services.Logger.
func WithLogLevel[T any](level slog.Level) Option[T] {
	return func(b *builder[T]) { b.s.logLevel = level }
}

// WithDescription sets a human readable description.
func WithDescription[T any](text string) Option[T] {
	return func(b *builder[T]) { b.s.description = text }
}

// NewServices describes class T under name.
func NewServices[T any](name string, opts ...Option[T]) (*Services, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "classregister", "NewServices", "empty class name")
	}
	b := &builder[T]{s: &Services{name: name, typ: reflect.TypeFor[T](), logLevel: slog.LevelInfo}}
	for _, opt := range opts {
		opt(b)
	}

	s := b.s
	if fn := b.newDefault; fn != nil {
		s.newDefault = func() (any, error) { return fn() }
	}
	if fn := b.copyFrom; fn != nil {
		s.copyFrom = func(proto any) (any, error) {
			typed, ok := proto.(T)
			if !ok {
				return nil, s.mismatch("CreateCopy", proto)
			}
			return fn(typed)
		}
	}
	if fn := b.dispose; fn != nil {
		s.dispose = func(obj any) error {
			typed, ok := obj.(T)
			if !ok {
				return s.mismatch("Delete", obj)
			}
			return fn(typed)
		}
	}
	return s, nil
}

func (s *Services) mismatch(method string, got any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: class %s is %s, got %T", errors.ErrTypeMismatch, s.name, s.typ, got),
		"Services", method, "type check")
}

// Name returns the class name.
func (s *Services) Name() string { return s.name }

// Type returns the Go type of instances.
func (s *Services) Type() reflect.Type { return s.typ }

// Description returns the class description.
func (s *Services) Description() string { return s.description }

// LogLevel returns the minimum log level of instances.
func (s *Services) LogLevel() slog.Level { return s.logLevel }

// DynamicCreation reports whether instances may be created by name.
func (s *Services) DynamicCreation() bool { return s.dynamic }

// HasDefaultConstructor reports whether Create can build an instance.
func (s *Services) HasDefaultConstructor() bool { return s.newDefault != nil }

// HasCopyConstructor reports whether CreateCopy can build an instance.
func (s *Services) HasCopyConstructor() bool { return s.copyFrom != nil }

// Create builds an instance with the default constructor.
func (s *Services) Create() (any, error) {
	if !s.dynamic {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNotCreatable, s.name),
			"Services", "Create", "dynamic creation check")
	}
	if s.newDefault == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNoDefaultConstructor, s.name),
			"Services", "Create", "constructor lookup")
	}
	obj, err := s.newDefault()
	if err != nil {
		return nil, errors.Wrap(err, "Services", "Create", "construct "+s.name)
	}
	return obj, nil
}

// CreateCopy builds an instance from proto, which must be of the class type.
func (s *Services) CreateCopy(proto any) (any, error) {
	if !s.dynamic {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNotCreatable, s.name),
			"Services", "CreateCopy", "dynamic creation check")
	}
	if s.copyFrom == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNoCopyConstructor, s.name),
			"Services", "CreateCopy", "constructor lookup")
	}
	obj, err := s.copyFrom(proto)
	if err != nil {
		return nil, errors.Wrap(err, "Services", "CreateCopy", "copy "+s.name)
	}
	return obj, nil
}

// Delete disposes of obj. Classes without a disposer only check the type.
func (s *Services) Delete(obj any) error {
	if s.dispose != nil {
		return s.dispose(obj)
	}
	if obj == nil || reflect.TypeOf(obj) != s.typ {
		return s.mismatch("Delete", obj)
	}
	return nil
}

// Logger returns base filtered to the class log level.
func (s *Services) Logger(base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.New(&levelHandler{next: base.Handler(), level: s.logLevel}).With("class", s.name)
}

type levelHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{next: h.next.WithGroup(name), level: h.level}
}
