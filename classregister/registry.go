// Package classregister maps class names to the services that create,
// copy and dispose of their instances.
//
// Registration is explicit: packages export a Register function and the
// application calls it with the Registry it wants populated. A process-wide
// registry is available through Default.
package classregister

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/c360/mtscore/errors"
)

// Registry holds class services by name and by Go type.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Services
	byType map[reflect.Type]*Services
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*Services),
		byType: make(map[reflect.Type]*Services),
		logger: logger.With("component", "classregister"),
	}
}

var defaultRegistry = New(nil)

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds s. The first registration of a name wins: later ones return
// false and an error wrapping ErrDuplicateName.
func (r *Registry) Register(s *Services) (bool, error) {
	if s == nil {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "Registry", "Register", "nil services")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[s.name]; ok {
		r.logger.Warn("Class already registered", "class", s.name, "type", existing.typ)
		return false, errors.WrapInvalid(
			fmt.Errorf("%w: class %s already registered with type %s", errors.ErrDuplicateName, s.name, existing.typ),
			"Registry", "Register", "name uniqueness")
	}
	r.byName[s.name] = s
	if _, ok := r.byType[s.typ]; !ok {
		r.byType[s.typ] = s
	}
	r.logger.Debug("Registered class", "class", s.name, "type", s.typ, "dynamic", s.dynamic)
	return true, nil
}

// FindClassServices returns the services registered under name, or nil.
func (r *Registry) FindClassServices(name string) *Services {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// FindByType returns the first services registered for t, or nil.
func (r *Registry) FindByType(t reflect.Type) *Services {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

func (r *Registry) lookup(method, name string) (*Services, error) {
	s := r.FindClassServices(name)
	if s == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: class %s", errors.ErrNotFound, name),
			"Registry", method, "class lookup")
	}
	return s, nil
}

// Create builds an instance of the named class.
func (r *Registry) Create(name string) (any, error) {
	s, err := r.lookup("Create", name)
	if err != nil {
		return nil, err
	}
	return s.Create()
}

// CreateCopy builds an instance of the named class from proto.
func (r *Registry) CreateCopy(name string, proto any) (any, error) {
	s, err := r.lookup("CreateCopy", name)
	if err != nil {
		return nil, err
	}
	return s.CreateCopy(proto)
}

// CreateAs builds an instance of the named class and asserts it to T.
func CreateAs[T any](r *Registry, name string) (T, error) {
	var zero T
	obj, err := r.Create(name)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, errors.WrapInvalid(
			fmt.Errorf("%w: class %s created %T, want %s", errors.ErrTypeMismatch, name, obj, reflect.TypeFor[T]()),
			"Registry", "CreateAs", "type check")
	}
	return typed, nil
}

// Names returns the registered class names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassInfo describes a registered class.
type ClassInfo struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Description     string `json:"description,omitempty"`
	LogLevel        string `json:"log_level"`
	DynamicCreation bool   `json:"dynamic_creation"`
	DefaultCtor     bool   `json:"default_constructor"`
	CopyCtor        bool   `json:"copy_constructor"`
}

// Describe lists every registered class, sorted by name.
func (r *Registry) Describe() []ClassInfo {
	names := r.Names()
	out := make([]ClassInfo, 0, len(names))
	for _, name := range names {
		s := r.FindClassServices(name)
		out = append(out, ClassInfo{
			Name:            s.name,
			Type:            s.typ.String(),
			Description:     s.description,
			LogLevel:        s.logLevel.String(),
			DynamicCreation: s.dynamic,
			DefaultCtor:     s.newDefault != nil,
			CopyCtor:        s.copyFrom != nil,
		})
	}
	return out
}
