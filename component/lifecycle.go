package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/natsclient"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateConstructed indicates the component exists but Create has not run
	StateConstructed State = iota
	// StateReady indicates Create completed, or the component was suspended
	StateReady
	// StateActive indicates the component is running its cycle
	StateActive
	// StateFinishing indicates Kill is running cleanup
	StateFinishing
	// StateFinished is terminal
	StateFinished
)

// String returns a string representation of the component state
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateFinishing:
		return "finishing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts a state name back into a State
func ParseState(name string) (State, error) {
	for s := StateConstructed; s <= StateFinished; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return StateConstructed, errors.WrapInvalid(
		fmt.Errorf("unknown state %q", name), "State", "ParseState", "state lookup")
}

var transitions = map[State][]State{
	StateConstructed: {StateReady, StateFinishing},
	StateReady:       {StateActive, StateFinishing},
	StateActive:      {StateReady, StateFinishing},
	StateFinishing:   {StateFinished},
}

// CanTransition reports whether from -> to is a legal lifecycle step
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle is what the manager drives. *Component and *Task implement it;
// concrete components usually embed one of them.
type Lifecycle interface {
	Name() string
	Base() *Component
	State() State
	Create(ctx context.Context) error
	Start(ctx context.Context) error
	Suspend(ctx context.Context) error
	Kill(ctx context.Context) error
	WaitForState(ctx context.Context, state State) error
}

// Starter is implemented by components with setup to do during Create.
type Starter interface {
	Startup(ctx context.Context) error
}

// Runner is implemented by tasks with work to do every cycle.
type Runner interface {
	Run(ctx context.Context) error
}

// Cleaner is implemented by components with teardown to do during Kill.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Configurable is implemented by components created by type name through the
// class register. Configure runs before the component is added to a manager.
type Configurable interface {
	Lifecycle
	Configure(name string, raw json.RawMessage, deps Dependencies) error
}

// StateListener observes lifecycle transitions.
type StateListener func(component string, from, to State)

// Dependencies provides external dependencies to configurable components.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client (can be nil)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Process         string                  // Process name used in NATS subjects
	MailboxSize     int                     // Default end-user mailbox size, 0 keeps the component default
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Options converts the dependencies into component options
func (d *Dependencies) Options() []Option {
	opts := []Option{WithLogger(d.GetLogger()), WithMetrics(d.MetricsRegistry), WithMailboxSize(d.MailboxSize)}
	if d.NATSClient != nil {
		if conn := d.NATSClient.GetConnection(); conn != nil {
			opts = append(opts, WithLogMirror(conn, d.Process))
		}
	}
	return opts
}
