package manager

import (
	"fmt"
	"time"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

// ConnectionState tracks one connection attempt.
type ConnectionState int

const (
	// Unconnected is the state before Connect and after Disconnect.
	Unconnected ConnectionState = iota
	// Binding means the client is obtaining its end-user view and binding.
	Binding
	// Connected means every required element of the client is bound.
	Connected
	// BindFailed means binding was rolled back.
	BindFailed
)

func (s ConnectionState) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Binding:
		return "binding"
	case Connected:
		return "connected"
	case BindFailed:
		return "bind_failed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// MarshalText renders the state name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for st := Unconnected; st <= BindFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: connection state %q", errors.ErrInvalidData, text), "ConnectionState", "UnmarshalText", "parse")
}

// ConnectionSpec names both ends of a connection.
type ConnectionSpec struct {
	ClientComponent string `json:"client_component" yaml:"client_component"`
	ClientInterface string `json:"client_interface" yaml:"client_interface"`
	ServerComponent string `json:"server_component" yaml:"server_component"`
	ServerInterface string `json:"server_interface" yaml:"server_interface"`
}

func (s ConnectionSpec) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", s.ClientComponent, s.ClientInterface, s.ServerComponent, s.ServerInterface)
}

// Client returns "<component>.<interface>" of the required side.
func (s ConnectionSpec) Client() string { return s.ClientComponent + "." + s.ClientInterface }

// Server returns "<component>.<interface>" of the provided side.
func (s ConnectionSpec) Server() string { return s.ServerComponent + "." + s.ServerInterface }

// Validate checks that every name is set.
func (s ConnectionSpec) Validate() error {
	for _, name := range []string{s.ClientComponent, s.ClientInterface, s.ServerComponent, s.ServerInterface} {
		if name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: incomplete connection %s", errors.ErrInvalidData, s),
				"ConnectionSpec", "Validate", "name check")
		}
	}
	return nil
}

// Connection is the manager's record of one connection. It is a snapshot;
// later state changes are not reflected in copies already returned.
type Connection struct {
	ID        string                `json:"id"`
	Spec      ConnectionSpec        `json:"spec"`
	State     ConnectionState       `json:"state"`
	Remote    bool                  `json:"remote"`
	Report    *component.BindReport `json:"report,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// ConnectionListener observes connection state changes.
type ConnectionListener func(Connection)
