package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/pkg/security"
)

// Config is the complete description of one MTS process: its identity, the
// manager settings, transport, the components it hosts and how they connect.
type Config struct {
	Version     string             `json:"version,omitempty"`
	Process     ProcessConfig      `json:"process"`
	Manager     ManagerConfig      `json:"manager"`
	NATS        NATSConfig         `json:"nats"`
	HTTP        HTTPConfig         `json:"http"`
	Components  []ComponentConfig  `json:"components,omitempty"`
	Connections []ConnectionConfig `json:"connections,omitempty"`
	Proxies     ProxiesConfig      `json:"proxies"`
}

// ProcessConfig identifies the process on the network.
type ProcessConfig struct {
	Name string `json:"name"`
}

// ManagerConfig tunes the local component manager.
type ManagerConfig struct {
	MailboxSize     int      `json:"mailbox_size"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	CreateTimeout   Duration `json:"create_timeout"`
	StartTimeout    Duration `json:"start_timeout"`
	ConnectRetries  int      `json:"connect_retries"`
}

// NATSConfig defines the NATS connection used by proxies, log mirroring and
// the collector stream.
type NATSConfig struct {
	Enabled       bool     `json:"enabled"`
	URLs          []string `json:"urls,omitempty"`
	SubjectPrefix string   `json:"subject_prefix"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait"`
	PingInterval  Duration `json:"ping_interval,omitempty"`
	Compression   bool     `json:"compression,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`

	TLS security.ClientTLSConfig `json:"tls"`
}

// URL returns the first configured server.
func (n NATSConfig) URL() string {
	if len(n.URLs) == 0 {
		return ""
	}
	return n.URLs[0]
}

// HTTPConfig configures the inspection gateway. An empty address disables it.
type HTTPConfig struct {
	Addr string                   `json:"addr"`
	TLS  security.ServerTLSConfig `json:"tls"`
}

// ComponentConfig is one component instance created through the class register.
type ComponentConfig struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Disabled bool            `json:"disabled,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// ConnectionConfig binds a required interface to a provided interface.
type ConnectionConfig struct {
	ClientComponent string `json:"client_component"`
	ClientInterface string `json:"client_interface"`
	ServerComponent string `json:"server_component"`
	ServerInterface string `json:"server_interface"`
}

func (c ConnectionConfig) String() string {
	return c.ClientComponent + "." + c.ClientInterface + " -> " + c.ServerComponent + "." + c.ServerInterface
}

// ProxiesConfig lists the provided interfaces served to other processes and
// the remote interfaces stood in for locally.
type ProxiesConfig struct {
	Exports []ExportConfig `json:"exports,omitempty"`
	Imports []ImportConfig `json:"imports,omitempty"`
}

// ExportConfig serves a local provided interface over NATS.
type ExportConfig struct {
	Component string `json:"component"`
	Interface string `json:"interface"`
}

// ImportConfig creates a local proxy component for a remote provided interface.
// Class selects the stub profile; Local overrides the "<component>.proxy" name.
type ImportConfig struct {
	Component string `json:"component"`
	Interface string `json:"interface"`
	Class     string `json:"class"`
	Local     string `json:"local,omitempty"`
}

// LocalName is the name of the proxy component in this process.
func (i ImportConfig) LocalName() string {
	if i.Local != "" {
		return i.Local
	}
	return i.Component + ".proxy"
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", errors.ErrInvalidConfig, text)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration every file is layered on.
func Default() *Config {
	return &Config{
		Process: ProcessConfig{Name: "mts"},
		Manager: ManagerConfig{
			MailboxSize:     64,
			ShutdownTimeout: Duration(10 * time.Second),
			CreateTimeout:   Duration(5 * time.Second),
			StartTimeout:    Duration(5 * time.Second),
			ConnectRetries:  3,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			SubjectPrefix: "mts",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Validate runs the semantic checks the schema cannot express: unique names,
// connections and exports that refer to declared components, and imports
// that need NATS.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...))
	}

	if err := component.ValidateName(c.Process.Name); err != nil {
		invalid("process.name: %v", err)
	}
	if c.Manager.MailboxSize < 1 {
		invalid("manager.mailbox_size must be positive, got %d", c.Manager.MailboxSize)
	}
	for field, d := range map[string]Duration{
		"manager.shutdown_timeout": c.Manager.ShutdownTimeout,
		"manager.create_timeout":   c.Manager.CreateTimeout,
		"manager.start_timeout":    c.Manager.StartTimeout,
	} {
		if d <= 0 {
			invalid("%s must be positive, got %s", field, d)
		}
	}
	if c.Manager.ConnectRetries < 0 {
		invalid("manager.connect_retries cannot be negative")
	}
	if c.NATS.Enabled {
		if c.NATS.URL() == "" {
			invalid("nats.urls is required when nats is enabled")
		}
		if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " \t*>") {
			invalid("nats.subject_prefix %q is not a valid subject", c.NATS.SubjectPrefix)
		}
		for _, p := range c.NATS.TLS.Problems() {
			invalid("nats.%s", p)
		}
	}
	for _, p := range c.HTTP.TLS.Problems() {
		invalid("http.%s", p)
	}

	known := make(map[string]bool)
	for i, comp := range c.Components {
		if err := component.ValidateName(comp.Name); err != nil {
			invalid("components[%d].name: %v", i, err)
			continue
		}
		if comp.Type == "" {
			invalid("component %s: type is required", comp.Name)
		}
		if known[comp.Name] {
			invalid("component %s declared twice", comp.Name)
		}
		if !comp.Disabled {
			known[comp.Name] = true
		}
	}
	for i, imp := range c.Proxies.Imports {
		if imp.Component == "" || imp.Interface == "" || imp.Class == "" {
			invalid("proxies.imports[%d]: component, interface and class are required", i)
			continue
		}
		if !c.NATS.Enabled {
			invalid("proxies.imports[%d]: %s.%s needs nats.enabled", i, imp.Component, imp.Interface)
		}
		if known[imp.LocalName()] {
			invalid("proxy %s clashes with a component name", imp.LocalName())
		}
		known[imp.LocalName()] = true
	}
	for i, exp := range c.Proxies.Exports {
		if !known[exp.Component] || exp.Interface == "" {
			invalid("proxies.exports[%d]: unknown component %q or empty interface", i, exp.Component)
		}
		if !c.NATS.Enabled {
			invalid("proxies.exports[%d]: %s.%s needs nats.enabled", i, exp.Component, exp.Interface)
		}
	}

	clients := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.ClientInterface == "" || conn.ServerInterface == "" {
			invalid("connections[%d]: interface names are required", i)
		}
		if !known[conn.ClientComponent] {
			invalid("connections[%d]: unknown client component %q", i, conn.ClientComponent)
		}
		if !known[conn.ServerComponent] {
			invalid("connections[%d]: unknown server component %q", i, conn.ServerComponent)
		}
		key := conn.ClientComponent + "." + conn.ClientInterface
		if clients[key] {
			invalid("connections[%d]: required interface %s is connected twice", i, key)
		}
		clients[key] = true
	}

	if err := errors.Join(errs...); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "semantic checks")
	}
	return nil
}

// Enabled returns the components that are not disabled, in declaration order.
func (c *Config) Enabled() []ComponentConfig {
	out := make([]ComponentConfig, 0, len(c.Components))
	for _, comp := range c.Components {
		if !comp.Disabled {
			out = append(out, comp)
		}
	}
	return out
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns the configuration as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
