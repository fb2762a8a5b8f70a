package testutil

import (
	"encoding/json"

	"github.com/c360/mtscore/config"
)

// ConfigBuilder assembles process configurations programmatically.
type ConfigBuilder struct {
	cfg *config.Config
	err error
}

// NewConfigBuilder starts from the defaults with the HTTP gateway disabled.
func NewConfigBuilder(process string) *ConfigBuilder {
	cfg := config.Default()
	cfg.Process.Name = process
	cfg.HTTP.Addr = ""
	return &ConfigBuilder{cfg: cfg}
}

// AddComponent declares a component of class typ with settings encoded as JSON.
func (b *ConfigBuilder) AddComponent(name, typ string, settings map[string]any) *ConfigBuilder {
	cc := config.ComponentConfig{Name: name, Type: typ}
	if settings != nil {
		raw, err := json.Marshal(settings)
		if err != nil && b.err == nil {
			b.err = err
		}
		cc.Config = raw
	}
	b.cfg.Components = append(b.cfg.Components, cc)
	return b
}

// AddSine declares a sine generator.
func (b *ConfigBuilder) AddSine(name string, settings map[string]any) *ConfigBuilder {
	return b.AddComponent(name, "sine", settings)
}

// AddCollector declares a collector writing to path.
func (b *ConfigBuilder) AddCollector(name, path string) *ConfigBuilder {
	return b.AddComponent(name, "collector", map[string]any{"path": path, "period": "5ms"})
}

// Connect declares a connection.
func (b *ConfigBuilder) Connect(client, clientIface, server, serverIface string) *ConfigBuilder {
	b.cfg.Connections = append(b.cfg.Connections, config.ConnectionConfig{
		ClientComponent: client, ClientInterface: clientIface,
		ServerComponent: server, ServerInterface: serverIface,
	})
	return b
}

// Export serves component.iface to other processes.
func (b *ConfigBuilder) Export(component, iface string) *ConfigBuilder {
	b.cfg.NATS.Enabled = true
	b.cfg.Proxies.Exports = append(b.cfg.Proxies.Exports, config.ExportConfig{Component: component, Interface: iface})
	return b
}

// Import declares a proxy for the iface of the remote component of class.
func (b *ConfigBuilder) Import(component, iface, class string) *ConfigBuilder {
	b.cfg.NATS.Enabled = true
	b.cfg.Proxies.Imports = append(b.cfg.Proxies.Imports,
		config.ImportConfig{Component: component, Interface: iface, Class: class})
	return b
}

// HTTP enables the gateway on addr.
func (b *ConfigBuilder) HTTP(addr string) *ConfigBuilder {
	b.cfg.HTTP.Addr = addr
	return b
}

// Build returns the configuration, or the first encoding error.
func (b *ConfigBuilder) Build() (*config.Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.cfg.Clone(), nil
}
