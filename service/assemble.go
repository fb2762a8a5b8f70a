package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/componentregistry"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/manager"
	"github.com/c360/mtscore/natsclient"
	"github.com/c360/mtscore/pkg/retry"
	"github.com/c360/mtscore/pkg/tlsutil"
	"github.com/c360/mtscore/proxy"
)

// dialNATS connects to the configured servers unless a client or transport
// was supplied. Either way the client's health feeds the "nats" entry of the
// monitor.
func (p *Process) dialNATS(ctx context.Context) error {
	if p.nats != nil {
		p.nats.OnHealthChange(p.observeNATS)
		p.observeNATS(p.nats.IsHealthy())
		return nil
	}
	nc := p.cfg.NATS
	if !nc.Enabled || p.transport != nil {
		return nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(p.cfg.Process.Name),
		natsclient.WithLogger(p.logger),
		natsclient.WithMetrics(p.registry),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait.D()),
		natsclient.WithDrainTimeout(p.cfg.Manager.ShutdownTimeout.D()),
		natsclient.WithCompression(nc.Compression),
		natsclient.WithHealthChangeCallback(p.observeNATS),
		natsclient.WithDisconnectCallback(func(err error) {
			p.logger.Warn("NATS disconnected", "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			p.logger.Info("NATS reconnected")
		}),
	}
	if nc.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(nc.PingInterval.D()))
	}
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(nc.TLS)
	if err != nil {
		return errors.Wrap(err, "Process", "dialNATS", "tls")
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}

	client, err := natsclient.NewClient(strings.Join(nc.URLs, ","), opts...)
	if err != nil {
		return errors.Wrap(err, "Process", "dialNATS", "create client")
	}
	if err := client.Connect(ctx); err != nil {
		return errors.WrapTransient(err, "Process", "dialNATS", "connect "+nc.URL())
	}
	p.nats, p.ownsNATS = client, true
	return nil
}

func (p *Process) componentDeps() component.Dependencies {
	return component.Dependencies{
		NATSClient:      p.nats,
		MetricsRegistry: p.registry,
		Logger:          p.logger,
		Process:         p.cfg.Process.Name,
		MailboxSize:     p.cfg.Manager.MailboxSize,
	}
}

// buildComponents creates every enabled component through its class and
// configures it from its raw settings.
func (p *Process) buildComponents() error {
	deps := p.componentDeps()
	for _, cc := range p.cfg.Components {
		if cc.Disabled {
			p.logger.Debug("Component disabled", "component", cc.Name, "type", cc.Type)
			continue
		}
		obj, err := p.classes.Create(cc.Type)
		if err != nil {
			return errors.Wrap(err, "Process", "buildComponents", cc.Name)
		}
		c, ok := obj.(component.Configurable)
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("%w: class %s does not build configurable components", errors.ErrTypeMismatch, cc.Type),
				"Process", "buildComponents", cc.Name)
		}

		compDeps := deps
		if svc := p.classes.FindClassServices(cc.Type); svc != nil {
			compDeps.Logger = svc.Logger(p.logger)
		}
		if err := c.Configure(cc.Name, cc.Config, compDeps); err != nil {
			return errors.Wrap(err, "Process", "buildComponents", cc.Name)
		}
		if err := p.mgr.AddComponent(c); err != nil {
			return err
		}
		p.logger.Info("Component created", "component", cc.Name, "type", cc.Type)
	}
	return nil
}

func (p *Process) proxyTransport() proxy.Transport {
	if p.transport == nil && p.nats != nil {
		p.transport = proxy.NATS(p.nats)
	}
	return p.transport
}

// buildImports adds a proxy component for every imported remote interface.
func (p *Process) buildImports(ctx context.Context) error {
	if len(p.cfg.Proxies.Imports) == 0 {
		return nil
	}
	t := p.proxyTransport()
	if t == nil {
		return errors.WrapInvalid(errors.ErrNoConnection, "Process", "buildImports", "imports need NATS")
	}
	deps := p.componentDeps()
	for _, imp := range p.cfg.Proxies.Imports {
		profile, err := componentregistry.Profile(imp.Class, imp.Interface)
		if err != nil {
			return err
		}
		client, err := proxy.NewClient(t, p.cfg.NATS.SubjectPrefix, imp.Component, imp.Interface,
			proxy.WithClientLogger(p.logger),
			proxy.WithLocalName(imp.LocalName()),
			proxy.WithComponentOptions(deps.Options()...))
		if err != nil {
			return errors.Wrap(err, "Process", "buildImports", imp.LocalName())
		}
		if err := profile(ctx, client); err != nil {
			_ = client.Close(ctx)
			return errors.Wrap(err, "Process", "buildImports", imp.LocalName())
		}
		if err := p.mgr.AddComponent(client.Component(), manager.AsRemote()); err != nil {
			_ = client.Close(ctx)
			return err
		}
		p.imports = append(p.imports, client)
		p.logger.Info("Remote interface imported", "local", imp.LocalName(), "remote", client.Remote())
	}
	return nil
}

func (p *Process) connectRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  p.cfg.Manager.ConnectRetries + 1,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		AddJitter:    true,
	}
}

// buildConnections establishes every declared connection. All of them are
// attempted; the failures are joined.
func (p *Process) buildConnections(ctx context.Context) error {
	var errs []error
	for _, cc := range p.cfg.Connections {
		spec := manager.ConnectionSpec{
			ClientComponent: cc.ClientComponent,
			ClientInterface: cc.ClientInterface,
			ServerComponent: cc.ServerComponent,
			ServerInterface: cc.ServerInterface,
		}
		if _, err := p.mgr.ConnectWithRetry(ctx, spec, p.connectRetry()); err != nil {
			p.logger.Error("Connection failed", "connection", cc.String(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "Process", "buildConnections",
			fmt.Sprintf("%d of %d connections failed", len(errs), len(p.cfg.Connections)))
	}
	return nil
}

// buildExports registers the exported interfaces with a proxy server.
func (p *Process) buildExports(ctx context.Context) error {
	if len(p.cfg.Proxies.Exports) == 0 {
		return nil
	}
	t := p.proxyTransport()
	if t == nil {
		return errors.WrapInvalid(errors.ErrNoConnection, "Process", "buildExports", "exports need NATS")
	}
	srv, err := proxy.NewServer(t, p.cfg.NATS.SubjectPrefix,
		proxy.WithServerLogger(p.logger),
		proxy.WithServerMetrics(p.registry))
	if err != nil {
		return err
	}
	p.exporter = srv
	for _, exp := range p.cfg.Proxies.Exports {
		c, err := p.mgr.Component(exp.Component)
		if err != nil {
			return errors.Wrap(err, "Process", "buildExports", exp.Component)
		}
		pi, err := c.Base().InterfaceProvided(exp.Interface)
		if err != nil {
			return errors.Wrap(err, "Process", "buildExports", exp.Component+"."+exp.Interface)
		}
		if _, err := srv.Export(ctx, pi); err != nil {
			return err
		}
		p.logger.Info("Interface exported", "component", exp.Component, "interface", exp.Interface)
	}
	return nil
}
