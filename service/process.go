package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/mtscore/classregister"
	"github.com/c360/mtscore/componentregistry"
	"github.com/c360/mtscore/config"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/gateway"
	"github.com/c360/mtscore/health"
	"github.com/c360/mtscore/manager"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/natsclient"
	"github.com/c360/mtscore/pkg/tlsutil"
	"github.com/c360/mtscore/proxy"
)

// Status represents the current status of a process
type Status int32

// Possible process statuses
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Dependencies are the collaborators a Process is built with. Every field is
// optional.
type Dependencies struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	// Classes creates components by type. Nil means a registry holding the
	// built-in classes.
	Classes *classregister.Registry
	// NATSClient is used instead of dialing nats.urls. The process installs
	// its health callback on it and leaves it open on Stop.
	NATSClient *natsclient.Client
	// Transport carries proxies instead of NATSClient.
	Transport proxy.Transport
}

// Process is one running mts process: the manager, its components, proxies,
// connections and the inspection gateway, all assembled from a config.Config.
type Process struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	classes  *classregister.Registry

	nats      *natsclient.Client
	ownsNATS  bool
	transport proxy.Transport

	mgr      *manager.Manager
	monitor  *health.Monitor
	gateway  *gateway.Server
	exporter *proxy.Server
	imports  []*proxy.Client

	status    atomic.Int32
	startTime atomic.Value // time.Time
	mu        sync.Mutex
}

// Build assembles a process from cfg. Nothing is started: components are
// Constructed and connected, exports are registered but not served. On
// failure everything built so far is torn down.
func Build(ctx context.Context, cfg *config.Config, deps Dependencies) (*Process, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Process", "Build", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Process{
		cfg:       cfg.Clone(),
		logger:    deps.Logger,
		registry:  deps.MetricsRegistry,
		classes:   deps.Classes,
		nats:      deps.NATSClient,
		transport: deps.Transport,
		monitor:   health.NewMonitor(),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("process", p.cfg.Process.Name)
	if p.registry == nil {
		p.registry = metric.NewMetricsRegistry()
	}
	if p.classes == nil {
		p.classes = classregister.New(p.logger)
		if err := componentregistry.Register(p.classes); err != nil {
			return nil, errors.Wrap(err, "Process", "Build", "register built-in classes")
		}
	}
	p.startTime.Store(time.Time{})

	if err := p.assemble(ctx); err != nil {
		if stopErr := p.teardown(p.cfg.Manager.ShutdownTimeout.D()); stopErr != nil {
			p.logger.Warn("Teardown after failed build incomplete", "error", stopErr)
		}
		return nil, err
	}
	p.logger.Info("Process built",
		"components", len(p.mgr.ComponentNames()),
		"connections", len(p.mgr.Connections()),
		"imports", len(p.imports),
		"exports", len(p.cfg.Proxies.Exports))
	return p, nil
}

func (p *Process) assemble(ctx context.Context) error {
	p.mgr = manager.New(manager.WithLogger(p.logger), manager.WithMetrics(p.registry))
	p.mgr.OnStateChange(p.monitor.ObserveState)
	p.mgr.OnConnection(p.observeConnection)

	if err := p.dialNATS(ctx); err != nil {
		return err
	}
	if err := p.buildComponents(); err != nil {
		return err
	}
	if err := p.buildImports(ctx); err != nil {
		return err
	}
	if err := p.buildConnections(ctx); err != nil {
		return err
	}
	if err := p.buildExports(ctx); err != nil {
		return err
	}
	if p.cfg.HTTP.Addr != "" {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(p.cfg.HTTP.TLS)
		if err != nil {
			return errors.Wrap(err, "Process", "Build", "gateway tls")
		}
		gw, err := gateway.New(p.mgr,
			gateway.WithTLS(tlsConfig),
			gateway.WithLogger(p.logger),
			gateway.WithMonitor(p.monitor),
			gateway.WithMetrics(p.registry),
			gateway.WithProcessName(p.cfg.Process.Name))
		if err != nil {
			return errors.Wrap(err, "Process", "Build", "create gateway")
		}
		p.gateway = gw
	}
	return nil
}

func (p *Process) observeConnection(conn manager.Connection) {
	if conn.State == manager.BindFailed {
		p.monitor.RecordError(conn.Spec.ClientComponent, errors.New(conn.Error))
	}
}

// Start creates and starts every component, then serves exports and the
// gateway. Calling Start on a running process is a no-op.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.Status() {
	case StatusRunning, StatusStarting:
		return nil
	case StatusStopping:
		return errors.WrapInvalid(errors.ErrInvalidTransition, "Process", "Start", "process is stopping")
	}
	p.status.Store(int32(StatusStarting))

	if err := p.start(ctx); err != nil {
		p.status.Store(int32(StatusStopped))
		return err
	}
	p.startTime.Store(time.Now())
	p.status.Store(int32(StatusRunning))
	p.logger.Info("Process running")
	return nil
}

func (p *Process) start(ctx context.Context) error {
	createCtx, cancel := context.WithTimeout(ctx, p.cfg.Manager.CreateTimeout.D())
	defer cancel()
	if err := p.mgr.CreateAll(createCtx); err != nil {
		return errors.Wrap(err, "Process", "Start", "create components")
	}

	startCtx, cancel := context.WithTimeout(ctx, p.cfg.Manager.StartTimeout.D())
	defer cancel()
	if err := p.mgr.StartAll(startCtx); err != nil {
		return errors.Wrap(err, "Process", "Start", "start components")
	}

	if p.exporter != nil {
		if err := p.exporter.Start(ctx); err != nil {
			return err
		}
	}
	for _, c := range p.imports {
		if err := c.Verify(ctx); err != nil {
			p.logger.Warn("Remote interface does not match its proxy", "remote", c.Remote(), "error", err)
			p.monitor.RecordError(c.Component().Name(), err)
		}
	}
	if p.gateway != nil {
		if err := p.gateway.Start(ctx, p.cfg.HTTP.Addr); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the process, blocks until ctx is done, then stops within the
// configured shutdown timeout.
func (p *Process) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return p.Stop(p.cfg.Manager.ShutdownTimeout.D())
}

// Stop kills every component and releases the process resources.
func (p *Process) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Status() == StatusStopping {
		return nil
	}
	p.status.Store(int32(StatusStopping))
	err := p.teardown(timeout)
	p.status.Store(int32(StatusStopped))
	p.logger.Info("Process stopped")
	return err
}

// teardown stops the outer surfaces first so no call arrives at a dying
// component.
func (p *Process) teardown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var errs []error
	if p.gateway != nil {
		errs = append(errs, p.gateway.Stop(timeout))
	}
	if p.exporter != nil {
		errs = append(errs, p.exporter.Close(timeout))
		p.exporter = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, c := range p.imports {
		errs = append(errs, c.Close(ctx))
	}
	p.imports = nil

	if p.mgr != nil {
		errs = append(errs, p.mgr.Shutdown(timeout))
	}
	if p.ownsNATS && p.nats != nil {
		errs = append(errs, p.nats.Close(ctx))
		p.nats = nil
	}
	return errors.Join(errs...)
}

// Status returns the process status.
func (p *Process) Status() Status { return Status(p.status.Load()) }

// Uptime returns how long the process has been running, zero when stopped.
func (p *Process) Uptime() time.Duration {
	if p.Status() != StatusRunning {
		return 0
	}
	return time.Since(p.startTime.Load().(time.Time))
}

func (p *Process) observeNATS(healthy bool) {
	if healthy {
		p.monitor.Update("nats", health.NewHealthy("nats", "NATS connected"))
		return
	}
	p.monitor.Update("nats", health.NewDegraded("nats", "NATS disconnected"))
}

// Health aggregates the health of every component.
func (p *Process) Health() health.Status {
	status := p.monitor.AggregateHealth(p.cfg.Process.Name)
	if p.nats != nil && !p.nats.IsHealthy() {
		if _, tracked := p.monitor.Get("nats"); !tracked {
			status = status.WithSubStatus(health.NewDegraded("nats", "NATS disconnected"))
		}
		if !status.IsUnhealthy() {
			status.Healthy = false
			status.Status = health.LevelDegraded
			status.Message = "NATS disconnected"
		}
	}
	return status
}

// Config returns a copy of the configuration the process was built from.
func (p *Process) Config() *config.Config { return p.cfg.Clone() }

// Manager returns the component manager.
func (p *Process) Manager() *manager.Manager { return p.mgr }

// Monitor returns the health monitor fed by the manager hooks.
func (p *Process) Monitor() *health.Monitor { return p.monitor }

// Gateway returns the inspection gateway, nil when http.addr is empty.
func (p *Process) Gateway() *gateway.Server { return p.gateway }

// MetricsRegistry returns the registry every part of the process records in.
func (p *Process) MetricsRegistry() *metric.MetricsRegistry { return p.registry }
