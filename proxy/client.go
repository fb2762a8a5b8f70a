package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

// Client stands in locally for a provided interface exported by a remote Server.
type Client struct {
	transport Transport
	prefix    string
	server    string
	iface     string
	logger    *slog.Logger

	comp *component.Component
	pi   *component.ProvidedInterface

	mu   sync.Mutex
	subs []Subscription
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger    *slog.Logger
	compOpts  []component.Option
	localName string
}

// WithClientLogger sets the logger of the client and its proxy component.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = logger }
}

// WithComponentOptions passes options to the local proxy component.
func WithComponentOptions(opts ...component.Option) ClientOption {
	return func(c *clientConfig) { c.compOpts = append(c.compOpts, opts...) }
}

// WithLocalName overrides the local component name, "<component>.proxy" by default.
func WithLocalName(name string) ClientOption {
	return func(c *clientConfig) { c.localName = name }
}

// NewClient creates the local proxy for serverInterface of serverComponent.
// Declare its commands and events with the Remote* functions before
// connecting required interfaces to Interface().
func NewClient(t Transport, prefix, serverComponent, serverInterface string, opts ...ClientOption) (*Client, error) {
	if t == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "nil transport")
	}
	cfg := clientConfig{logger: slog.Default(), localName: serverComponent + ".proxy"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}

	compOpts := append([]component.Option{component.WithLogger(cfg.logger)}, cfg.compOpts...)
	comp, err := component.NewComponent(cfg.localName, compOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "create proxy component")
	}
	pi, err := comp.AddInterfaceProvided(serverInterface)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "add proxy interface")
	}

	return &Client{
		transport: t,
		prefix:    prefix,
		server:    serverComponent,
		iface:     serverInterface,
		logger:    cfg.logger.With("proxy", "client", "remote", serverComponent+"."+serverInterface),
		comp:      comp,
		pi:        pi,
	}, nil
}

// Component returns the local proxy component.
func (c *Client) Component() *component.Component { return c.comp }

// Interface returns the provided interface local clients connect to.
func (c *Client) Interface() *component.ProvidedInterface { return c.pi }

// Remote returns "<component>.<interface>" of the remote server.
func (c *Client) Remote() string { return c.server + "." + c.iface }

func (c *Client) call(ctx context.Context, name string, arg any, hasArg bool, out any) error {
	req := request{}
	if hasArg {
		raw, err := json.Marshal(arg)
		if err != nil {
			return errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "Client", "call", "encode argument")
		}
		req.Arg = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "Client", "call", "encode request")
	}

	replyData, err := c.transport.Request(ctx, CommandSubject(c.prefix, c.server, c.iface, name), data)
	if err != nil {
		return errors.Wrap(err, "Client", "call", name)
	}
	return decodeReply(name, replyData, out)
}

func decodeReply(method string, data []byte, out any) error {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "Client", method, "decode reply")
	}
	if resp.Error != "" || resp.Code != "" {
		return remoteError(method, resp.Code, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%w: result of %s: %v", errors.ErrTypeMismatch, method, err), "Client", method, "decode result")
		}
	}
	return nil
}

// Describe fetches the description of the remote interface.
func (c *Client) Describe(ctx context.Context) (component.InterfaceInfo, error) {
	var info component.InterfaceInfo
	data, err := c.transport.Request(ctx, DescribeSubject(c.prefix, c.server, c.iface), nil)
	if err != nil {
		return info, errors.Wrap(err, "Client", "Describe", c.Remote())
	}
	err = decodeReply("Describe", data, &info)
	return info, err
}

// Verify checks every declared stub against the remote description: the
// remote must define each command and event with the same shape and types.
func (c *Client) Verify(ctx context.Context) error {
	remote, err := c.Describe(ctx)
	if err != nil {
		return err
	}
	local := c.pi.Describe()

	remoteCmds := make(map[string]command.Info, len(remote.Commands))
	for _, ci := range remote.Commands {
		remoteCmds[ci.Name] = ci
	}
	remoteEvents := make(map[string]component.EventInfo, len(remote.Events))
	for _, ei := range remote.Events {
		remoteEvents[ei.Name] = ei
	}

	var errs []error
	for _, ci := range local.Commands {
		rc, ok := remoteCmds[ci.Name]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%w: command %s on %s", errors.ErrNotFound, ci.Name, c.Remote()))
		case rc.Shape != ci.Shape || rc.Argument != ci.Argument || rc.Result != ci.Result:
			errs = append(errs, fmt.Errorf("%w: command %s is %s(%s)->(%s) remotely, %s(%s)->(%s) locally",
				errors.ErrTypeMismatch, ci.Name, rc.Shape, rc.Argument, rc.Result, ci.Shape, ci.Argument, ci.Result))
		}
	}
	for _, ei := range local.Events {
		re, ok := remoteEvents[ei.Name]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%w: event %s on %s", errors.ErrNotFound, ei.Name, c.Remote()))
		case re.Shape != ei.Shape || re.Argument != ei.Argument:
			errs = append(errs, fmt.Errorf("%w: event %s is %s(%s) remotely, %s(%s) locally",
				errors.ErrTypeMismatch, ei.Name, re.Shape, re.Argument, ei.Shape, ei.Argument))
		}
	}
	if len(errs) > 0 {
		return errors.WrapInvalid(errors.Join(errs...), "Client", "Verify", c.Remote())
	}
	return nil
}

func (c *Client) track(sub Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// Close stops the event subscriptions and kills the proxy component.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	if st := c.comp.State(); st != component.StateFinishing && st != component.StateFinished {
		if err := c.comp.Kill(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
