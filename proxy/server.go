package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/pkg/worker"
)

// Server exports provided interfaces to remote clients.
type Server struct {
	transport   Transport
	prefix      string
	queue       string
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	workers     int
	callTimeout time.Duration

	pool *worker.Pool[job]

	mu      sync.Mutex
	exports map[string]*Export
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerMetrics registers the request pool metrics.
func WithServerMetrics(registry *metric.MetricsRegistry) ServerOption {
	return func(s *Server) { s.registry = registry }
}

// WithWorkers sets how many remote calls execute concurrently.
func WithWorkers(n int) ServerOption {
	return func(s *Server) { s.workers = n }
}

// WithQueueGroup load-balances requests across servers sharing the group.
func WithQueueGroup(queue string) ServerOption {
	return func(s *Server) { s.queue = queue }
}

// WithCallTimeout bounds how long a call may wait for the owning component.
func WithCallTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

type job struct {
	cmd     command.Command
	subject string
	data    []byte
	respond func([]byte) error
}

// NewServer creates a server publishing under prefix.
func NewServer(t Transport, prefix string, opts ...ServerOption) (*Server, error) {
	if t == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "nil transport")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Server{
		transport:   t,
		prefix:      prefix,
		logger:      slog.Default(),
		workers:     4,
		callTimeout: 5 * time.Second,
		exports:     make(map[string]*Export),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("proxy", "server", "prefix", prefix)

	pool, err := worker.NewPool("proxy."+prefix, s.workers, s.process,
		worker.WithMetricsRegistry[job](s.registry))
	if err != nil {
		return nil, errors.Wrap(err, "Server", "NewServer", "create worker pool")
	}
	s.pool = pool
	return s, nil
}

// Start launches the workers executing remote calls.
func (s *Server) Start(ctx context.Context) error {
	if err := s.pool.Start(context.WithoutCancel(ctx)); err != nil {
		return errors.Wrap(err, "Server", "Start", "start worker pool")
	}
	return nil
}

// Export is one provided interface served over the transport.
type Export struct {
	server    *Server
	pi        *component.ProvidedInterface
	view      *component.EndUserInterface
	client    string
	subs      []Subscription
	listeners []func()
	once      sync.Once
}

// Key returns "<component>.<interface>".
func (e *Export) Key() string { return e.pi.Owner() + "." + e.pi.Name() }

// Client returns the end-user name the export holds on the interface.
func (e *Export) Client() string { return e.client }

// Export serves every command and event of pi. The server holds one end-user
// interface on pi for all remote callers.
func (s *Server) Export(ctx context.Context, pi *component.ProvidedInterface) (*Export, error) {
	key := pi.Owner() + "." + pi.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exports[key]; ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s already exported", errors.ErrDuplicateName, key), "Server", "Export", key)
	}

	client := "nats-" + uuid.NewString()[:8]
	view, err := pi.GetEndUserInterface(client)
	if err != nil {
		return nil, errors.Wrap(err, "Server", "Export", "get end-user interface")
	}
	exp := &Export{server: s, pi: pi, view: view, client: client}

	if err := s.serveCommands(ctx, exp); err != nil {
		exp.release()
		return nil, err
	}
	if err := s.forwardEvents(exp); err != nil {
		exp.release()
		return nil, err
	}

	s.exports[key] = exp
	s.logger.Info("Exported interface", "interface", key,
		"commands", len(pi.CommandNames()), "events", len(pi.EventNames()))
	return exp, nil
}

func (s *Server) serveCommands(ctx context.Context, exp *Export) error {
	owner, iface := exp.pi.Owner(), exp.pi.Name()

	for _, name := range exp.pi.CommandNames() {
		cmd, err := exp.view.Command(name)
		if err != nil {
			return errors.Wrap(err, "Server", "Export", "command "+name)
		}
		subj := CommandSubject(s.prefix, owner, iface, name)
		sub, err := s.transport.Serve(ctx, subj, s.queue, func(_ context.Context, data []byte, respond func([]byte) error) {
			j := job{cmd: cmd, subject: subj, data: append([]byte(nil), data...), respond: respond}
			if err := s.pool.Submit(j); err != nil {
				s.reply(j, nil, err)
			}
		})
		if err != nil {
			return errors.Wrap(err, "Server", "Export", "serve "+subj)
		}
		exp.subs = append(exp.subs, sub)
	}

	subj := DescribeSubject(s.prefix, owner, iface)
	sub, err := s.transport.Serve(ctx, subj, s.queue, func(_ context.Context, _ []byte, respond func([]byte) error) {
		raw, err := json.Marshal(exp.pi.Describe())
		if err := respond(encodeResponse(raw, err)); err != nil {
			s.logger.Warn("Describe reply failed", "subject", subj, "error", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "Server", "Export", "serve "+subj)
	}
	exp.subs = append(exp.subs, sub)
	return nil
}

func (s *Server) forwardEvents(exp *Export) error {
	for _, name := range exp.pi.EventNames() {
		ev, err := exp.view.Event(name)
		if err != nil {
			return errors.Wrap(err, "Server", "Export", "event "+name)
		}
		subj := EventSubject(s.prefix, exp.pi.Owner(), exp.pi.Name(), name)
		remove := ev.AddListener(func(ctx context.Context, payload any) {
			msg := eventMessage{Time: time.Now()}
			if payload != nil {
				raw, err := json.Marshal(payload)
				if err != nil {
					s.logger.Warn("Event payload not encodable", "subject", subj, "error", err)
					return
				}
				msg.Payload = raw
			}
			data, _ := json.Marshal(msg)
			if err := s.transport.Publish(ctx, subj, data); err != nil {
				s.logger.Debug("Event publish failed", "subject", subj, "error", err)
			}
		})
		exp.listeners = append(exp.listeners, remove)
	}
	return nil
}

func (s *Server) process(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	var req request
	if len(j.data) > 0 {
		if err := json.Unmarshal(j.data, &req); err != nil {
			err = errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "Server", "process", "decode request")
			s.reply(j, nil, err)
			return err
		}
	}

	arg, err := decodeArg(j.cmd, req.Arg)
	if err != nil {
		s.reply(j, nil, err)
		return err
	}

	result, err := j.cmd.Invoke(ctx, arg)
	if err != nil {
		s.reply(j, nil, err)
		return err
	}

	var raw json.RawMessage
	if j.cmd.Shape().HasResult() {
		if raw, err = json.Marshal(result); err != nil {
			err = errors.Wrap(err, "Server", "process", "encode result")
			s.reply(j, nil, err)
			return err
		}
	}
	s.reply(j, raw, nil)
	return nil
}

func decodeArg(cmd command.Command, raw json.RawMessage) (any, error) {
	if !cmd.Shape().HasArgument() {
		return nil, nil
	}
	ptr := reflect.New(cmd.ArgumentType())
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s expects %v: %v", errors.ErrTypeMismatch, cmd.Name(), cmd.ArgumentType(), err),
				"Server", "process", "decode argument")
		}
	}
	return ptr.Elem().Interface(), nil
}

func (s *Server) reply(j job, result json.RawMessage, err error) {
	if err != nil {
		s.logger.Debug("Remote call failed", "subject", j.subject, "error", err)
	}
	if rErr := j.respond(encodeResponse(result, err)); rErr != nil {
		s.logger.Warn("Reply failed", "subject", j.subject, "error", rErr)
	}
}

// Exports returns the keys of the exported interfaces.
func (s *Server) Exports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.exports))
	for key := range s.exports {
		keys = append(keys, key)
	}
	return keys
}

// Unexport stops serving the interface exported under key.
func (s *Server) Unexport(key string) error {
	s.mu.Lock()
	exp, ok := s.exports[key]
	delete(s.exports, key)
	s.mu.Unlock()

	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: export %s", errors.ErrNotFound, key), "Server", "Unexport", key)
	}
	return exp.release()
}

// Close unexports everything and waits up to timeout for running calls.
func (s *Server) Close(timeout time.Duration) error {
	s.mu.Lock()
	exports := s.exports
	s.exports = make(map[string]*Export)
	s.mu.Unlock()

	var errs []error
	for _, exp := range exports {
		if err := exp.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.pool.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Export) release() error {
	var errs []error
	e.once.Do(func() {
		for _, remove := range e.listeners {
			remove()
		}
		for _, sub := range e.subs {
			if err := sub.Unsubscribe(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := e.pi.RemoveEndUserInterface(e.view, e.client); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
