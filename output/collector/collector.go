// Package collector provides a task that gathers samples and events from a
// provided interface and writes them as JSON lines, optionally mirroring them
// to a JetStream stream.
package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/natsclient"
	"github.com/c360/mtscore/pkg/buffer"
)

// Interface and member names the collector requires.
const (
	InterfaceSource = "Source"
	FnGetData       = "GetData"
	EvtThreshold    = "ThresholdCrossed"
)

// Record is one line of output.
type Record[T any] struct {
	Kind      string    `json:"kind"`
	Component string    `json:"component"`
	Name      string    `json:"name"`
	Time      time.Time `json:"time"`
	Data      T         `json:"data"`
}

// Config holds the collector settings.
type Config struct {
	Period   string `json:"period"`
	Path     string `json:"path"`
	Append   bool   `json:"append"`
	Buffer   int    `json:"buffer"`
	Stream   string `json:"stream"`
	Subject  string `json:"subject"`
	Required bool   `json:"required"`
}

// DefaultConfig samples every 100ms into a file under the temp dir.
func DefaultConfig() Config {
	return Config{
		Period: "100ms",
		Path:   filepath.Join(os.TempDir(), "mts", "collector.jsonl"),
		Append: true,
		Buffer: 1024,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.Period)
	if err != nil || d < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: period %q", errors.ErrInvalidConfig, c.Period), "Config", "Validate", "period")
	}
	if c.Buffer < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "buffer must be positive")
	}
	if c.Stream != "" && c.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "stream requires a subject")
	}
	if strings.ContainsAny(c.Subject, " \t*>") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject %q", errors.ErrInvalidConfig, c.Subject), "Config", "Validate", "subject")
	}
	return nil
}

// Sink receives encoded records. *natsclient.Client is a Sink.
type Sink interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Collector is a periodic task with one required interface. Each cycle it
// reads GetData, if bound, and flushes everything collected so far.
type Collector[T any] struct {
	*component.Task

	cfg     Config
	getData *command.ReadFunction[T]
	pending buffer.Buffer[[]byte]

	out    io.Writer
	file   *os.File
	writer *bufio.Writer
	sink   Sink
	nats   *natsclient.Client

	written atomic.Int64
	errs    atomic.Int64
}

// Option adjusts a collector before it starts.
type Option[T any] func(*Collector[T])

// WithWriter writes records to w instead of the configured path.
func WithWriter[T any](w io.Writer) Option[T] {
	return func(c *Collector[T]) { c.out = w }
}

// WithSink mirrors records to s under the configured subject.
func WithSink[T any](s Sink) Option[T] {
	return func(c *Collector[T]) { c.sink = s }
}

// New creates a collector called name.
func New[T any](name string, cfg Config, deps component.Dependencies, opts ...Option[T]) (*Collector[T], error) {
	c := &Collector[T]{}
	if err := c.init(name, cfg, deps, opts); err != nil {
		return nil, err
	}
	return c, nil
}

// Configure builds the collector from a raw JSON config.
func (c *Collector[T]) Configure(name string, raw json.RawMessage, deps component.Dependencies) error {
	cfg := DefaultConfig()
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return errors.Wrap(err, "Collector", "Configure", "decode config")
	}
	return c.init(name, cfg, deps, nil)
}

func (c *Collector[T]) init(name string, cfg Config, deps component.Dependencies, opts []Option[T]) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "Collector", "New", "config validation")
	}
	c.cfg = cfg
	c.getData = command.NewReadFunction[T]()
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil && cfg.Subject != "" && deps.NATSClient != nil {
		c.sink, c.nats = deps.NATSClient, deps.NATSClient
	}

	period, _ := time.ParseDuration(cfg.Period)
	task, err := component.NewTask(name, period, append(deps.Options(), component.WithBehavior(c))...)
	if err != nil {
		return errors.Wrap(err, "Collector", "New", "create task")
	}
	c.Task = task

	bufOpts := []buffer.Option[[]byte]{buffer.WithOverflowPolicy[[]byte](buffer.DropOldest)}
	if deps.MetricsRegistry != nil {
		bufOpts = append(bufOpts, buffer.WithMetrics[[]byte](deps.MetricsRegistry, "collector_"+sanitize(name)))
	}
	if c.pending, err = buffer.NewCircularBuffer(cfg.Buffer, bufOpts...); err != nil {
		return errors.Wrap(err, "Collector", "New", "record buffer")
	}

	req := component.Optional
	if cfg.Required {
		req = component.Required
	}
	source, err := task.AddInterfaceRequired(InterfaceSource, component.WithRequirement(req))
	if err != nil {
		return errors.Wrap(err, "Collector", "New", "interface")
	}
	if err := source.AddFunction(FnGetData, c.getData, component.Optional); err != nil {
		return errors.Wrap(err, "Collector", "New", FnGetData)
	}
	if err := component.AddEventHandlerWrite(source, EvtThreshold, c.onThreshold, component.EventQueued); err != nil {
		return errors.Wrap(err, "Collector", "New", EvtThreshold)
	}
	return nil
}

func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// Startup opens the output and, when a stream is configured, makes sure it exists.
func (c *Collector[T]) Startup(ctx context.Context) error {
	if c.out == nil {
		if err := os.MkdirAll(filepath.Dir(c.cfg.Path), 0o755); err != nil {
			return errors.WrapFatal(err, "Collector", "Startup", "create directory")
		}
		flags := os.O_CREATE | os.O_WRONLY
		if c.cfg.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(c.cfg.Path, flags, 0o644)
		if err != nil {
			return errors.WrapFatal(err, "Collector", "Startup", "open "+c.cfg.Path)
		}
		c.file, c.out = f, f
	}
	c.writer = bufio.NewWriter(c.out)

	if c.nats != nil && c.cfg.Stream != "" {
		_, err := c.nats.EnsureStream(ctx, jetstream.StreamConfig{
			Name:     c.cfg.Stream,
			Subjects: []string{c.cfg.Subject},
			MaxAge:   24 * time.Hour,
		})
		if err != nil {
			return errors.Wrap(err, "Collector", "Startup", "ensure stream "+c.cfg.Stream)
		}
	}
	c.Logger().Info("Collector ready", "path", c.cfg.Path, "subject", c.cfg.Subject)
	return nil
}

func (c *Collector[T]) onThreshold(_ context.Context, payload T) error {
	c.collect("event", EvtThreshold, payload)
	return nil
}

func (c *Collector[T]) collect(kind, name string, data T) {
	line, err := json.Marshal(Record[T]{Kind: kind, Component: c.Name(), Name: name, Time: time.Now(), Data: data})
	if err != nil {
		c.errs.Add(1)
		c.Logger().Warn("Record not encodable", "name", name, "error", err)
		return
	}
	if err := c.pending.Write(line); err != nil {
		c.errs.Add(1)
	}
}

// Run samples GetData and flushes pending records.
func (c *Collector[T]) Run(ctx context.Context) error {
	if v, err := c.getData.Execute(ctx); err == nil {
		c.collect("sample", FnGetData, v)
	} else if !errors.Is(err, errors.ErrUnbound) && !errors.Is(err, errors.ErrNotFound) {
		c.errs.Add(1)
		c.Logger().Debug("Sample read failed", "error", err)
	}
	return c.Flush(ctx)
}

// Flush writes every pending record.
func (c *Collector[T]) Flush(ctx context.Context) error {
	if c.writer == nil {
		return nil
	}
	var errs []error
	for _, line := range c.pending.ReadBatch(c.pending.Capacity()) {
		if _, err := c.writer.Write(append(line, '\n')); err != nil {
			errs = append(errs, err)
			continue
		}
		c.written.Add(1)
		if c.sink != nil && c.cfg.Subject != "" {
			if err := c.sink.PublishToStream(ctx, c.cfg.Subject, line); err != nil {
				c.errs.Add(1)
				c.Logger().Debug("Record not published", "subject", c.cfg.Subject, "error", err)
			}
		}
	}
	if err := c.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		c.errs.Add(int64(len(errs)))
		return errors.WrapTransient(err, "Collector", "Flush", "write records")
	}
	return nil
}

// Cleanup flushes what is left and closes the output file.
func (c *Collector[T]) Cleanup(ctx context.Context) error {
	err := c.Flush(ctx)
	_ = c.pending.Close()
	if c.file != nil {
		err = errors.Join(err, c.file.Close())
		c.file = nil
	}
	return err
}

// Stats reports how many records were written and how many failed.
func (c *Collector[T]) Stats() (written, failed, dropped int64) {
	return c.written.Load(), c.errs.Load(), c.pending.Stats().Drops()
}
