// Package sine provides a periodic task that samples a sine wave into its
// state table and serves the samples on its Main interface.
package sine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/statetable"
)

// Interface and member names of the generator.
const (
	InterfaceMain    = "Main"
	CmdGetData       = "GetData"
	CmdGetDelayed    = "GetDelayed"
	CmdSetAmplitude  = "SetAmplitude"
	CmdReset         = "Reset"
	CmdGetTick       = "GetTick"
	EvtThreshold     = "ThresholdCrossed"
	ElementData      = "Data"
	defaultPeriodStr = "10ms"
)

// Sample is one generated value.
type Sample struct {
	Tick  int       `json:"tick"`
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Config holds the generator settings.
type Config struct {
	Amplitude   float64 `json:"amplitude"`
	FrequencyHz float64 `json:"frequency_hz"`
	Period      string  `json:"period"`
	Threshold   float64 `json:"threshold"`
	History     int     `json:"history"`
}

// DefaultConfig returns a 1 Hz unit wave sampled every 10ms.
func DefaultConfig() Config {
	return Config{
		Amplitude:   1,
		FrequencyHz: 1,
		Period:      defaultPeriodStr,
		Threshold:   0.9,
		History:     256,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.Period)
	if err != nil || d <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: period %q must be a positive duration", errors.ErrInvalidConfig, c.Period),
			"Config", "Validate", "period")
	}
	if c.FrequencyHz < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "frequency_hz cannot be negative")
	}
	if c.Threshold < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "threshold cannot be negative")
	}
	if c.History < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "history cannot be negative")
	}
	return nil
}

func (c *Config) period() time.Duration {
	d, _ := time.ParseDuration(c.Period)
	return d
}

// Generator is a periodic task. Everything below the embedded task is owned
// by the task goroutine; commands that change it are queued.
type Generator struct {
	*component.Task

	cfg       Config
	amplitude float64
	tick      int
	above     bool
	data      Sample

	acc       *statetable.Accessor[Sample]
	crossed   *command.WriteEvent[Sample]
	crossings prometheus.Counter
}

// New creates a generator called name.
func New(name string, cfg Config, deps component.Dependencies) (*Generator, error) {
	g := &Generator{}
	if err := g.init(name, cfg, deps); err != nil {
		return nil, err
	}
	return g, nil
}

// Configure builds the generator from a raw JSON config. It lets the class
// register create generators by type name.
func (g *Generator) Configure(name string, raw json.RawMessage, deps component.Dependencies) error {
	cfg := DefaultConfig()
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return errors.Wrap(err, "Generator", "Configure", "decode config")
	}
	return g.init(name, cfg, deps)
}

func (g *Generator) init(name string, cfg Config, deps component.Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "Generator", "New", "config validation")
	}
	g.cfg, g.amplitude = cfg, cfg.Amplitude

	opts := append(deps.Options(), component.WithBehavior(g), component.WithHistoryLength(cfg.History))
	task, err := component.NewTask(name, cfg.period(), opts...)
	if err != nil {
		return errors.Wrap(err, "Generator", "New", "create task")
	}
	g.Task = task

	if g.acc, err = statetable.AddElement(task.StateTable(), ElementData, &g.data); err != nil {
		return errors.Wrap(err, "Generator", "New", "state table")
	}
	if err := g.declare(); err != nil {
		return err
	}

	if deps.MetricsRegistry != nil {
		g.crossings = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mts",
			Subsystem:   "sine",
			Name:        "threshold_crossings_total",
			Help:        "Times the generated value rose above the threshold",
			ConstLabels: prometheus.Labels{"component": name},
		})
		if err := deps.MetricsRegistry.RegisterCounter(name, "threshold_crossings", g.crossings); err != nil {
			g.Logger().Warn("Metric registration failed", "error", err)
			g.crossings = nil
		}
	}
	return nil
}

func (g *Generator) declare() error {
	main, err := g.AddInterfaceProvided(InterfaceMain)
	if err != nil {
		return errors.Wrap(err, "Generator", "declare", "interface")
	}
	if _, err := component.AddCommandReadState(main, CmdGetData, g.acc); err != nil {
		return errors.Wrap(err, "Generator", "declare", CmdGetData)
	}
	if _, err := component.AddCommandQualifiedRead(main, CmdGetDelayed, g.delayed); err != nil {
		return errors.Wrap(err, "Generator", "declare", CmdGetDelayed)
	}
	if _, err := component.AddCommandWrite(main, CmdSetAmplitude, g.setAmplitude); err != nil {
		return errors.Wrap(err, "Generator", "declare", CmdSetAmplitude)
	}
	if _, err := main.AddCommandVoid(CmdReset, g.reset); err != nil {
		return errors.Wrap(err, "Generator", "declare", CmdReset)
	}
	if _, err := component.AddCommandVoidReturn(main, CmdGetTick, g.getTick, component.Queued()); err != nil {
		return errors.Wrap(err, "Generator", "declare", CmdGetTick)
	}
	if g.crossed, err = component.AddEventWrite[Sample](main, EvtThreshold); err != nil {
		return errors.Wrap(err, "Generator", "declare", EvtThreshold)
	}
	return nil
}

func (g *Generator) delayed(_ context.Context, n int) (Sample, error) {
	if n < 0 {
		return Sample{}, errors.WrapInvalid(
			fmt.Errorf("%w: delay %d", errors.ErrInvalidData, n), "Generator", "GetDelayed", "argument")
	}
	return g.acc.Delayed(n)
}

func (g *Generator) setAmplitude(_ context.Context, a float64) error {
	if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: amplitude %v", errors.ErrInvalidData, a), "Generator", "SetAmplitude", "argument")
	}
	g.amplitude = a
	return nil
}

func (g *Generator) reset(context.Context) error {
	g.tick = 0
	g.above = false
	g.amplitude = g.cfg.Amplitude
	g.Logger().Debug("Generator reset")
	return nil
}

func (g *Generator) getTick(context.Context) (int, error) { return g.tick, nil }

// Value returns the wave at tick for the given amplitude.
func (g *Generator) Value(tick int, amplitude float64) float64 {
	phase := 2 * math.Pi * g.cfg.FrequencyHz * g.cfg.period().Seconds() * float64(tick)
	return amplitude * math.Sin(phase)
}

// Run produces one sample and signals when it rises above the threshold.
func (g *Generator) Run(ctx context.Context) error {
	g.tick++
	g.data = Sample{Tick: g.tick, Time: time.Now(), Value: g.Value(g.tick, g.amplitude)}

	if g.cfg.Threshold <= 0 {
		return nil
	}
	above := g.data.Value >= g.cfg.Threshold
	rising := above && !g.above
	g.above = above
	if !rising {
		return nil
	}
	if g.crossings != nil {
		g.crossings.Inc()
	}
	if err := g.crossed.Trigger(ctx, g.data); err != nil {
		g.Logger().Warn("Threshold event not delivered", "tick", g.tick, "error", err)
	}
	return nil
}
