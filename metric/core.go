package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the Prometheus namespace shared by every mtscore metric.
const Namespace = "mts"

// Metrics contains the messaging-core metrics shared by all components of a manager
type Metrics struct {
	// Command execution
	CommandsExecuted *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EventsTriggered  *prometheus.CounterVec

	// Mailboxes
	MailboxQueueFull *prometheus.CounterVec
	MailboxProcessed *prometheus.CounterVec

	// Components and connections
	ComponentState    *prometheus.GaugeVec
	CycleDuration     *prometheus.HistogramVec
	ConnectionsActive prometheus.Gauge
	BindFailures      *prometheus.CounterVec

	// NATS proxies
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		CommandsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "command",
				Name:      "executed_total",
				Help:      "Total number of commands executed",
			},
			[]string{"component", "interface", "command", "status"},
		),

		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "command",
				Name:      "duration_seconds",
				Help:      "Command execution duration in seconds",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{"component", "interface"},
		),

		EventsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "event",
				Name:      "triggered_total",
				Help:      "Total number of events triggered",
			},
			[]string{"component", "interface", "event"},
		),

		MailboxQueueFull: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "mailbox",
				Name:      "queue_full_total",
				Help:      "Total number of calls rejected because a mailbox was full",
			},
			[]string{"mailbox"},
		),

		MailboxProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "mailbox",
				Name:      "processed_total",
				Help:      "Total number of queued calls executed by their owner",
			},
			[]string{"mailbox"},
		),

		ComponentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "state",
				Help:      "Component lifecycle state (0=constructed, 1=ready, 2=active, 3=finishing, 4=finished)",
			},
			[]string{"component"},
		),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of one task execution cycle",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),

		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "manager",
				Name:      "connections_active",
				Help:      "Number of connected required/provided interface pairs",
			},
		),

		BindFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "manager",
				Name:      "bind_failures_total",
				Help:      "Total number of connection attempts rejected during binding",
			},
			[]string{"client", "server"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) mustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.CommandsExecuted,
		c.CommandDuration,
		c.EventsTriggered,
		c.MailboxQueueFull,
		c.MailboxProcessed,
		c.ComponentState,
		c.CycleDuration,
		c.ConnectionsActive,
		c.BindFailures,
		c.NATSConnected,
		c.NATSReconnects,
	)
}

// RecordCommand counts one command execution and observes its duration
func (c *Metrics) RecordCommand(component, iface, command string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.CommandsExecuted.WithLabelValues(component, iface, command, status).Inc()
	c.CommandDuration.WithLabelValues(component, iface).Observe(duration.Seconds())
}

// RecordEvent counts one triggered event
func (c *Metrics) RecordEvent(component, iface, event string) {
	c.EventsTriggered.WithLabelValues(component, iface, event).Inc()
}

// RecordQueueFull counts one rejected enqueue
func (c *Metrics) RecordQueueFull(mailbox string) {
	c.MailboxQueueFull.WithLabelValues(mailbox).Inc()
}

// RecordMailboxProcessed adds the number of queued calls drained in one pass
func (c *Metrics) RecordMailboxProcessed(mailbox string, count int) {
	if count > 0 {
		c.MailboxProcessed.WithLabelValues(mailbox).Add(float64(count))
	}
}

// RecordComponentState updates a component's lifecycle gauge
func (c *Metrics) RecordComponentState(component string, state int) {
	c.ComponentState.WithLabelValues(component).Set(float64(state))
}

// RecordCycle observes the duration of one execution cycle
func (c *Metrics) RecordCycle(component string, duration time.Duration) {
	c.CycleDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordConnections sets the number of active connections
func (c *Metrics) RecordConnections(count int) {
	c.ConnectionsActive.Set(float64(count))
}

// RecordBindFailure counts one rejected connection attempt
func (c *Metrics) RecordBindFailure(client, server string) {
	c.BindFailures.WithLabelValues(client, server).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
