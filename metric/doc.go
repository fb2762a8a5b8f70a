// Package metric provides Prometheus-based metrics for the messaging core.
//
// A MetricsRegistry owns a private prometheus.Registry holding the core
// metrics (commands executed, events triggered, mailbox overflow, component
// state, connection counts, NATS status) plus any metric an owner registers
// through the MetricsRegistrar interface. The gateway package serves the
// registry on /metrics.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordCommand("sine", "Output", "GetValue", d, nil)
//
// Registering owner-specific metrics:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Name:      "samples_total",
//	    Help:      "Samples produced",
//	})
//	if err := registry.RegisterCounter("sine", "samples", counter); err != nil {
//	    return err
//	}
//
// Registering the same owner/metric pair twice returns an invalid-class error
// wrapping errors.ErrDuplicateName.
package metric
