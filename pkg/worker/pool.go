// Package worker provides a bounded pool of goroutines processing submitted work.
//
// The proxy server uses it to execute remote command invocations off the NATS
// delivery goroutine, so one slow command does not stall every subscription.
// Submit never blocks: a full queue is reported as errors.ErrQueueFull, the
// same fail-fast contract as a component mailbox.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
)

// Pool processes values of type T on a fixed number of workers
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	metrics  *poolMetrics
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithQueueSize sets how many items may wait for a worker
func WithQueueSize[T any](size int) Option[T] {
	return func(p *Pool[T]) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithMetricsRegistry registers pool metrics labelled with the pool name
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(p *Pool[T]) {
		if registry == nil {
			return
		}
		labels := prometheus.Labels{"pool": p.name}
		m := &poolMetrics{
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: metric.Namespace, Subsystem: "worker", Name: "queue_depth",
				Help: "Items waiting for a worker", ConstLabels: labels,
			}),
			submitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metric.Namespace, Subsystem: "worker", Name: "submitted_total",
				Help: "Items accepted by the pool", ConstLabels: labels,
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metric.Namespace, Subsystem: "worker", Name: "dropped_total",
				Help: "Items rejected because the queue was full", ConstLabels: labels,
			}),
			processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: metric.Namespace, Subsystem: "worker", Name: "processing_duration_seconds",
				Help: "Time spent processing one item", ConstLabels: labels,
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
			}, []string{"status"}),
		}

		owner := "worker." + p.name
		if registry.RegisterGauge(owner, "queue_depth", m.queueDepth) != nil ||
			registry.RegisterCounter(owner, "submitted_total", m.submitted) != nil ||
			registry.RegisterCounter(owner, "dropped_total", m.dropped) != nil ||
			registry.RegisterHistogramVec(owner, "processing_duration_seconds", m.processingTime) != nil {
			return
		}
		p.metrics = m
	}
}

// NewPool creates a pool of workers calling processor for every submitted item.
// Non-positive worker counts default to 4 and the queue defaults to 16 items
// per worker.
func NewPool[T any](name string, workers int, processor func(context.Context, T) error,
	opts ...Option[T],
) (*Pool[T], error) {
	if processor == nil {
		return nil, errors.WrapInvalid(ErrNilProcessor, "Pool", "NewPool", "validate processor")
	}
	if workers <= 0 {
		workers = 4
	}

	p := &Pool[T]{
		name:      name,
		workers:   workers,
		queueSize: workers * 16,
		processor: processor,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.workChan = make(chan T, p.queueSize)
	return p, nil
}

// Submit queues work without blocking
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return errors.WrapTransient(errors.ErrQueueFull, "Pool", "Submit", "queue work for "+p.name)
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop drains
// the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for queued work to finish
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(ErrStopTimeout, "Pool", "Stop", "wait for "+p.name)
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}

			start := time.Now()
			err := p.processor(ctx, work)

			p.processed.Add(1)
			status := "success"
			if err != nil {
				p.failed.Add(1)
				status = "error"
			}
			if p.metrics != nil {
				p.metrics.processingTime.WithLabelValues(status).Observe(time.Since(start).Seconds())
				p.metrics.queueDepth.Set(float64(len(p.workChan)))
			}
		}
	}
}
