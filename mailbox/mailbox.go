// Package mailbox provides the bounded FIFO through which other goroutines hand
// work to a component. Any goroutine may Enqueue; only the owning component's
// goroutine calls ExecuteNext, so queued commands always run on their owner.
package mailbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/metric"
	"github.com/c360/mtscore/pkg/buffer"
)

// DefaultCapacity is used when a mailbox is created with a non-positive size.
const DefaultCapacity = 64

// Mailbox is a bounded multi-producer single-consumer queue of Calls.
type Mailbox struct {
	name     string
	buf      buffer.Buffer[*Call]
	logger   *slog.Logger
	metrics  *metric.Metrics
	limiter  *rate.Limiter
	notifyMu sync.RWMutex
	notify   func()
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithLogger sets the logger used for queue-full and panic reports.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records queue-full events and processed counts in the core metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Mailbox) {
		if registry != nil {
			m.metrics = registry.CoreMetrics()
		}
	}
}

// WithNotifier registers a function called after every successful Enqueue.
// Signal-driven tasks use it to wake up.
func WithNotifier(fn func()) Option {
	return func(m *Mailbox) {
		m.notify = fn
	}
}

// New creates a mailbox holding at most capacity pending calls.
func New(name string, capacity int, opts ...Option) (*Mailbox, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	buf, err := buffer.NewCircularBuffer[*Call](capacity,
		buffer.WithOverflowPolicy[*Call](buffer.Reject))
	if err != nil {
		return nil, errors.Wrap(err, "Mailbox", "New", "buffer creation")
	}

	m := &Mailbox{
		name:    name,
		buf:     buf,
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("mailbox", name)

	return m, nil
}

// Name returns the mailbox name.
func (m *Mailbox) Name() string { return m.name }

// SetNotifier replaces the post-enqueue notifier.
func (m *Mailbox) SetNotifier(fn func()) {
	m.notifyMu.Lock()
	m.notify = fn
	m.notifyMu.Unlock()
}

// Enqueue appends call. It never blocks: a full mailbox returns ErrQueueFull
// and a closed one ErrMailboxClosed.
func (m *Mailbox) Enqueue(call *Call) error {
	if call == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Mailbox", "Enqueue", "nil call")
	}

	if err := m.buf.Write(call); err != nil {
		if errors.Is(err, errors.ErrQueueFull) {
			if m.metrics != nil {
				m.metrics.RecordQueueFull(m.name)
			}
			if m.limiter.Allow() {
				m.logger.Warn("Mailbox full, rejecting call",
					"command", call.name,
					"capacity", m.buf.Capacity(),
					"overflows", m.buf.Stats().Overflows())
			}
			return errors.WrapTransient(err, "Mailbox", "Enqueue", call.name)
		}
		return err
	}

	m.notifyMu.RLock()
	notify := m.notify
	m.notifyMu.RUnlock()
	if notify != nil {
		notify()
	}
	return nil
}

// ExecuteNext pops the oldest call and runs it on the calling goroutine.
// It reports whether a call was executed. A panicking command is converted
// into the call's error.
func (m *Mailbox) ExecuteNext(ctx context.Context) bool {
	call, ok := m.buf.Read()
	if !ok {
		return false
	}

	if err := call.run(ctx); err != nil {
		m.logger.Debug("Queued command failed", "command", call.name, "error", err)
	}
	return true
}

// Drain executes up to max calls (all currently queued when max <= 0) and
// returns how many ran.
func (m *Mailbox) Drain(ctx context.Context, max int) int {
	if max <= 0 {
		max = m.buf.Size()
	}
	n := 0
	for n < max && m.ExecuteNext(ctx) {
		n++
	}
	if m.metrics != nil {
		m.metrics.RecordMailboxProcessed(m.name, n)
	}
	return n
}

// Available returns the number of pending calls.
func (m *Mailbox) Available() int { return m.buf.Size() }

// Capacity returns the maximum number of pending calls.
func (m *Mailbox) Capacity() int { return m.buf.Capacity() }

// Stats returns enqueue/execute statistics.
func (m *Mailbox) Stats() buffer.StatsSummary { return m.buf.Stats().Summary() }

// Close rejects further calls and releases every pending call with
// ErrMailboxClosed without executing it.
func (m *Mailbox) Close() {
	_ = m.buf.Close()
	dropped := 0
	for {
		call, ok := m.buf.Read()
		if !ok {
			break
		}
		call.complete(errors.ErrMailboxClosed)
		dropped++
	}
	if dropped > 0 {
		m.logger.Debug("Mailbox closed with pending calls", "dropped", dropped)
	}
}
