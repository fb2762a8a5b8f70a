package component

import (
	"context"
	"sync"
	"time"

	"github.com/c360/mtscore/errors"
)

// Task is a component with its own goroutine. A periodic task runs a cycle
// every period; a task with period zero runs a cycle whenever a call is posted
// to one of its mailboxes. A continuous task runs cycles back to back.
type Task struct {
	*Component

	period     time.Duration
	continuous bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTask creates a task. Its provided interfaces queue commands and its
// required interfaces get an event mailbox unless options say otherwise.
func NewTask(name string, period time.Duration, opts ...Option) (*Task, error) {
	c, err := newComponent(name, CommandsShouldBeQueued, DefaultEventQueueSize, opts)
	if err != nil {
		return nil, err
	}
	if period < 0 {
		period = 0
	}
	t := &Task{Component: c, period: period}
	c.onStart = t.startLoop
	c.onStop = t.stopLoop
	return t, nil
}

// NewContinuousTask creates a task that starts its next cycle as soon as the
// previous one returns.
func NewContinuousTask(name string, opts ...Option) (*Task, error) {
	t, err := NewTask(name, 0, opts...)
	if err != nil {
		return nil, err
	}
	t.continuous = true
	return t, nil
}

// Period returns the cycle period, zero for signal-driven and continuous tasks.
func (t *Task) Period() time.Duration { return t.period }

// Continuous reports whether t runs its cycles back to back.
func (t *Task) Continuous() bool { return t.continuous }

// RunOnce executes one cycle: queued events, queued commands, the behavior's
// Run, then an Advance of the default state table.
func (t *Task) RunOnce(ctx context.Context) error {
	start := time.Now()
	t.ProcessMailBoxes(ctx)

	var err error
	if r, ok := t.behavior.(Runner); ok {
		if err = r.Run(ctx); err != nil {
			err = errors.Wrap(err, "Task", "RunOnce", "run")
		}
	}
	t.StateTable().Advance()

	if t.registry != nil {
		t.registry.CoreMetrics().RecordCycle(t.name, time.Since(start))
	}
	return err
}

func (t *Task) startLoop(ctx context.Context) error {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(loopCtx, t.done)
	return nil
}

func (t *Task) stopLoop() {
	t.loopMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if t.period > 0 {
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	t.logger.Debug("Task loop started", "period", t.period, "continuous", t.continuous)
	for {
		if t.continuous {
			if ctx.Err() != nil {
				t.logger.Debug("Task loop stopped")
				return
			}
		} else {
			select {
			case <-ctx.Done():
				t.logger.Debug("Task loop stopped")
				return
			case <-tick:
			case <-t.notify:
				if t.period > 0 {
					// periodic tasks only drain on their tick
					continue
				}
			}
		}
		if err := t.RunOnce(ctx); err != nil {
			t.logger.Error("Task cycle failed", "error", err)
		}
	}
}
