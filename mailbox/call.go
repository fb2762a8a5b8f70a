package mailbox

import (
	"context"
	"fmt"

	"github.com/c360/mtscore/errors"
)

// Call is one pending invocation. The closure carries its own argument and
// result slot, so a Call never shares storage with another Call.
type Call struct {
	name string
	fn   func(ctx context.Context) error
	done chan struct{}
	err  error
}

// NewCall creates a pending invocation of fn labelled with the command name.
func NewCall(name string, fn func(ctx context.Context) error) *Call {
	return &Call{
		name: name,
		fn:   fn,
		done: make(chan struct{}),
	}
}

// Name returns the command name the call was created for.
func (c *Call) Name() string { return c.name }

// Done is closed once the call has executed or was discarded.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err returns the execution result. Only meaningful after Done is closed.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call completes or ctx is done.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err()),
			"Call", "Wait", fmt.Sprintf("waiting for %s", c.name))
	}
}

func (c *Call) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in queued command %s: %v", c.name, r)
		}
		c.complete(err)
	}()
	return c.fn(ctx)
}

func (c *Call) complete(err error) {
	c.err = err
	close(c.done)
}
