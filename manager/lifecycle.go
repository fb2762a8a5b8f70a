package manager

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

// forEach runs fn on every component in parallel and joins the failures.
// Unlike errgroup's first-error behavior every component gets its turn.
func (m *Manager) forEach(ctx context.Context, method string, skip func(component.State) bool,
	fn func(context.Context, component.Lifecycle) error,
) error {
	comps := m.Components()
	errs := make([]error, len(comps))

	var g errgroup.Group
	for i, c := range comps {
		if skip(c.State()) {
			continue
		}
		g.Go(func() error {
			if err := fn(ctx, c); err != nil {
				errs[i] = errors.Wrap(err, "Manager", method, c.Name())
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		m.logger.Error(method+" incomplete", "error", err)
		return err
	}
	return nil
}

// CreateAll moves every Constructed component to Ready.
func (m *Manager) CreateAll(ctx context.Context) error {
	return m.forEach(ctx, "CreateAll",
		func(s component.State) bool { return s != component.StateConstructed },
		func(ctx context.Context, c component.Lifecycle) error { return c.Create(ctx) })
}

// StartAll moves every Ready component to Active.
func (m *Manager) StartAll(ctx context.Context) error {
	return m.forEach(ctx, "StartAll",
		func(s component.State) bool { return s != component.StateReady },
		func(ctx context.Context, c component.Lifecycle) error { return c.Start(ctx) })
}

// SuspendAll returns every Active component to Ready.
func (m *Manager) SuspendAll(ctx context.Context) error {
	return m.forEach(ctx, "SuspendAll",
		func(s component.State) bool { return s != component.StateActive },
		func(ctx context.Context, c component.Lifecycle) error { return c.Suspend(ctx) })
}

// KillAll kills every live component, then disconnects every connection.
func (m *Manager) KillAll(ctx context.Context) error {
	killErr := m.forEach(ctx, "KillAll",
		func(s component.State) bool { return s == component.StateFinishing || s == component.StateFinished },
		func(ctx context.Context, c component.Lifecycle) error { return c.Kill(ctx) })
	return errors.Join(killErr, m.DisconnectAll(ctx))
}

// WaitForStateAll blocks until every component reaches state, or fails with
// the first component that cannot.
func (m *Manager) WaitForStateAll(ctx context.Context, state component.State) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range m.Components() {
		g.Go(func() error { return c.WaitForState(gctx, state) })
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "Manager", "WaitForStateAll", state.String())
	}
	return nil
}

// Shutdown kills everything within timeout.
func (m *Manager) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.KillAll(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.WrapTransient(errors.Join(errors.ErrTimeout, ctx.Err()), "Manager", "Shutdown", "kill all")
	}
}
