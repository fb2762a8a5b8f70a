package command

import (
	"context"

	"github.com/c360/mtscore/mailbox"
)

// queued carries the metadata of the wrapped command and the target mailbox.
// A queued command has its own enabled flag, so one client's view can be
// disabled without affecting others.
type queued struct {
	base
	mb *mailbox.Mailbox
}

func (q *queued) setup(inner Command, mb *mailbox.Mailbox) {
	q.init(inner.Name(), inner.Shape(), inner.ArgumentType(), inner.ResultType())
	q.mb = mb
}

func (q *queued) Queued() bool { return true }

// Mailbox returns the mailbox calls are deferred to.
func (q *queued) Mailbox() *mailbox.Mailbox { return q.mb }

func (q *queued) post(fn func(ctx context.Context) error) (*mailbox.Call, error) {
	if err := q.checkEnabled(); err != nil {
		return nil, err
	}
	call := mailbox.NewCall(q.name, fn)
	if err := q.mb.Enqueue(call); err != nil {
		return nil, err
	}
	return call, nil
}

func (q *queued) postAndWait(ctx context.Context, fn func(ctx context.Context) error) error {
	call, err := q.post(fn)
	if err != nil {
		return err
	}
	return call.Wait(ctx)
}

// QueuedVoid defers a Void command to a mailbox.
type QueuedVoid struct {
	queued
	inner VoidCaller
}

// QueueVoid wraps inner so that calls execute when mb is drained.
func QueueVoid(inner VoidCaller, mb *mailbox.Mailbox) *QueuedVoid {
	q := &QueuedVoid{inner: inner}
	q.setup(inner, mb)
	return q
}

// Execute queues the call and returns without waiting for it to run.
func (q *QueuedVoid) Execute(ctx context.Context) error {
	_, err := q.post(q.inner.Execute)
	return err
}

// ExecuteBlocking queues the call and waits until the owner has run it.
func (q *QueuedVoid) ExecuteBlocking(ctx context.Context) error {
	return q.postAndWait(ctx, q.inner.Execute)
}

// Invoke queues the call and waits for it, ignoring the argument.
func (q *QueuedVoid) Invoke(ctx context.Context, _ any) (any, error) {
	return nil, q.ExecuteBlocking(ctx)
}

// QueuedWrite defers a Write command to a mailbox.
type QueuedWrite[A any] struct {
	queued
	inner WriteCaller[A]
}

// QueueWrite wraps inner so that calls execute when mb is drained.
func QueueWrite[A any](inner WriteCaller[A], mb *mailbox.Mailbox) *QueuedWrite[A] {
	q := &QueuedWrite[A]{inner: inner}
	q.setup(inner, mb)
	return q
}

// Execute queues the call with its own copy of arg and returns immediately.
func (q *QueuedWrite[A]) Execute(ctx context.Context, arg A) error {
	_, err := q.post(func(ctx context.Context) error { return q.inner.Execute(ctx, arg) })
	return err
}

// ExecuteBlocking queues the call and waits until the owner has run it.
func (q *QueuedWrite[A]) ExecuteBlocking(ctx context.Context, arg A) error {
	return q.postAndWait(ctx, func(ctx context.Context) error { return q.inner.Execute(ctx, arg) })
}

// Invoke checks that arg is an A, queues the call and waits for it.
func (q *QueuedWrite[A]) Invoke(ctx context.Context, arg any) (any, error) {
	a, err := castArg[A](q.name, arg)
	if err != nil {
		return nil, err
	}
	return nil, q.ExecuteBlocking(ctx, a)
}

// QueuedRead defers a Read or VoidReturn command to a mailbox. Callers
// always wait for the result.
type QueuedRead[R any] struct {
	queued
	inner ReadCaller[R]
}

// QueueRead wraps inner so that calls execute when mb is drained.
func QueueRead[R any](inner ReadCaller[R], mb *mailbox.Mailbox) *QueuedRead[R] {
	q := &QueuedRead[R]{inner: inner}
	q.setup(inner, mb)
	return q
}

// Execute queues the call and waits for the owner to produce the result.
func (q *QueuedRead[R]) Execute(ctx context.Context) (R, error) {
	var result R
	err := q.postAndWait(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.inner.Execute(ctx)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// Invoke runs Execute and ignores the argument.
func (q *QueuedRead[R]) Invoke(ctx context.Context, _ any) (any, error) {
	return q.Execute(ctx)
}

// QueuedQualified defers a QualifiedRead or WriteReturn command to a mailbox.
// Callers always wait for the result.
type QueuedQualified[A, R any] struct {
	queued
	inner QualifiedCaller[A, R]
}

// QueueQualified wraps inner so that calls execute when mb is drained.
func QueueQualified[A, R any](inner QualifiedCaller[A, R], mb *mailbox.Mailbox) *QueuedQualified[A, R] {
	q := &QueuedQualified[A, R]{inner: inner}
	q.setup(inner, mb)
	return q
}

// Execute queues the call with arg and waits for the result.
func (q *QueuedQualified[A, R]) Execute(ctx context.Context, arg A) (R, error) {
	var result R
	err := q.postAndWait(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.inner.Execute(ctx, arg)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// Invoke checks that arg is an A and runs Execute with it.
func (q *QueuedQualified[A, R]) Invoke(ctx context.Context, arg any) (any, error) {
	a, err := castArg[A](q.name, arg)
	if err != nil {
		return nil, err
	}
	return q.Execute(ctx, a)
}
