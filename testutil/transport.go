package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/proxy"
)

// MemTransport is an in-memory proxy.Transport for tests. Subjects match
// exactly; there are no wildcards or queue groups.
// Thread-safe for concurrent use from multiple goroutines.
type MemTransport struct {
	mu        sync.RWMutex
	servers   map[string]proxy.Handler
	subs      map[string]map[*memSub]func(context.Context, []byte)
	published map[string][][]byte
	closed    bool
}

type memSub struct {
	unsubscribe func()
}

func (s *memSub) Unsubscribe() error {
	s.unsubscribe()
	return nil
}

// NewMemTransport creates an empty transport.
func NewMemTransport() *MemTransport {
	return &MemTransport{
		servers:   make(map[string]proxy.Handler),
		subs:      make(map[string]map[*memSub]func(context.Context, []byte)),
		published: make(map[string][][]byte),
	}
}

func (m *MemTransport) checkOpen(method string) error {
	if m.closed {
		return errors.WrapFatal(errors.ErrAlreadyStopped, "MemTransport", method, "transport closed")
	}
	return nil
}

// Serve registers h as the only responder on subject.
func (m *MemTransport) Serve(_ context.Context, subject, _ string, h proxy.Handler) (proxy.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("Serve"); err != nil {
		return nil, err
	}
	m.servers[subject] = h
	return &memSub{unsubscribe: func() {
		m.mu.Lock()
		delete(m.servers, subject)
		m.mu.Unlock()
	}}, nil
}

// Subscribe registers h for messages published on subject.
func (m *MemTransport) Subscribe(
	ctx context.Context, subject string, h func(context.Context, []byte),
) (proxy.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("Subscribe"); err != nil {
		return nil, err
	}
	if m.subs[subject] == nil {
		m.subs[subject] = make(map[*memSub]func(context.Context, []byte))
	}
	sub := &memSub{}
	sub.unsubscribe = func() {
		m.mu.Lock()
		delete(m.subs[subject], sub)
		m.mu.Unlock()
	}
	m.subs[subject][sub] = h
	return sub, nil
}

// Request calls the responder of subject and waits for its reply.
func (m *MemTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	m.mu.RLock()
	h, ok := m.servers[subject]
	err := m.checkOpen("Request")
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.WrapTransient(fmt.Errorf("%w: no responders on %s", errors.ErrNotFound, subject),
			"MemTransport", "Request", subject)
	}

	replies := make(chan []byte, 1)
	go h(ctx, data, func(b []byte) error {
		replies <- b
		return nil
	})
	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, errors.WrapTransient(errors.Join(errors.ErrTimeout, ctx.Err()), "MemTransport", "Request", subject)
	}
}

// Publish records data and hands it to every subscriber of subject.
func (m *MemTransport) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	if err := m.checkOpen("Publish"); err != nil {
		m.mu.Unlock()
		return err
	}
	m.published[subject] = append(m.published[subject], data)
	handlers := make([]func(context.Context, []byte), 0, len(m.subs[subject]))
	for _, h := range m.subs[subject] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	// Handlers run outside the lock so they can publish themselves.
	for _, h := range handlers {
		h(ctx, data)
	}
	return nil
}

// Served reports whether a responder is registered on subject.
func (m *MemTransport) Served(subject string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.servers[subject]
	return ok
}

// Messages returns a copy of the messages published on subject.
func (m *MemTransport) Messages(subject string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.published[subject]))
	copy(out, m.published[subject])
	return out
}

// MessageCount returns the number of messages published on subject.
func (m *MemTransport) MessageCount(subject string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.published[subject])
}

// Close rejects further calls.
func (m *MemTransport) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// WaitForMessageCount fails t unless count messages arrive on subject
// within timeout.
func WaitForMessageCount(t testing.TB, tr *MemTransport, subject string, count int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if tr.MessageCount(subject) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d messages on %s, got %d", count, subject, tr.MessageCount(subject))
}
