package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/mtscore/errors"
)

// memTransport is an in-process Transport with exact-match subjects.
type memTransport struct {
	mu      sync.Mutex
	servers map[string]Handler
	subs    map[string]map[*memSub]func(context.Context, []byte)
}

type memSub struct {
	unsubscribe func()
}

func (s *memSub) Unsubscribe() error {
	s.unsubscribe()
	return nil
}

func newMemTransport() *memTransport {
	return &memTransport{
		servers: make(map[string]Handler),
		subs:    make(map[string]map[*memSub]func(context.Context, []byte)),
	}
}

func (m *memTransport) Serve(_ context.Context, subject, _ string, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[subject] = h
	return &memSub{unsubscribe: func() {
		m.mu.Lock()
		delete(m.servers, subject)
		m.mu.Unlock()
	}}, nil
}

func (m *memTransport) Subscribe(_ context.Context, subject string, h func(context.Context, []byte)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	m.mu.Lock()
	h, ok := m.servers[subject]
	m.mu.Unlock()
	if !ok {
		return nil, errors.WrapTransient(fmt.Errorf("%w: no responders on %s", errors.ErrNotFound, subject),
			"memTransport", "Request", subject)
	}

	replies := make(chan []byte, 1)
	h(ctx, data, func(b []byte) error {
		replies <- b
		return nil
	})
	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, errors.WrapTransient(errors.Join(errors.ErrTimeout, ctx.Err()), "memTransport", "Request", subject)
	}
}

func (m *memTransport) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	handlers := make([]func(context.Context, []byte), 0, len(m.subs[subject]))
	for _, h := range m.subs[subject] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(ctx, data)
	}
	return nil
}

func (m *memTransport) served(subject string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.servers[subject]
	return ok
}
