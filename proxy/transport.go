package proxy

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/c360/mtscore/natsclient"
)

// Handler serves one request. respond may be called later, from another
// goroutine, but at most once.
type Handler func(ctx context.Context, data []byte, respond func([]byte) error)

// Subscription is an active Serve or Subscribe registration.
type Subscription interface {
	Unsubscribe() error
}

// Transport is the messaging surface a proxy needs.
type Transport interface {
	Serve(ctx context.Context, subject, queue string, h Handler) (Subscription, error)
	Subscribe(ctx context.Context, subject string, h func(context.Context, []byte)) (Subscription, error)
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATS adapts a natsclient.Client.
func NATS(client *natsclient.Client) Transport {
	return natsTransport{client}
}

type natsTransport struct {
	client *natsclient.Client
}

type natsSubscription struct {
	client *natsclient.Client
	sub    *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	return s.client.Unsubscribe(s.sub)
}

func (t natsTransport) Serve(ctx context.Context, subject, queue string, h Handler) (Subscription, error) {
	sub, err := t.client.SubscribeMsg(ctx, subject, queue, func(msgCtx context.Context, msg *nats.Msg) {
		h(msgCtx, msg.Data, msg.Respond)
	})
	if err != nil {
		return nil, err
	}
	return natsSubscription{t.client, sub}, nil
}

func (t natsTransport) Subscribe(
	ctx context.Context, subject string, h func(context.Context, []byte),
) (Subscription, error) {
	sub, err := t.client.Subscribe(ctx, subject, h)
	if err != nil {
		return nil, err
	}
	return natsSubscription{t.client, sub}, nil
}

func (t natsTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	return t.client.Request(ctx, subject, data)
}

func (t natsTransport) Publish(ctx context.Context, subject string, data []byte) error {
	return t.client.Publish(ctx, subject, data)
}
