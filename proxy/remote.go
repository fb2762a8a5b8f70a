package proxy

import (
	"context"
	"encoding/json"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

// RemoteVoid declares a Void command served remotely.
func RemoteVoid(c *Client, name string) error {
	_, err := c.pi.AddCommandVoid(name, func(ctx context.Context) error {
		return c.call(ctx, name, nil, false, nil)
	}, component.NotQueued())
	return err
}

// RemoteWrite declares a Write command served remotely.
func RemoteWrite[A any](c *Client, name string) error {
	_, err := component.AddCommandWrite(c.pi, name, func(ctx context.Context, arg A) error {
		return c.call(ctx, name, arg, true, nil)
	}, component.NotQueued())
	return err
}

// RemoteRead declares a Read command served remotely.
func RemoteRead[R any](c *Client, name string) error {
	_, err := component.AddCommandRead(c.pi, name, func(ctx context.Context) (R, error) {
		var out R
		err := c.call(ctx, name, nil, false, &out)
		return out, err
	}, component.NotQueued())
	return err
}

// RemoteVoidReturn declares a VoidReturn command served remotely.
func RemoteVoidReturn[R any](c *Client, name string) error {
	_, err := component.AddCommandVoidReturn(c.pi, name, func(ctx context.Context) (R, error) {
		var out R
		err := c.call(ctx, name, nil, false, &out)
		return out, err
	}, component.NotQueued())
	return err
}

// RemoteQualified declares a QualifiedRead command served remotely.
func RemoteQualified[A, R any](c *Client, name string) error {
	_, err := component.AddCommandQualifiedRead(c.pi, name, func(ctx context.Context, arg A) (R, error) {
		var out R
		err := c.call(ctx, name, arg, true, &out)
		return out, err
	}, component.NotQueued())
	return err
}

// RemoteWriteReturn declares a WriteReturn command served remotely.
func RemoteWriteReturn[A, R any](c *Client, name string) error {
	_, err := component.AddCommandWriteReturn(c.pi, name, func(ctx context.Context, arg A) (R, error) {
		var out R
		err := c.call(ctx, name, arg, true, &out)
		return out, err
	}, component.NotQueued())
	return err
}

// RemoteEventVoid declares a Void event and re-triggers it locally whenever
// the server publishes it.
func RemoteEventVoid(ctx context.Context, c *Client, name string) error {
	ev, err := c.pi.AddEventVoid(name)
	if err != nil {
		return err
	}
	return c.subscribeEvent(ctx, name, func(ctx context.Context, _ json.RawMessage) error {
		return ev.Trigger(ctx)
	})
}

// RemoteEventWrite declares a Write event carrying A.
func RemoteEventWrite[A any](ctx context.Context, c *Client, name string) error {
	ev, err := component.AddEventWrite[A](c.pi, name)
	if err != nil {
		return err
	}
	return c.subscribeEvent(ctx, name, func(ctx context.Context, payload json.RawMessage) error {
		var v A
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &v); err != nil {
				return errors.WrapInvalid(errors.Join(errors.ErrTypeMismatch, err), "Client", "RemoteEventWrite", name)
			}
		}
		return ev.Trigger(ctx, v)
	})
}

func (c *Client) subscribeEvent(
	ctx context.Context, name string, trigger func(context.Context, json.RawMessage) error,
) error {
	subj := EventSubject(c.prefix, c.server, c.iface, name)
	sub, err := c.transport.Subscribe(ctx, subj, func(msgCtx context.Context, data []byte) {
		var msg eventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Malformed event message", "subject", subj, "error", err)
			return
		}
		if err := trigger(msgCtx, msg.Payload); err != nil {
			c.logger.Warn("Remote event delivery failed", "event", name, "error", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "Client", "subscribeEvent", subj)
	}
	c.track(sub)
	return nil
}

// Profile declares the stubs of one kind of remote interface on a client.
type Profile func(ctx context.Context, c *Client) error
