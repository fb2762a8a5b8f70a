package sine

import (
	"context"

	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/proxy"
)

// ProxyProfile declares the Main interface of a remote generator on c.
func ProxyProfile(ctx context.Context, c *proxy.Client) error {
	errs := []error{
		proxy.RemoteRead[Sample](c, CmdGetData),
		proxy.RemoteQualified[int, Sample](c, CmdGetDelayed),
		proxy.RemoteWrite[float64](c, CmdSetAmplitude),
		proxy.RemoteVoid(c, CmdReset),
		proxy.RemoteVoidReturn[int](c, CmdGetTick),
		proxy.RemoteEventWrite[Sample](ctx, c, EvtThreshold),
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Wrap(err, "sine", "ProxyProfile", c.Remote())
	}
	return nil
}
