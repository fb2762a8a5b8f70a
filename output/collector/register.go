package collector

import (
	"context"

	"github.com/c360/mtscore/classregister"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/input/sine"
)

// ClassName is the type name sample collectors are created under.
const ClassName = "collector"

// Register adds the collector of sine samples to reg.
func Register(reg *classregister.Registry) error {
	s, err := classregister.NewServices(ClassName,
		classregister.WithDescription[*Collector[sine.Sample]]("JSON lines collector of samples and threshold events"),
		classregister.WithDefaultConstructor(func() (*Collector[sine.Sample], error) {
			return &Collector[sine.Sample]{}, nil
		}),
		classregister.WithDispose(func(c *Collector[sine.Sample]) error {
			if c.Task == nil {
				return nil
			}
			if s := c.State(); s == component.StateFinishing || s == component.StateFinished {
				return nil
			}
			return c.Kill(context.Background())
		}),
	)
	if err != nil {
		return errors.Wrap(err, "collector", "Register", "describe class")
	}
	if _, err := reg.Register(s); err != nil {
		return errors.Wrap(err, "collector", "Register", "register class")
	}
	return nil
}
