package sine

import (
	"context"

	"github.com/c360/mtscore/classregister"
	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/errors"
)

// ClassName is the type name generators are created under.
const ClassName = "sine"

// Register adds the generator class to reg.
func Register(reg *classregister.Registry) error {
	s, err := classregister.NewServices(ClassName,
		classregister.WithDescription[*Generator]("Periodic sine wave generator with a sample history"),
		classregister.WithDefaultConstructor(func() (*Generator, error) { return &Generator{}, nil }),
		classregister.WithDispose(func(g *Generator) error {
			if g.Task == nil {
				return nil
			}
			if s := g.State(); s == component.StateFinishing || s == component.StateFinished {
				return nil
			}
			return g.Kill(context.Background())
		}),
	)
	if err != nil {
		return errors.Wrap(err, "sine", "Register", "describe class")
	}
	if _, err := reg.Register(s); err != nil {
		return errors.Wrap(err, "sine", "Register", "register class")
	}
	return nil
}
