// Package componentregistry registers the component classes shipped with
// mtscore and the proxy profiles of their provided interfaces.
package componentregistry

import (
	"errors"
	"sort"

	"github.com/c360/mtscore/classregister"
	pkgerrors "github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/input/sine"
	"github.com/c360/mtscore/output/collector"
	"github.com/c360/mtscore/proxy"
)

// Register adds every built-in class to registry:
//   - sine: periodic generator serving Main
//   - collector: JSON lines collector requiring Source
func Register(registry *classregister.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := sine.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "sine generator registration")
	}
	if err := collector.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "collector registration")
	}
	return nil
}

// profiles maps "<class>.<interface>" to the stubs a proxy client declares.
var profiles = map[string]proxy.Profile{
	sine.ClassName + "." + sine.InterfaceMain: sine.ProxyProfile,
}

// Profile returns the proxy profile for interface iface of class.
func Profile(class, iface string) (proxy.Profile, error) {
	p, ok := profiles[class+"."+iface]
	if !ok {
		return nil, pkgerrors.WrapInvalid(
			pkgerrors.Join(pkgerrors.ErrNotFound, errors.New("no proxy profile for "+class+"."+iface)),
			"ComponentRegistry", "Profile", "profile lookup")
	}
	return p, nil
}

// ProfileNames lists the interfaces that can be imported through a proxy.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
