package apps

import (
	"fmt"

	"github.com/soofff/boofi/internal/ostag"
)

// Registry is the ordered, immutable set of apps.
type Registry struct {
	apps []App
}

// NewRegistry returns every app in its fixed order.
func NewRegistry() *Registry {
	return &Registry{apps: []App{
		newLs(),
		newSh(),
		newTouch(),
		newUname(),
		newWget(),
	}}
}

// Lookup returns the app called name.
func (r *Registry) Lookup(name string) (App, error) {
	for _, a := range r.apps {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAppNotFound, name)
}

func (r *Registry) List() []App {
	out := make([]App, len(r.apps))
	copy(out, r.apps)
	return out
}

// Help documents every app against os.
func (r *Registry) Help(os ostag.OS) []Help {
	out := make([]Help, 0, len(r.apps))
	for _, a := range r.apps {
		out = append(out, a.Help(os))
	}
	return out
}
