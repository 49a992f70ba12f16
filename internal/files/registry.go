package files

import "github.com/soofff/boofi/internal/ostag"

// Registry is the ordered, immutable set of file handlers. Pattern
// matching walks the order and the first match wins, so the catch-all text
// handler stays last.
type Registry struct {
	handlers []Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: []Handler{
		newVersion(),
		newUptime(),
		newLoadAvg(),
		newMeminfo(),
		newMDStat(),
		newSwaps(),
		newPartitions(),
		newMounts(),
		newFilesystems(),
		newCrypto(),
		newCPUInfo(),
		newOSRelease(),
		newHostname(),
		newHosts(),
		newPasswd(),
		newFstab(),
		newCrontab(),
		newYAML(),
		newJSON(),
		newText(),
	}}
}

// Lookup returns the handler called name.
func (r *Registry) Lookup(name string) (Handler, error) {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h, nil
		}
	}
	return nil, NotMatchedError{By: ByName, Value: name}
}

// Match returns the first handler managing path on os.
func (r *Registry) Match(path string, os ostag.OS) (Handler, error) {
	for _, h := range r.handlers {
		if h.Match(path, os) {
			return h, nil
		}
	}
	return nil, NotMatchedError{By: ByPattern, Value: path}
}

// ManagedBy names every handler that matches path on os.
func (r *Registry) ManagedBy(path string, os ostag.OS) []string {
	names := []string{}
	for _, h := range r.handlers {
		if h.Match(path, os) {
			names = append(names, h.Name())
		}
	}
	return names
}

func (r *Registry) List() []Handler {
	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

func (r *Registry) Help() []Help {
	out := make([]Help, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Help())
	}
	return out
}
