package observability

import (
	"sync"
	"sync/atomic"
)

// Labels identifies one series of a counter.
type Labels struct {
	Service string
	Code    int
}

// RequestCounter counts served HTTP requests per service and status code.
type RequestCounter struct {
	counts sync.Map // map[Labels]*atomic.Uint64
}

func NewRequestCounter() *RequestCounter {
	return &RequestCounter{}
}

// Observe records one response. Requests that never resolved a service are
// counted under an empty service label.
func (c *RequestCounter) Observe(service string, code int) {
	c.counterFor(Labels{Service: service, Code: code}).Add(1)
}

// Snapshot exposes a stable copy of the current counts.
func (c *RequestCounter) Snapshot() map[Labels]uint64 {
	out := make(map[Labels]uint64)
	c.counts.Range(func(key, value any) bool {
		labels, ok := key.(Labels)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Uint64)
		if !ok || counter == nil {
			return true
		}
		out[labels] = counter.Load()
		return true
	})
	return out
}

func (c *RequestCounter) counterFor(labels Labels) *atomic.Uint64 {
	if counter, ok := c.counts.Load(labels); ok {
		return counter.(*atomic.Uint64)
	}
	actual, _ := c.counts.LoadOrStore(labels, &atomic.Uint64{})
	return actual.(*atomic.Uint64)
}
