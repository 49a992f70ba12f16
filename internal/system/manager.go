package system

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// BackendFactory builds the backend for one credential.
type BackendFactory func(cred Credential) (Backend, error)

// LocalFactory returns a factory for su based backends on this host.
func LocalFactory(opts LocalOptions) BackendFactory {
	return func(cred Credential) (Backend, error) {
		return NewLocalBackend(cred, opts), nil
	}
}

// RemoteFactory returns a factory for SSH backends to address.
func RemoteFactory(address string, opts RemoteOptions) BackendFactory {
	return func(cred Credential) (Backend, error) {
		return NewRemoteBackend(address, cred, opts)
	}
}

// Manager lazily resolves the endpoint and caches the result for its
// lifetime.
//
// The first successful call probes the endpoint and detects its OS with the
// caller's credential; the System built there is pinned. Later calls never
// probe or detect again. A caller presenting the pinned credential gets the
// pinned System; any other credential gets a System that shares the pinned
// OS tag but executes as that caller, so commands never run under another
// user's identity.
type Manager struct {
	factory BackendFactory

	mu         sync.Mutex
	pinned     *System
	pinnedCred Credential
}

func NewManager(factory BackendFactory) *Manager {
	return &Manager{factory: factory}
}

// System returns the System for cred, resolving the endpoint on first use.
func (m *Manager) System(ctx context.Context, cred Credential) (*System, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pinned == nil {
		sys, err := m.resolve(ctx, cred)
		if err != nil {
			return nil, err
		}
		m.pinned = sys
		m.pinnedCred = cred
		return sys, nil
	}

	if cred == m.pinnedCred {
		return m.pinned, nil
	}

	backend, err := m.factory(cred)
	if err != nil {
		return nil, fmt.Errorf("system: build backend: %w", err)
	}
	log.Printf("[System] reusing endpoint resolved for %s on behalf of %s", m.pinnedCred.Username, cred.Username)
	return m.pinned.withBackend(backend), nil
}

func (m *Manager) resolve(ctx context.Context, cred Credential) (*System, error) {
	backend, err := m.factory(cred)
	if err != nil {
		return nil, fmt.Errorf("system: build backend: %w", err)
	}
	sys := New(backend)
	if err := sys.Probe(ctx); err != nil {
		return nil, err
	}
	if _, err := sys.DetectOS(ctx); err != nil {
		return nil, err
	}
	return sys, nil
}
