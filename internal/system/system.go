package system

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/soofff/boofi/internal/codec"
	"github.com/soofff/boofi/internal/ostag"
)

// System is the resolved endpoint every handler talks to: one backend plus
// the detected operating system. The OS tag is set at most once.
type System struct {
	backend Backend

	mu       sync.RWMutex
	os       ostag.OS
	resolved bool
}

// New wraps backend. The OS stays unresolved until DetectOS runs.
func New(backend Backend) *System {
	return &System{backend: backend}
}

// NewWithOS wraps backend with an already known OS tag.
func NewWithOS(backend Backend, os ostag.OS) *System {
	return &System{backend: backend, os: os, resolved: true}
}

func (s *System) Backend() Backend { return s.backend }

// OS returns the detected tag or ErrOSUnresolved.
func (s *System) OS() (ostag.OS, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.resolved {
		return ostag.Unknown, ErrOSUnresolved
	}
	return s.os, nil
}

// DetectOS identifies the endpoint OS and records it. Later calls return
// the recorded tag without touching the endpoint.
func (s *System) DetectOS(ctx context.Context) (ostag.OS, error) {
	if os, err := s.OS(); err == nil {
		return os, nil
	}
	os, err := detectOS(ctx, s)
	if err != nil {
		return ostag.Unknown, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resolved {
		s.os = os
		s.resolved = true
	}
	return s.os, nil
}

// withBackend returns a System sharing the resolved OS but executing through
// another backend.
func (s *System) withBackend(backend Backend) *System {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &System{backend: backend, os: s.os, resolved: s.resolved}
}

func (s *System) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	return s.backend.Run(ctx, path, args...)
}

func (s *System) Read(ctx context.Context, path string) ([]byte, error) {
	return s.backend.Run(ctx, CatPath, path)
}

func (s *System) ReadString(ctx context.Context, path string) (string, error) {
	data, err := s.Read(ctx, path)
	return string(data), err
}

func (s *System) Write(ctx context.Context, path string, content []byte) error {
	w, ok := s.backend.(Writer)
	if !ok {
		return UnsupportedError{Backend: s.backend.Name(), Op: "write"}
	}
	return w.Write(ctx, path, content)
}

func (s *System) Delete(ctx context.Context, path string) error {
	_, err := s.backend.Run(ctx, UnlinkPath, path)
	return err
}

func (s *System) Stat(ctx context.Context, path string) (FileKind, error) {
	out, err := s.backend.Run(ctx, StatPath, "--printf", "%F", path)
	if err != nil {
		return "", err
	}
	return parseFileKind(path, string(out))
}

// Exists reports whether path exists. test(1) exits with 1 for a missing
// path; any other failure is returned.
func (s *System) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.backend.Run(ctx, TestPath, "-e", path)
	if err == nil {
		return true, nil
	}
	var runErr RunError
	if errors.As(err, &runErr) && runErr.Code == 1 {
		return false, nil
	}
	return false, err
}

func (s *System) VerifyCredential(ctx context.Context) error {
	_, err := s.backend.Run(ctx, TruePath)
	return err
}

// Probe checks that every executable the backend relies on exists.
func (s *System) Probe(ctx context.Context) error {
	executables := append([]string{}, RequiredExecutables...)
	if p, ok := s.backend.(Prober); ok {
		executables = append(executables, p.ExtraExecutables()...)
	}
	if _, err := s.backend.Run(ctx, StatPath, executables...); err != nil {
		if IsCredentialError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrEndpointIncompatible, err)
	}
	log.Printf("[System] %s backend compatibility check successful", s.backend.Name())
	return nil
}

// detectOS requires a Linux kernel and maps /etc/os-release to a tag.
// Ubuntu and Debian are identified by release codename when it is known,
// by their family tag otherwise.
func detectOS(ctx context.Context, s *System) (ostag.OS, error) {
	content, err := s.ReadString(ctx, "/proc/version")
	if err != nil {
		return ostag.Unknown, err
	}
	version, err := codec.ParseVersion(content)
	if err != nil || !strings.Contains(version.Version, "Linux") {
		return ostag.Unknown, ErrOSDetectionFailed
	}

	content, err = s.ReadString(ctx, "/etc/os-release")
	if err != nil {
		log.Printf("[System] os-release unavailable: %v", err)
		return ostag.LinuxUnknown, nil
	}
	release, err := codec.ParseOSRelease(content)
	if err != nil {
		log.Printf("[System] os-release unreadable: %v", err)
		return ostag.LinuxUnknown, nil
	}

	os := ostag.Unknown
	if (release.ID == "ubuntu" || release.ID == "debian") && release.VersionCodename != nil {
		os = ostag.Parse(*release.VersionCodename)
	}
	if os == ostag.Unknown {
		os = ostag.Parse(release.ID)
	}
	if os == ostag.Unknown || os == ostag.LinuxAny {
		os = ostag.LinuxUnknown
	}
	log.Printf("[System] detected %s", os)
	return os, nil
}
