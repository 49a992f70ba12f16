package system

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointIncompatible is returned when the endpoint lacks one of the
	// executables every backend relies on.
	ErrEndpointIncompatible = errors.New("no compatible platform found")
	// ErrOSDetectionFailed is returned when the endpoint kernel is not Linux.
	ErrOSDetectionFailed = errors.New("operating system detection failed")
	// ErrOSUnresolved is returned by System.OS before detection ran.
	ErrOSUnresolved = errors.New("operating system not detected yet")
)

// RunError reports a command that exited with a non-zero status.
type RunError struct {
	Backend string
	Path    string
	Code    int
	Stderr  string
}

func (e RunError) Error() string {
	return fmt.Sprintf("run %s %s with exit code %d and message: %s", e.Backend, e.Path, e.Code, e.Stderr)
}

// CredentialReason is the best-effort classification of an authentication
// failure, derived from backend diagnostics.
type CredentialReason string

const (
	ReasonPassword CredentialReason = "password"
	ReasonUser     CredentialReason = "user"
	ReasonHost     CredentialReason = "host"
	ReasonUnknown  CredentialReason = "unknown"
)

// CredentialError reports a rejected credential or an unreachable endpoint.
type CredentialError struct {
	Reason CredentialReason
	Detail string
}

func (e CredentialError) Error() string {
	switch e.Reason {
	case ReasonPassword:
		return "credential rejected: password is invalid"
	case ReasonUser:
		return "credential rejected: user is invalid"
	case ReasonHost:
		return fmt.Sprintf("endpoint unreachable: %s", e.Detail)
	}
	return fmt.Sprintf("credential rejected: %s", e.Detail)
}

// IsCredentialError returns true when err is (or wraps) a CredentialError.
func IsCredentialError(err error) bool {
	var target CredentialError
	return errors.As(err, &target)
}

// UnsupportedError reports a primitive the backend does not provide.
type UnsupportedError struct {
	Backend string
	Op      string
}

func (e UnsupportedError) Error() string {
	return fmt.Sprintf("%s not supported by %s backend", e.Op, e.Backend)
}

// FileKindError reports stat output that maps to no known FileKind.
type FileKindError struct {
	Path string
	Kind string
}

func (e FileKindError) Error() string {
	return fmt.Sprintf("file type %q of %s unknown", e.Kind, e.Path)
}
