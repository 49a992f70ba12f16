// Package system executes commands and accesses files on the managed
// endpoint, either locally as another user or remotely over SSH.
package system

import (
	"context"
	"fmt"
	"strings"
)

// Paths of the executables the agent relies on.
const (
	SuPath     = "/bin/su"
	UnlinkPath = "/bin/unlink"
	StatPath   = "/bin/stat"
	TruePath   = "/bin/true"
	CpPath     = "/bin/cp"
	CatPath    = "/bin/cat"
	ChmodPath  = "/bin/chmod"
	TestPath   = "/bin/test"
)

// RequiredExecutables must exist on every endpoint.
var RequiredExecutables = []string{UnlinkPath, TruePath, CpPath, CatPath, ChmodPath, TestPath}

// Credential identifies the endpoint user commands run as.
type Credential struct {
	Username string
	Password string
}

func NewCredential(username, password string) Credential {
	return Credential{Username: username, Password: password}
}

func (c Credential) String() string {
	return c.Username + ":****"
}

// Backend runs a program on the endpoint and returns its stdout. A non-zero
// exit status is reported as RunError.
type Backend interface {
	Name() string
	Run(ctx context.Context, path string, args ...string) ([]byte, error)
}

// Writer is implemented by backends that can replace file content.
type Writer interface {
	Write(ctx context.Context, path string, content []byte) error
}

// Prober is implemented by backends that need executables beyond
// RequiredExecutables.
type Prober interface {
	ExtraExecutables() []string
}

// FileKind is the type of a filesystem entry.
type FileKind string

const (
	KindFile            FileKind = "file"
	KindDirectory       FileKind = "directory"
	KindSymlink         FileKind = "symlink"
	KindSocket          FileKind = "socket"
	KindBlockDevice     FileKind = "block-device"
	KindCharacterDevice FileKind = "character-device"
	KindNamedPipe       FileKind = "named-pipe"
)

func parseFileKind(path, out string) (FileKind, error) {
	switch strings.TrimSpace(out) {
	case "regular file", "regular empty file":
		return KindFile, nil
	case "directory":
		return KindDirectory, nil
	case "symbolic link":
		return KindSymlink, nil
	case "socket":
		return KindSocket, nil
	case "block special file":
		return KindBlockDevice, nil
	case "character special file":
		return KindCharacterDevice, nil
	case "fifo":
		return KindNamedPipe, nil
	}
	return "", FileKindError{Path: path, Kind: out}
}

// shellQuote quotes s for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// commandLine renders path and args as one shell command.
func commandLine(path string, args []string) string {
	var b strings.Builder
	b.WriteString(shellQuote(path))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

func describe(path string, args []string) string {
	if len(args) == 0 {
		return path
	}
	return fmt.Sprintf("%s %s", path, strings.Join(args, " "))
}
