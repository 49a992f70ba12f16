package system

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/soofff/boofi/internal/ostag"
)

// scriptBackend serves cat from an in-memory filesystem and delegates every
// other command to handle.
type scriptBackend struct {
	mu     sync.Mutex
	files  map[string]string
	calls  []string
	handle func(path string, args []string) ([]byte, error)
}

func (b *scriptBackend) Name() string { return "script" }

func (b *scriptBackend) Run(_ context.Context, path string, args ...string) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, describe(path, args))
	b.mu.Unlock()

	if path == CatPath && len(args) == 1 {
		content, ok := b.files[args[0]]
		if !ok {
			return nil, RunError{Backend: "script", Path: path, Code: 1, Stderr: "No such file or directory"}
		}
		return []byte(content), nil
	}
	if b.handle != nil {
		return b.handle(path, args)
	}
	return nil, nil
}

func (b *scriptBackend) callCount(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

const linuxVersion = "Linux version 6.1.0-13-amd64 (debian-kernel@lists.debian.org) (gcc-12 (Debian 12.2.0-14) 12.2.0, GNU ld (GNU Binutils for Debian) 2.40) #1 SMP PREEMPT_DYNAMIC Debian 6.1.55-1 (2023-09-29)\n"

func TestDetectOS(t *testing.T) {
	cases := []struct {
		name      string
		osRelease string
		want      ostag.OS
	}{
		{"ubuntu codename", "NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_CODENAME=focal\n", ostag.LinuxUbuntuFocal},
		{"ubuntu unknown codename", "NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_CODENAME=jammy\n", ostag.LinuxUbuntu},
		{"debian without codename", "NAME=\"Debian GNU/Linux\"\nID=debian\n", ostag.LinuxDebian},
		{"debian bookworm", "ID=debian\nVERSION_CODENAME=bookworm\n", ostag.LinuxDebianBookworm},
		{"fedora", "NAME=Fedora\nID=fedora\nVERSION_CODENAME=\"\"\n", ostag.LinuxFedora},
		{"unrecognised distro", "NAME=Alpine\nID=alpine\n", ostag.LinuxUnknown},
		{"missing os-release", "", ostag.LinuxUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			files := map[string]string{"/proc/version": linuxVersion}
			if tc.osRelease != "" {
				files["/etc/os-release"] = tc.osRelease
			}
			sys := New(&scriptBackend{files: files})

			if _, err := sys.OS(); !errors.Is(err, ErrOSUnresolved) {
				t.Fatalf("expected ErrOSUnresolved before detection, got %v", err)
			}
			got, err := sys.DetectOS(context.Background())
			if err != nil {
				t.Fatalf("DetectOS: %v", err)
			}
			if got != tc.want {
				t.Fatalf("DetectOS = %s, want %s", got, tc.want)
			}
			if os, err := sys.OS(); err != nil || os != tc.want {
				t.Fatalf("OS() = %s, %v", os, err)
			}
		})
	}
}

func TestDetectOSRequiresLinux(t *testing.T) {
	sys := New(&scriptBackend{files: map[string]string{
		"/proc/version": "FreeBSD version 13 (root@host) (clang) #0\n",
	}})
	if _, err := sys.DetectOS(context.Background()); !errors.Is(err, ErrOSDetectionFailed) {
		t.Fatalf("expected ErrOSDetectionFailed, got %v", err)
	}
	if _, err := sys.OS(); !errors.Is(err, ErrOSUnresolved) {
		t.Fatalf("failed detection must leave the OS unresolved, got %v", err)
	}
}

func TestDetectOSIsRecordedOnce(t *testing.T) {
	backend := &scriptBackend{files: map[string]string{
		"/proc/version":   linuxVersion,
		"/etc/os-release": "ID=debian\nVERSION_CODENAME=buster\n",
	}}
	sys := New(backend)
	for i := 0; i < 3; i++ {
		if _, err := sys.DetectOS(context.Background()); err != nil {
			t.Fatalf("DetectOS: %v", err)
		}
	}
	if n := backend.callCount(CatPath + " /proc/version"); n != 1 {
		t.Fatalf("expected a single detection, got %d reads of /proc/version", n)
	}
}

func TestExists(t *testing.T) {
	backend := &scriptBackend{handle: func(path string, args []string) ([]byte, error) {
		switch args[1] {
		case "/present":
			return nil, nil
		case "/missing":
			return nil, RunError{Path: path, Code: 1}
		}
		return nil, RunError{Path: path, Code: 2, Stderr: "test: extra argument"}
	}}
	sys := NewWithOS(backend, ostag.LinuxDebian)
	ctx := context.Background()

	if ok, err := sys.Exists(ctx, "/present"); err != nil || !ok {
		t.Fatalf("Exists(/present) = %v, %v", ok, err)
	}
	if ok, err := sys.Exists(ctx, "/missing"); err != nil || ok {
		t.Fatalf("Exists(/missing) = %v, %v", ok, err)
	}
	var runErr RunError
	if _, err := sys.Exists(ctx, "/broken"); !errors.As(err, &runErr) || runErr.Code != 2 {
		t.Fatalf("expected exit code 2 to propagate, got %v", err)
	}
}

func TestStat(t *testing.T) {
	kinds := map[string]string{
		"/etc/hosts": "regular file",
		"/etc":       "directory",
		"/dev/null":  "character special file",
		"/weird":     "whiteout",
	}
	backend := &scriptBackend{handle: func(path string, args []string) ([]byte, error) {
		return []byte(kinds[args[2]]), nil
	}}
	sys := NewWithOS(backend, ostag.LinuxAny)
	ctx := context.Background()

	want := map[string]FileKind{"/etc/hosts": KindFile, "/etc": KindDirectory, "/dev/null": KindCharacterDevice}
	for path, kind := range want {
		got, err := sys.Stat(ctx, path)
		if err != nil || got != kind {
			t.Fatalf("Stat(%s) = %s, %v; want %s", path, got, err, kind)
		}
	}
	var kindErr FileKindError
	if _, err := sys.Stat(ctx, "/weird"); !errors.As(err, &kindErr) {
		t.Fatalf("expected FileKindError, got %v", err)
	}
}

func TestWriteUnsupportedWithoutWriter(t *testing.T) {
	sys := NewWithOS(&scriptBackend{}, ostag.LinuxAny)
	var unsupported UnsupportedError
	if err := sys.Write(context.Background(), "/tmp/x", []byte("x")); !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if unsupported.Op != "write" || unsupported.Backend != "script" {
		t.Fatalf("unexpected error %+v", unsupported)
	}
}

func TestProbe(t *testing.T) {
	missing := &scriptBackend{handle: func(path string, args []string) ([]byte, error) {
		return nil, RunError{Path: path, Code: 1, Stderr: "stat: cannot statx '/bin/unlink': No such file or directory"}
	}}
	if err := New(missing).Probe(context.Background()); !errors.Is(err, ErrEndpointIncompatible) {
		t.Fatalf("expected ErrEndpointIncompatible, got %v", err)
	}

	rejected := &scriptBackend{handle: func(string, []string) ([]byte, error) {
		return nil, CredentialError{Reason: ReasonPassword}
	}}
	err := New(rejected).Probe(context.Background())
	if errors.Is(err, ErrEndpointIncompatible) || !IsCredentialError(err) {
		t.Fatalf("credential failures must not be reported as incompatibility, got %v", err)
	}
}

func TestCommandLineQuoting(t *testing.T) {
	got := commandLine("/bin/sh", []string{"-c", "echo 'hi' $HOME"})
	want := `'/bin/sh' '-c' 'echo '\''hi'\'' $HOME'`
	if got != want {
		t.Fatalf("commandLine = %s, want %s", got, want)
	}
}

func TestCredentialStringMasksPassword(t *testing.T) {
	c := NewCredential("alice", "hunter2")
	if s := fmt.Sprint(c); strings.Contains(s, "hunter2") {
		t.Fatalf("credential leaked password: %s", s)
	}
}
