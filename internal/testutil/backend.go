package testutil

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
)

// Call is one command seen by a FakeBackend.
type Call struct {
	Path string
	Args []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// FakeBackend is an in-memory endpoint. It implements cat, unlink, stat,
// test and true against Files and Dirs, and writes through system.Writer.
// Every other program is answered by OnRun.
type FakeBackend struct {
	OnRun func(path string, args []string) ([]byte, error)

	mu       sync.Mutex
	files    map[string]string
	dirs     map[string]bool
	programs map[string]bool
	calls    []Call
}

// NewFakeBackend returns a fake that passes the compatibility probe.
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		files:    map[string]string{},
		dirs:     map[string]bool{"/": true},
		programs: map[string]bool{system.SuPath: true},
	}
	for _, p := range system.RequiredExecutables {
		b.programs[p] = true
	}
	return b
}

// NewLinux returns a fake that reports a Linux kernel and the os-release
// ID and VERSION_CODENAME given.
func NewLinux(id, codename string) *FakeBackend {
	b := NewFakeBackend()
	b.SetFile("/proc/version", "Linux version 6.1.0-18-amd64 (debian-kernel@lists.debian.org) (gcc-12 (Debian 12.2.0-14) 12.2.0, GNU ld (GNU Binutils for Debian) 2.40) #1 SMP PREEMPT_DYNAMIC Debian 6.1.76-1 (2024-02-01)\n")
	release := "ID=" + id + "\n"
	if codename != "" {
		release += "VERSION_CODENAME=" + codename + "\n"
	}
	b.SetFile("/etc/os-release", release)
	return b
}

// RemoveProgram makes the compatibility probe fail for p.
func (b *FakeBackend) RemoveProgram(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.programs, p)
}

// NewSystem returns a System with a resolved OS on top of a fresh fake.
func NewSystem(os ostag.OS) (*system.System, *FakeBackend) {
	b := NewFakeBackend()
	return system.NewWithOS(b, os), b
}

func (b *FakeBackend) Name() string { return "fake" }

// SetFile stores content at p and registers its parent directories.
func (b *FakeBackend) SetFile(p, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[p] = content
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		b.dirs[dir] = true
		if dir == "/" || dir == "." {
			break
		}
	}
}

func (b *FakeBackend) File(p string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.files[p]
	return content, ok
}

func (b *FakeBackend) AddDir(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirs[p] = true
}

// Calls returns a copy of the commands run so far.
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Paths lists the stored files in lexical order.
func (b *FakeBackend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.files))
	for p := range b.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (b *FakeBackend) Run(ctx context.Context, p string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.calls = append(b.calls, Call{Path: p, Args: append([]string(nil), args...)})
	b.mu.Unlock()

	switch {
	case p == system.CatPath && len(args) == 1:
		if content, ok := b.File(args[0]); ok {
			return []byte(content), nil
		}
		return nil, b.fail(p, 1, "/bin/cat: "+args[0]+": No such file or directory")
	case p == system.UnlinkPath && len(args) == 1:
		b.mu.Lock()
		_, ok := b.files[args[0]]
		delete(b.files, args[0])
		b.mu.Unlock()
		if !ok {
			return nil, b.fail(p, 1, "unlink: cannot unlink '"+args[0]+"': No such file or directory")
		}
		return nil, nil
	case p == system.TestPath && len(args) == 2 && args[0] == "-e":
		if b.exists(args[1]) {
			return nil, nil
		}
		return nil, b.fail(p, 1, "")
	case p == system.StatPath && len(args) == 3 && args[0] == "--printf":
		b.mu.Lock()
		_, isFile := b.files[args[2]]
		isDir := b.dirs[args[2]]
		b.mu.Unlock()
		switch {
		case isFile:
			return []byte("regular file"), nil
		case isDir:
			return []byte("directory"), nil
		}
		return nil, b.fail(p, 1, "stat: cannot statx '"+args[2]+"': No such file or directory")
	case p == system.StatPath && len(args) > 0 && !strings.HasPrefix(args[0], "-"):
		for _, arg := range args {
			b.mu.Lock()
			known := b.programs[arg]
			b.mu.Unlock()
			if !known && !b.exists(arg) {
				return nil, b.fail(p, 1, "stat: cannot statx '"+arg+"': No such file or directory")
			}
		}
		return nil, nil
	case p == system.TruePath:
		return nil, nil
	}

	if b.OnRun != nil {
		return b.OnRun(p, args)
	}
	return nil, b.fail(p, 127, p+": not found")
}

func (b *FakeBackend) Write(ctx context.Context, p string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.SetFile(p, string(content))
	return nil
}

func (b *FakeBackend) exists(p string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.files[p]
	return ok || b.dirs[p]
}

func (b *FakeBackend) fail(p string, code int, stderr string) error {
	return system.RunError{Backend: "fake", Path: p, Code: code, Stderr: stderr}
}
