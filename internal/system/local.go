package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/soofff/boofi/internal/sanitize"
)

// LocalOptions configures a LocalBackend.
type LocalOptions struct {
	SuPath  string // Defaults to SuPath; overridden in tests
	TempDir string // Staging directory for writes; defaults to os.TempDir()
}

// LocalBackend runs programs on this host as another user through su. The
// password is handed over on stdin.
type LocalBackend struct {
	cred    Credential
	su      string
	tempDir string
}

func NewLocalBackend(cred Credential, opts LocalOptions) *LocalBackend {
	if opts.SuPath == "" {
		opts.SuPath = SuPath
	}
	return &LocalBackend{cred: cred, su: opts.SuPath, tempDir: opts.TempDir}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) ExtraExecutables() []string { return []string{b.su} }

// Run executes `su <user> -c '<path> <args>'`. The child is started before
// the password writer, and the writer runs on its own goroutine so neither
// side can block the other.
func (b *LocalBackend) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.su, b.cred.Username, "-c", commandLine(path, args))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("local: stdin pipe: %w", err)
	}

	log.Printf("[Local] run %s as %s", describe(path, args), b.cred.Username)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("local: start %s: %w", b.su, err)
	}

	go func() {
		defer stdin.Close()
		if _, err := io.WriteString(stdin, b.cred.Password+"\n"); err != nil && !isClosedPipe(err) {
			log.Printf("[Local] password handoff failed: %v", err)
		}
	}()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("local: wait %s: %w", b.su, err)
		}
		return nil, classifySu(path, exitErr.ExitCode(), stderr.String())
	}
	return stdout.Bytes(), nil
}

// Write stages content in a world-readable temp file and copies it into
// place as the target user, so ownership and mode of an existing file are
// kept.
func (b *LocalBackend) Write(ctx context.Context, path string, content []byte) error {
	tmp, err := os.CreateTemp(b.tempDir, "boofi-*")
	if err != nil {
		return fmt.Errorf("local: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("local: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return fmt.Errorf("local: chmod temp file: %w", err)
	}

	log.Printf("[Local] copy %d bytes to %s", len(content), path)
	_, err = b.Run(ctx, CpPath, "--no-preserve=mode,ownership", tmpPath, path)
	return err
}

// classifySu maps su diagnostics to credential errors. The match is on
// util-linux wording and degrades to RunError for anything else.
func classifySu(path string, code int, stderr string) error {
	lower := strings.ToLower(strings.TrimSpace(stderr))
	switch {
	case strings.Contains(lower, "su: authentication failure"):
		return CredentialError{Reason: ReasonPassword, Detail: sanitize.Diagnostic(stderr)}
	case strings.Contains(lower, "su: user") && strings.Contains(lower, "does not exist"):
		return CredentialError{Reason: ReasonUser, Detail: sanitize.Diagnostic(stderr)}
	}
	log.Printf("[Local] %s exited with code %d", path, code)
	return RunError{Backend: "local", Path: path, Code: code, Stderr: sanitize.Diagnostic(stderr)}
}

func isClosedPipe(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE)
}
