package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/soofff/boofi/internal/hostkeywarn"
	"github.com/soofff/boofi/internal/sanitize"
)

const defaultDialTimeout = 10 * time.Second

// RemoteOptions configures a RemoteBackend.
type RemoteOptions struct {
	KnownHosts  string        // known_hosts file; empty disables host key verification
	DialTimeout time.Duration // Defaults to 10s
}

// RemoteBackend runs programs on another host over SSH. Every call opens
// and closes its own connection.
type RemoteBackend struct {
	address string
	cred    Credential
	config  *ssh.ClientConfig
	timeout time.Duration
}

func NewRemoteBackend(address string, cred Credential, opts RemoteOptions) (*RemoteBackend, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, "22")
	}

	var hostKeys ssh.HostKeyCallback
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("ssh: load known hosts %s: %w", opts.KnownHosts, err)
		}
		hostKeys = cb
	} else {
		hostkeywarn.LogInsecure(address)
		hostKeys = ssh.InsecureIgnoreHostKey()
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	password := cred.Password
	config := &ssh.ClientConfig{
		User: cred.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	return &RemoteBackend{address: address, cred: cred, config: config, timeout: timeout}, nil
}

func (b *RemoteBackend) Name() string { return "ssh" }

func (b *RemoteBackend) Address() string { return b.address }

func (b *RemoteBackend) dial(ctx context.Context) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: b.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", b.address)
	if err != nil {
		return nil, CredentialError{Reason: ReasonHost, Detail: err.Error()}
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, b.address, b.config)
	if err != nil {
		conn.Close()
		return nil, classifyHandshake(err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (b *RemoteBackend) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	client, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh: open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	log.Printf("[SSH] run %s on %s as %s", describe(path, args), b.address, b.cred.Username)
	if err := session.Run(commandLine(path, args)); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			log.Printf("[SSH] %s exited with code %d", path, exitErr.ExitStatus())
			return nil, RunError{Backend: "ssh", Path: path, Code: exitErr.ExitStatus(), Stderr: sanitize.Diagnostic(stderr.String())}
		}
		var missing *ssh.ExitMissingError
		if errors.As(err, &missing) {
			return nil, RunError{Backend: "ssh", Path: path, Code: -1, Stderr: sanitize.Diagnostic(stderr.String())}
		}
		return nil, fmt.Errorf("ssh: run %s: %w", path, err)
	}
	return stdout.Bytes(), nil
}

// Write uploads content through the SFTP subsystem.
func (b *RemoteBackend) Write(ctx context.Context, path string, content []byte) error {
	client, err := b.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("ssh: start sftp: %w", err)
	}
	defer sc.Close()

	log.Printf("[SSH] upload %d bytes to %s:%s", len(content), b.address, path)
	f, err := sc.Create(path)
	if err != nil {
		return fmt.Errorf("ssh: create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("ssh: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ssh: close %s: %w", path, err)
	}
	return nil
}

func classifyHandshake(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return CredentialError{Reason: ReasonPassword, Detail: msg}
	case strings.Contains(msg, "host key"), strings.Contains(msg, "knownhosts"):
		return CredentialError{Reason: ReasonHost, Detail: msg}
	}
	return CredentialError{Reason: ReasonUnknown, Detail: msg}
}
