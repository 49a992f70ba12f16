package system

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// startSSHServer runs an SSH server on loopback that executes commands with
// the local shell and serves the sftp subsystem.
func startSSHServer(t *testing.T, user, password string) string {
	t.Helper()
	skipIfNoCoreutils(t)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, config)
		}
	}()
	return ln.Addr().String()
}

func serveSSHConn(conn net.Conn, config *ssh.ServerConfig) {
	sc, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go serveSSHSession(ch, requests)
	}
}

func serveSSHSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			cmd := exec.Command("/bin/sh", "-c", payload.Command)
			cmd.Stdout = ch
			cmd.Stderr = ch.Stderr()
			status := uint32(0)
			if err := cmd.Run(); err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					status = uint32(exitErr.ExitCode())
				} else {
					status = 127
				}
			}
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			server.Serve()
			server.Close()
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func TestRemoteRun(t *testing.T) {
	addr := startSSHServer(t, "alice", "secret")
	b, err := NewRemoteBackend(addr, NewCredential("alice", "secret"), RemoteOptions{})
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}

	out, err := b.Run(context.Background(), "/bin/sh", "-c", "echo hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out) != "hi\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRemoteRunExitCode(t *testing.T) {
	addr := startSSHServer(t, "alice", "secret")
	b, err := NewRemoteBackend(addr, NewCredential("alice", "secret"), RemoteOptions{})
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}

	_, err = b.Run(context.Background(), "/bin/sh", "-c", "echo nope >&2; exit 4")
	var runErr RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.Code != 4 || runErr.Stderr != "nope" || runErr.Backend != "ssh" {
		t.Fatalf("unexpected error %+v", runErr)
	}
}

func TestRemoteWrongPassword(t *testing.T) {
	addr := startSSHServer(t, "alice", "secret")
	b, err := NewRemoteBackend(addr, NewCredential("alice", "wrong"), RemoteOptions{})
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}
	_, err = b.Run(context.Background(), TruePath)
	var credErr CredentialError
	if !errors.As(err, &credErr) || credErr.Reason != ReasonPassword {
		t.Fatalf("expected password credential error, got %v", err)
	}
}

func TestRemoteUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	b, err := NewRemoteBackend(addr, NewCredential("alice", "secret"), RemoteOptions{})
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}
	_, err = b.Run(context.Background(), TruePath)
	var credErr CredentialError
	if !errors.As(err, &credErr) || credErr.Reason != ReasonHost {
		t.Fatalf("expected host credential error, got %v", err)
	}
}

func TestRemoteDefaultPort(t *testing.T) {
	b, err := NewRemoteBackend("example.internal", NewCredential("alice", "secret"), RemoteOptions{})
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}
	if b.Address() != "example.internal:22" {
		t.Fatalf("address = %s", b.Address())
	}
}

func TestRemoteMissingKnownHosts(t *testing.T) {
	_, err := NewRemoteBackend("127.0.0.1:22", NewCredential("alice", "secret"), RemoteOptions{
		KnownHosts: filepath.Join(t.TempDir(), "absent"),
	})
	if err == nil {
		t.Fatal("expected error for unreadable known_hosts")
	}
}

func TestRemoteWriteAndRead(t *testing.T) {
	addr := startSSHServer(t, "alice", "secret")
	b, err := NewRemoteBackend(addr, NewCredential("alice", "secret"), RemoteOptions{})
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}
	sys := New(b)
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "hosts")

	if err := sys.Write(ctx, target, []byte("127.0.0.1 localhost\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := sys.ReadString(ctx, target)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "127.0.0.1 localhost\n" {
		t.Fatalf("read back %q", got)
	}
	if ok, err := sys.Exists(ctx, target); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}
