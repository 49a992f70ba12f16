// Package auth issues and resolves short-lived bearer tokens bound to the
// credential that requested them.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/soofff/boofi/internal/sanitize"
	"github.com/soofff/boofi/internal/system"
)

var (
	// ErrNotFound is returned for a token that was never issued, was
	// replaced or has been revoked.
	ErrNotFound = errors.New("token not found")
	// ErrExpired is returned for a token older than the configured ttl.
	ErrExpired = errors.New("token expired")
)

const (
	TokenLength = 16
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

type entry struct {
	token    string
	cred     system.Credential
	issuedAt time.Time
}

// Controller keeps at most one live token per username.
type Controller struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	byToken map[string]*entry
	byUser  map[string]*entry
}

func NewController(ttl time.Duration) *Controller {
	return &Controller{
		ttl:     ttl,
		now:     time.Now,
		byToken: map[string]*entry{},
		byUser:  map[string]*entry{},
	}
}

// InsertOrReplace issues a token for cred, revoking any previous token of
// the same username. Expired entries are swept on every insert.
func (c *Controller) InsertOrReplace(cred system.Credential) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if old, ok := c.byUser[cred.Username]; ok {
		delete(c.byToken, old.token)
	}
	for _, taken := c.byToken[token]; taken; _, taken = c.byToken[token] {
		if token, err = generateToken(); err != nil {
			return "", err
		}
	}
	e := &entry{token: token, cred: cred, issuedAt: c.now()}
	c.byToken[token] = e
	c.byUser[cred.Username] = e
	log.Printf("[Auth] issued token %s for %s", sanitize.MaskSecret(token), cred.Username)
	return token, nil
}

// Get resolves token to the credential it was issued for. An expired token
// is removed.
func (c *Controller) Get(token string) (system.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byToken[token]
	if !ok {
		return system.Credential{}, ErrNotFound
	}
	if c.expired(e) {
		c.removeLocked(e)
		return system.Credential{}, ErrExpired
	}
	return e.cred, nil
}

// Delete revokes token and reports whether it existed.
func (c *Controller) Delete(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byToken[token]
	if !ok {
		return false
	}
	c.removeLocked(e)
	log.Printf("[Auth] revoked token %s for %s", sanitize.MaskSecret(token), e.cred.Username)
	return true
}

// Sweep drops every expired token and returns how many were removed.
func (c *Controller) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Len returns the number of stored tokens, expired ones included.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byToken)
}

func (c *Controller) sweepLocked() int {
	n := 0
	for _, e := range c.byToken {
		if c.expired(e) {
			c.removeLocked(e)
			n++
		}
	}
	return n
}

func (c *Controller) removeLocked(e *entry) {
	delete(c.byToken, e.token)
	if cur, ok := c.byUser[e.cred.Username]; ok && cur == e {
		delete(c.byUser, e.cred.Username)
	}
}

func (c *Controller) expired(e *entry) bool {
	return !c.now().Before(e.issuedAt.Add(c.ttl))
}

// generateToken draws TokenLength characters from alphabet. Bytes at or
// above the largest multiple of the alphabet size are rejected to keep the
// distribution uniform.
func generateToken() (string, error) {
	const limit = 256 - 256%len(alphabet)
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength*2)
	for len(out) < TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}
