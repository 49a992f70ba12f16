package validate

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// IdentRe matches valid identifiers such as service names.
// Must start with alphanumeric, followed by alphanumeric, dots, hyphens, or underscores.
var IdentRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// MaxIdentLen is the maximum length for identifiers.
const MaxIdentLen = 128

// Ident validates a string as a valid identifier.
func Ident(s string) bool {
	return len(s) > 0 && len(s) <= MaxIdentLen && IdentRe.MatchString(s)
}

// HTTPURL ensures the URL uses http or https scheme and has a non-empty host,
// so downloads cannot be pointed at file://, ftp:// or other schemes.
func HTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		// OK
	case "":
		return fmt.Errorf("URL missing scheme: %s", rawURL)
	default:
		return fmt.Errorf("URL scheme %q not allowed (only http/https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL missing host: %s", rawURL)
	}
	return nil
}

// AbsPath accepts absolute, already clean paths without NUL bytes.
// "/etc/../root" and "etc/hosts" are rejected rather than rewritten.
func AbsPath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q is not absolute", p)
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path %q contains a NUL byte", p)
	}
	if path.Clean(p) != p {
		return fmt.Errorf("path %q is not clean", p)
	}
	return nil
}

// MaxHostnameLen is the longest hostname accepted by the kernel.
const MaxHostnameLen = 64

var hostnameLabelRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// Hostname validates s as an RFC 1123 host name of dot separated labels.
func Hostname(s string) error {
	if s == "" || len(s) > MaxHostnameLen {
		return fmt.Errorf("hostname must be 1 to %d characters", MaxHostnameLen)
	}
	for _, label := range strings.Split(s, ".") {
		if !hostnameLabelRe.MatchString(label) {
			return fmt.Errorf("hostname label %q is invalid", label)
		}
	}
	return nil
}
