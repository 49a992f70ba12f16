// Package sanitize cleans text that crosses a trust boundary: command
// diagnostics returned to API callers and secrets written to logs.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxDiagnosticBytes bounds the stderr text carried inside errors.
const MaxDiagnosticBytes = 4096

// Diagnostic prepares command stderr for inclusion in an error: terminal
// escapes are removed, the su password prompt is dropped and the result is
// trimmed and bounded.
func Diagnostic(stderr string) string {
	s := StripControlChars(stderr)
	s = strings.TrimSpace(s)
	if len(s) >= len("password:") && strings.EqualFold(s[:len("password:")], "password:") {
		s = strings.TrimSpace(s[len("password:"):])
	}
	return TruncateUTF8(s, MaxDiagnosticBytes)
}

// TruncateUTF8 truncates s to at most maxBytes bytes without splitting UTF-8 runes.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	truncated := s[:maxBytes]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}

// StripControlChars removes ANSI CSI sequences and control characters other
// than newline and tab.
func StripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '\x1b' {
			j := i + 1
			if j < len(s) && s[j] == '[' {
				j++
				for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
					j++
				}
			}
			i = j + 1
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == '\n' || r == '\t' || (r >= ' ' && !unicode.IsControl(r)) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
