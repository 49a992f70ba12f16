// Package codec parses and formats the text artifacts exposed as files:
// procfs tables and the configuration files under /etc.
//
// Parsers take the whole file content and return a typed value. Formatters
// exist only for the artifacts that can be written back.
package codec

import (
	"fmt"
	"strings"
)

// ParseError reports content that does not have the expected layout.
type ParseError struct {
	Format string
	Line   int
	Reason string
}

func (e ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %s", e.Format, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Format, e.Reason)
}

func parseErr(format string, line int, reason string, args ...any) error {
	return ParseError{Format: format, Line: line, Reason: fmt.Sprintf(reason, args...)}
}

// lines splits content into lines without the trailing empty element a final
// newline produces.
func lines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}
