package apps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soofff/boofi/internal/codec"
	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
)

const lsPath = "/bin/ls"

type LsInput struct {
	Path          string `json:"path" desc:"directory or file to list"`
	List          *bool  `json:"list,omitempty" desc:"long listing format (-l)"`
	All           *bool  `json:"all,omitempty" desc:"include entries starting with . (-a)"`
	HumanReadable *bool  `json:"human_readable,omitempty" desc:"print sizes like 1K 234M (-h)"`
	Classify      *bool  `json:"classify,omitempty" desc:"append indicator to entries (-F)"`
}

func (in LsInput) validate() error {
	if in.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// LsEntry is one listed entry. Size and permissions are only set for long
// listings.
type LsEntry struct {
	Filename    string  `json:"filename"`
	Size        *string `json:"size"`
	Permissions *string `json:"permissions"`
}

func newLs() App {
	yes, no := true, false
	size, perm := "1235M", "-rw-------"
	return newTyped("ls", "Use ls to list directory and files.", []ostag.OS{ostag.LinuxAny}, Ls,
		Example{
			Description: "Show files human readable with details.",
			Input:       LsInput{Path: "/etc", List: &yes, All: &no, HumanReadable: &yes},
			Output:      []LsEntry{{Filename: "database.db", Size: &size, Permissions: &perm}},
		},
	)
}

// Ls runs ls on the endpoint and parses its output.
func Ls(ctx context.Context, in LsInput, sys *system.System) ([]LsEntry, error) {
	var args []string
	if isSet(in.All) {
		args = append(args, "-a")
	}
	if isSet(in.List) {
		args = append(args, "-l")
	}
	if isSet(in.HumanReadable) {
		args = append(args, "-h")
	}
	if isSet(in.Classify) {
		args = append(args, "-F")
	}
	args = append(args, in.Path)

	out, err := sys.Run(ctx, lsPath, args...)
	if err != nil {
		return nil, err
	}
	return ParseLs(string(out), isSet(in.List))
}

// ParseLs parses ls output. Long listings skip the "total" line and keep
// everything from the ninth column on as the filename, so symlink targets
// stay attached.
func ParseLs(content string, long bool) ([]LsEntry, error) {
	entries := []LsEntry{}
	for i, line := range strings.Split(content, "\n") {
		if line == "" {
			continue
		}
		if !long {
			entries = append(entries, LsEntry{Filename: line})
			continue
		}
		if strings.HasPrefix(line, "total ") {
			continue
		}
		parts := strings.Fields(line)
		columns := 9
		// Device rows print "major, minor" in place of the size.
		device := strings.HasPrefix(line, "c") || strings.HasPrefix(line, "b")
		if device {
			columns = 10
		}
		if len(parts) < columns {
			return nil, codec.ParseError{Format: "ls", Line: i + 1, Reason: fmt.Sprintf("expected at least %d columns", columns)}
		}
		perm, size := parts[0], parts[4]
		if device {
			size = parts[4] + " " + parts[5]
		}
		entries = append(entries, LsEntry{
			Filename:    strings.Join(parts[columns-1:], " "),
			Size:        &size,
			Permissions: &perm,
		})
	}
	return entries, nil
}

func isSet(b *bool) bool { return b != nil && *b }
