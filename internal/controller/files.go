package controller

import (
	"context"
	"encoding/json"
	"log"
	"path"
	"strconv"
	"strings"

	"github.com/soofff/boofi/internal/apps"
	"github.com/soofff/boofi/internal/files"
	"github.com/soofff/boofi/internal/system"
)

func (c *Controller) FilesHelp() []files.Help {
	return c.files.Help()
}

// ResolveFile picks the handler for p: the one called name when name is
// set, the first handler matching p on the endpoint otherwise. A named
// handler must still match p on the endpoint.
func (c *Controller) ResolveFile(ctx context.Context, cred system.Credential, p, name string) (files.Handler, *system.System, error) {
	return c.resolveFile(ctx, cred, p, name, true)
}

func (c *Controller) resolveFile(ctx context.Context, cred system.Credential, p, name string, matchNamed bool) (files.Handler, *system.System, error) {
	sys, os, err := c.endpoint(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		h, err := c.files.Match(p, os)
		if err != nil {
			return nil, nil, err
		}
		return h, sys, nil
	}
	h, err := c.files.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	if matchNamed && !h.Match(p, os) {
		return nil, nil, files.NotMatchedError{By: files.ByPattern, Value: p}
	}
	return h, sys, nil
}

func (c *Controller) ReadFile(ctx context.Context, cred system.Credential, p, name string) (json.RawMessage, error) {
	h, sys, err := c.ResolveFile(ctx, cred, p, name)
	if err != nil {
		return nil, err
	}
	return h.Read(ctx, p, sys)
}

func (c *Controller) WriteFile(ctx context.Context, cred system.Credential, p, name string, raw json.RawMessage) error {
	h, sys, err := c.ResolveFile(ctx, cred, p, name)
	if err != nil {
		return err
	}
	if err := h.Write(ctx, p, raw, sys); err != nil {
		return err
	}
	log.Printf("[Controller] %s: %s wrote %s via %s", c.name, cred.Username, p, h.Name())
	return nil
}

// DeleteFile unlinks p. A named handler is used as given, without
// matching it against p.
func (c *Controller) DeleteFile(ctx context.Context, cred system.Credential, p, name string) error {
	h, sys, err := c.resolveFile(ctx, cred, p, name, false)
	if err != nil {
		return err
	}
	if err := h.Delete(ctx, p, sys); err != nil {
		return err
	}
	log.Printf("[Controller] %s: %s deleted %s via %s", c.name, cred.Username, p, h.Name())
	return nil
}

// Stat reports the kind of the entry at p as seen by cred.
func (c *Controller) Stat(ctx context.Context, cred system.Credential, p string) (system.FileKind, error) {
	sys, err := c.systems.System(ctx, cred)
	if err != nil {
		return "", err
	}
	return sys.Stat(ctx, p)
}

// DirItem is one entry of a directory listing.
type DirItem struct {
	Name      string `json:"name"`
	Directory bool   `json:"directory"`
	Size      uint64 `json:"size"`
}

// DirEntry pairs a listed item with the file handlers managing it.
// Directories are never managed.
type DirEntry struct {
	Info      DirItem  `json:"info"`
	ManagedBy []string `json:"managed_by"`
}

// ListDirectory lists dir with ls and annotates every file with the
// handlers that match it on the endpoint.
func (c *Controller) ListDirectory(ctx context.Context, cred system.Credential, dir string) ([]DirEntry, error) {
	sys, os, err := c.endpoint(ctx, cred)
	if err != nil {
		return nil, err
	}
	yes := true
	listing, err := apps.Ls(ctx, apps.LsInput{Path: dir, List: &yes, All: &yes, Classify: &yes}, sys)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(listing))
	for _, e := range listing {
		item := dirItem(e)
		managedBy := []string{}
		if !item.Directory {
			managedBy = c.files.ManagedBy(path.Join(dir, item.Name), os)
		}
		entries = append(entries, DirEntry{Info: item, ManagedBy: managedBy})
	}
	return entries, nil
}

// dirItem strips the indicator ls -F appends and the symlink target.
// The entry type comes from the permission string so names that happen to
// end in an indicator character survive.
func dirItem(e apps.LsEntry) DirItem {
	var perm string
	if e.Permissions != nil {
		perm = *e.Permissions
	}
	name := e.Filename
	item := DirItem{}
	switch {
	case strings.HasPrefix(perm, "d"):
		item.Directory = true
		name = strings.TrimSuffix(name, "/")
	case strings.HasPrefix(perm, "l"):
		if i := strings.Index(name, " -> "); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimSuffix(name, "@")
	case strings.HasPrefix(perm, "p"):
		name = strings.TrimSuffix(name, "|")
	case strings.HasPrefix(perm, "s"):
		name = strings.TrimSuffix(name, "=")
	case strings.HasPrefix(perm, "-") && strings.ContainsAny(perm, "xst"):
		name = strings.TrimSuffix(name, "*")
	}
	item.Name = name
	if e.Size != nil {
		// device files report "major," here
		item.Size, _ = strconv.ParseUint(*e.Size, 10, 64)
	}
	return item
}
