package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// OSRelease is the content of /etc/os-release.
type OSRelease struct {
	Name            string  `json:"name"`
	ID              string  `json:"id"`
	IDLike          *string `json:"id_like"`
	Version         *string `json:"version"`
	VersionID       *string `json:"version_id"`
	VersionCodename *string `json:"version_codename"`
	PrettyName      *string `json:"pretty_name"`
	BuildID         *string `json:"build_id"`
	Variant         *string `json:"variant"`
	VariantID       *string `json:"variant_id"`
	HomeURL         *string `json:"home_url"`
	SupportURL      *string `json:"support_url"`
	BugReportURL    *string `json:"bug_report_url"`
}

// ParseOSRelease parses the KEY=value layout of os-release(5). Values may be
// quoted. ID is required; NAME defaults to "Linux".
func ParseOSRelease(content string) (OSRelease, error) {
	values := map[string]string{}
	for _, line := range lines(content) {
		line = strings.TrimSpace(line)
		if line == "" || isComment(line) {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = unquote(value)
	}

	id, ok := values["ID"]
	if !ok || id == "" {
		return OSRelease{}, parseErr("os-release", 0, "missing ID")
	}
	name := values["NAME"]
	if name == "" {
		name = "Linux"
	}
	opt := func(key string) *string {
		if v, ok := values[key]; ok {
			return &v
		}
		return nil
	}
	return OSRelease{
		Name:            name,
		ID:              id,
		IDLike:          opt("ID_LIKE"),
		Version:         opt("VERSION"),
		VersionID:       opt("VERSION_ID"),
		VersionCodename: opt("VERSION_CODENAME"),
		PrettyName:      opt("PRETTY_NAME"),
		BuildID:         opt("BUILD_ID"),
		Variant:         opt("VARIANT"),
		VariantID:       opt("VARIANT_ID"),
		HomeURL:         opt("HOME_URL"),
		SupportURL:      opt("SUPPORT_URL"),
		BugReportURL:    opt("BUG_REPORT_URL"),
	}, nil
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// HostsLine is one line of /etc/hosts. Exactly one of Comment or Address is
// set; both empty means a blank line.
type HostsLine struct {
	Comment   string   `json:"comment,omitempty"`
	Address   string   `json:"address,omitempty"`
	Hostnames []string `json:"hostnames,omitempty"`
}

func ParseHosts(content string) ([]HostsLine, error) {
	out := []HostsLine{}
	for i, line := range lines(content) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			out = append(out, HostsLine{})
		case isComment(trimmed):
			out = append(out, HostsLine{Comment: trimmed})
		default:
			body, comment, _ := strings.Cut(trimmed, "#")
			fields := strings.Fields(body)
			if len(fields) < 2 {
				return nil, parseErr("hosts", i+1, "address without hostname")
			}
			out = append(out, HostsLine{Address: fields[0], Hostnames: fields[1:]})
			if comment = strings.TrimSpace(comment); comment != "" {
				out = append(out, HostsLine{Comment: "# " + comment})
			}
		}
	}
	return out, nil
}

func FormatHosts(entries []HostsLine) (string, error) {
	var b strings.Builder
	for i, e := range entries {
		switch {
		case e.Address != "":
			if len(e.Hostnames) == 0 {
				return "", fmt.Errorf("hosts entry %d: address %s without hostname", i, e.Address)
			}
			b.WriteString(e.Address + "\t" + strings.Join(e.Hostnames, " "))
		case e.Comment != "":
			if !strings.HasPrefix(e.Comment, "#") {
				b.WriteString("# ")
			}
			b.WriteString(e.Comment)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// PasswdEntry is one line of /etc/passwd.
type PasswdEntry struct {
	User     string `json:"user"`
	Password string `json:"password" desc:"usually x, see /etc/shadow"`
	UserID   int    `json:"user_id"`
	GroupID  int    `json:"group_id"`
	Comment  string `json:"comment" desc:"GECOS field"`
	Home     string `json:"home"`
	Program  string `json:"program" desc:"login shell"`
}

func ParsePasswd(content string) ([]PasswdEntry, error) {
	out := []PasswdEntry{}
	for i, line := range lines(content) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 7 {
			return nil, parseErr("passwd", i+1, "expected 7 fields, got %d", len(parts))
		}
		uid, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, parseErr("passwd", i+1, "user id: %v", err)
		}
		gid, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, parseErr("passwd", i+1, "group id: %v", err)
		}
		out = append(out, PasswdEntry{
			User: parts[0], Password: parts[1], UserID: uid, GroupID: gid,
			Comment: parts[4], Home: parts[5], Program: parts[6],
		})
	}
	return out, nil
}

func FormatPasswd(entries []PasswdEntry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		for _, field := range []string{e.User, e.Password, e.Comment, e.Home, e.Program} {
			if strings.ContainsAny(field, ":\n") {
				return "", fmt.Errorf("passwd entry %s: field %q contains a separator", e.User, field)
			}
		}
		if e.User == "" {
			return "", fmt.Errorf("passwd entry without user")
		}
		fmt.Fprintf(&b, "%s:%s:%d:%d:%s:%s:%s\n", e.User, e.Password, e.UserID, e.GroupID, e.Comment, e.Home, e.Program)
	}
	return b.String(), nil
}

// Mount is one row of /proc/mounts or /etc/fstab.
type Mount struct {
	Device     string   `json:"device" desc:"block device, UUID=, LABEL= or pseudo filesystem"`
	MountPoint string   `json:"mount_point"`
	FsType     string   `json:"fs_type"`
	Options    []string `json:"options"`
	Dump       int      `json:"dump"`
	Pass       int      `json:"pass" desc:"fsck order"`
}

// ParseMounts parses the shared fstab(5) layout. Comments and blank lines are
// skipped; dump and pass default to 0 when absent.
func ParseMounts(content string) ([]Mount, error) {
	out := []Mount{}
	for i, line := range lines(content) {
		if strings.TrimSpace(line) == "" || isComment(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 || len(fields) > 6 {
			return nil, parseErr("mounts", i+1, "expected 4 to 6 fields, got %d", len(fields))
		}
		m := Mount{
			Device:     unescapeOctal(fields[0]),
			MountPoint: unescapeOctal(fields[1]),
			FsType:     fields[2],
			Options:    strings.Split(fields[3], ","),
		}
		var err error
		if len(fields) > 4 {
			if m.Dump, err = strconv.Atoi(fields[4]); err != nil {
				return nil, parseErr("mounts", i+1, "dump: %v", err)
			}
		}
		if len(fields) > 5 {
			if m.Pass, err = strconv.Atoi(fields[5]); err != nil {
				return nil, parseErr("mounts", i+1, "pass: %v", err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func FormatMounts(entries []Mount) (string, error) {
	var b strings.Builder
	for i, m := range entries {
		if m.Device == "" || m.MountPoint == "" || m.FsType == "" {
			return "", fmt.Errorf("mount entry %d: device, mount_point and fs_type are required", i)
		}
		opts := "defaults"
		if len(m.Options) > 0 {
			opts = strings.Join(m.Options, ",")
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%d\n", escapeOctal(m.Device), escapeOctal(m.MountPoint), m.FsType, opts, m.Dump, m.Pass)
	}
	return b.String(), nil
}

var octalEscapes = strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)

func unescapeOctal(s string) string { return octalEscapes.Replace(s) }

func escapeOctal(s string) string {
	return strings.NewReplacer(`\`, `\134`, " ", `\040`, "\t", `\011`, "\n", `\012`).Replace(s)
}
