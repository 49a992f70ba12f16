package apps

import (
	"context"
	"regexp"
	"strings"

	"github.com/soofff/boofi/internal/codec"
	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
)

const unamePath = "/bin/uname"

// Uname is the parsed output of uname -a. GNU uname leaves out processor
// and hardware platform when they are unknown.
type Uname struct {
	KernelName       string  `json:"kernel_name"`
	Nodename         string  `json:"nodename"`
	KernelRelease    string  `json:"kernel_release"`
	KernelVersion    string  `json:"kernel_version"`
	Machine          string  `json:"machine"`
	Processor        *string `json:"processor"`
	HardwarePlatform *string `json:"hardware_platform"`
	OperatingSystem  string  `json:"operating_system"`
}

func newUname() App {
	proc, platform := "x86_64", "x86_64"
	return newTyped("uname", "operating system information. currently -a supported", []ostag.OS{ostag.LinuxAny},
		func(ctx context.Context, _ Empty, sys *system.System) (Uname, error) {
			out, err := sys.Run(ctx, unamePath, "-a")
			if err != nil {
				return Uname{}, err
			}
			return ParseUname(string(out))
		},
		Example{
			Description: "get linux kernel information",
			Input:       Empty{},
			Output: Uname{
				KernelName:       "Linux",
				Nodename:         "build-host",
				KernelRelease:    "5.15.0-78-generic",
				KernelVersion:    "#85~20.04.1-Ubuntu SMP Mon Jul 17 09:42:39 UTC 2023",
				Machine:          "x86_64",
				Processor:        &proc,
				HardwarePlatform: &platform,
				OperatingSystem:  "GNU/Linux",
			},
		},
	)
}

// archRe matches machine, processor and platform names such as x86_64,
// aarch64 or armv7l. Kernel version strings end in a year or a
// parenthesised date, which never match.
var archRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ParseUname splits uname -a output. The first three columns are fixed;
// the operating system is the last column and up to three architecture
// columns precede it. Everything in between is the kernel version.
func ParseUname(content string) (Uname, error) {
	fields := strings.Fields(content)
	if len(fields) < 6 {
		return Uname{}, codec.ParseError{Format: "uname", Line: 1, Reason: "expected at least 6 columns"}
	}
	u := Uname{
		KernelName:      fields[0],
		Nodename:        fields[1],
		KernelRelease:   fields[2],
		OperatingSystem: fields[len(fields)-1],
	}
	rest := fields[3 : len(fields)-1]

	var arch []string
	for len(arch) < 3 && len(rest) > 1 && archRe.MatchString(rest[len(rest)-1]) {
		arch = append([]string{rest[len(rest)-1]}, arch...)
		rest = rest[:len(rest)-1]
	}
	if len(arch) == 0 {
		return Uname{}, codec.ParseError{Format: "uname", Line: 1, Reason: "missing machine"}
	}
	u.Machine = arch[0]
	if len(arch) > 1 {
		u.Processor = &arch[1]
	}
	if len(arch) > 2 {
		u.HardwarePlatform = &arch[2]
	}
	u.KernelVersion = strings.Join(rest, " ")
	return u, nil
}
