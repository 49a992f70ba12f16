package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soofff/boofi/internal/apps"
	"github.com/soofff/boofi/internal/codec"
	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/system"
	"github.com/soofff/boofi/internal/validate"
)

func procFile[O any](name, description, path string, parse func(string) (O, error), examples ...Example) Handler {
	return &handler[apps.Empty, O]{
		base: base{
			name:         name,
			description:  description,
			capabilities: readOnly,
			patterns:     []Pattern{PathPattern(path, ostag.LinuxAny)},
			examples:     examples,
		},
		read: parsed(parse),
	}
}

func newVersion() Handler {
	return procFile("version", "Kernel version and build information", "/proc/version", codec.ParseVersion,
		Example{Capability: CapRead, Description: "Read kernel version", Output: codec.Version{
			Version:      "Linux version 5.15.0-76-generic",
			CompiledBy:   "buildd",
			CompiledHost: "lcy02-amd64-019",
			Compiler:     "gcc (Ubuntu 11.3.0-1ubuntu1~22.04.1) 11.3.0, GNU ld (GNU Binutils for Ubuntu) 2.38",
		}},
	)
}

func newUptime() Handler {
	return procFile("uptime", "Get uptime and idle time of each cpu (total) in seconds", "/proc/uptime", codec.ParseUptime,
		Example{Capability: CapRead, Description: "Read uptime", Output: codec.Uptime{Uptime: 2741.31, Idle: 10466.44}},
	)
}

func newLoadAvg() Handler {
	return procFile("loadavg", "Get load average", "/proc/loadavg", codec.ParseLoadAvg,
		Example{Capability: CapRead, Description: "Read load average", Output: codec.LoadAvg{
			Avg1: 0.25, Avg5: 0.3, Avg15: 0.27, RunningProcesses: 1, TotalProcesses: 612, RecentPID: 4821,
		}},
	)
}

func newMeminfo() Handler {
	return procFile("meminfo", "Memory information", "/proc/meminfo", codec.ParseMeminfo)
}

func newSwaps() Handler {
	return procFile("swaps", "Swap information", "/proc/swaps", codec.ParseSwaps)
}

func newMounts() Handler {
	return procFile("mounts", "Mount information", "/proc/mounts", codec.ParseMounts)
}

func newFilesystems() Handler {
	return procFile("filesystems", "Get filesystems supported by the kernel", "/proc/filesystems", codec.ParseFilesystems)
}

func newMDStat() Handler {
	return procFile("mdstat", "Software raid arrays and their rebuild progress", "/proc/mdstat", codec.ParseMDStat,
		Example{Capability: CapRead, Description: "Single raid1 array in recovery", Output: codec.MDStat{
			Personalities: []string{"raid0", "raid1"},
			Arrays: []codec.MDArray{{
				Name:     "md0",
				State:    "active",
				Level:    "raid1",
				Devices:  []codec.MDDevice{{Name: "sda", Number: 0}, {Name: "sdb", Number: 2}},
				Blocks:   2353450,
				Recovery: &codec.MDRecovery{
					Action: "recovery", Progress: 10, ProgressBlocks: 235345, Finish: "42min", Speed: "100K/sec",
				},
			}},
		}},
	)
}

func newPartitions() Handler {
	return procFile("partitions", "Partition information", "/proc/partitions", codec.ParsePartitions,
		Example{Capability: CapRead, Description: "Single partition", Output: []codec.Partition{
			{Major: 8, Minor: 1, Blocks: 524288, Name: "sda1"},
		}},
	)
}

func newCrypto() Handler {
	blockSize, digestSize := 1, 2
	return procFile("crypto", "Cryptographic algorithms registered in the kernel", "/proc/crypto", codec.ParseCrypto,
		Example{Capability: CapRead, Description: "Single hash", Output: []codec.CryptoAlgorithm{{
			Name: "crct10dif", Driver: "crct10dif-pclmul", Module: "crct10dif_pclmul", Priority: 200, RefCount: 2,
			SelfTest: "passed", Type: "shash", BlockSize: &blockSize, DigestSize: &digestSize,
		}}},
	)
}

func newCPUInfo() Handler {
	return procFile("cpuinfo", "Get information about each processor", "/proc/cpuinfo", codec.ParseCPUInfo,
		Example{Capability: CapRead, Description: "Single processor", Output: []codec.CPU{{
			Processor: 0, VendorID: "GenuineIntel", CPUFamily: 6, Model: 158, ModelName: "Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz",
			CPUMHz: 3192.0, CacheSize: "12288 KB", CPUCores: 1, FPU: true, FPUException: true, WP: true,
			Flags: []string{"fpu", "sse", "aes"}, Bugs: []string{}, BogoMIPS: 6384.0, Extra: map[string]string{},
		}}},
	)
}

func newOSRelease() Handler {
	return &handler[apps.Empty, codec.OSRelease]{
		base: base{
			name:         "os_release",
			description:  "read os-release file",
			capabilities: readOnly,
			patterns: []Pattern{
				PathPattern("/etc/os-release", ostag.LinuxAny),
				PathPattern("/usr/lib/os-release", ostag.LinuxAny),
			},
		},
		read: parsed(codec.ParseOSRelease),
	}
}

type HostnameInput struct {
	Hostname string `json:"hostname"`
}

func newHostname() Handler {
	return &handler[HostnameInput, string]{
		base: base{
			name:         "hostname",
			description:  "Get or set hostname",
			capabilities: readWrite,
			patterns:     []Pattern{PathPattern("/etc/hostname", ostag.LinuxAny)},
			examples: []Example{
				{Capability: CapRead, Description: "Read hostname", Output: "web01\n"},
				{Capability: CapWrite, Description: "Set hostname", Input: HostnameInput{Hostname: "web01"}},
			},
		},
		read: readText,
		write: func(ctx context.Context, path string, in HostnameInput, sys *system.System) error {
			name := strings.TrimSpace(in.Hostname)
			if err := validate.Hostname(name); err != nil {
				return apps.DeserializeError{Reason: err.Error()}
			}
			return sys.Write(ctx, path, []byte(name+"\n"))
		},
	}
}

func newHosts() Handler {
	return &handler[[]codec.HostsLine, []codec.HostsLine]{
		base: base{
			name:         "hosts",
			description:  "Manage hosts file. Preserve comments and blank lines.",
			capabilities: readWrite,
			patterns:     []Pattern{PathPattern("/etc/hosts", ostag.LinuxAny)},
			examples: []Example{{
				Capability:  CapWrite,
				Description: "Replace hosts file",
				Input: []codec.HostsLine{
					{Comment: "# static entries"},
					{Address: "127.0.0.1", Hostnames: []string{"localhost"}},
				},
			}},
		},
		read:  parsed(codec.ParseHosts),
		write: formatted(codec.FormatHosts),
	}
}

func newPasswd() Handler {
	return &handler[[]codec.PasswdEntry, []codec.PasswdEntry]{
		base: base{
			name:         "passwd",
			description:  "Manage passwd file.",
			capabilities: readWrite,
			patterns:     []Pattern{PathPattern("/etc/passwd", ostag.LinuxAny)},
		},
		read:  parsed(codec.ParsePasswd),
		write: formatted(codec.FormatPasswd),
	}
}

func newFstab() Handler {
	return &handler[[]codec.Mount, []codec.Mount]{
		base: base{
			name:         "fstab",
			description:  "Read and write fstab file. Input and output are equal.",
			capabilities: readWrite,
			patterns:     []Pattern{PathPattern("/etc/fstab", ostag.LinuxAny)},
			examples: []Example{{
				Capability:  CapWrite,
				Description: "Mount root by UUID",
				Input: []codec.Mount{{
					Device: "UUID=0a3407de-014b-458b-b5c1-848e92a327a3", MountPoint: "/",
					FsType: "ext4", Options: []string{"errors=remount-ro"}, Dump: 0, Pass: 1,
				}},
			}},
		},
		read:  parsed(codec.ParseMounts),
		write: formatted(codec.FormatMounts),
	}
}

func newCrontab() Handler {
	return &handler[[]codec.CrontabLine, []codec.CrontabLine]{
		base: base{
			name:         "crontab",
			description:  "Read and write system crontab files",
			capabilities: readWrite,
			patterns: []Pattern{
				PathPattern("/etc/crontab", ostag.LinuxAny),
				RegexPattern(`^/etc/cron\.d/[^/]+$`, ostag.LinuxAny),
			},
			examples: []Example{{
				Capability:  CapWrite,
				Description: "Run a job every five minutes",
				Input: []codec.CrontabLine{
					{Variable: &codec.CrontabVariable{Name: "SHELL", Value: "/bin/sh"}},
					{Job: &codec.CrontabJob{Schedule: "*/5 * * * *", User: "root", Command: "/usr/local/bin/backup"}},
				},
			}},
		},
		read:  parsed(codec.ParseCrontab),
		write: formatted(codec.FormatCrontab),
	}
}

func newYAML() Handler {
	return &handler[json.RawMessage, any]{
		base: base{
			name:         "yaml",
			description:  "Read or write yaml file",
			capabilities: readWrite,
			patterns:     []Pattern{RegexPattern(`^.*\.(yaml|YAML|yml|YML)$`, ostag.LinuxAny)},
			examples: []Example{
				{Capability: CapRead, Description: "simple yaml", Output: map[string]string{"hello": "world"}},
				{Capability: CapWrite, Description: "simple yaml", Input: map[string]string{"hello": "world"}},
			},
		},
		read: func(ctx context.Context, path string, sys *system.System) (any, error) {
			data, err := sys.Read(ctx, path)
			if err != nil {
				return nil, err
			}
			var v any
			if err := yaml.Unmarshal(data, &v); err != nil {
				return nil, codec.ParseError{Format: "yaml", Reason: err.Error()}
			}
			return jsonCompatible(v), nil
		},
		write: func(ctx context.Context, path string, in json.RawMessage, sys *system.System) error {
			var v any
			if err := json.Unmarshal(in, &v); err != nil {
				return apps.DeserializeError{Reason: err.Error()}
			}
			data, err := yaml.Marshal(v)
			if err != nil {
				return apps.DeserializeError{Reason: err.Error()}
			}
			return sys.Write(ctx, path, data)
		},
	}
}

// jsonCompatible converts maps with non-string keys, which yaml allows, to
// string keyed maps.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = jsonCompatible(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = jsonCompatible(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = jsonCompatible(item)
		}
		return t
	}
	return v
}

func newJSON() Handler {
	return &handler[json.RawMessage, json.RawMessage]{
		base: base{
			name:         "json",
			description:  "Read or write json file",
			capabilities: readWrite,
			patterns:     []Pattern{RegexPattern(`^.*\.(json|JSON)$`, ostag.LinuxAny)},
			examples: []Example{
				{Capability: CapRead, Description: "simple json", Output: map[string]string{"hello": "world"}},
				{Capability: CapWrite, Description: "simple json", Input: map[string]string{"hello": "world"}},
			},
		},
		read: func(ctx context.Context, path string, sys *system.System) (json.RawMessage, error) {
			data, err := sys.Read(ctx, path)
			if err != nil {
				return nil, err
			}
			if !json.Valid(data) {
				return nil, codec.ParseError{Format: "json", Reason: "invalid json document"}
			}
			return json.RawMessage(bytes.TrimSpace(data)), nil
		},
		write: func(ctx context.Context, path string, in json.RawMessage, sys *system.System) error {
			var out bytes.Buffer
			if err := json.Indent(&out, in, "", "  "); err != nil {
				return apps.DeserializeError{Reason: err.Error()}
			}
			out.WriteByte('\n')
			return sys.Write(ctx, path, out.Bytes())
		},
	}
}

type TextInput struct {
	Content string `json:"content"`
}

func newText() Handler {
	return &handler[TextInput, string]{
		base: base{
			name:         "text",
			description:  "Get text files, create new text file or replace content.",
			capabilities: readWrite,
			patterns:     []Pattern{RegexPattern(`.*`, ostag.LinuxAny)},
			examples: []Example{
				{Capability: CapRead, Description: "Text file", Output: "Some text\nAnd more\n"},
				{Capability: CapWrite, Description: "Create new text file", Input: TextInput{Content: "A new text file\n"}},
				{Capability: CapDelete, Description: "Delete the file"},
			},
		},
		read: readText,
		write: func(ctx context.Context, path string, in TextInput, sys *system.System) error {
			return sys.Write(ctx, path, []byte(in.Content))
		},
	}
}

func readText(ctx context.Context, path string, sys *system.System) (string, error) {
	return sys.ReadString(ctx, path)
}
