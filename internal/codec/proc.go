package codec

import (
	"slices"
	"strconv"
	"strings"
)

// Version is the content of /proc/version.
type Version struct {
	Version      string `json:"version" desc:"kernel version string"`
	CompiledBy   string `json:"compiled_by" desc:"user that built the kernel"`
	CompiledHost string `json:"compiled_host" desc:"host the kernel was built on"`
	Compiler     string `json:"compiler" desc:"compiler and linker versions"`
}

// ParseVersion parses /proc/version, e.g.
// "Linux version 5.15.0-76-generic (buildd@lcy02-amd64-019) (gcc ...) #83-Ubuntu SMP ...".
func ParseVersion(content string) (Version, error) {
	version, rest, ok := strings.Cut(content, " (")
	if !ok {
		return Version{}, parseErr("version", 0, "missing version")
	}
	compiledBy, rest, ok := strings.Cut(rest, "@")
	if !ok {
		return Version{}, parseErr("version", 0, "missing builder")
	}
	host, rest, ok := strings.Cut(rest, ") (")
	if !ok {
		return Version{}, parseErr("version", 0, "missing build host")
	}
	idx := strings.LastIndex(rest, ") ")
	if idx < 0 {
		return Version{}, parseErr("version", 0, "missing compiler")
	}
	return Version{
		Version:      version,
		CompiledBy:   compiledBy,
		CompiledHost: host,
		Compiler:     rest[:idx],
	}, nil
}

// Uptime is the content of /proc/uptime in seconds.
type Uptime struct {
	Uptime float64 `json:"uptime" desc:"seconds since boot"`
	Idle   float64 `json:"idle" desc:"idle seconds summed over all cpus"`
}

func ParseUptime(content string) (Uptime, error) {
	fields := strings.Fields(content)
	if len(fields) < 2 {
		return Uptime{}, parseErr("uptime", 0, "expected 2 fields, got %d", len(fields))
	}
	up, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Uptime{}, parseErr("uptime", 0, "uptime: %v", err)
	}
	idle, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Uptime{}, parseErr("uptime", 0, "idle: %v", err)
	}
	return Uptime{Uptime: up, Idle: idle}, nil
}

// LoadAvg is the content of /proc/loadavg.
type LoadAvg struct {
	Avg1             float64 `json:"avg1" desc:"load average over 1 minute"`
	Avg5             float64 `json:"avg5" desc:"load average over 5 minutes"`
	Avg15            float64 `json:"avg15" desc:"load average over 15 minutes"`
	RunningProcesses int     `json:"current_running_processes" desc:"runnable scheduling entities"`
	TotalProcesses   int     `json:"total_processes" desc:"existing scheduling entities"`
	RecentPID        int     `json:"recent_pid" desc:"most recently created pid"`
}

func ParseLoadAvg(content string) (LoadAvg, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(content), func(r rune) bool {
		return r == ' ' || r == '/'
	})
	if len(fields) != 6 {
		return LoadAvg{}, parseErr("loadavg", 0, "expected 6 fields, got %d", len(fields))
	}
	var (
		out  LoadAvg
		err  error
		errs [6]error
	)
	out.Avg1, errs[0] = strconv.ParseFloat(fields[0], 64)
	out.Avg5, errs[1] = strconv.ParseFloat(fields[1], 64)
	out.Avg15, errs[2] = strconv.ParseFloat(fields[2], 64)
	out.RunningProcesses, errs[3] = strconv.Atoi(fields[3])
	out.TotalProcesses, errs[4] = strconv.Atoi(fields[4])
	out.RecentPID, errs[5] = strconv.Atoi(fields[5])
	for i, e := range errs {
		if e != nil {
			err = parseErr("loadavg", 0, "field %d: %v", i+1, e)
			break
		}
	}
	return out, err
}

// Meminfo is the content of /proc/meminfo. Values are in kB; HugePages_*
// counters are page counts. Keys without a dedicated field land in Extra.
type Meminfo struct {
	MemTotal     uint64            `json:"mem_total"`
	MemFree      uint64            `json:"mem_free"`
	MemAvailable uint64            `json:"mem_available"`
	Buffers      uint64            `json:"buffers"`
	Cached       uint64            `json:"cached"`
	SwapCached   uint64            `json:"swap_cached"`
	Active       uint64            `json:"active"`
	Inactive     uint64            `json:"inactive"`
	SwapTotal    uint64            `json:"swap_total"`
	SwapFree     uint64            `json:"swap_free"`
	Dirty        uint64            `json:"dirty"`
	Shmem        uint64            `json:"shmem"`
	Slab         uint64            `json:"slab"`
	Extra        map[string]uint64 `json:"extra" desc:"remaining counters keyed by their /proc/meminfo name"`
}

func ParseMeminfo(content string) (Meminfo, error) {
	out := Meminfo{Extra: map[string]uint64{}}
	known := map[string]*uint64{
		"MemTotal":     &out.MemTotal,
		"MemFree":      &out.MemFree,
		"MemAvailable": &out.MemAvailable,
		"Buffers":      &out.Buffers,
		"Cached":       &out.Cached,
		"SwapCached":   &out.SwapCached,
		"Active":       &out.Active,
		"Inactive":     &out.Inactive,
		"SwapTotal":    &out.SwapTotal,
		"SwapFree":     &out.SwapFree,
		"Dirty":        &out.Dirty,
		"Shmem":        &out.Shmem,
		"Slab":         &out.Slab,
	}
	for i, line := range lines(content) {
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			return Meminfo{}, parseErr("meminfo", i+1, "missing separator")
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return Meminfo{}, parseErr("meminfo", i+1, "missing value for %s", key)
		}
		value, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return Meminfo{}, parseErr("meminfo", i+1, "%s: %v", key, err)
		}
		if dst, ok := known[key]; ok {
			*dst = value
			continue
		}
		out.Extra[key] = value
	}
	return out, nil
}

// Swap is one row of /proc/swaps.
type Swap struct {
	Filename string `json:"filename"`
	Type     string `json:"type" desc:"partition or file"`
	Size     uint64 `json:"size" desc:"kB"`
	Used     uint64 `json:"used" desc:"kB"`
	Priority int    `json:"priority"`
}

func ParseSwaps(content string) ([]Swap, error) {
	out := []Swap{}
	for i, line := range lines(content) {
		if i == 0 && strings.HasPrefix(line, "Filename") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, parseErr("swaps", i+1, "expected 5 fields, got %d", len(fields))
		}
		size, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, parseErr("swaps", i+1, "size: %v", err)
		}
		used, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return nil, parseErr("swaps", i+1, "used: %v", err)
		}
		prio, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, parseErr("swaps", i+1, "priority: %v", err)
		}
		out = append(out, Swap{Filename: fields[0], Type: fields[1], Size: size, Used: used, Priority: prio})
	}
	return out, nil
}

// Filesystem is one row of /proc/filesystems.
type Filesystem struct {
	Name  string `json:"name"`
	NoDev bool   `json:"nodev" desc:"true when no block device is required"`
}

func ParseFilesystems(content string) ([]Filesystem, error) {
	out := []Filesystem{}
	for i, line := range lines(content) {
		fields := strings.Fields(line)
		switch {
		case len(fields) == 1:
			out = append(out, Filesystem{Name: fields[0]})
		case len(fields) == 2 && fields[0] == "nodev":
			out = append(out, Filesystem{Name: fields[1], NoDev: true})
		default:
			return nil, parseErr("filesystems", i+1, "unexpected row %q", line)
		}
	}
	return out, nil
}

// Partition is one row of /proc/partitions.
type Partition struct {
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Blocks uint64 `json:"blocks" desc:"size in 1 KiB blocks"`
	Name   string `json:"name"`
}

func ParsePartitions(content string) ([]Partition, error) {
	out := []Partition{}
	for i, line := range lines(content) {
		fields := strings.Fields(line)
		if len(fields) == 0 || slices.Contains(fields, "#blocks") {
			continue
		}
		if len(fields) != 4 {
			return nil, parseErr("partitions", i+1, "expected 4 fields, got %d", len(fields))
		}
		major, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, parseErr("partitions", i+1, "major: %v", err)
		}
		minor, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, parseErr("partitions", i+1, "minor: %v", err)
		}
		blocks, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, parseErr("partitions", i+1, "blocks: %v", err)
		}
		out = append(out, Partition{Major: major, Minor: minor, Blocks: blocks, Name: fields[3]})
	}
	return out, nil
}

// keyValue is one "key : value" line of a blank-line separated record.
type keyValue struct {
	line  int
	key   string
	value string
}

// records splits content into blank-line separated records of
// "key : value" lines. Keys are lowercased with spaces turned into
// underscores.
func records(format, content string) ([][]keyValue, error) {
	var (
		out     [][]keyValue
		current []keyValue
	)
	for i, line := range lines(content) {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				out = append(out, current)
				current = nil
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, parseErr(format, i+1, "missing separator")
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		current = append(current, keyValue{line: i + 1, key: key, value: strings.TrimSpace(value)})
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out, nil
}

// CPU is one processor block of /proc/cpuinfo. Fields the kernel does not
// print for the architecture stay zero; unknown keys land in Extra.
type CPU struct {
	Processor      int               `json:"processor"`
	VendorID       string            `json:"vendor_id"`
	CPUFamily      int               `json:"cpu_family"`
	Model          int               `json:"model"`
	ModelName      string            `json:"model_name"`
	Stepping       int               `json:"stepping"`
	Microcode      string            `json:"microcode"`
	CPUMHz         float64           `json:"cpu_mhz"`
	CacheSize      string            `json:"cache_size"`
	PhysicalID     int               `json:"physical_id"`
	Siblings       int               `json:"siblings"`
	CoreID         int               `json:"core_id"`
	CPUCores       int               `json:"cpu_cores"`
	APICID         int               `json:"apicid"`
	InitialAPICID  int               `json:"initial_apicid"`
	FPU            bool              `json:"fpu"`
	FPUException   bool              `json:"fpu_exception"`
	CPUIDLevel     int               `json:"cpuid_level"`
	WP             bool              `json:"wp"`
	Flags          []string          `json:"flags"`
	Bugs           []string          `json:"bugs"`
	BogoMIPS       float64           `json:"bogomips"`
	TLBSize        string            `json:"tlb_size"`
	ClflushSize    int               `json:"clflush_size"`
	CacheAlignment int               `json:"cache_alignment"`
	AddressSizes   string            `json:"address_sizes"`
	Extra          map[string]string `json:"extra" desc:"remaining keys, lowercased with underscores"`
}

// ParseCPUInfo parses /proc/cpuinfo. Blocks without a processor number,
// such as the board summary some architectures append, are skipped.
func ParseCPUInfo(content string) ([]CPU, error) {
	recs, err := records("cpuinfo", content)
	if err != nil {
		return nil, err
	}
	out := []CPU{}
	for _, rec := range recs {
		if rec[0].key != "processor" {
			continue
		}
		cpu := CPU{Flags: []string{}, Bugs: []string{}, Extra: map[string]string{}}
		ints := map[string]*int{
			"processor":       &cpu.Processor,
			"cpu_family":      &cpu.CPUFamily,
			"model":           &cpu.Model,
			"stepping":        &cpu.Stepping,
			"physical_id":     &cpu.PhysicalID,
			"siblings":        &cpu.Siblings,
			"core_id":         &cpu.CoreID,
			"cpu_cores":       &cpu.CPUCores,
			"apicid":          &cpu.APICID,
			"initial_apicid":  &cpu.InitialAPICID,
			"cpuid_level":     &cpu.CPUIDLevel,
			"clflush_size":    &cpu.ClflushSize,
			"cache_alignment": &cpu.CacheAlignment,
		}
		strs := map[string]*string{
			"vendor_id":     &cpu.VendorID,
			"model_name":    &cpu.ModelName,
			"microcode":     &cpu.Microcode,
			"cache_size":    &cpu.CacheSize,
			"tlb_size":      &cpu.TLBSize,
			"address_sizes": &cpu.AddressSizes,
		}
		for _, kv := range rec {
			if dst, ok := ints[kv.key]; ok {
				if *dst, err = strconv.Atoi(kv.value); err != nil {
					return nil, parseErr("cpuinfo", kv.line, "%s: %v", kv.key, err)
				}
				continue
			}
			if dst, ok := strs[kv.key]; ok {
				*dst = kv.value
				continue
			}
			switch kv.key {
			case "cpu_mhz", "bogomips":
				v, err := strconv.ParseFloat(kv.value, 64)
				if err != nil {
					return nil, parseErr("cpuinfo", kv.line, "%s: %v", kv.key, err)
				}
				if kv.key == "cpu_mhz" {
					cpu.CPUMHz = v
				} else {
					cpu.BogoMIPS = v
				}
			case "fpu":
				cpu.FPU = kv.value == "yes"
			case "fpu_exception":
				cpu.FPUException = kv.value == "yes"
			case "wp":
				cpu.WP = kv.value == "yes"
			case "flags":
				cpu.Flags = strings.Fields(kv.value)
			case "bugs":
				cpu.Bugs = strings.Fields(kv.value)
			default:
				cpu.Extra[kv.key] = kv.value
			}
		}
		out = append(out, cpu)
	}
	return out, nil
}

// CryptoAlgorithm is one entry of /proc/crypto.
type CryptoAlgorithm struct {
	Name       string `json:"name"`
	Driver     string `json:"driver"`
	Module     string `json:"module"`
	Priority   int    `json:"priority"`
	RefCount   int    `json:"refcnt"`
	SelfTest   string `json:"selftest"`
	Internal   bool   `json:"internal"`
	Type       string `json:"type"`
	BlockSize  *int   `json:"blocksize" desc:"only set for ciphers and hashes"`
	DigestSize *int   `json:"digestsize" desc:"only set for hashes"`
}

func ParseCrypto(content string) ([]CryptoAlgorithm, error) {
	recs, err := records("crypto", content)
	if err != nil {
		return nil, err
	}
	out := []CryptoAlgorithm{}
	for _, rec := range recs {
		var alg CryptoAlgorithm
		for _, kv := range rec {
			var dst *int
			switch kv.key {
			case "name":
				alg.Name = kv.value
			case "driver":
				alg.Driver = kv.value
			case "module":
				alg.Module = kv.value
			case "selftest":
				alg.SelfTest = kv.value
			case "internal":
				alg.Internal = kv.value == "yes"
			case "type":
				alg.Type = kv.value
			case "priority":
				dst = &alg.Priority
			case "refcnt":
				dst = &alg.RefCount
			case "blocksize":
				alg.BlockSize = new(int)
				dst = alg.BlockSize
			case "digestsize":
				alg.DigestSize = new(int)
				dst = alg.DigestSize
			}
			if dst == nil {
				continue
			}
			if *dst, err = strconv.Atoi(kv.value); err != nil {
				return nil, parseErr("crypto", kv.line, "%s: %v", kv.key, err)
			}
		}
		if alg.Name == "" || alg.Driver == "" || alg.Type == "" {
			return nil, parseErr("crypto", rec[0].line, "entry without name, driver or type")
		}
		out = append(out, alg)
	}
	return out, nil
}

// MDStat is the content of /proc/mdstat.
type MDStat struct {
	Personalities []string  `json:"personalities"`
	Arrays        []MDArray `json:"items"`
}

// MDArray is one md device.
type MDArray struct {
	Name     string      `json:"name"`
	State    string      `json:"state" desc:"active or inactive, with a read-only marker when present"`
	Level    string      `json:"type" desc:"raid level; empty for inactive arrays"`
	Devices  []MDDevice  `json:"devices"`
	Blocks   uint64      `json:"blocks"`
	Recovery *MDRecovery `json:"recovery" desc:"set while a recovery or resync runs"`
}

// MDDevice is one member of an md array.
type MDDevice struct {
	Name   string `json:"name"`
	Number int    `json:"number" desc:"role number inside the array"`
	Failed bool   `json:"failed"`
	Spare  bool   `json:"spare"`
}

// MDRecovery is the progress line of a rebuilding array.
type MDRecovery struct {
	Action         string  `json:"action" desc:"recovery, resync, reshape or check"`
	Progress       float64 `json:"progress" desc:"percent"`
	ProgressBlocks uint64  `json:"progress_blocks"`
	Finish         string  `json:"finish"`
	Speed          string  `json:"speed"`
}

// ParseMDStat parses /proc/mdstat. Lines after "unused devices" and
// bitmap lines are ignored.
func ParseMDStat(content string) (MDStat, error) {
	all := lines(content)
	if len(all) == 0 {
		return MDStat{}, parseErr("mdstat", 0, "empty content")
	}
	head, rest, ok := strings.Cut(all[0], ":")
	if !ok || strings.TrimSpace(head) != "Personalities" {
		return MDStat{}, parseErr("mdstat", 1, "missing personalities")
	}
	out := MDStat{Personalities: []string{}, Arrays: []MDArray{}}
	for _, p := range strings.Fields(rest) {
		out.Personalities = append(out.Personalities, strings.Trim(p, "[]"))
	}

	var current *MDArray
	for i, line := range all[1:] {
		n := i + 2
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			current = nil
		case strings.HasPrefix(line, "unused devices"):
			return out, nil
		case strings.HasPrefix(line, "md"):
			array, err := parseMDArray(line, n)
			if err != nil {
				return MDStat{}, err
			}
			out.Arrays = append(out.Arrays, array)
			current = &out.Arrays[len(out.Arrays)-1]
		case current == nil:
			return MDStat{}, parseErr("mdstat", n, "detail line outside of an array")
		case strings.Contains(trimmed, " blocks"):
			blocks, err := strconv.ParseUint(strings.Fields(trimmed)[0], 10, 64)
			if err != nil {
				return MDStat{}, parseErr("mdstat", n, "blocks: %v", err)
			}
			current.Blocks = blocks
		case strings.Contains(trimmed, "%"):
			rec, err := parseMDRecovery(trimmed, n)
			if err != nil {
				return MDStat{}, err
			}
			current.Recovery = &rec
		}
	}
	return out, nil
}

// parseMDArray parses "md1 : active raid1 sdb3[2] sda3[0](F)".
func parseMDArray(line string, n int) (MDArray, error) {
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return MDArray{}, parseErr("mdstat", n, "missing separator")
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return MDArray{}, parseErr("mdstat", n, "missing state")
	}
	array := MDArray{Name: strings.TrimSpace(name), State: fields[0], Devices: []MDDevice{}}
	fields = fields[1:]
	if len(fields) > 0 && strings.HasPrefix(fields[0], "(") {
		array.State += " " + fields[0]
		fields = fields[1:]
	}
	if len(fields) > 0 && !strings.Contains(fields[0], "[") {
		array.Level = fields[0]
		fields = fields[1:]
	}
	for _, f := range fields {
		devName, role, ok := strings.Cut(f, "[")
		number, flags, ok2 := strings.Cut(role, "]")
		if !ok || !ok2 {
			return MDArray{}, parseErr("mdstat", n, "malformed device %q", f)
		}
		num, err := strconv.Atoi(number)
		if err != nil {
			return MDArray{}, parseErr("mdstat", n, "device %s: %v", devName, err)
		}
		array.Devices = append(array.Devices, MDDevice{
			Name:   devName,
			Number: num,
			Failed: strings.Contains(flags, "(F)"),
			Spare:  strings.Contains(flags, "(S)"),
		})
	}
	return array, nil
}

// parseMDRecovery parses
// "[=>....]  recovery =  8.1% (251596/3068288) finish=6.7min speed=6963K/sec".
func parseMDRecovery(line string, n int) (MDRecovery, error) {
	var rec MDRecovery
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == '=' })
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasSuffix(f, "%") && i > 0:
			rec.Action = fields[i-1]
			p, err := strconv.ParseFloat(strings.TrimSuffix(f, "%"), 64)
			if err != nil {
				return MDRecovery{}, parseErr("mdstat", n, "progress: %v", err)
			}
			rec.Progress = p
		case strings.HasPrefix(f, "(") && strings.Contains(f, "/"):
			done, _, _ := strings.Cut(strings.TrimPrefix(f, "("), "/")
			blocks, err := strconv.ParseUint(done, 10, 64)
			if err != nil {
				return MDRecovery{}, parseErr("mdstat", n, "progress blocks: %v", err)
			}
			rec.ProgressBlocks = blocks
		case f == "finish" && i+1 < len(fields):
			i++
			rec.Finish = fields[i]
		case f == "speed" && i+1 < len(fields):
			i++
			rec.Speed = fields[i]
		}
	}
	if rec.Action == "" {
		return MDRecovery{}, parseErr("mdstat", n, "missing progress")
	}
	return rec, nil
}
