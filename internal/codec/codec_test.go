package codec

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestParseVersion(t *testing.T) {
	content := "Linux version 5.15.0-76-generic (buildd@lcy02-amd64-019) (gcc (Ubuntu 9.4.0-1ubuntu1~20.04.1) 9.4.0, GNU ld (GNU Binutils for Ubuntu) 2.34) #83~20.04.1-Ubuntu SMP Wed Jun 21 20:23:31 UTC 2023\n"
	v, err := ParseVersion(content)
	if err != nil {
		t.Fatalf("ParseVersion: %v", err)
	}
	if v.Version != "Linux version 5.15.0-76-generic" {
		t.Fatalf("version = %q", v.Version)
	}
	if v.CompiledBy != "buildd" || v.CompiledHost != "lcy02-amd64-019" {
		t.Fatalf("unexpected builder %q@%q", v.CompiledBy, v.CompiledHost)
	}
	if !strings.HasPrefix(v.Compiler, "gcc (Ubuntu 9.4.0") || !strings.HasSuffix(v.Compiler, "2.34") {
		t.Fatalf("compiler = %q", v.Compiler)
	}
}

func TestParseVersionRejectsGarbage(t *testing.T) {
	_, err := ParseVersion("Darwin Kernel")
	var perr ParseError
	if !errors.As(err, &perr) || perr.Format != "version" {
		t.Fatalf("expected version ParseError, got %v", err)
	}
}

func TestParseUptimeAndLoadAvg(t *testing.T) {
	up, err := ParseUptime("123.45 6789.00\n")
	if err != nil || up.Uptime != 123.45 || up.Idle != 6789 {
		t.Fatalf("uptime = %+v, %v", up, err)
	}

	avg, err := ParseLoadAvg("0.15 1.53 2.52 1/123 4567\n")
	if err != nil {
		t.Fatalf("ParseLoadAvg: %v", err)
	}
	want := LoadAvg{Avg1: 0.15, Avg5: 1.53, Avg15: 2.52, RunningProcesses: 1, TotalProcesses: 123, RecentPID: 4567}
	if avg != want {
		t.Fatalf("loadavg = %+v, want %+v", avg, want)
	}

	if _, err := ParseLoadAvg("0.15 1.53"); err == nil {
		t.Fatalf("expected error for short loadavg")
	}
}

func TestParseMeminfo(t *testing.T) {
	content := "MemTotal:       16314320 kB\nMemFree:         1034520 kB\nHugePages_Total:       0\nSwapTotal:       2097148 kB\n"
	m, err := ParseMeminfo(content)
	if err != nil {
		t.Fatalf("ParseMeminfo: %v", err)
	}
	if m.MemTotal != 16314320 || m.MemFree != 1034520 || m.SwapTotal != 2097148 {
		t.Fatalf("unexpected meminfo %+v", m)
	}
	if v, ok := m.Extra["HugePages_Total"]; !ok || v != 0 {
		t.Fatalf("expected HugePages_Total in extra, got %v", m.Extra)
	}
}

func TestParseSwapsAndFilesystems(t *testing.T) {
	swaps, err := ParseSwaps("Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n/swap.img                               file\t\t2097148\t\t0\t\t-2\n")
	if err != nil {
		t.Fatalf("ParseSwaps: %v", err)
	}
	if len(swaps) != 1 || swaps[0].Filename != "/swap.img" || swaps[0].Priority != -2 {
		t.Fatalf("unexpected swaps %+v", swaps)
	}

	fss, err := ParseFilesystems("nodev\tsysfs\nnodev\ttmpfs\n\text4\n")
	if err != nil {
		t.Fatalf("ParseFilesystems: %v", err)
	}
	if len(fss) != 3 || !fss[0].NoDev || fss[2].NoDev || fss[2].Name != "ext4" {
		t.Fatalf("unexpected filesystems %+v", fss)
	}
}

func TestParseOSRelease(t *testing.T) {
	content := `NAME="Ubuntu"
VERSION="20.04.6 LTS (Focal Fossa)"
ID=ubuntu
ID_LIKE=debian
VERSION_CODENAME=focal
`
	rel, err := ParseOSRelease(content)
	if err != nil {
		t.Fatalf("ParseOSRelease: %v", err)
	}
	if rel.Name != "Ubuntu" || rel.ID != "ubuntu" {
		t.Fatalf("unexpected release %+v", rel)
	}
	if rel.VersionCodename == nil || *rel.VersionCodename != "focal" {
		t.Fatalf("codename = %v", rel.VersionCodename)
	}
	if rel.BuildID != nil {
		t.Fatalf("build id should be absent")
	}

	if _, err := ParseOSRelease("NAME=Foo\n"); err == nil {
		t.Fatalf("expected missing ID error")
	}
}

func TestHostsRoundTrip(t *testing.T) {
	content := "# static\n127.0.0.1\tlocalhost\n\n::1 ip6-localhost ip6-loopback\n"
	entries, err := ParseHosts(content)
	if err != nil {
		t.Fatalf("ParseHosts: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(entries))
	}
	if entries[3].Address != "::1" || len(entries[3].Hostnames) != 2 {
		t.Fatalf("unexpected entry %+v", entries[3])
	}
	formatted, err := FormatHosts(entries)
	if err != nil {
		t.Fatalf("FormatHosts: %v", err)
	}
	if formatted != "# static\n127.0.0.1\tlocalhost\n\n::1\tip6-localhost ip6-loopback\n" {
		t.Fatalf("unexpected format %q", formatted)
	}
	if _, err := FormatHosts([]HostsLine{{Address: "10.0.0.1"}}); err == nil {
		t.Fatalf("expected error for address without hostnames")
	}
}

func TestPasswd(t *testing.T) {
	entries, err := ParsePasswd("root:x:0:0:root:/root:/bin/bash\nnobody:x:65534:65534:nobody:/nonexistent:/usr/sbin/nologin\n")
	if err != nil {
		t.Fatalf("ParsePasswd: %v", err)
	}
	if len(entries) != 2 || entries[1].UserID != 65534 || entries[0].Program != "/bin/bash" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	out, err := FormatPasswd(entries[:1])
	if err != nil || out != "root:x:0:0:root:/root:/bin/bash\n" {
		t.Fatalf("FormatPasswd = %q, %v", out, err)
	}
	if _, err := ParsePasswd("root:x:zero:0:root:/root:/bin/bash\n"); err == nil {
		t.Fatalf("expected error for non numeric uid")
	}
	if _, err := FormatPasswd([]PasswdEntry{{User: "a:b"}}); err == nil {
		t.Fatalf("expected error for separator in field")
	}
}

func TestMounts(t *testing.T) {
	content := "# <file system> <mount point> <type> <options> <dump> <pass>\nUUID=abcd / ext4 errors=remount-ro 0 1\n/dev/sdb1 /mnt/my\\040disk vfat defaults\n"
	mounts, err := ParseMounts(content)
	if err != nil {
		t.Fatalf("ParseMounts: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(mounts))
	}
	if mounts[0].Pass != 1 || mounts[0].Options[0] != "errors=remount-ro" {
		t.Fatalf("unexpected mount %+v", mounts[0])
	}
	if mounts[1].MountPoint != "/mnt/my disk" || mounts[1].Dump != 0 {
		t.Fatalf("unexpected mount %+v", mounts[1])
	}
	out, err := FormatMounts(mounts[1:])
	if err != nil {
		t.Fatalf("FormatMounts: %v", err)
	}
	if out != "/dev/sdb1\t/mnt/my\\040disk\tvfat\tdefaults\t0\t0\n" {
		t.Fatalf("unexpected format %q", out)
	}
}

func TestCrontab(t *testing.T) {
	content := "SHELL=/bin/sh\n# m h dom mon dow user command\n17 *\t* * *\troot    cd / && run-parts --report /etc/cron.hourly\n@reboot root /usr/local/bin/boot.sh\n\n"
	entries, err := ParseCrontab(content)
	if err != nil {
		t.Fatalf("ParseCrontab: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(entries))
	}
	if entries[0].Variable == nil || entries[0].Variable.Value != "/bin/sh" {
		t.Fatalf("unexpected variable %+v", entries[0])
	}
	job := entries[2].Job
	if job == nil || job.Schedule != "17 * * * *" || job.User != "root" || job.Command != "cd / && run-parts --report /etc/cron.hourly" {
		t.Fatalf("unexpected job %+v", job)
	}
	if entries[3].Job == nil || entries[3].Job.Schedule != "@reboot" {
		t.Fatalf("unexpected macro job %+v", entries[3])
	}

	if _, err := ParseCrontab("often * * * * root true\n"); err == nil {
		t.Fatalf("expected invalid schedule to fail")
	}
	if _, err := FormatCrontab([]CrontabLine{{Job: &CrontabJob{Schedule: "* * *", User: "root", Command: "true"}}}); err == nil {
		t.Fatalf("expected invalid schedule to fail on format")
	}
	out, err := FormatCrontab(entries[:1])
	if err != nil || out != "SHELL=/bin/sh\n" {
		t.Fatalf("FormatCrontab = %q, %v", out, err)
	}
}

func TestParsePartitions(t *testing.T) {
	content := "major minor  #blocks  name\n\n   7        0      64972 loop0\n  11        0    1048575 sr0\n   8        0  314572800 sda\n   8        1     524288 sda1\n"
	parts, err := ParsePartitions(content)
	if err != nil {
		t.Fatalf("ParsePartitions: %v", err)
	}
	want := []Partition{
		{Major: 7, Minor: 0, Blocks: 64972, Name: "loop0"},
		{Major: 11, Minor: 0, Blocks: 1048575, Name: "sr0"},
		{Major: 8, Minor: 0, Blocks: 314572800, Name: "sda"},
		{Major: 8, Minor: 1, Blocks: 524288, Name: "sda1"},
	}
	if !reflect.DeepEqual(parts, want) {
		t.Fatalf("partitions = %+v", parts)
	}
	if _, err := ParsePartitions("8 1 x sda1\n"); err == nil {
		t.Fatal("expected error for non-numeric blocks")
	}
}

func TestParseCPUInfo(t *testing.T) {
	block := func(n int) string {
		return strings.Join([]string{
			"processor\t: " + strconv.Itoa(n),
			"vendor_id\t: AuthenticAMD",
			"cpu family\t: 23",
			"model\t\t: 8",
			"model name\t: AMD Ryzen 5 2600X Six-Core Processor",
			"cpu MHz\t\t: 3600.116",
			"cache size\t: 512 KB",
			"core id\t\t: " + strconv.Itoa(n),
			"fpu\t\t: yes",
			"wp\t\t: no",
			"flags\t\t: fpu vme sse aes",
			"bugs\t\t:",
			"bogomips\t: 7200.23",
			"TLB size\t: 2560 4K pages",
			"address sizes\t: 48 bits physical, 48 bits virtual",
			"power management:",
		}, "\n")
	}
	content := block(0) + "\n\n" + block(1) + "\n\n"
	cpus, err := ParseCPUInfo(content)
	if err != nil {
		t.Fatalf("ParseCPUInfo: %v", err)
	}
	if len(cpus) != 2 {
		t.Fatalf("expected 2 cpus, got %d", len(cpus))
	}
	c := cpus[1]
	if c.Processor != 1 || c.CoreID != 1 || c.CPUFamily != 23 || c.ModelName != "AMD Ryzen 5 2600X Six-Core Processor" {
		t.Fatalf("unexpected cpu %+v", c)
	}
	if c.CPUMHz != 3600.116 || c.BogoMIPS != 7200.23 || c.TLBSize != "2560 4K pages" || !c.FPU || c.WP {
		t.Fatalf("unexpected cpu %+v", c)
	}
	if !reflect.DeepEqual(c.Flags, []string{"fpu", "vme", "sse", "aes"}) || len(c.Bugs) != 0 {
		t.Fatalf("flags = %v, bugs = %v", c.Flags, c.Bugs)
	}
	if v, ok := c.Extra["power_management"]; !ok || v != "" {
		t.Fatalf("extra = %v", c.Extra)
	}

	arm, err := ParseCPUInfo("processor\t: 0\nBogoMIPS\t: 108.00\n\nHardware\t: BCM2835\nRevision\t: c03111\n")
	if err != nil || len(arm) != 1 || arm[0].BogoMIPS != 108 {
		t.Fatalf("ParseCPUInfo(arm) = %+v, %v", arm, err)
	}
	if _, err := ParseCPUInfo("processor\t: zero\n"); err == nil {
		t.Fatal("expected error for non-numeric processor")
	}
}

func TestParseCrypto(t *testing.T) {
	content := `name         : __gcm(aes)
driver       : __generic-gcm-aesni
module       : aesni_intel
priority     : 400
refcnt       : 1
selftest     : passed
internal     : yes
type         : aead
blocksize    : 1

name         : dh
driver       : dh-generic
module       : kernel
priority     : 100
refcnt       : 1
selftest     : passed
internal     : no
type         : kpp

`
	algs, err := ParseCrypto(content)
	if err != nil {
		t.Fatalf("ParseCrypto: %v", err)
	}
	if len(algs) != 2 {
		t.Fatalf("expected 2 algorithms, got %d", len(algs))
	}
	gcm, dh := algs[0], algs[1]
	if gcm.Name != "__gcm(aes)" || gcm.Priority != 400 || !gcm.Internal || gcm.Type != "aead" {
		t.Fatalf("unexpected gcm %+v", gcm)
	}
	if gcm.BlockSize == nil || *gcm.BlockSize != 1 || gcm.DigestSize != nil {
		t.Fatalf("unexpected gcm sizes %v %v", gcm.BlockSize, gcm.DigestSize)
	}
	if dh.Internal || dh.BlockSize != nil || dh.Module != "kernel" {
		t.Fatalf("unexpected dh %+v", dh)
	}
	if _, err := ParseCrypto("name : x\ndriver : y\n"); err == nil {
		t.Fatal("expected error for entry without type")
	}
}

func TestParseMDStat(t *testing.T) {
	content := `Personalities : [linear] [raid0] [raid1] [raid10] [raid6] [raid5] [raid4]
md3 : active raid1 sdb1[1](F) sda1[0]
      104320 blocks [2/1] [_U]

md2 : active raid5 hdc3[0] hde3[1] hdg3[2]
      112639744 blocks level 5, 64k chunk, algorithm 2 [3/3] [UUU]

md1 : active raid1 sdb3[2] sda3[0]
      3068288 blocks [2/1] [U_]
      [=>...................]  recovery =  8.1% (251596/3068288) finish=6.7min speed=6963K/sec

md127 : inactive sdc[0](S)
      976762584 blocks super 1.2

unused devices: <none>
`
	stat, err := ParseMDStat(content)
	if err != nil {
		t.Fatalf("ParseMDStat: %v", err)
	}
	if !reflect.DeepEqual(stat.Personalities, []string{"linear", "raid0", "raid1", "raid10", "raid6", "raid5", "raid4"}) {
		t.Fatalf("personalities = %v", stat.Personalities)
	}
	if len(stat.Arrays) != 4 {
		t.Fatalf("expected 4 arrays, got %+v", stat.Arrays)
	}

	md3 := stat.Arrays[0]
	wantDevices := []MDDevice{{Name: "sdb1", Number: 1, Failed: true}, {Name: "sda1", Number: 0}}
	if md3.Name != "md3" || md3.State != "active" || md3.Level != "raid1" || md3.Blocks != 104320 || md3.Recovery != nil {
		t.Fatalf("unexpected md3 %+v", md3)
	}
	if !reflect.DeepEqual(md3.Devices, wantDevices) {
		t.Fatalf("md3 devices = %+v", md3.Devices)
	}

	want := &MDRecovery{Action: "recovery", Progress: 8.1, ProgressBlocks: 251596, Finish: "6.7min", Speed: "6963K/sec"}
	if md1 := stat.Arrays[2]; !reflect.DeepEqual(md1.Recovery, want) {
		t.Fatalf("md1 recovery = %+v", md1.Recovery)
	}

	inactive := stat.Arrays[3]
	if inactive.State != "inactive" || inactive.Level != "" || len(inactive.Devices) != 1 || !inactive.Devices[0].Spare {
		t.Fatalf("unexpected inactive array %+v", inactive)
	}

	if _, err := ParseMDStat("md0 : active raid1 sda[0]\n"); err == nil {
		t.Fatal("expected error without personalities")
	}
}
