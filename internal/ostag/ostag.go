// Package ostag defines the operating system tags handlers declare support for
// and the compatibility relation between them.
package ostag

import (
	"fmt"
	"strings"
)

// OS identifies a kernel, distribution or distribution release.
type OS int

const (
	Unknown OS = iota
	LinuxUnknown
	LinuxAny
	LinuxArchlinux
	LinuxFedora
	LinuxOpenSuseLeap

	LinuxUbuntu
	LinuxUbuntuLunar
	LinuxUbuntuFocal
	LinuxUbuntuBionic

	LinuxDebian
	LinuxDebianBookworm
	LinuxDebianBullseye
	LinuxDebianBuster
)

var names = map[OS]string{
	Unknown:             "unknown",
	LinuxUnknown:        "linux-unknown",
	LinuxAny:            "linux-any",
	LinuxArchlinux:      "linux-archlinux",
	LinuxFedora:         "linux-fedora",
	LinuxOpenSuseLeap:   "linux-opensuse-leap",
	LinuxUbuntu:         "linux-ubuntu",
	LinuxUbuntuLunar:    "linux-ubuntu-lunar",
	LinuxUbuntuFocal:    "linux-ubuntu-focal",
	LinuxUbuntuBionic:   "linux-ubuntu-bionic",
	LinuxDebian:         "linux-debian",
	LinuxDebianBookworm: "linux-debian-bookworm",
	LinuxDebianBullseye: "linux-debian-bullseye",
	LinuxDebianBuster:   "linux-debian-buster",
}

// aliases maps kernel names, os-release ids and release codenames to tags.
var aliases = map[string]OS{
	"linux":         LinuxAny,
	"arch":          LinuxArchlinux,
	"archlinux":     LinuxArchlinux,
	"fedora":        LinuxFedora,
	"opensuse-leap": LinuxOpenSuseLeap,
	"ubuntu":        LinuxUbuntu,
	"lunar":         LinuxUbuntuLunar,
	"luna":          LinuxUbuntuLunar,
	"focal":         LinuxUbuntuFocal,
	"bionic":        LinuxUbuntuBionic,
	"debian":        LinuxDebian,
	"bookworm":      LinuxDebianBookworm,
	"bullseye":      LinuxDebianBullseye,
	"buster":        LinuxDebianBuster,
}

// descendants lists, for each family tag, the tags it accepts besides itself.
var descendants = map[OS][]OS{
	LinuxAny: {
		LinuxUnknown,
		LinuxArchlinux, LinuxFedora, LinuxOpenSuseLeap,
		LinuxUbuntu, LinuxUbuntuLunar, LinuxUbuntuFocal, LinuxUbuntuBionic,
		LinuxDebian, LinuxDebianBookworm, LinuxDebianBullseye, LinuxDebianBuster,
	},
	LinuxUbuntu: {LinuxUbuntuLunar, LinuxUbuntuFocal, LinuxUbuntuBionic},
	LinuxDebian: {LinuxDebianBookworm, LinuxDebianBullseye, LinuxDebianBuster},
}

// All returns every tag in declaration order.
func All() []OS {
	out := make([]OS, 0, len(names))
	for os := Unknown; os <= LinuxDebianBuster; os++ {
		out = append(out, os)
	}
	return out
}

// Parse maps free text to a tag. Unrecognised input yields Unknown.
func Parse(text string) OS {
	key := strings.ToLower(strings.TrimSpace(text))
	if os, ok := aliases[key]; ok {
		return os
	}
	for _, os := range All() {
		if names[os] == key {
			return os
		}
	}
	return Unknown
}

// Compatible reports whether a handler declaring os can serve a target
// tagged other. The relation is not symmetric: a family accepts its
// descendants, a descendant never accepts its family.
func (os OS) Compatible(other OS) bool {
	if os == other {
		return true
	}
	for _, d := range descendants[os] {
		if d == other {
			return true
		}
	}
	return false
}

// AnyCompatible reports whether any of declared accepts target.
func AnyCompatible(declared []OS, target OS) bool {
	for _, os := range declared {
		if os.Compatible(target) {
			return true
		}
	}
	return false
}

func (os OS) String() string {
	if name, ok := names[os]; ok {
		return name
	}
	return fmt.Sprintf("os(%d)", int(os))
}

func (os OS) MarshalText() ([]byte, error) {
	return []byte(os.String()), nil
}

func (os *OS) UnmarshalText(text []byte) error {
	*os = Parse(string(text))
	return nil
}
