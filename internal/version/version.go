package version

import "strings"

// Overridden at build time with -ldflags "-X github.com/soofff/boofi/internal/version.version=...".
var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// FormatVersion returns a display-friendly version string. For normal versions
// it ensures a "v" prefix (e.g. "0.3.0" → "v0.3.0"). Special values like
// "dev" and empty strings are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ServerHeader is the value of the Server header sent with every response.
func ServerHeader() string {
	return "boofi/" + displayVersion()
}

// UserAgent identifies the command line client to the agent.
func UserAgent() string {
	return "boofi-cli/" + displayVersion()
}

func displayVersion() string {
	if v := FormatVersion(version); v != "" {
		return v
	}
	return "dev"
}
