package version

import "testing"

func TestStringReflectsBuildVersion(t *testing.T) {
	cleanup := ForTesting("1.2.3-test")
	t.Cleanup(cleanup)

	if got := String(); got != "1.2.3-test" {
		t.Fatalf("expected version 1.2.3-test, got %s", got)
	}
}

func TestFormatVersion(t *testing.T) {
	tests := map[string]string{
		"":       "",
		"dev":    "dev",
		"0.3.0":  "v0.3.0",
		"v0.3.0": "v0.3.0",
	}
	for in, want := range tests {
		if got := FormatVersion(in); got != want {
			t.Errorf("FormatVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServerHeader(t *testing.T) {
	t.Cleanup(ForTesting("0.4.1"))
	if got := ServerHeader(); got != "boofi/v0.4.1" {
		t.Fatalf("ServerHeader() = %q", got)
	}

	ForTesting("")
	if got := ServerHeader(); got != "boofi/dev" {
		t.Fatalf("ServerHeader() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	t.Cleanup(ForTesting("v1.0.0"))
	if got := UserAgent(); got != "boofi-cli/v1.0.0" {
		t.Fatalf("UserAgent() = %q", got)
	}
}
