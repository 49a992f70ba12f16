package sanitize

import "testing"

func TestDiagnostic(t *testing.T) {
	cases := map[string]string{
		"Password: su: Authentication failure\n": "su: Authentication failure",
		"cat: /nope: No such file or directory\n": "cat: /nope: No such file or directory",
		"\x1b[31mred\x1b[0m text\r\n":              "red text",
		"":                                         "",
	}
	for in, want := range cases {
		if got := Diagnostic(in); got != want {
			t.Fatalf("Diagnostic(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := TruncateUTF8("héllo", 2); got != "h" {
		t.Fatalf("expected rune boundary truncation, got %q", got)
	}
	if got := TruncateUTF8("abc", 10); got != "abc" {
		t.Fatalf("short strings are unchanged, got %q", got)
	}
	if got := TruncateUTF8("abc", 0); got != "" {
		t.Fatalf("zero budget yields empty, got %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("abcd1234efgh5678"); got != "abcd********5678" {
		t.Fatalf("MaskSecret = %q", got)
	}
	if got := MaskSecret("short"); got != "*****" {
		t.Fatalf("MaskSecret(short) = %q", got)
	}
}
