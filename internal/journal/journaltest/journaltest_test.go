package journaltest

import (
	"context"
	"os"
	"testing"
)

func TestOpenUsesTempDir(t *testing.T) {
	j := Open(t)
	if _, err := os.Stat(j.Path()); err != nil {
		t.Fatalf("journal file missing: %v", err)
	}
	entries, err := j.List(context.Background(), "localhost", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty journal, got %d entries", len(entries))
	}
}
