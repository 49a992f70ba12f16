// Package journaltest opens throwaway journals for tests in other packages.
// It lives apart from testutil because the journal depends on the task
// ledger, whose own tests use testutil.
package journaltest

import (
	"path/filepath"
	"testing"

	"github.com/soofff/boofi/internal/journal"
)

// Open creates a temporary journal that is closed when the test ends.
func Open(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(journal.Options{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}
