package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile places content in a file under a fresh temp directory and
// returns its path. The directory is removed when the test finishes.
func WriteFile(tb testing.TB, name string, content []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		tb.Fatalf("failed to write %s: %v", name, err)
	}

	return path
}

// MissingPath returns a path inside a fresh temp directory that no file
// occupies, for exercising not-found branches.
func MissingPath(tb testing.TB, name string) string {
	tb.Helper()
	return filepath.Join(tb.TempDir(), name)
}
