package tester

import (
	"os"
	"path/filepath"
	"testing"

	"devassist/internal/safeio"
)

// Workspace writes files (relative path -> content) under a fresh temp dir
// and returns its path.
func Workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content at root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

// FS builds a workspace from files and returns a SafeFS rooted at it.
func FS(t *testing.T, files map[string]string) *safeio.SafeFS {
	t.Helper()
	fsys, err := safeio.NewSafeFS(Workspace(t, files))
	if err != nil {
		t.Fatalf("safe fs: %v", err)
	}
	return fsys
}

// NoErr asserts that err is nil.
func NoErr(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		}
		t.Fatalf("unexpected error: %v", err)
	}
}
