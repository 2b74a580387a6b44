package safeio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"devassist/internal/apperr"
)

// SafeFS provides read-only helpers that resolve paths relative to the
// workspace root. Every resolved path must stay under the root after
// symlinks are evaluated.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute workspace root.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Name returns the base name of the workspace root.
func (s *SafeFS) Name() string {
	return filepath.Base(s.Root())
}

// Resolve maps a workspace-relative (or absolute, in-root) path to an
// absolute path. An empty path or "." is the root itself.
func (s *SafeFS) Resolve(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	clean := filepath.Clean(strings.TrimSpace(userPath))
	if clean == "." || clean == "" {
		return s.absRoot, nil
	}

	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	joined := clean
	if !isAbs {
		joined = filepath.Join(s.absRoot, clean)
	}
	if !hasPathPrefix(joined, s.absRoot) {
		return "", apperr.New(apperr.AccessDenied, "Access Denied: Path outside workspace")
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.Wrap(apperr.NotFound, err, "not found: %s", userPath)
		}
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", apperr.New(apperr.AccessDenied, "Access Denied: Path outside workspace")
	}
	return resolved, nil
}

// Rel returns the slash-separated path of abs relative to the root.
func (s *SafeFS) Rel(abs string) string {
	rel, err := filepath.Rel(s.Root(), abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// ReadFile reads a file relative to the root.
func (s *SafeFS) ReadFile(userPath string) ([]byte, error) {
	p, err := s.Resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.ReadFile(p)
}

// OpenFile opens a file relative to the root for reading.
func (s *SafeFS) OpenFile(userPath string) (*os.File, error) {
	p, err := s.Resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.Open(p)
}

// Stat returns metadata for a file or directory under the root.
func (s *SafeFS) Stat(userPath string) (fs.FileInfo, error) {
	p, err := s.Resolve(userPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// ReadDir lists entries for a directory relative to the root.
func (s *SafeFS) ReadDir(userPath string) ([]fs.DirEntry, error) {
	dir, err := s.Resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: path is not a directory")
	}
	return os.ReadDir(dir)
}

// Open implements fs.FS (names use "/" separators).
func (s *SafeFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	return s.OpenFile(filepath.FromSlash(name))
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if len(root) == 0 {
		return true
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}
