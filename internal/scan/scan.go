package scan

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"devassist/internal/safeio"
)

// ExcludedDirs are dependency, cache and build-output directories that are
// never entered.
var ExcludedDirs = map[string]struct{}{
	"node_modules": {}, ".venv": {}, "venv": {}, "__pycache__": {}, ".git": {},
	".cache": {}, "dist": {}, "build": {}, "target": {}, "out": {},
	"coverage": {}, ".idea": {}, ".vscode": {},
}

// VenvMarkers are directory names that only appear inside virtual
// environments and installed packages.
var VenvMarkers = map[string]struct{}{
	"site-packages": {}, "Lib": {}, "Scripts": {}, "bin": {}, "Include": {},
}

// BinaryExtensions cannot be read as text.
var BinaryExtensions = map[string]struct{}{
	".pdf": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".exe": {}, ".dll": {},
	".docx": {}, ".pptx": {}, ".xlsx": {},
}

// SourceExtensions are the extensions treated as program source.
var SourceExtensions = map[string]struct{}{
	".py": {}, ".pyw": {}, ".pyi": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".mjs": {}, ".cjs": {}, ".java": {}, ".kt": {}, ".kts": {}, ".scala": {},
	".groovy": {}, ".c": {}, ".h": {}, ".cpp": {}, ".cc": {}, ".cxx": {}, ".hpp": {},
	".hxx": {}, ".cs": {}, ".fs": {}, ".fsx": {}, ".vb": {}, ".go": {}, ".rs": {},
	".rb": {}, ".php": {}, ".swift": {}, ".m": {}, ".mm": {}, ".r": {},
	".dart": {}, ".lua": {}, ".ex": {}, ".exs": {}, ".erl": {}, ".hs": {},
}

// ErrStop ends a walk early without reporting an error.
var ErrStop = errors.New("scan: stop")

// FileVisit carries per-file metadata to walk callbacks.
type FileVisit struct {
	// Workspace-relative path using forward slashes (e.g., "src/app.py").
	Path string
	// Absolute filesystem path.
	AbsPath string
	// Lowercased extension (e.g., ".py"); empty for no-ext files.
	Ext string
	// File size in bytes.
	Size int64
}

// Options controls which entries a walk reports.
type Options struct {
	// SkipVenvMarkers also prunes site-packages, Lib, Scripts, bin, Include.
	SkipVenvMarkers bool
	// SkipBinary drops files with a known binary extension.
	SkipBinary bool
	// SourceOnly drops files whose extension is not in SourceExtensions.
	SourceOnly bool
	// MaxFileSize drops files larger than this many bytes (0 = no limit).
	MaxFileSize int64
	// MaxFiles stops the walk after this many files were reported (0 = no limit).
	MaxFiles int
	// Ignore filters paths matched by a compiled .gitignore.
	Ignore *ignore.GitIgnore
}

// VisitFunc receives each reported file. Returning ErrStop ends the walk.
type VisitFunc func(f FileVisit) error

// Walk visits files below path (workspace-relative) in lexical order.
// Unreadable entries are skipped.
func Walk(ctx context.Context, fsys *safeio.SafeFS, path string, opts Options, fn VisitFunc) error {
	start, err := fsys.Resolve(path)
	if err != nil {
		return err
	}
	files := 0
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel := fsys.Rel(p)
		if d.IsDir() {
			if p == start {
				return nil
			}
			if IsExcludedDir(d.Name(), opts.SkipVenvMarkers) {
				return filepath.SkipDir
			}
			if opts.Ignore != nil && opts.Ignore.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if opts.SkipBinary && IsBinary(ext) {
			return nil
		}
		if opts.SourceOnly && !IsSource(ext) {
			return nil
		}
		if opts.Ignore != nil && opts.Ignore.MatchesPath(rel) {
			return nil
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		} else {
			return nil
		}
		if opts.MaxFileSize > 0 && size > opts.MaxFileSize {
			return nil
		}
		if opts.MaxFiles > 0 && files >= opts.MaxFiles {
			return ErrStop
		}
		files++
		return fn(FileVisit{Path: rel, AbsPath: p, Ext: ext, Size: size})
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// IsExcludedDir reports whether a directory name is pruned from walks.
func IsExcludedDir(name string, venv bool) bool {
	if _, ok := ExcludedDirs[name]; ok {
		return true
	}
	if venv {
		_, ok := VenvMarkers[name]
		return ok
	}
	return false
}

// IsBinary reports whether ext (lowercase, with dot) is a binary type.
func IsBinary(ext string) bool {
	_, ok := BinaryExtensions[strings.ToLower(ext)]
	return ok
}

// IsSource reports whether ext is a recognised source extension.
func IsSource(ext string) bool {
	_, ok := SourceExtensions[strings.ToLower(ext)]
	return ok
}

// LoadGitignore compiles <root>/.gitignore, or returns nil when absent.
func LoadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
