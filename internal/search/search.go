package search

import (
	"context"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ignore "github.com/sabhiram/go-gitignore"

	"devassist/internal/apperr"
	"devassist/internal/safeio"
	"devassist/internal/scan"
)

/*
Package search is a token-based substring search over a workspace subtree.

Rules:
- A query is reduced to its identifier tokens longer than two characters.
- A line matches when it contains any token as a substring.
- Files are visited in lexical order; excluded directories and binary
  extensions are skipped, oversized files are skipped without counting.
- At most MaxFilesScanned files are read and at most MaxResults matches
  are returned.
*/

const (
	DefaultMaxResults      = 50
	DefaultMaxFilesScanned = 300
	DefaultMaxFileSize     = 300_000
	defaultCacheEntries    = 2048
)

var identRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Match is one matching line.
type Match struct {
	File          string   `json:"file"`
	Line          int      `json:"line"`
	Snippet       string   `json:"snippet"`
	MatchedTokens []string `json:"matched_tokens"`
}

// Query describes a single search.
type Query struct {
	Text string
	// Path is workspace-relative; empty means the root.
	Path string
	// MaxResults <= 0 falls back to DefaultMaxResults.
	MaxResults int
}

// Options bounds every search issued through a Searcher.
type Options struct {
	MaxFilesScanned int
	MaxFileSize     int64
	Ignore          *ignore.GitIgnore
	CacheEntries    int
}

type cachedFile struct {
	modTime time.Time
	size    int64
	lines   []string
}

// Searcher runs searches against one workspace. Safe for concurrent use.
type Searcher struct {
	fsys  *safeio.SafeFS
	opts  Options
	lines *lru.Cache[string, cachedFile]
}

// New creates a Searcher. Zero limits take the package defaults.
func New(fsys *safeio.SafeFS, opts Options) (*Searcher, error) {
	if opts.MaxFilesScanned <= 0 {
		opts.MaxFilesScanned = DefaultMaxFilesScanned
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = defaultCacheEntries
	}
	cache, err := lru.New[string, cachedFile](opts.CacheEntries)
	if err != nil {
		return nil, err
	}
	return &Searcher{fsys: fsys, opts: opts, lines: cache}, nil
}

// Tokens extracts the searchable tokens of a query, deduplicated and sorted.
func Tokens(query string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range identRE.FindAllString(query, -1) {
		if len(t) <= 2 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Search returns matches for q in walk order.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Match, error) {
	tokens := Tokens(q.Text)
	if len(tokens) == 0 {
		return nil, apperr.New(apperr.MalformedArguments, "Query does not contain searchable tokens")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	res := make([]Match, 0)
	walkOpts := scan.Options{
		SkipBinary:  true,
		MaxFileSize: s.opts.MaxFileSize,
		MaxFiles:    s.opts.MaxFilesScanned,
		Ignore:      s.opts.Ignore,
	}
	err := scan.Walk(ctx, s.fsys, q.Path, walkOpts, func(f scan.FileVisit) error {
		lines, err := s.fileLines(f)
		if err != nil {
			return nil
		}
		for i, line := range lines {
			var hit []string
			for _, t := range tokens {
				if strings.Contains(line, t) {
					hit = append(hit, t)
				}
			}
			if len(hit) == 0 {
				continue
			}
			res = append(res, Match{
				File:          f.Path,
				Line:          i + 1,
				Snippet:       strings.TrimSpace(line),
				MatchedTokens: hit,
			})
			if len(res) >= limit {
				return scan.ErrStop
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// fileLines returns the decoded lines of a file, reusing the cached copy
// while size and modification time are unchanged.
func (s *Searcher) fileLines(f scan.FileVisit) ([]string, error) {
	info, err := os.Stat(f.AbsPath)
	if err != nil {
		return nil, err
	}
	if c, ok := s.lines.Get(f.AbsPath); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.lines, nil
	}
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, err
	}
	lines := SplitLines(string(data))
	s.lines.Add(f.AbsPath, cachedFile{modTime: info.ModTime(), size: info.Size(), lines: lines})
	return lines, nil
}

// SplitLines decodes text (dropping invalid UTF-8) and splits it into
// lines without their terminators. A trailing newline does not produce an
// extra empty line.
func SplitLines(text string) []string {
	text = strings.ToValidUTF8(text, "")
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
