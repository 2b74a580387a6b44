package signals

import (
	"context"
	"regexp"
	"strings"

	"devassist/internal/safeio"
	"devassist/internal/scan"
	"devassist/internal/search"
)

/*
Package signals builds a heuristic static-analysis snapshot of a subtree
from plain text search. There is no parser: symbol names are cut out of
matching lines, and usages are lines containing the name token.

Known approximations, kept on purpose:
  - definitions are keyed by bare name, so a later homonym replaces an
    earlier one;
  - a usage hit is dropped when its line number equals the definition's
    line number, whatever file it is in.
*/

// Searcher is the search primitive the collector runs on.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Match, error)
}

// DefaultSearchLimit caps matches per internal search.
const DefaultSearchLimit = 1000

var (
	definitionMarkers = []string{"def ", "class "}
	thirdPartyMarkers = []string{"site-packages", ".venv", "venv", "node_modules", "dist", "build"}
	externalPatterns  = []string{"open(", "requests.", "subprocess.", "os.system("}
	tryToken          = "try:"

	expensiveMethods = map[string]struct{}{
		"fit": {}, "train": {}, "compile": {}, "optimize": {},
		"predict": {}, "infer": {}, "evaluate": {},
		"load": {}, "save": {},
		"from_pretrained": {}, "deserialize": {},
		"build": {}, "initialize": {},
	}
	loopHints  = []string{"for ", "while "}
	asyncHints = []string{"async def", "await "}

	callRE = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// Options tunes a Collector.
type Options struct {
	// SearchLimit caps the matches of every internal search (0 = DefaultSearchLimit).
	SearchLimit int
	// MaxFileSize skips larger files in the expensive-operation pass (0 = no limit).
	MaxFileSize int64
}

// Collector derives a Report from a Searcher and direct line iteration.
type Collector struct {
	search Searcher
	fsys   *safeio.SafeFS
	opts   Options
}

func New(s Searcher, fsys *safeio.SafeFS, opts Options) *Collector {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	return &Collector{search: s, fsys: fsys, opts: opts}
}

// Collect runs every sub-collector over path. It never fails; entries
// that cannot be produced are omitted.
func (c *Collector) Collect(ctx context.Context, path string) Report {
	defs, order := c.definitions(ctx, path)
	usages, unused := c.usages(ctx, defs, order, path)
	return Report{
		Definitions:   defs,
		Usages:        usages,
		Unused:        unused,
		ExternalCalls: c.CollectExternalCalls(ctx, path),
		TryBlocks:     c.CollectTryBlocks(ctx, path),
		ExpensiveOps:  c.CollectExpensiveOps(ctx, path),
	}
}

func (c *Collector) find(ctx context.Context, query, path string) []search.Match {
	res, err := c.search.Search(ctx, search.Query{Text: query, Path: path, MaxResults: c.opts.SearchLimit})
	if err != nil {
		return nil
	}
	return res
}

// CollectDefinitions maps symbol names to where they were last seen defined.
func (c *Collector) CollectDefinitions(ctx context.Context, path string) map[string]Definition {
	defs, _ := c.definitions(ctx, path)
	return defs
}

// definitions also returns names in first-discovery order.
func (c *Collector) definitions(ctx context.Context, path string) (map[string]Definition, []string) {
	defs := map[string]Definition{}
	var order []string
	for _, marker := range definitionMarkers {
		for _, m := range c.find(ctx, marker, path) {
			if isThirdParty(m.File) {
				continue
			}
			name, ok := definitionName(m.Snippet, marker)
			if !ok {
				continue
			}
			if _, seen := defs[name]; !seen {
				order = append(order, name)
			}
			defs[name] = Definition{File: m.File, Line: m.Line}
		}
	}
	return defs, order
}

// definitionName takes the text between the first and second marker
// occurrence, up to the first "(". "class Foo:" yields "Foo:".
func definitionName(snippet, marker string) (string, bool) {
	parts := strings.Split(snippet, marker)
	if len(parts) < 2 {
		return "", false
	}
	name, _, _ := strings.Cut(parts[1], "(")
	name = strings.TrimSpace(name)
	return name, name != ""
}

func isThirdParty(file string) bool {
	for _, m := range thirdPartyMarkers {
		if strings.Contains(file, m) {
			return true
		}
	}
	return false
}

// CollectUsages attributes "<name>(" hits to files and lists symbols that
// have none.
func (c *Collector) CollectUsages(ctx context.Context, defs map[string]Definition, path string) (map[string][]string, []UnusedSymbol) {
	return c.usages(ctx, defs, sortedNames(defs), path)
}

func (c *Collector) usages(ctx context.Context, defs map[string]Definition, order []string, path string) (map[string][]string, []UnusedSymbol) {
	usages := make(map[string][]string, len(defs))
	unused := make([]UnusedSymbol, 0)
	for _, name := range order {
		def := defs[name]
		files := make([]string, 0)
		for _, m := range c.find(ctx, name+"(", path) {
			if m.Line != def.Line {
				files = append(files, m.File)
			}
		}
		usages[name] = files
		if len(files) == 0 {
			unused = append(unused, UnusedSymbol{Symbol: name, DefinedIn: def})
		}
	}
	return usages, unused
}

// CollectExternalCalls records lines matching file, network, process or
// shell invocation patterns.
func (c *Collector) CollectExternalCalls(ctx context.Context, path string) []ExternalCallSite {
	calls := make([]ExternalCallSite, 0)
	for _, p := range externalPatterns {
		for _, m := range c.find(ctx, p, path) {
			calls = append(calls, ExternalCallSite{File: m.File, Line: m.Line, Snippet: m.Snippet})
		}
	}
	return calls
}

// CollectTryBlocks records lines matching the exception-block token.
func (c *Collector) CollectTryBlocks(ctx context.Context, path string) []ExceptionBlock {
	blocks := make([]ExceptionBlock, 0)
	for _, m := range c.find(ctx, tryToken, path) {
		blocks = append(blocks, ExceptionBlock{File: m.File, Line: m.Line})
	}
	return blocks
}

// CollectExpensiveOps reads every source file under path line by line and
// records calls whose first callee on the line is a known expensive method.
func (c *Collector) CollectExpensiveOps(ctx context.Context, path string) []ExpensiveOperation {
	ops := make([]ExpensiveOperation, 0)
	if c.fsys == nil {
		return ops
	}
	opts := scan.Options{
		SkipVenvMarkers: true,
		SkipBinary:      true,
		SourceOnly:      true,
		MaxFileSize:     c.opts.MaxFileSize,
	}
	_ = scan.Walk(ctx, c.fsys, path, opts, func(f scan.FileVisit) error {
		data, err := c.fsys.ReadFile(f.Path)
		if err != nil {
			return nil
		}
		for i, line := range search.SplitLines(string(data)) {
			if op, ok := ExpensiveOp(line); ok {
				op.File = f.Path
				op.Line = i + 1
				ops = append(ops, op)
			}
		}
		return nil
	})
	return ops
}

// ExpensiveOp classifies a single physical line. File and Line are left
// for the caller.
func ExpensiveOp(line string) (ExpensiveOperation, bool) {
	line = strings.TrimRight(line, " \t\r\n")
	m := callRE.FindStringSubmatch(line)
	if m == nil {
		return ExpensiveOperation{}, false
	}
	if _, ok := expensiveMethods[m[1]]; !ok {
		return ExpensiveOperation{}, false
	}
	return ExpensiveOperation{
		Method: m[1],
		Signals: OpSignals{
			InsideLoop:   containsAny(line, loopHints),
			AsyncContext: containsAny(line, asyncHints),
		},
	}, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
