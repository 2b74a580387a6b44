package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"devassist/internal/scan"
)

// --------------------- project_tree ---------------------

type projectTreeTool struct{ host Host }

func newProjectTreeTool(h Host) *projectTreeTool { return &projectTreeTool{host: h} }

func (t *projectTreeTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "project_tree",
		Description: "Get a tree view of the project structure",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"max_depth": intProp("Maximum directory depth to include (default: 4)", 1),
		}),
	}
}

type projectTreeInput struct {
	MaxDepth *int `json:"max_depth"`
}

func (t *projectTreeTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in projectTreeInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	depth := 4
	if in.MaxDepth != nil {
		depth = *in.MaxDepth
	}
	t.host.logf("Scanning the directory for getting project root..")
	return json.Marshal(ProjectTree(t.host.FS.Root(), depth))
}

// ProjectTree maps "dir/" to a subtree and files to nil, down to maxDepth
// levels. Excluded directories appear as empty subtrees.
func ProjectTree(root string, maxDepth int) map[string]any {
	var walk func(dir string, depth int) map[string]any
	walk = func(dir string, depth int) map[string]any {
		tree := map[string]any{}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return tree
		}
		for _, e := range entries {
			if !e.IsDir() {
				tree[e.Name()] = nil
				continue
			}
			sub := map[string]any{}
			if depth < maxDepth && !scan.IsExcludedDir(e.Name(), false) {
				sub = walk(filepath.Join(dir, e.Name()), depth+1)
			}
			tree[e.Name()+"/"] = sub
		}
		return tree
	}
	if maxDepth < 1 {
		return map[string]any{}
	}
	return walk(root, 1)
}

// --------------------- find_entry_points ---------------------

var commonEntryNames = map[string]struct{}{"main": {}, "index": {}, "app": {}, "server": {}}

var entryPatterns = []struct{ lang, pattern string }{
	{"python", `__name__ == "__main__"`},
	{"c", "int main("},
	{"cpp", "int main("},
	{"java", "static void main("},
	{"go", "func main()"},
	{"rust", "fn main()"},
	{"csharp", "static void Main("},
	{"javascript", "require.main === module"},
}

const maxEntryPoints = 10

// EntryPoint is a likely execution start.
type EntryPoint struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type entryPointsTool struct{ host Host }

func newEntryPointsTool(h Host) *entryPointsTool { return &entryPointsTool{host: h} }

func (t *entryPointsTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "find_entry_points",
		Description: "Identify likely execution entry points",
		InputSchema: objectSchema(nil),
	}
}

func (t *entryPointsTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	t.host.logf("Scanning project for entry points")
	eps, err := FindEntryPoints(ctx, t.host)
	if err != nil {
		return nil, err
	}
	t.host.logf("Detected %d possible entry points", len(eps))
	return json.Marshal(eps)
}

// FindEntryPoints flags files by common entry stem and by per-language
// main patterns in their first MaxLinesRead lines.
func FindEntryPoints(ctx context.Context, h Host) ([]EntryPoint, error) {
	lim := h.limits()
	out := make([]EntryPoint, 0)
	opts := scan.Options{SkipBinary: true, MaxFiles: lim.MaxFilesScanned, Ignore: h.Ignore}
	err := scan.Walk(ctx, h.FS, ".", opts, func(f scan.FileVisit) error {
		if strings.Contains("/"+f.Path+"/", "/site-packages/") {
			return nil
		}
		base := filepath.Base(f.Path)
		stem := strings.ToLower(strings.TrimSuffix(base, fileSuffix(base)))
		if _, ok := commonEntryNames[stem]; ok {
			out = append(out, EntryPoint{File: f.Path, Reason: "Common entry filename"})
		}
		if head, err := readHead(f.AbsPath, lim.MaxLinesRead); err == nil {
			for _, p := range entryPatterns {
				if strings.Contains(head, p.pattern) {
					out = append(out, EntryPoint{File: f.Path, Reason: fmt.Sprintf("Contains %s entry point pattern", p.lang)})
				}
			}
		}
		if len(out) >= maxEntryPoints {
			return scan.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readHead(path string, lines int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var b strings.Builder
	for i := 0; i < lines; i++ {
		line, err := r.ReadString('\n')
		b.WriteString(line)
		if err != nil {
			break
		}
	}
	return strings.ToValidUTF8(b.String(), ""), nil
}

// fileSuffix returns the final extension, treating a leading dot as part
// of the name (".env" has none).
func fileSuffix(name string) string {
	i := strings.LastIndex(name, ".")
	if i > 0 && i < len(name)-1 {
		return name[i:]
	}
	return ""
}

// --------------------- summarize_project ---------------------

var keyFileNames = []string{
	"README.md", "README.txt", "pyproject.toml", "requirements.txt",
	"package.json", "pom.xml", "build.gradle", "Makefile",
}

const maxSummaryExtensions = 10

// ProjectSummary is the summarize_project result.
type ProjectSummary struct {
	ProjectName       string       `json:"project_name"`
	TopLevelStructure []string     `json:"top_level_structure"`
	KeyFiles          []string     `json:"key_files"`
	FileExtensions    []string     `json:"file_extensions"`
	EntryPoints       []EntryPoint `json:"entry_points"`
}

type summarizeTool struct{ host Host }

func newSummarizeTool(h Host) *summarizeTool { return &summarizeTool{host: h} }

func (t *summarizeTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "summarize_project",
		Description: "Return high-level structured information about the project for explanation",
		InputSchema: objectSchema(nil),
	}
}

func (t *summarizeTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	t.host.logf("Collecting top-level structure")
	sum, err := Summarize(ctx, t.host)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sum)
}

// Summarize collects the top-level layout, key files, a sample of file
// extensions and the entry points.
func Summarize(ctx context.Context, h Host) (ProjectSummary, error) {
	root := h.FS.Root()
	sum := ProjectSummary{
		ProjectName:       h.FS.Name(),
		TopLevelStructure: []string{},
		KeyFiles:          []string{},
		FileExtensions:    []string{},
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return sum, err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		sum.TopLevelStructure = append(sum.TopLevelStructure, name)
	}
	sort.Strings(sum.TopLevelStructure)

	for _, name := range keyFileNames {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			sum.KeyFiles = append(sum.KeyFiles, name)
		}
	}

	exts := map[string]struct{}{}
	_ = scan.Walk(ctx, h.FS, ".", scan.Options{Ignore: h.Ignore}, func(f scan.FileVisit) error {
		if s := strings.ToLower(fileSuffix(filepath.Base(f.Path))); s != "" {
			exts[s] = struct{}{}
		}
		if len(exts) >= maxSummaryExtensions {
			return scan.ErrStop
		}
		return nil
	})
	for e := range exts {
		sum.FileExtensions = append(sum.FileExtensions, e)
	}
	sort.Strings(sum.FileExtensions)

	eps, err := FindEntryPoints(ctx, h)
	if err != nil {
		return sum, err
	}
	sum.EntryPoints = eps
	return sum, nil
}
