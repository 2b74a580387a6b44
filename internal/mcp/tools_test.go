package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"devassist/internal/apperr"
	"devassist/internal/search"
	"devassist/internal/signals"
	"devassist/internal/tester"
)

func setupHost(t *testing.T, files map[string]string) Host {
	t.Helper()
	fsys := tester.FS(t, files)
	s, err := search.New(fsys, search.Options{})
	if err != nil {
		t.Fatalf("searcher: %v", err)
	}
	return Host{
		FS:       fsys,
		Searcher: s,
		Signals:  signals.New(s, fsys, signals.Options{}),
	}
}

func setupRegistry(t *testing.T, files map[string]string) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := RegisterDefaultTools(r, setupHost(t, files)); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func call(t *testing.T, r *Registry, name string, in any) (json.RawMessage, error) {
	t.Helper()
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return r.Call(context.Background(), name, raw)
}

func TestReadFileTool(t *testing.T) {
	r := setupRegistry(t, map[string]string{
		"app/main.py": "print('hi')\xff\n",
		"logo.png":    "png",
	})
	out, err := call(t, r, "read_file", map[string]string{"path": "app/main.py"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if got := ResultText(out); got != "print('hi')\n" {
		t.Fatalf("unexpected content %q", got)
	}

	cases := map[string]apperr.Code{
		"../secret":  apperr.AccessDenied,
		"missing.py": apperr.NotFound,
		"logo.png":   apperr.UnsupportedType,
		"app":        apperr.UnsupportedType,
	}
	for path, want := range cases {
		_, err := call(t, r, "read_file", map[string]string{"path": path})
		if got := apperr.CodeOf(err); got != want {
			t.Fatalf("read_file(%q): want %s, got %s (%v)", path, want, got, err)
		}
	}
}

func TestReadFileTruncates(t *testing.T) {
	h := setupHost(t, map[string]string{"big.txt": strings.Repeat("a", 64)})
	h.Limits = Limits{MaxFileSize: 10}
	text, err := readText(h, "big.txt")
	if err != nil {
		t.Fatalf("readText: %v", err)
	}
	if !strings.HasPrefix(text, strings.Repeat("a", 10)+"\n... [truncated") {
		t.Fatalf("expected truncation marker, got %q", text)
	}
}

func TestListDirectoryTool(t *testing.T) {
	r := setupRegistry(t, map[string]string{"a.txt": "hello", "sub/b.go": "package sub"})
	out, err := call(t, r, "list_directory", map[string]string{})
	if err != nil {
		t.Fatalf("list_directory: %v", err)
	}
	var rows []DirEntry
	if err := json.Unmarshal(out, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[0].Name != "a.txt" || rows[0].Type != "file" || rows[0].Size == nil || *rows[0].Size != "5 bytes" {
		t.Fatalf("unexpected file row %+v", rows[0])
	}
	if rows[1].Path != "sub" || rows[1].Type != "directory" || rows[1].Size != nil {
		t.Fatalf("unexpected dir row %+v", rows[1])
	}
	if _, err := call(t, r, "list_directory", map[string]string{"path": "a.txt"}); apperr.CodeOf(err) != apperr.UnsupportedType {
		t.Fatalf("expected not-a-directory error, got %v", err)
	}
}

func TestSearchCodeTool(t *testing.T) {
	r := setupRegistry(t, map[string]string{"a.go": "hello world\nhello again\n"})
	out, err := call(t, r, "search_code", map[string]any{"query": "hello", "max_results": 1})
	if err != nil {
		t.Fatalf("search_code: %v", err)
	}
	var matches []search.Match
	if err := json.Unmarshal(out, &matches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(matches) != 1 || matches[0].File != "a.go" || matches[0].Line != 1 {
		t.Fatalf("unexpected matches %+v", matches)
	}
	if _, err := call(t, r, "search_code", map[string]any{"query": "a b"}); apperr.CodeOf(err) != apperr.MalformedArguments {
		t.Fatalf("expected malformed arguments, got %v", err)
	}
}

func TestRegistryValidatesArguments(t *testing.T) {
	r := setupRegistry(t, nil)
	if _, err := call(t, r, "read_file", map[string]any{}); apperr.CodeOf(err) != apperr.MalformedArguments {
		t.Fatalf("missing required: got %v", err)
	}
	if _, err := call(t, r, "read_file", map[string]any{"path": 3}); apperr.CodeOf(err) != apperr.MalformedArguments {
		t.Fatalf("wrong type: got %v", err)
	}
	if _, err := r.Call(context.Background(), "read_file", json.RawMessage(`[1]`)); apperr.CodeOf(err) != apperr.MalformedArguments {
		t.Fatalf("non-object: got %v", err)
	}
	if _, err := r.Call(context.Background(), "nope", nil); apperr.CodeOf(err) != apperr.ToolNotFound {
		t.Fatalf("unknown tool: got %v", err)
	}
}

func TestRegistrySpecsSorted(t *testing.T) {
	r := setupRegistry(t, nil)
	specs := r.Specs()
	if len(specs) != 9 {
		t.Fatalf("expected 9 tools, got %d", len(specs))
	}
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name >= specs[i].Name {
			t.Fatalf("specs not sorted: %s before %s", specs[i-1].Name, specs[i].Name)
		}
	}
}

type boomTool struct{}

func (boomTool) Spec() ToolSpec { return ToolSpec{Name: "boom"} }
func (boomTool) Call(context.Context, json.RawMessage) (json.RawMessage, error) {
	return nil, context.DeadlineExceeded
}

func TestRegistryWrapsToolErrors(t *testing.T) {
	r, err := NewRegistry(boomTool{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	_, err = r.Call(context.Background(), "boom", nil)
	if apperr.CodeOf(err) != apperr.ToolInvocation {
		t.Fatalf("expected invocation error, got %v", err)
	}
}

type panicTool struct{}

func (panicTool) Spec() ToolSpec { return ToolSpec{Name: "panicky"} }
func (panicTool) Call(context.Context, json.RawMessage) (json.RawMessage, error) {
	var m map[string]int
	m["x"] = 1
	return nil, nil
}

func TestRegistryRecoversToolPanic(t *testing.T) {
	r, err := NewRegistry(panicTool{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	_, err = r.Call(context.Background(), "panicky", nil)
	if apperr.CodeOf(err) != apperr.ToolInvocation {
		t.Fatalf("expected invocation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "panicky panicked: assignment to entry in nil map") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestProjectTree(t *testing.T) {
	h := setupHost(t, map[string]string{
		"README.md":             "# x",
		"src/pkg/deep/leaf.py":  "x",
		"node_modules/lib/i.js": "x",
	})
	tree := ProjectTree(h.FS.Root(), 2)
	raw, _ := json.Marshal(tree)
	want := `{"README.md":null,"node_modules/":{},"src/":{"pkg/":{}}}`
	if string(raw) != want {
		t.Fatalf("tree:\n got %s\nwant %s", raw, want)
	}
}

func TestEntryPointsAndSummary(t *testing.T) {
	h := setupHost(t, map[string]string{
		"README.md":       "# demo",
		"Makefile":        "all:",
		".env":            "X=1",
		"cli.py":          "import sys\nif __name__ == \"__main__\":\n    main()\n",
		"web/index.js":    "require('x')",
		"cmd/tool/run.go": "package main\n\nfunc main() {}\n",
		"docs/guide.md":   "text",
	})
	eps, err := FindEntryPoints(context.Background(), h)
	if err != nil {
		t.Fatalf("entry points: %v", err)
	}
	want := []EntryPoint{
		{File: "cli.py", Reason: "Contains python entry point pattern"},
		{File: "cmd/tool/run.go", Reason: "Contains go entry point pattern"},
		{File: "web/index.js", Reason: "Common entry filename"},
	}
	if len(eps) != len(want) {
		t.Fatalf("entry points: got %+v", eps)
	}
	for i := range want {
		if eps[i] != want[i] {
			t.Fatalf("entry %d: got %+v want %+v", i, eps[i], want[i])
		}
	}

	sum, err := Summarize(context.Background(), h)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if strings.Join(sum.TopLevelStructure, ",") != "Makefile,README.md,cli.py,cmd/,docs/,web/" {
		t.Fatalf("top level: %v", sum.TopLevelStructure)
	}
	if strings.Join(sum.KeyFiles, ",") != "README.md,Makefile" {
		t.Fatalf("key files: %v", sum.KeyFiles)
	}
	if strings.Join(sum.FileExtensions, ",") != ".go,.js,.md,.py" {
		t.Fatalf("extensions: %v", sum.FileExtensions)
	}
	if len(sum.EntryPoints) != 3 {
		t.Fatalf("summary entry points: %+v", sum.EntryPoints)
	}
}

func TestSignalTools(t *testing.T) {
	r := setupRegistry(t, map[string]string{
		"a.py": "import os\n\ndef bar():\n    return 1\n",
		"m.py": "for x in batches: model.fit(x, y)\n",
	})
	out, err := call(t, r, "find_unused_symbols", map[string]string{})
	if err != nil {
		t.Fatalf("find_unused_symbols: %v", err)
	}
	if string(out) != `[{"symbol":"bar","defined_in":{"file":"a.py","line":3}}]` {
		t.Fatalf("unused: %s", out)
	}
	out, err = call(t, r, "find_expensive_operations", map[string]string{"path": "."})
	if err != nil {
		t.Fatalf("find_expensive_operations: %v", err)
	}
	if string(out) != `[{"file":"m.py","line":1,"method":"fit","signals":{"inside_loop":true,"async_context":false}}]` {
		t.Fatalf("expensive: %s", out)
	}
	out, err = call(t, r, "collect_signals", map[string]string{})
	if err != nil {
		t.Fatalf("collect_signals: %v", err)
	}
	var rep signals.Report
	if err := json.Unmarshal(out, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if _, ok := rep.Definitions["bar"]; !ok {
		t.Fatalf("report missing bar: %s", out)
	}
	if _, err := call(t, r, "collect_signals", map[string]string{"path": "../x"}); apperr.CodeOf(err) != apperr.AccessDenied {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestResultText(t *testing.T) {
	if got := ResultText(json.RawMessage(`"a\nb"`)); got != "a\nb" {
		t.Fatalf("string: %q", got)
	}
	if got := ResultText(json.RawMessage(`[1,2]`)); got != "[1,2]" {
		t.Fatalf("json: %q", got)
	}
}
