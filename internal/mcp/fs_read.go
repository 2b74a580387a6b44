package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"devassist/internal/apperr"
	"devassist/internal/scan"
)

// --------------------- read_file ---------------------

type readFileTool struct{ host Host }

func newReadFileTool(h Host) *readFileTool { return &readFileTool{host: h} }

func (t *readFileTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "read_file",
		Description: "Read the contents of a text file inside the configured workspace",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"path": stringProp("Relative path to the file inside the workspace"),
		}, "path"),
	}
}

type readFileInput struct {
	Path string `json:"path"`
}

func (t *readFileTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in readFileInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, apperr.New(apperr.MalformedArguments, "read_file: path required")
	}
	t.host.logf("Reading file: %s", in.Path)
	content, err := readText(t.host, in.Path)
	if err != nil {
		return nil, err
	}
	t.host.logf("Read %d characters from file", len(content))
	return json.Marshal(content)
}

// readText enforces the read_file rules and returns decoded text.
func readText(h Host, path string) (string, error) {
	abs, err := h.FS.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperr.Wrap(apperr.NotFound, err, "File not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return "", apperr.New(apperr.UnsupportedType, "Not a file: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(abs))
	if scan.IsBinary(ext) {
		return "", apperr.New(apperr.UnsupportedType, "Binary file type '%s' is not supported by read_file", ext)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	limit := h.limits().MaxFileSize
	buf, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	truncated := int64(len(buf)) > limit
	if truncated {
		buf = buf[:limit]
	}
	text := strings.ToValidUTF8(string(buf), "")
	if truncated {
		text += fmt.Sprintf("\n... [truncated: file is %d bytes, showing the first %d]", info.Size(), limit)
	}
	return text, nil
}

// --------------------- list_directory ---------------------

type listDirectoryTool struct{ host Host }

func newListDirectoryTool(h Host) *listDirectoryTool { return &listDirectoryTool{host: h} }

func (t *listDirectoryTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "list_directory",
		Description: "List files and subdirectories inside a directory in the workspace",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"path": stringProp("Relative path of directory inside the workspace (default: workspace root)"),
		}),
	}
}

type listDirectoryInput struct {
	Path string `json:"path"`
}

// DirEntry is one list_directory row. Size is nil for directories.
type DirEntry struct {
	Name string  `json:"name"`
	Path string  `json:"path"`
	Type string  `json:"type"`
	Size *string `json:"size"`
}

func (t *listDirectoryTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in listDirectoryInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Path == "" {
		in.Path = "."
	}
	dir, err := t.host.FS.Resolve(in.Path)
	if err != nil {
		return nil, err
	}
	t.host.logf("Listing directory: %s", in.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "Directory not found: %s", in.Path)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.UnsupportedType, "Not a directory: %s", in.Path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		row := DirEntry{Name: e.Name(), Path: t.host.FS.Rel(p), Type: "file"}
		if st.IsDir() {
			row.Type = "directory"
		} else {
			size := fmt.Sprintf("%d bytes", st.Size())
			row.Size = &size
		}
		out = append(out, row)
	}
	t.host.logf("Found %d items in directory", len(out))
	return json.Marshal(out)
}
