package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"devassist/internal/search"
)

// --------------------- search_code ---------------------

type searchCodeTool struct{ host Host }

func newSearchCodeTool(h Host) *searchCodeTool { return &searchCodeTool{host: h} }

func (t *searchCodeTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "search_code",
		Description: "Search for a text pattern across all the files in the workspace",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"query":       stringProp("Text to search for"),
			"path":        stringProp("Relative directory to search in (default: workspace root)"),
			"max_results": intProp("Maximum number of results to return (default: 50)", 1),
		}, "query"),
	}
}

type searchCodeInput struct {
	Query      string `json:"query"`
	Path       string `json:"path"`
	MaxResults int    `json:"max_results"`
}

func (t *searchCodeTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in searchCodeInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if t.host.Searcher == nil {
		return nil, fmt.Errorf("search_code: searcher not configured")
	}
	t.host.logf("Searching project for '%s'", in.Query)
	matches, err := t.host.Searcher.Search(ctx, search.Query{Text: in.Query, Path: in.Path, MaxResults: in.MaxResults})
	if err != nil {
		return nil, err
	}
	t.host.logf("Search complete. Found %d matches.", len(matches))
	return json.Marshal(matches)
}
