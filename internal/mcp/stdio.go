package mcp

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer exposes every tool currently in r through an MCP server.
// Tools registered later are not picked up.
func NewServer(r *Registry, name, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: name, Version: version}, nil)
	for _, spec := range r.Specs() {
		schema := spec.InputSchema
		if schema == nil {
			schema = objectSchema(nil)
		}
		server.AddTool(&sdk.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: schema,
		}, r.sdkHandler(spec.Name))
	}
	return server
}

// ServeStdio runs the MCP server on stdin/stdout until ctx ends or the
// client disconnects.
func ServeStdio(ctx context.Context, r *Registry, name, version string) error {
	return NewServer(r, name, version).Run(ctx, &sdk.StdioTransport{})
}

func (r *Registry) sdkHandler(name string) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		out, err := r.Call(ctx, name, args)
		if err != nil {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: ResultText(out)}},
		}, nil
	}
}

// ResultText renders a tool result for a text channel: JSON strings are
// unquoted, anything else is returned as JSON text.
func ResultText(out json.RawMessage) string {
	var s string
	if len(out) > 0 && out[0] == '"' && json.Unmarshal(out, &s) == nil {
		return s
	}
	return string(out)
}
