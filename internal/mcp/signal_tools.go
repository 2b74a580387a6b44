package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Signal tools share one input shape: a subtree to analyse.

type signalInput struct {
	Path string `json:"path"`
}

func signalSchema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"path": stringProp("Relative directory to analyse (default: workspace root)"),
	})
}

func (h Host) signalPath(input json.RawMessage) (string, error) {
	var in signalInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	if h.Signals == nil {
		return "", fmt.Errorf("signals: collector not configured")
	}
	if in.Path == "" {
		in.Path = "."
	}
	// Surface sandbox errors instead of an empty report.
	if _, err := h.FS.Resolve(in.Path); err != nil {
		return "", err
	}
	return in.Path, nil
}

// --------------------- collect_signals ---------------------

type collectSignalsTool struct{ host Host }

func newCollectSignalsTool(h Host) *collectSignalsTool { return &collectSignalsTool{host: h} }

func (t *collectSignalsTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "collect_signals",
		Description: "Collect heuristic static-analysis signals (definitions, usages, unused symbols, external calls, try blocks, expensive operations) for a subtree",
		InputSchema: signalSchema(),
	}
}

func (t *collectSignalsTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	path, err := t.host.signalPath(input)
	if err != nil {
		return nil, err
	}
	t.host.logf("Collecting signals for %s", path)
	return json.Marshal(t.host.Signals.Collect(ctx, path))
}

// --------------------- find_unused_symbols ---------------------

type unusedSymbolsTool struct{ host Host }

func newUnusedSymbolsTool(h Host) *unusedSymbolsTool { return &unusedSymbolsTool{host: h} }

func (t *unusedSymbolsTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "find_unused_symbols",
		Description: "List functions and classes that have no call sites in a subtree (heuristic)",
		InputSchema: signalSchema(),
	}
}

func (t *unusedSymbolsTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	path, err := t.host.signalPath(input)
	if err != nil {
		return nil, err
	}
	defs := t.host.Signals.CollectDefinitions(ctx, path)
	_, unused := t.host.Signals.CollectUsages(ctx, defs, path)
	return json.Marshal(unused)
}

// --------------------- find_expensive_operations ---------------------

type expensiveOpsTool struct{ host Host }

func newExpensiveOpsTool(h Host) *expensiveOpsTool { return &expensiveOpsTool{host: h} }

func (t *expensiveOpsTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "find_expensive_operations",
		Description: "Find calls to expensive methods (fit, train, load, save, ...) with loop and async hints",
		InputSchema: signalSchema(),
	}
}

func (t *expensiveOpsTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	path, err := t.host.signalPath(input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(t.host.Signals.CollectExpensiveOps(ctx, path))
}
