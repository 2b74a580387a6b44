package app

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devassist/internal/apperr"
	"devassist/internal/commands"
	"devassist/internal/config"
	"devassist/internal/llmclient"
	"devassist/internal/tester"
	"devassist/internal/trace"
)

func newEngine(t *testing.T, llm llmclient.LLMClient, sink trace.Sink) *Engine {
	t.Helper()
	root := tester.Workspace(t, map[string]string{
		"main.py":  "def main():\n    helper()\n\nif __name__ == \"__main__\":\n    main()\n",
		"lib.py":   "def helper():\n    return open('x')\n\ndef orphan():\n    pass\n",
		"train.py": "for b in batches: model.fit(b)\n",
	})
	cfg := config.Default()
	cfg.WorkspaceRoot = root
	require.NoError(t, cfg.Finalize())
	e, err := New(context.Background(), cfg, log.New(&bytes.Buffer{}, "", 0), WithLLM(llm), WithTrace(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineRegistry(t *testing.T) {
	e := newEngine(t, llmclient.NewScriptedClient(), nil)
	var names []string
	for _, s := range e.Registry.Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"collect_signals", "find_entry_points", "find_expensive_operations", "find_unused_symbols",
		"list_directory", "project_tree", "query", "read_file", "search_code", "summarize_project",
	}, names)
}

func TestEngineQueryIsTraced(t *testing.T) {
	sink, err := trace.NewFileSink(t.TempDir())
	require.NoError(t, err)
	llm := llmclient.NewScriptedClient(
		llmclient.ToolCallResponse(llmclient.ToolCall{ID: "1", Name: "read_file", Arguments: `{"path":"lib.py"}`}),
		llmclient.AnswerResponse("lib.py defines helper"),
	)
	e := newEngine(t, llm, sink)

	run, err := e.Query(context.Background(), "what is in lib.py?", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, "lib.py defines helper", run.Result.Answer)
	assert.Contains(t, run.Result.Messages[3].Content, "def orphan():")

	evs, err := sink.Read(run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, "answer", evs[len(evs)-1].Stage)
	for _, d := range llm.Requests()[0].Tools {
		assert.NotEqual(t, "query", d.Name)
	}
}

func TestEngineRunCommandSeedsSignals(t *testing.T) {
	llm := llmclient.NewScriptedClient(llmclient.AnswerResponse("lib.py:4 [unused] orphan"))
	e := newEngine(t, llm, nil)

	run, err := e.RunCommand(context.Background(), commands.Lint, commands.Args{}, "test", nil)
	require.NoError(t, err)
	assert.Equal(t, "lib.py:4 [unused] orphan", run.Result.Answer)
	task := llm.Requests()[0].Messages[1].Content
	assert.True(t, strings.HasPrefix(task, "You are executing the CLI command: lint."))
	assert.Contains(t, task, `"symbol": "orphan"`)
	assert.Contains(t, task, `"method": "fit"`)

	_, err = e.RunCommand(context.Background(), commands.Lint, commands.Args{Path: "../outside"}, "test", nil)
	assert.True(t, apperr.Has(err, apperr.AccessDenied))
}

func TestEngineSignals(t *testing.T) {
	e := newEngine(t, llmclient.NewScriptedClient(), nil)
	report, err := e.Signals(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, report.Definitions, "helper")
	assert.Equal(t, []string{"main.py"}, report.Usages["helper"])

	_, err = e.Signals(context.Background(), "nope")
	assert.True(t, apperr.Has(err, apperr.NotFound))
}

func TestEngineQueryToolThroughRegistry(t *testing.T) {
	e := newEngine(t, llmclient.NewScriptedClient(llmclient.AnswerResponse("hi")), nil)
	out, err := e.Registry.Call(context.Background(), "query", []byte(`{"question":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, string(out))
}
