package llmtool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devassist/internal/apperr"
	"devassist/internal/llmclient"
	"devassist/internal/mcp"
)

type fnTool struct {
	name   string
	schema *jsonschema.Schema
	fn     func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

func (f fnTool) Spec() mcp.ToolSpec {
	return mcp.ToolSpec{Name: f.name, Description: f.name + " tool", InputSchema: f.schema}
}

func (f fnTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f.fn(ctx, input)
}

func constTool(name, text string) fnTool {
	return fnTool{name: name, fn: func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(text)
	}}
}

func newRegistry(t *testing.T, tools ...mcp.Tool) *mcp.Registry {
	t.Helper()
	r, err := mcp.NewRegistry(tools...)
	require.NoError(t, err)
	return r
}

func call(id, name, args string) llmclient.ToolCall {
	return llmclient.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestLoop_ToolThenAnswer(t *testing.T) {
	llm := llmclient.NewScriptedClient(
		llmclient.ToolCallResponse(call("c1", "echo", `{}`)),
		llmclient.AnswerResponse("done"),
	)
	loop := &Loop{LLM: llm, Tools: newRegistry(t, constTool("echo", "hello"))}
	res, err := loop.Run(context.Background(), "what is this?")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StateDone || res.Answer != "done" || res.Steps != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// system, user, assistant(tool call), tool, assistant(answer)
	if len(res.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(res.Messages))
	}
	tool := res.Messages[3]
	if tool.Role != llmclient.RoleTool || tool.ToolCallID != "c1" || tool.Content != "hello" {
		t.Fatalf("unexpected tool message: %+v", tool)
	}
	first := llm.Requests()[0]
	if first.Messages[0].Content != SystemPrompt || first.Messages[1].Content != "what is this?" {
		t.Fatalf("unexpected initial conversation: %+v", first.Messages)
	}
}

func TestLoop_StepBudget(t *testing.T) {
	llm := llmclient.NewScriptedClient()
	llm.Fallback = func(llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
		resp := llmclient.ToolCallResponse(call("", "echo", `{}`))
		return &resp, nil
	}
	loop := &Loop{LLM: llm, Tools: newRegistry(t, constTool("echo", "again")), MaxSteps: 3}
	res, err := loop.Run(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, 3, llm.Calls())
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, ExhaustedAnswer, res.Answer)
	assert.Equal(t, "call_1_0", res.Messages[2].ToolCalls[0].ID)
}

func TestLoop_DefaultBudget(t *testing.T) {
	llm := llmclient.NewScriptedClient()
	llm.Fallback = func(llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
		resp := llmclient.ToolCallResponse(call("x", "echo", `{}`))
		return &resp, nil
	}
	res, err := (&Loop{LLM: llm, Tools: newRegistry(t, constTool("echo", ""))}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSteps, llm.Calls())
	assert.Equal(t, DefaultMaxSteps, res.Steps)
}

func TestLoop_SelfToolNeverAdvertised(t *testing.T) {
	reg := newRegistry(t, constTool("echo", "x"), constTool("read_file", "y"))
	q := &QueryTool{}
	require.NoError(t, reg.Register(q))

	llm := llmclient.NewScriptedClient(
		llmclient.ToolCallResponse(call("c1", "query", `{"question":"recurse"}`)),
		llmclient.AnswerResponse("ok"),
	)
	q.Loop = Loop{LLM: llm, Tools: reg}
	res, err := q.Loop.Run(context.Background(), "q")
	require.NoError(t, err)

	for _, req := range llm.Requests() {
		var names []string
		for _, d := range req.Tools {
			names = append(names, d.Name)
		}
		assert.Equal(t, []string{"echo", "read_file"}, names)
	}
	assert.Equal(t, 2, llm.Calls())
	assert.True(t, strings.HasPrefix(res.Messages[3].Content, "Error calling tool 'query': "))
	assert.Contains(t, res.Messages[3].Content, "unknown tool")
}

func TestLoop_ToolErrorsAreContained(t *testing.T) {
	boom := fnTool{name: "boom", fn: func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("kaboom")
	}}
	strict := fnTool{
		name: "strict",
		schema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
		fn: func(context.Context, json.RawMessage) (json.RawMessage, error) { return json.Marshal("fine") },
	}
	llm := llmclient.NewScriptedClient(
		llmclient.ToolCallResponse(
			call("a", "boom", `{}`),
			call("b", "strict", `{not json`),
			call("c", "strict", `{}`),
			call("d", "missing", `{}`),
			call("e", "strict", `{"path":"a.py"}`),
		),
		llmclient.AnswerResponse("recovered"),
	)
	res, err := (&Loop{LLM: llm, Tools: newRegistry(t, boom, strict)}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Answer)

	tools := res.Messages[3:8]
	assert.Equal(t, "Error calling tool 'boom': boom failed: kaboom", tools[0].Content)
	assert.Contains(t, tools[1].Content, "Error calling tool 'strict': arguments are not valid JSON")
	assert.Contains(t, tools[2].Content, "Error calling tool 'strict': invalid arguments")
	assert.Equal(t, `Error calling tool 'missing': unknown tool "missing"`, tools[3].Content)
	assert.Equal(t, "fine", tools[4].Content)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, id, tools[i].ToolCallID)
		assert.Equal(t, llmclient.RoleTool, tools[i].Role)
	}
}

func TestLoop_ParallelKeepsRequestOrder(t *testing.T) {
	var mu sync.Mutex
	var finished []string
	slow := func(name string, d time.Duration) fnTool {
		return fnTool{name: name, fn: func(context.Context, json.RawMessage) (json.RawMessage, error) {
			time.Sleep(d)
			mu.Lock()
			finished = append(finished, name)
			mu.Unlock()
			return json.Marshal(name + " out")
		}}
	}
	llm := llmclient.NewScriptedClient(
		llmclient.ToolCallResponse(call("1", "slow", `{}`), call("2", "fast", `{}`)),
		llmclient.AnswerResponse("ok"),
	)
	loop := &Loop{
		LLM:      llm,
		Tools:    newRegistry(t, slow("slow", 50*time.Millisecond), slow("fast", 0)),
		Parallel: true,
	}
	res, err := loop.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "slow"}, finished)
	assert.Equal(t, "slow out", res.Messages[3].Content)
	assert.Equal(t, "fast out", res.Messages[4].Content)
}

func TestLoop_EmptyAnswer(t *testing.T) {
	llm := llmclient.NewScriptedClient(llmclient.AnswerResponse(""))
	res, err := (&Loop{LLM: llm, Tools: newRegistry(t)}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, res.Answer)
	assert.Equal(t, StateDone, res.State)
}

func TestLoop_ReasoningFailure(t *testing.T) {
	llm := llmclient.NewScriptedClient(llmclient.ToolCallResponse(call("1", "echo", `{}`)))
	res, err := (&Loop{LLM: llm, Tools: newRegistry(t, constTool("echo", ""))}).Run(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, apperr.Has(err, apperr.ReasoningService))
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Steps)

	_, err = (&Loop{}).Run(context.Background(), "q")
	assert.ErrorIs(t, err, ErrMissingDeps)
}

func TestLoop_AdvertisedParameters(t *testing.T) {
	llm := llmclient.NewScriptedClient(llmclient.AnswerResponse("ok"))
	reg := newRegistry(t, constTool("bare", ""))
	_, err := (&Loop{LLM: llm, Tools: reg}).Run(context.Background(), "q")
	require.NoError(t, err)
	defs := llm.Requests()[0].Tools
	require.Len(t, defs, 1)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(defs[0].Parameters))
}

func TestLoop_ObserverSequence(t *testing.T) {
	var kinds []EventKind
	obs := ObserverFunc(func(_ context.Context, ev Event) { kinds = append(kinds, ev.Kind) })
	llm := llmclient.NewScriptedClient(
		llmclient.ToolCallResponse(call("1", "echo", `{}`)),
		llmclient.AnswerResponse("ok"),
	)
	loop := &Loop{LLM: llm, Tools: newRegistry(t, constTool("echo", "")), Observer: Observers{obs, nil}}
	_, err := loop.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventStep, EventToolCall, EventToolResult, EventStep, EventAnswer}, kinds)
	assert.True(t, Event{Kind: EventAnswer}.Terminal())
	assert.False(t, Event{Kind: EventToolCall}.Terminal())
}

func TestQueryTool_ThroughRegistry(t *testing.T) {
	reg := newRegistry(t, constTool("echo", ""))
	q := &QueryTool{Loop: Loop{LLM: llmclient.NewScriptedClient(llmclient.AnswerResponse("42")), Tools: reg}}
	require.NoError(t, reg.Register(q))

	out, err := reg.Call(context.Background(), "query", json.RawMessage(`{"question":"meaning?"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", mcp.ResultText(out))

	_, err = reg.Call(context.Background(), "query", json.RawMessage(`{}`))
	assert.True(t, apperr.Has(err, apperr.MalformedArguments))
}

type panicProvider struct{ inner ToolProvider }

func (p panicProvider) Specs() []mcp.ToolSpec { return p.inner.Specs() }
func (p panicProvider) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	if name == "nilmap" {
		var m map[string]int
		m["x"] = 1
	}
	return p.inner.Call(ctx, name, input)
}

func TestLoop_PanickingToolIsContained(t *testing.T) {
	nilmap := fnTool{name: "nilmap", fn: func(context.Context, json.RawMessage) (json.RawMessage, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	}}
	for _, parallel := range []bool{false, true} {
		reg := newRegistry(t, nilmap, constTool("echo", "still here"))
		providers := map[string]ToolProvider{
			"registry": reg,
			"provider": panicProvider{inner: newRegistry(t, constTool("nilmap", ""), constTool("echo", "still here"))},
		}
		for label, tools := range providers {
			llm := llmclient.NewScriptedClient(
				llmclient.ToolCallResponse(call("p", "nilmap", `{}`), call("e", "echo", `{}`)),
				llmclient.AnswerResponse("survived"),
			)
			loop := &Loop{LLM: llm, Tools: tools, Parallel: parallel}
			res, err := loop.Run(context.Background(), "q")
			if err != nil {
				t.Fatalf("%s parallel=%v: Run error: %v", label, parallel, err)
			}
			if res.Answer != "survived" {
				t.Fatalf("%s parallel=%v: unexpected answer %q", label, parallel, res.Answer)
			}
			msg := res.Messages[3].Content
			if !strings.HasPrefix(msg, "Error calling tool 'nilmap': ") || !strings.Contains(msg, "nilmap panicked: assignment to entry in nil map") {
				t.Fatalf("%s parallel=%v: unexpected tool message %q", label, parallel, msg)
			}
			if res.Messages[4].Content != "still here" {
				t.Fatalf("%s parallel=%v: second call lost: %+v", label, parallel, res.Messages[4])
			}
		}
	}
}
