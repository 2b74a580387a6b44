package llmtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"devassist/internal/apperr"
	"devassist/internal/llmclient"
	"devassist/internal/mcp"
)

// State is the loop's position in its state machine.
type State string

const (
	StateReasoning   State = "reasoning"
	StateDispatching State = "dispatching"
	StateDone        State = "done"
	StateExhausted   State = "exhausted"
)

const (
	DefaultMaxSteps = 20
	// DefaultSelfName is the tool name under which the loop itself is
	// exposed; it is never advertised back to the reasoning service.
	DefaultSelfName = "query"

	NoAnswer        = "No answer generated."
	ExhaustedAnswer = "I could not fully answer the question within the allowed reasoning steps."
)

var ErrMissingDeps = errors.New("llmtool: missing LLM or tools")

// ToolProvider abstracts tool registry calls.
type ToolProvider interface {
	Specs() []mcp.ToolSpec
	Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error)
}

// Loop runs reasoning/tool-call turns until the service answers or the
// step budget runs out. A Loop value holds configuration only; every Run
// starts a fresh conversation.
type Loop struct {
	LLM          llmclient.LLMClient
	Tools        ToolProvider
	SystemPrompt string
	SelfName     string
	MaxSteps     int
	// Parallel dispatches the calls of one turn concurrently. Tool messages
	// are appended in request order either way.
	Parallel bool
	Logger   *log.Logger
	Observer Observer
}

// Result is the outcome of one Run.
type Result struct {
	Answer   string              `json:"answer"`
	State    State               `json:"state"`
	Steps    int                 `json:"steps"`
	Messages []llmclient.Message `json:"messages"`
	Usage    llmclient.Usage     `json:"usage"`
}

// Run answers task. Only a reasoning-service failure is returned as an
// error (coded REASONING_SERVICE); the partial Result is returned with it.
func (l *Loop) Run(ctx context.Context, task string) (*Result, error) {
	if l == nil || l.LLM == nil || l.Tools == nil {
		return nil, ErrMissingDeps
	}
	maxSteps := l.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	system := l.SystemPrompt
	if system == "" {
		system = SystemPrompt
	}
	res := &Result{
		State: StateReasoning,
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: system},
			{Role: llmclient.RoleUser, Content: task},
		},
	}

	for step := 1; step <= maxSteps; step++ {
		res.Steps = step
		l.emit(ctx, Event{Kind: EventStep, Step: step})

		tools, err := l.advertised()
		if err != nil {
			return res, err
		}
		resp, err := l.LLM.Chat(ctx, llmclient.ChatRequest{Messages: res.Messages, Tools: tools.defs})
		if err != nil {
			l.emit(ctx, Event{Kind: EventFailed, Step: step, Error: err.Error()})
			return res, apperr.Wrap(apperr.ReasoningService, err, "reasoning service failed at step %d", step)
		}
		res.Usage.PromptTokens += resp.Usage.PromptTokens
		res.Usage.CompletionTokens += resp.Usage.CompletionTokens

		msg := resp.Message
		msg.Role = llmclient.RoleAssistant
		if len(msg.ToolCalls) == 0 {
			res.Messages = append(res.Messages, msg)
			res.State = StateDone
			res.Answer = msg.Content
			if res.Answer == "" {
				res.Answer = NoAnswer
			}
			l.emit(ctx, Event{Kind: EventAnswer, Step: step, Text: res.Answer})
			return res, nil
		}

		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].ID == "" {
				msg.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", step, i)
			}
		}
		res.Messages = append(res.Messages, msg)
		res.State = StateDispatching
		l.logf("step %d: %d tool calls", step, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			l.emit(ctx, Event{Kind: EventToolCall, Step: step, Tool: call.Name, CallID: call.ID, Arguments: call.Arguments})
		}

		outs := l.dispatch(ctx, tools.names, msg.ToolCalls)
		for i, call := range msg.ToolCalls {
			res.Messages = append(res.Messages, llmclient.Message{
				Role:       llmclient.RoleTool,
				Content:    outs[i].text,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
			ev := Event{Kind: EventToolResult, Step: step, Tool: call.Name, CallID: call.ID}
			if outs[i].err != nil {
				ev.Error = outs[i].err.Error()
			}
			l.emit(ctx, ev)
		}
		res.State = StateReasoning
	}

	res.State = StateExhausted
	res.Answer = ExhaustedAnswer
	l.logf("step budget of %d exhausted", maxSteps)
	l.emit(ctx, Event{Kind: EventExhausted, Step: res.Steps, Text: res.Answer})
	return res, nil
}

type advertisedTools struct {
	defs  []llmclient.ToolDef
	names map[string]struct{}
}

// advertised snapshots the live registry minus the loop's own tool.
func (l *Loop) advertised() (advertisedTools, error) {
	self := l.SelfName
	if self == "" {
		self = DefaultSelfName
	}
	specs := l.Tools.Specs()
	out := advertisedTools{names: make(map[string]struct{}, len(specs))}
	for _, s := range specs {
		if s.Name == self {
			continue
		}
		params, err := parameters(s)
		if err != nil {
			return out, fmt.Errorf("llmtool: tool %s: %w", s.Name, err)
		}
		out.defs = append(out.defs, llmclient.ToolDef{Name: s.Name, Description: s.Description, Parameters: params})
		out.names[s.Name] = struct{}{}
	}
	return out, nil
}

// parameters renders the schema as a JSON object that always has a
// "properties" member; some providers reject object schemas without one.
func parameters(s mcp.ToolSpec) (json.RawMessage, error) {
	obj := map[string]any{}
	if s.InputSchema != nil {
		raw, err := json.Marshal(s.InputSchema)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
	}
	if _, ok := obj["type"]; !ok {
		obj["type"] = "object"
	}
	if _, ok := obj["properties"]; !ok {
		obj["properties"] = map[string]any{}
	}
	return json.Marshal(obj)
}

type callOutcome struct {
	text string
	err  error
}

func (l *Loop) dispatch(ctx context.Context, allowed map[string]struct{}, calls []llmclient.ToolCall) []callOutcome {
	outs := make([]callOutcome, len(calls))
	if !l.Parallel || len(calls) < 2 {
		for i, c := range calls {
			outs[i] = l.invoke(ctx, allowed, c)
		}
		return outs
	}
	var g errgroup.Group
	for i, c := range calls {
		g.Go(func() error {
			outs[i] = l.invoke(ctx, allowed, c)
			return nil
		})
	}
	_ = g.Wait()
	return outs
}

// invoke runs one call. Any failure becomes the tool message text so the
// service can see it and recover.
func (l *Loop) invoke(ctx context.Context, allowed map[string]struct{}, c llmclient.ToolCall) callOutcome {
	var err error
	var out json.RawMessage
	if _, ok := allowed[c.Name]; !ok {
		err = apperr.New(apperr.ToolNotFound, "unknown tool %q", c.Name)
	} else {
		out, err = l.call(ctx, c)
	}
	if err != nil {
		l.logf("tool %s failed: %v", c.Name, err)
		return callOutcome{text: fmt.Sprintf("Error calling tool '%s': %v", c.Name, err), err: err}
	}
	return callOutcome{text: mcp.ResultText(out)}
}

// call recovers a panic from the provider so it is contained like any
// other tool error.
func (l *Loop) call(ctx context.Context, c llmclient.ToolCall) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, apperr.New(apperr.ToolInvocation, "%s panicked: %v", c.Name, r)
		}
	}()
	return l.Tools.Call(ctx, c.Name, json.RawMessage(c.Arguments))
}

func (l *Loop) emit(ctx context.Context, ev Event) {
	if l.Observer != nil {
		l.Observer.Observe(ctx, ev)
	}
}

func (l *Loop) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}
