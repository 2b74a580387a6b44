package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays canned responses in order. When the script runs
// out it calls Fallback, or fails if there is none. Requests are recorded.
type ScriptedClient struct {
	Script   []ChatResponse
	Fallback func(ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	next     int
	requests []ChatRequest
}

func NewScriptedClient(script ...ChatResponse) *ScriptedClient {
	return &ScriptedClient{Script: script}
}

func (s *ScriptedClient) Name() string { return "Scripted" }
func (s *ScriptedClient) Close() error { return nil }

func (s *ScriptedClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, cloneRequest(req))
	if s.next < len(s.Script) {
		resp := s.Script[s.next]
		s.next++
		s.mu.Unlock()
		resp.Message.Role = RoleAssistant
		return &resp, nil
	}
	fallback := s.Fallback
	s.mu.Unlock()
	if fallback == nil {
		return nil, fmt.Errorf("scripted: no response left after %d calls", len(s.Script))
	}
	return fallback(req)
}

// Requests returns the recorded requests.
func (s *ScriptedClient) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of Chat invocations so far.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func cloneRequest(req ChatRequest) ChatRequest {
	out := ChatRequest{
		Messages: make([]Message, len(req.Messages)),
		Tools:    make([]ToolDef, len(req.Tools)),
	}
	copy(out.Messages, req.Messages)
	copy(out.Tools, req.Tools)
	return out
}

// AnswerResponse is a direct answer with no tool calls.
func AnswerResponse(text string) ChatResponse {
	return ChatResponse{Message: Message{Role: RoleAssistant, Content: text}}
}

// ToolCallResponse requests the given tool calls.
func ToolCallResponse(calls ...ToolCall) ChatResponse {
	return ChatResponse{Message: Message{Role: RoleAssistant, ToolCalls: calls}}
}
