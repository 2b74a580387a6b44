package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions API with tool
// calling. It serves OpenAI and Groq alike.
type OpenAIClient struct {
	http     *http.Client
	apiKey   string
	model    string
	baseURL  string
	provider string
}

// NewOpenAIClient creates a client. An empty baseURL means OpenAI.
func NewOpenAIClient(provider, apiKey, model, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}
	if provider == "" {
		provider = "OpenAI"
	}
	return &OpenAIClient{
		http:     &http.Client{Timeout: 120 * time.Second},
		apiKey:   apiKey,
		model:    model,
		baseURL:  strings.TrimRight(baseURL, "/"),
		provider: provider,
	}
}

func (c *OpenAIClient) Name() string { return c.provider + ":" + c.model }
func (c *OpenAIClient) Close() error { return nil }

type oaChatReq struct {
	Model      string      `json:"model"`
	Messages   []oaMessage `json:"messages"`
	Tools      []oaTool    `json:"tools,omitempty"`
	ToolChoice string      `json:"tool_choice,omitempty"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    *string      `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string     `json:"type"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type oaChatResp struct {
	Choices []struct {
		Message oaMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Chat(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	reqBody := oaChatReq{Model: c.model, Messages: make([]oaMessage, 0, len(in.Messages))}
	for _, m := range in.Messages {
		reqBody.Messages = append(reqBody.Messages, toOAMessage(m))
	}
	for _, t := range in.Tools {
		reqBody.Tools = append(reqBody.Tools, oaTool{
			Type:     "function",
			Function: oaFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if len(reqBody.Tools) > 0 {
		reqBody.ToolChoice = "auto"
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewPermanentError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, NewPermanentError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("%s: unexpected status %s: %s", strings.ToLower(c.provider), resp.Status, string(body))
		switch {
		case resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "context_length_exceeded"):
			return nil, NewPermanentError(err)
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
			return nil, NewPermanentError(err)
		case resp.StatusCode == http.StatusTooManyRequests:
			if h, ok := parseRateLimitHeaders(resp.Header); ok {
				return nil, &RateLimitedError{Wait: h.NextWait(), Err: err}
			}
		}
		return nil, err
	}
	var out oaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrInvalidResponse
	}
	msg := out.Choices[0].Message
	res := &ChatResponse{
		Message: Message{Role: RoleAssistant},
		Usage:   Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens},
	}
	if msg.Content != nil {
		res.Message.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		res.Message.ToolCalls = append(res.Message.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return res, nil
}

func toOAMessage(m Message) oaMessage {
	out := oaMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
	content := m.Content
	out.Content = &content
	if len(m.ToolCalls) > 0 {
		if content == "" {
			out.Content = nil
		}
		for _, tc := range m.ToolCalls {
			var call oaToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	return out
}
