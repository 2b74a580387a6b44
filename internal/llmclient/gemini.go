package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	genai "google.golang.org/genai"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiClient is a thin wrapper around the official genai client.
// Cross-cutting concerns (retries, logging, rate limiting) are applied via
// Middleware.
type GeminiClient struct {
	cli    *genai.Client
	model  string
	logger *log.Logger
}

// NewGeminiClient creates a client for the Gemini API. An empty apiKey
// lets genai read GEMINI_API_KEY / GOOGLE_API_KEY itself.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *log.Logger) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GeminiClient{cli: cli, model: model, logger: logger}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) Chat(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	system, contents, err := toGeminiContents(in.Messages, g.logger.Printf)
	if err != nil {
		return nil, NewPermanentError(err)
	}
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(in.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(in.Tools))
		for _, t := range in.Tools {
			schema, err := geminiSchema(t.Parameters)
			if err != nil {
				return nil, NewPermanentError(fmt.Errorf("tool %s: %w", t.Name, err))
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrInvalidResponse
	}
	out := &ChatResponse{Message: Message{Role: RoleAssistant}}
	var text strings.Builder
	for i, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			id := p.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{ID: id, Name: p.FunctionCall.Name, Arguments: string(args)})
			continue
		}
		text.WriteString(p.Text)
	}
	out.Message.Content = text.String()
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{PromptTokens: int(u.PromptTokenCount), CompletionTokens: int(u.CandidatesTokenCount)}
	}
	return out, nil
}

// toGeminiContents maps the conversation onto genai contents. Consecutive
// tool messages become one user turn of function responses.
// Tool-call arguments that are not a JSON object are passed on under
// "_raw" and reported through logf.
func toGeminiContents(msgs []Message, logf func(format string, args ...any)) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case RoleUser:
			out = append(out, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		case RoleAssistant:
			c := &genai.Content{Role: geminiRoleModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if strings.TrimSpace(tc.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						if logf != nil {
							logf("gemini: call %s (%s) has malformed arguments: %v", tc.ID, tc.Name, err)
						}
						args = map[string]any{"_raw": tc.Arguments}
					}
				}
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			out = append(out, c)
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}}
			if n := len(out); n > 0 && out[n-1].Role == geminiRoleUser && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{part}})
		default:
			return nil, nil, fmt.Errorf("gemini: unsupported role %q", m.Role)
		}
	}
	return system, out, nil
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

// jsonSchemaNode is the subset of JSON Schema the tool parameters use,
// constraints included.
type jsonSchemaNode struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description"`
	Properties  map[string]*jsonSchemaNode `json:"properties"`
	Required    []string                   `json:"required"`
	Items       *jsonSchemaNode            `json:"items"`
	Enum        []string                   `json:"enum"`
	Default     any                        `json:"default"`
	Format      string                     `json:"format"`
	Pattern     string                     `json:"pattern"`
	Minimum     *float64                   `json:"minimum"`
	Maximum     *float64                   `json:"maximum"`
	MinLength   *int64                     `json:"minLength"`
	MaxLength   *int64                     `json:"maxLength"`
	MinItems    *int64                     `json:"minItems"`
	MaxItems    *int64                     `json:"maxItems"`
}

func geminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return &genai.Schema{Type: genai.TypeObject}, nil
	}
	var node jsonSchemaNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	return node.toGenai(), nil
}

func (n *jsonSchemaNode) toGenai() *genai.Schema {
	if n == nil {
		return nil
	}
	s := &genai.Schema{
		Description: n.Description,
		Required:    n.Required,
		Enum:        n.Enum,
		Default:     n.Default,
		Format:      n.Format,
		Pattern:     n.Pattern,
		Minimum:     n.Minimum,
		Maximum:     n.Maximum,
		MinLength:   n.MinLength,
		MaxLength:   n.MaxLength,
		MinItems:    n.MinItems,
		MaxItems:    n.MaxItems,
	}
	switch n.Type {
	case "object", "":
		s.Type = genai.TypeObject
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	}
	if len(n.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(n.Properties))
		for k, v := range n.Properties {
			s.Properties[k] = v.toGenai()
		}
	}
	s.Items = n.Items.toGenai()
	return s
}
