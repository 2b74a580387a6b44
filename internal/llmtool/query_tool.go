package llmtool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"devassist/internal/apperr"
	"devassist/internal/mcp"
)

// QueryTool exposes the loop as a registry tool. Each call copies Loop and
// runs it with a fresh conversation.
type QueryTool struct {
	Loop Loop
}

type queryInput struct {
	Question string `json:"question"`
}

func (q *QueryTool) name() string {
	if q.Loop.SelfName != "" {
		return q.Loop.SelfName
	}
	return DefaultSelfName
}

func (q *QueryTool) Spec() mcp.ToolSpec {
	return mcp.ToolSpec{
		Name:        q.name(),
		Description: "Answer a natural-language question about the workspace by reasoning over the other tools.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"question": {Type: "string", Description: "The question to answer."},
			},
			Required: []string{"question"},
		},
	}
}

func (q *QueryTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in queryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperr.Wrap(apperr.MalformedArguments, err, "cannot decode arguments")
	}
	if strings.TrimSpace(in.Question) == "" {
		return nil, apperr.New(apperr.MalformedArguments, "question is empty")
	}
	loop := q.Loop
	loop.SelfName = q.name()
	res, err := loop.Run(ctx, in.Question)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res.Answer)
}
