package trace

import (
	"context"
	"log"

	"devassist/internal/llmtool"
)

// Observer records loop events for one run.
type Observer struct {
	Sink   Sink
	RunID  string
	Source string
	Logger *log.Logger
}

func NewObserver(sink Sink, runID, source string, logger *log.Logger) *Observer {
	return &Observer{Sink: sink, RunID: runID, Source: source, Logger: logger}
}

func (o *Observer) Observe(ctx context.Context, ev llmtool.Event) {
	if o == nil || o.Sink == nil {
		return
	}
	fields := map[string]any{"step": ev.Step}
	if ev.Tool != "" {
		fields["tool"] = ev.Tool
	}
	if ev.CallID != "" {
		fields["call_id"] = ev.CallID
	}
	if ev.Arguments != "" {
		fields["arguments"] = ev.Arguments
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
	}
	if ev.Text != "" {
		fields["text"] = ev.Text
	}
	// Tracing never fails a query.
	if err := o.Sink.Append(context.WithoutCancel(ctx), NewEvent(o.RunID, o.Source, string(ev.Kind), fields)); err != nil && o.Logger != nil {
		o.Logger.Printf("trace %s: %v", o.RunID, err)
	}
}
