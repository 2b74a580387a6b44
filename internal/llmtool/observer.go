package llmtool

import (
	"context"
	"log"
)

type EventKind string

const (
	EventStep       EventKind = "step"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventAnswer     EventKind = "answer"
	EventExhausted  EventKind = "exhausted"
	EventFailed     EventKind = "failed"
)

// Event is one observation of a running loop. Events are emitted from the
// goroutine that called Run, in order.
type Event struct {
	Kind      EventKind `json:"type"`
	Step      int       `json:"step"`
	Tool      string    `json:"tool,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Arguments string    `json:"arguments,omitempty"`
	Error     string    `json:"error,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// Terminal reports whether no further events follow for the run.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventAnswer, EventExhausted, EventFailed:
		return true
	}
	return false
}

type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to each non-nil observer.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, ev)
		}
	}
}

// LogObserver writes one line per event.
func LogObserver(logger *log.Logger) Observer {
	if logger == nil {
		logger = log.Default()
	}
	return ObserverFunc(func(_ context.Context, ev Event) {
		switch ev.Kind {
		case EventStep:
			logger.Printf("[loop] step %d", ev.Step)
		case EventToolCall:
			logger.Printf("[loop] step %d call %s %s", ev.Step, ev.Tool, ev.Arguments)
		case EventToolResult:
			if ev.Error != "" {
				logger.Printf("[loop] step %d %s error: %s", ev.Step, ev.Tool, ev.Error)
			}
		case EventAnswer:
			logger.Printf("[loop] answered after %d steps", ev.Step)
		case EventExhausted:
			logger.Printf("[loop] step budget exhausted after %d steps", ev.Step)
		case EventFailed:
			logger.Printf("[loop] failed at step %d: %s", ev.Step, ev.Error)
		}
	})
}
