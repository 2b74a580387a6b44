package llmclient

import (
	"context"
	"errors"
	"log"
	"time"
)

// Middleware decorates an LLMClient to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Retry --------

// Retry retries Chat up to maxAttempts with exponential backoff starting at
// baseDelay, or longer when the provider asked for it. PermanentError is
// returned at once; a canceled context stops the loop.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next LLMClient) LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next LLMClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		wait := r.base * time.Duration(1<<i)
		if hint := retryHint(err); hint > wait {
			wait = hint
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, last
}

// -------- Logging --------

// WithLogging logs request sizes, tool-call counts and errors.
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next LLMClient
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	l.log.Printf("LLM request (%s): %d messages, %d tools", l.next.Name(), len(req.Messages), len(req.Tools))
	resp, err := l.next.Chat(ctx, req)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", l.next.Name(), err)
		return nil, err
	}
	l.log.Printf("LLM response (%s): %d tool calls, %d+%d tokens in %s",
		l.next.Name(), len(resp.Message.ToolCalls), resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
		time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// -------- Rate limiting --------

// RateLimit paces requests to at most rps per second with the given burst;
// rps <= 0 disables pacing. A RateLimitedError from the provider pauses
// every caller of the wrapped client until the hinted wait has passed.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		return &rateLimited{next: next, p: newPacer(rps, burst)}
	}
}

type rateLimited struct {
	next LLMClient
	p    *pacer
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.p.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.next.Chat(ctx, req)
	if err != nil {
		c.p.pause(retryHint(err))
	}
	return resp, err
}
