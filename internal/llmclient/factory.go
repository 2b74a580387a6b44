package llmclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Default models per provider.
var DefaultModels = map[string]string{
	"openai": "gpt-4o-mini",
	"groq":   "llama-3.3-70b-versatile",
	"gemini": "gemini-2.5-flash",
	"fake":   "scripted",
}

// Settings selects and decorates a reasoning-service client.
type Settings struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	RetryAttempts int
	RPS           float64
	Logger        *log.Logger
}

// New builds the configured client wrapped with logging, retry and rate
// limiting.
func New(ctx context.Context, s Settings) (LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider == "" {
		provider = "openai"
	}
	model := s.Model
	if model == "" {
		model = DefaultModels[provider]
	}
	var base LLMClient
	switch provider {
	case "openai":
		base = NewOpenAIClient("OpenAI", s.APIKey, model, s.BaseURL)
	case "groq":
		url := s.BaseURL
		if url == "" {
			url = GroqBaseURL
		}
		base = NewOpenAIClient("Groq", s.APIKey, model, url)
	case "gemini":
		g, err := NewGeminiClient(ctx, s.APIKey, model, s.Logger)
		if err != nil {
			return nil, err
		}
		base = g
	case "fake":
		sc := NewScriptedClient()
		sc.Fallback = echoAnswer
		base = sc
	default:
		return nil, fmt.Errorf("llmclient: unknown provider %q", s.Provider)
	}
	return Wrap(base,
		WithLogging(s.Logger),
		Retry(s.RetryAttempts, 500*time.Millisecond),
		RateLimit(s.RPS, 1),
	), nil
}

// echoAnswer answers without tools; used by the offline provider.
func echoAnswer(req ChatRequest) (*ChatResponse, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	first, _, _ := strings.Cut(strings.TrimSpace(last), "\n")
	resp := AnswerResponse(fmt.Sprintf("(offline provider) received task: %s", first))
	return &resp, nil
}

// Lazy defers New until the first Chat, so commands that never reason do
// not need credentials. A construction error is returned by every Chat.
func Lazy(s Settings) LLMClient {
	return &lazyClient{settings: s}
}

type lazyClient struct {
	settings Settings

	once sync.Once
	err  error

	mu     sync.Mutex
	client LLMClient
}

// current returns the built client, or nil before the first Chat.
func (l *lazyClient) current() LLMClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

func (l *lazyClient) Name() string {
	if c := l.current(); c != nil {
		return c.Name()
	}
	return "lazy:" + l.settings.Provider
}

func (l *lazyClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	l.once.Do(func() {
		var c LLMClient
		c, l.err = New(ctx, l.settings)
		l.mu.Lock()
		l.client = c
		l.mu.Unlock()
	})
	if l.err != nil {
		return nil, NewPermanentError(l.err)
	}
	return l.current().Chat(ctx, req)
}

func (l *lazyClient) Close() error {
	l.once.Do(func() { l.err = errors.New("llmclient: closed") })
	if c := l.current(); c != nil {
		return c.Close()
	}
	return nil
}
