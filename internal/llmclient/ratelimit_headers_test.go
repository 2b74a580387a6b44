package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	_, ok := parseRateLimitHeaders(h)
	assert.False(t, ok)

	h.Set("x-ratelimit-remaining-requests", "0")
	h.Set("x-ratelimit-reset-requests", "2m59.56s")
	h.Set("x-ratelimit-remaining-tokens", "100")
	h.Set("x-ratelimit-reset-tokens", "7.66s")
	got, ok := parseRateLimitHeaders(h)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute+59560*time.Millisecond, got.NextWait())

	h.Set("retry-after", "3")
	got, _ = parseRateLimitHeaders(h)
	assert.Equal(t, 3*time.Second, got.NextWait())

	only := http.Header{}
	only.Set("x-ratelimit-reset-tokens", "1s")
	got, _ = parseRateLimitHeaders(only)
	assert.Zero(t, got.NextWait())
}

func TestOpenAIClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := NewOpenAIClient("Groq", "", "m", srv.URL).Chat(context.Background(), ChatRequest{})
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Second, rl.Wait)
	assert.Equal(t, time.Second, retryHint(err))
}

func TestRetryWaitsForHint(t *testing.T) {
	inner := &flakyClient{fail: 1, err: &RateLimitedError{Wait: 30 * time.Millisecond, Err: http.ErrHandlerTimeout}}
	start := time.Now()
	_, err := Wrap(inner, Retry(2, time.Millisecond)).Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPacerBucketAndPause(t *testing.T) {
	clock := time.Unix(0, 0)
	p := newPacer(2, 1)
	p.now = func() time.Time { return clock }
	p.last = clock

	assert.Zero(t, p.reserve())
	assert.Equal(t, 500*time.Millisecond, p.reserve())
	clock = clock.Add(500 * time.Millisecond)
	assert.Zero(t, p.reserve())

	p.pause(3 * time.Second)
	p.pause(time.Second)
	assert.Equal(t, 3*time.Second, p.reserve())
	clock = clock.Add(3 * time.Second)
	assert.Zero(t, p.reserve())

	off := newPacer(0, 0)
	for i := 0; i < 5; i++ {
		assert.Zero(t, off.reserve())
	}
}

func TestRateLimitPausesAfterHint(t *testing.T) {
	inner := &flakyClient{fail: 1, err: &RateLimitedError{Wait: 40 * time.Millisecond, Err: http.ErrHandlerTimeout}}
	c := Wrap(inner, RateLimit(0, 0))
	_, err := c.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)

	start := time.Now()
	_, err = c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
