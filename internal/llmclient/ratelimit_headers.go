package llmclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders holds the rate-limit signals OpenAI-compatible
// providers send back.
type RateLimitHeaders struct {
	RetryAfter        time.Duration
	RemainingRequests int
	RemainingTokens   int
	ResetRequests     time.Duration
	ResetTokens       time.Duration
}

// NextWait converts the signals into a wait before the next request.
func (h RateLimitHeaders) NextWait() time.Duration {
	if h.RetryAfter > 0 {
		return h.RetryAfter
	}
	if h.RemainingTokens == 0 && h.ResetTokens > 0 {
		return h.ResetTokens
	}
	if h.RemainingRequests == 0 && h.ResetRequests > 0 {
		return h.ResetRequests
	}
	return 0
}

// parseRateLimitHeaders reads retry-after and the x-ratelimit-* family.
// Missing remaining-* headers count as -1 so they never imply exhaustion.
func parseRateLimitHeaders(h http.Header) (RateLimitHeaders, bool) {
	out := RateLimitHeaders{RemainingRequests: -1, RemainingTokens: -1}
	found := false

	readInt := func(key string) (int, bool) {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return 0, false
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	readDur := func(key string) (time.Duration, bool) {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return 0, false
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, false
		}
		return d, true
	}

	if v, ok := readInt("retry-after"); ok {
		out.RetryAfter = time.Duration(v) * time.Second
		found = true
	}
	if v, ok := readInt("x-ratelimit-remaining-requests"); ok {
		out.RemainingRequests = v
		found = true
	}
	if v, ok := readInt("x-ratelimit-remaining-tokens"); ok {
		out.RemainingTokens = v
		found = true
	}
	if v, ok := readDur("x-ratelimit-reset-requests"); ok {
		out.ResetRequests = v
		found = true
	}
	if v, ok := readDur("x-ratelimit-reset-tokens"); ok {
		out.ResetTokens = v
		found = true
	}
	return out, found
}

// RateLimitedError is a 429 carrying the provider's wait hint. Retry waits
// at least Wait before the next attempt.
type RateLimitedError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry in %s): %v", e.Wait, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// retryHint returns the provider wait hint carried by err, if any.
func retryHint(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Wait
	}
	return 0
}
