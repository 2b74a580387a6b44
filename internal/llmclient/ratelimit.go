package llmclient

import (
	"context"
	"sync"
	"time"
)

// pacer spaces requests to one provider. It refills a token bucket from the
// clock (rps <= 0 turns pacing off) and holds every caller back until a
// provider-issued pause ends. One pacer is shared by all queries that use
// the same client.
type pacer struct {
	mu     sync.Mutex
	rps    float64
	burst  float64
	tokens float64
	last   time.Time
	until  time.Time
	now    func() time.Time
}

func newPacer(rps float64, burst int) *pacer {
	if burst <= 0 {
		burst = 1
	}
	p := &pacer{rps: rps, burst: float64(burst), tokens: float64(burst), now: time.Now}
	p.last = p.now()
	return p
}

// reserve takes a token if one is ready and otherwise reports how long to
// wait before asking again.
func (p *pacer) reserve() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Before(p.until) {
		return p.until.Sub(now)
	}
	if p.rps <= 0 {
		return 0
	}
	p.tokens += now.Sub(p.last).Seconds() * p.rps
	if p.tokens > p.burst {
		p.tokens = p.burst
	}
	p.last = now
	if p.tokens >= 1 {
		p.tokens--
		return 0
	}
	return time.Duration((1 - p.tokens) / p.rps * float64(time.Second))
}

// wait blocks until a request may be sent or ctx ends.
func (p *pacer) wait(ctx context.Context) error {
	for {
		d := p.reserve()
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// pause holds back all callers for d. A shorter pause never cuts an
// earlier, longer one.
func (p *pacer) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := p.now().Add(d); until.After(p.until) {
		p.until = until
	}
}
