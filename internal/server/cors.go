package server

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Accept, Content-Type, Content-Length, Authorization"
	corsMaxAge  = "600"
)

// originPolicy decides which browser origins may call the API and open the
// query stream. No configured origins (or "*") means any origin.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: map[string]struct{}{}}
	for _, o := range origins {
		o = normalizeOrigin(o)
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[o] = struct{}{}
		}
	}
	if len(p.allowed) == 0 {
		p.any = true
	}
	return p
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

func (p originPolicy) allows(origin string) bool {
	if p.any || strings.TrimSpace(origin) == "" {
		return true
	}
	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

// checkOrigin guards WebSocket upgrades with the same policy.
func (p originPolicy) checkOrigin(r *http.Request) bool {
	return p.allows(r.Header.Get("Origin"))
}

// cors answers preflights itself. Requests from origins outside the policy
// are served without CORS headers, so browsers drop the response; their
// preflights are refused.
func cors(p originPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		h := w.Header()
		switch {
		case origin == "":
			h.Set("Access-Control-Allow-Origin", "*")
		case p.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		default:
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
