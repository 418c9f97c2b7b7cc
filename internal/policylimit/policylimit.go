// Package policylimit rate-limits internal/httpapi per caller, using a
// token bucket per identity so one noisy client can't starve step budget
// preflight/settle calls for everyone else sharing the process.
package policylimit

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Policy hands out a per-identity token bucket, lazily created on first use
// and never evicted.
type Policy struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Policy allowing rps requests per second per identity, with
// burst allowed to spike above that rate briefly.
func New(rps float64, burst int) *Policy {
	return &Policy{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether identity may proceed now, consuming a token if so.
func (p *Policy) Allow(identity string) bool {
	return p.limiterFor(identity).Allow()
}

func (p *Policy) limiterFor(identity string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[identity]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[identity] = l
	}
	return l
}

// Middleware wraps next, rejecting requests over the per-identity rate with
// 429. identityOf extracts the rate-limit key (e.g. an API key or remote
// address) from the request.
func (p *Policy) Middleware(identityOf func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Allow(identityOf(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
