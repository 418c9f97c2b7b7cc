// Package policyauth implements the API-key allowlist gating
// internal/httpapi: the runtime core never authenticates callers itself
// (spec.md's Non-goals reserve user accounts for the surrounding
// application), but the process still needs a policy at its own HTTP edge.
package policyauth

import (
	"crypto/subtle"
	"net/http"
)

// Policy checks a request's bearer key against a fixed allowlist. A Policy
// with no keys is open: it authorizes every request, matching a local
// development deployment with no auth surface configured.
type Policy struct {
	keys map[string]struct{}
}

// New builds a Policy from a list of accepted API keys.
func New(keys []string) Policy {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key != "" {
			set[key] = struct{}{}
		}
	}
	return Policy{keys: set}
}

// Open reports whether the policy authorizes every request (no keys configured).
func (p Policy) Open() bool {
	return len(p.keys) == 0
}

// Authorize reports whether presented matches a configured key.
func (p Policy) Authorize(presented string) bool {
	if p.Open() {
		return true
	}
	if presented == "" {
		return false
	}
	for key := range p.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			return true
		}
	}
	return false
}

// Middleware wraps next, rejecting unauthorized requests with 401 before
// they reach the router. Expects "Authorization: Bearer <key>".
func (p Policy) Middleware(next http.Handler) http.Handler {
	if p.Open() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Authorize(bearerToken(r)) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="agentruntime"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return ""
	}
	return auth[len(prefix):]
}
