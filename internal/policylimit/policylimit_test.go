package policylimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"agentruntime/internal/policylimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func identityByHeader(r *http.Request) string {
	return r.Header.Get("X-Identity")
}

func TestAllowConsumesTokensUpToBurst(t *testing.T) {
	p := policylimit.New(1, 2)
	if !p.Allow("caller-1") {
		t.Fatal("expected first request to be allowed")
	}
	if !p.Allow("caller-1") {
		t.Fatal("expected second request within burst to be allowed")
	}
	if p.Allow("caller-1") {
		t.Fatal("expected third immediate request to exceed burst")
	}
}

func TestAllowTracksIdentitiesIndependently(t *testing.T) {
	p := policylimit.New(1, 1)
	if !p.Allow("caller-1") {
		t.Fatal("expected caller-1 first request to be allowed")
	}
	if !p.Allow("caller-2") {
		t.Fatal("expected caller-2 to have its own bucket")
	}
	if p.Allow("caller-1") {
		t.Fatal("expected caller-1 to be exhausted")
	}
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	p := policylimit.New(1, 1)
	handler := p.Middleware(identityByHeader, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	req.Header.Set("X-Identity", "caller-1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}
