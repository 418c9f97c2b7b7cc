package policyauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"agentruntime/internal/policyauth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestOpenPolicyAuthorizesEverything(t *testing.T) {
	p := policyauth.New(nil)
	if !p.Open() {
		t.Fatal("expected empty key list to be open")
	}
	if !p.Authorize("") {
		t.Fatal("expected open policy to authorize empty presented key")
	}
}

func TestAuthorizeAcceptsConfiguredKey(t *testing.T) {
	p := policyauth.New([]string{"secret-key"})
	if p.Open() {
		t.Fatal("expected policy with keys to be closed")
	}
	if !p.Authorize("secret-key") {
		t.Fatal("expected configured key to authorize")
	}
	if p.Authorize("wrong-key") {
		t.Fatal("expected unknown key to be rejected")
	}
	if p.Authorize("") {
		t.Fatal("expected empty presented key to be rejected")
	}
}

func TestMiddlewareRejectsMissingBearerToken(t *testing.T) {
	p := policyauth.New([]string{"secret-key"})
	handler := p.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareAcceptsValidBearerToken(t *testing.T) {
	p := policyauth.New([]string{"secret-key"})
	handler := p.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewarePassesThroughWhenOpen(t *testing.T) {
	p := policyauth.New(nil)
	handler := p.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
