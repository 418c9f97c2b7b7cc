// Package httpapi is the thin HTTP surface fronting the agent runtime for
// local development and cmd/agentruntimed's demo client. spec.md names the
// real web/HTTP surface (auth, billing webhooks, analytics) as an external
// collaborator out of the runtime's scope; this package is not that
// surface — it is a minimal, unauthenticated-by-default harness for
// exercising internal/runtimewire's Runtime over HTTP.
package httpapi

import (
	"net/http"

	"agentruntime/internal/runtimewire"
)

type handlers struct {
	runtime *runtimewire.Runtime
}

// NewRouter builds the run-lifecycle HTTP surface around runtime.
func NewRouter(runtime *runtimewire.Runtime) http.Handler {
	h := &handlers{runtime: runtime}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", h.handleRunStart)
	mux.HandleFunc("GET /v1/runs/{run_id}", h.handleRunQuery)
	mux.HandleFunc("POST /v1/runs/{run_id}/follow-up", h.handleRunFollowUp)
	mux.HandleFunc("POST /v1/runs/{run_id}/resume", h.handleRunResume)
	return mux
}
