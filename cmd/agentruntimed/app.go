package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentruntime/internal/config"
	"agentruntime/internal/httpapi"
	"agentruntime/internal/policyauth"
	"agentruntime/internal/policylimit"
	"agentruntime/internal/runtimewire"
	"agentruntime/ports"
)

// app owns runtime wiring, the HTTP server, and the background
// reconciliation scheduler for the process lifetime.
type app struct {
	cfg     config.Config
	logger  ports.Logger
	runtime *runtimewire.Runtime
	server  *http.Server

	cancelScheduler context.CancelFunc
	ready           atomic.Bool
}

func newApp(cfg config.Config, logger ports.Logger) (*app, error) {
	registerer := prometheus.NewRegistry()
	runtime, err := runtimewire.New(cfg, logger, registerer)
	if err != nil {
		return nil, fmt.Errorf("new app runtime: %w", err)
	}

	auth := policyauth.New(cfg.APIKeys)
	limiter := policylimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)

	a := &app{cfg: cfg, logger: logger, runtime: runtime}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	mux.Handle("/", auth.Middleware(limiter.Middleware(rateLimitIdentity, httpapi.NewRouter(runtime))))

	a.server = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: requestLoggingMiddleware(logger)(mux),
	}
	return a, nil
}

// start blocks serving HTTP and running the reconciliation scheduler until
// Shutdown is called or the server exits with a fatal error.
func (a *app) start() error {
	schedulerCtx, cancel := context.WithCancel(context.Background())
	a.cancelScheduler = cancel
	go a.runtime.Scheduler.Run(schedulerCtx)

	a.ready.Store(true)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.ready.Store(false)
	return err
}

func (a *app) shutdown(ctx context.Context) error {
	a.ready.Store(false)
	if a.cancelScheduler != nil {
		a.cancelScheduler()
	}
	a.runtime.Scheduler.Stop()
	return a.server.Shutdown(ctx)
}

func (a *app) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writePlain(w, http.StatusOK, "ok")
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}

// rateLimitIdentity keys internal/policylimit's per-identity buckets off the
// bearer token when present, falling back to the caller's remote address.
func rateLimitIdentity(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	return r.RemoteAddr
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func requestLoggingMiddleware(logger ports.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
