// Command agentruntimed serves the agent runtime over HTTP: it wires
// internal/runtimewire's production adapters and drives internal/httpapi
// against them, following the teacher's cmd/server boot/shutdown shape.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agentruntime/adapters/logging"
	"agentruntime/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var logger *logging.Logger
	if cfg.LogFormat == "json" {
		logger = logging.NewJSON(os.Stdout)
	} else {
		logger = logging.NewTint(os.Stderr)
	}

	application, err := newApp(cfg, logger)
	if err != nil {
		log.Fatalf("new app: %v", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- application.start()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		if err != nil {
			log.Fatalf("server exited: %v", err)
		}
		return
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := application.shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown server: %v", err)
	}

	if err := <-serverErrCh; err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}
