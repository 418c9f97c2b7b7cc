// Command agentctl is a minimal HTTP client for cmd/agentruntimed: start a
// run, poll its state, or push a follow-up prompt. It is a thin
// operator/debugging tool, not the terminal UI front-end spec.md names as
// out of scope — that is a richer, separate collaborator this repo does
// not implement.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "get":
		runGet(os.Args[2:])
	case "follow-up":
		runFollowUp(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agentctl <start|get|follow-up> [flags]")
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	base := fs.String("addr", "http://127.0.0.1:8080", "agentruntimed base URL")
	agentType := fs.String("agent", "", "agent identifier to run")
	userID := fs.String("user", "", "user id")
	prompt := fs.String("prompt", "", "initial user prompt")
	maxSteps := fs.Int("max-steps", 0, "step budget override")
	key := fs.String("key", os.Getenv("AGENTRUNTIME_API_KEY"), "bearer API key")
	_ = fs.Parse(args)

	body := map[string]any{
		"agent_type": *agentType,
		"user_id":    *userID,
		"prompt":     *prompt,
	}
	if *maxSteps > 0 {
		body["max_steps"] = *maxSteps
	}

	post(*base+"/v1/runs", *key, body)
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	base := fs.String("addr", "http://127.0.0.1:8080", "agentruntimed base URL")
	runID := fs.String("run", "", "run id")
	key := fs.String("key", os.Getenv("AGENTRUNTIME_API_KEY"), "bearer API key")
	_ = fs.Parse(args)

	get(fmt.Sprintf("%s/v1/runs/%s", *base, *runID), *key)
}

func runFollowUp(args []string) {
	fs := flag.NewFlagSet("follow-up", flag.ExitOnError)
	base := fs.String("addr", "http://127.0.0.1:8080", "agentruntimed base URL")
	runID := fs.String("run", "", "run id")
	prompt := fs.String("prompt", "", "follow-up prompt")
	steps := fs.Int("steps", 1, "additional step budget")
	key := fs.String("key", os.Getenv("AGENTRUNTIME_API_KEY"), "bearer API key")
	_ = fs.Parse(args)

	body := map[string]any{"prompt": *prompt, "additional_steps": *steps}
	post(fmt.Sprintf("%s/v1/runs/%s/follow-up", *base, *runID), *key, body)
}

func post(url, key string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		fail(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req, key)
	do(req)
}

func get(url, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fail(err)
	}
	authorize(req, key)
	do(req)
}

func authorize(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

func do(req *http.Request) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fail(err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
