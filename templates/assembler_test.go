package templates

import (
	"context"
	"errors"
	"testing"

	"agentruntime/agent"
)

type fakeFetcher struct {
	calls    int
	template agent.AgentTemplate
	err      error
}

func (f *fakeFetcher) FetchTemplate(ctx context.Context, publisher, id, version string) (agent.AgentTemplate, error) {
	f.calls++
	if f.err != nil {
		return agent.AgentTemplate{}, f.err
	}
	return f.template, nil
}

func TestResolveLocalTemplateTakesPrecedence(t *testing.T) {
	a := New(nil)
	a.RegisterLocal(agent.AgentTemplate{ID: "code-reviewer", Model: "claude-x"})

	got, err := a.Resolve(context.Background(), "code-reviewer")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Model != "claude-x" {
		t.Fatalf("unexpected template: %+v", got)
	}
}

func TestResolveFallsBackToRemoteAndCaches(t *testing.T) {
	fetcher := &fakeFetcher{template: agent.AgentTemplate{ID: "remote-agent", Model: "claude-y"}}
	a := New(fetcher)

	first, err := a.Resolve(context.Background(), "remote-agent")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Model != "claude-y" {
		t.Fatalf("unexpected template: %+v", first)
	}

	if _, err := a.Resolve(context.Background(), "remote-agent"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected remote fetch to be cached, called %d times", fetcher.calls)
	}
}

func TestResolveMissingTemplateIsUnknownAgent(t *testing.T) {
	a := New(nil)
	_, err := a.Resolve(context.Background(), "nonexistent")
	if !errors.Is(err, agent.ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestResolveRemoteErrorIsUnknownAgent(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("catalog unavailable")}
	a := New(fetcher)

	_, err := a.Resolve(context.Background(), "some-agent")
	if !errors.Is(err, agent.ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}
