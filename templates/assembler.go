// Package templates implements the template assembler: it resolves an
// agent identifier to an AgentTemplate, checking in-run local templates
// before a cached remote fetch.
package templates

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentruntime/agent"
	"agentruntime/ports"
)

// Assembler resolves agent identifiers to templates.
type Assembler struct {
	remote ports.TemplateFetcher

	mu    sync.RWMutex
	local map[string]agent.AgentTemplate // keyed by Identifier.String()
	cache map[string]agent.AgentTemplate // remote fetches, keyed the same way
}

// New builds an Assembler. remote may be nil if no remote catalog is wired
// (all resolution then depends on local templates).
func New(remote ports.TemplateFetcher) *Assembler {
	return &Assembler{
		remote: remote,
		local:  make(map[string]agent.AgentTemplate),
		cache:  make(map[string]agent.AgentTemplate),
	}
}

// RegisterLocal adds or replaces an in-run local template, keyed by its own
// identifier fields (ignoring whatever key the caller might use elsewhere).
func (a *Assembler) RegisterLocal(t agent.AgentTemplate) {
	key := Identifier{Publisher: t.Publisher, ID: t.ID, Version: t.Version}.String()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.local[key] = t
	if t.Version == "" {
		// A version-less registration also satisfies bare-id lookups.
		a.local[Identifier{Publisher: t.Publisher, ID: t.ID}.String()] = t
	}
}

// ListLocal returns every locally registered template, deduplicated by
// identifier (RegisterLocal stores a version-less template under two keys)
// and sorted by identifier for deterministic listing.
func (a *Assembler) ListLocal() []agent.AgentTemplate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{}, len(a.local))
	out := make([]agent.AgentTemplate, 0, len(a.local))
	for _, t := range a.local {
		id := t.Identifier()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	return out
}

// SpawnableLookup implements dispatch.SpawnableLookup: it resolves a bare
// tool name the registry doesn't know to a locally registered template's
// full identifier, backing the dispatcher's spawn_agents compatibility
// shim (a model calling an agent id directly, as if it were a tool).
func (a *Assembler) SpawnableLookup(name string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, t := range a.local {
		if t.ID == name || t.Identifier() == name {
			return t.Identifier(), true
		}
	}
	return "", false
}

// Resolve looks up rawIdentifier: local templates first, then a cached
// remote fetch. A miss on both tiers is agent.ErrUnknownAgent.
func (a *Assembler) Resolve(ctx context.Context, rawIdentifier string) (agent.AgentTemplate, error) {
	id, err := ParseIdentifier(rawIdentifier)
	if err != nil {
		return agent.AgentTemplate{}, fmt.Errorf("%w: %v", agent.ErrUnknownAgent, err)
	}
	key := id.String()

	a.mu.RLock()
	if t, ok := a.local[key]; ok {
		a.mu.RUnlock()
		return t, nil
	}
	if t, ok := a.cache[key]; ok {
		a.mu.RUnlock()
		return t, nil
	}
	a.mu.RUnlock()

	if a.remote == nil {
		return agent.AgentTemplate{}, fmt.Errorf("%w: %q", agent.ErrUnknownAgent, rawIdentifier)
	}

	t, err := a.remote.FetchTemplate(ctx, id.Publisher, id.ID, id.Version)
	if err != nil {
		return agent.AgentTemplate{}, fmt.Errorf("%w: %q: %v", agent.ErrUnknownAgent, rawIdentifier, err)
	}

	a.mu.Lock()
	a.cache[key] = t
	a.mu.Unlock()
	return t, nil
}
