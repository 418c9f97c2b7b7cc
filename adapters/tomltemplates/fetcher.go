// Package tomltemplates implements ports.TemplateFetcher by reading
// published agent templates from a directory tree laid out as
// {root}/{publisher}/{id}/{version}.toml, standing in for a synced mirror
// of a remote template catalog.
package tomltemplates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"agentruntime/agent"
	"agentruntime/ports"
)

// Fetcher resolves a single published template on demand, read fresh from
// disk on every call: templates.Assembler caches the result, so repeated
// resolution of the same identifier does not re-read the file.
type Fetcher struct {
	root string
}

var _ ports.TemplateFetcher = (*Fetcher)(nil)

// New builds a Fetcher rooted at root.
func New(root string) *Fetcher {
	return &Fetcher{root: root}
}

// FetchTemplate reads {root}/{publisher}/{id}/{version}.toml. An empty
// version reads {root}/{publisher}/{id}/latest.toml.
func (f *Fetcher) FetchTemplate(ctx context.Context, publisher, id, version string) (agent.AgentTemplate, error) {
	if err := ctx.Err(); err != nil {
		return agent.AgentTemplate{}, err
	}
	if version == "" {
		version = "latest"
	}

	path := filepath.Join(f.root, publisher, id, version+".toml")
	var t agent.AgentTemplate
	if _, err := toml.DecodeFile(path, &t); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return agent.AgentTemplate{}, fmt.Errorf("tomltemplates: no published template at %s", path)
		}
		return agent.AgentTemplate{}, fmt.Errorf("tomltemplates: decode %s: %w", path, err)
	}
	if t.ID == "" {
		return agent.AgentTemplate{}, fmt.Errorf("tomltemplates: %s: missing id", path)
	}
	return t, nil
}
