package templates

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"agentruntime/agent"
)

// LoadLocalDir decodes every *.toml file in dir as an AgentTemplate and
// registers it, returning the templates loaded in directory order.
func (a *Assembler) LoadLocalDir(dir string) ([]agent.AgentTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load local templates from %s: %w", dir, err)
	}

	var loaded []agent.AgentTemplate
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var t agent.AgentTemplate
		if _, err := toml.DecodeFile(path, &t); err != nil {
			return loaded, fmt.Errorf("decode template %s: %w", path, err)
		}
		if t.ID == "" {
			return loaded, fmt.Errorf("decode template %s: missing id", path)
		}

		a.RegisterLocal(t)
		loaded = append(loaded, t)
	}
	return loaded, nil
}
