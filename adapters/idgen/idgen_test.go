package idgen_test

import (
	"testing"

	"agentruntime/adapters/idgen"
)

func TestUUIDGenProducesUniqueIDs(t *testing.T) {
	gen := idgen.New()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := gen.NewID()
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
