package inmem

import (
	"fmt"
	"sync/atomic"
)

// CounterIDGen is a deterministic ports.IDGen for tests and local
// development: ids are reproducible across a run, unlike adapters/idgen's
// uuid-backed generator, which production wiring uses instead.
type CounterIDGen struct {
	prefix  string
	counter atomic.Uint64
}

// NewCounterIDGen returns a CounterIDGen. prefix defaults to "id".
func NewCounterIDGen(prefix string) *CounterIDGen {
	if prefix == "" {
		prefix = "id"
	}
	return &CounterIDGen{prefix: prefix}
}

// NewID returns the next id in sequence: "<prefix>-000001", "<prefix>-000002", ...
func (g *CounterIDGen) NewID() string {
	next := g.counter.Add(1)
	return fmt.Sprintf("%s-%06d", g.prefix, next)
}
