package isolation

import (
	"sync"

	"github.com/google/uuid"
)

// NamespacePrefix starts every generated namespace tag.
const NamespacePrefix = "ns-"

// Generator produces namespace tag names.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable namespace tags, so tags left
// behind by aborted runs sort by creation time in the product's tag list.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns "ns-" followed by a hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return NamespacePrefix + uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns predetermined namespaces in order. Used for
// deterministic traces.
type SequenceGenerator struct {
	mu    sync.Mutex
	names []string
	idx   int
}

// NewSequenceGenerator creates a generator that returns names in order.
func NewSequenceGenerator(names ...string) *SequenceGenerator {
	return &SequenceGenerator{names: names}
}

// Generate returns the next name. It panics once every name is consumed,
// which means a test acquired more scopes than it declared.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.names) {
		panic("SequenceGenerator: all namespaces exhausted")
	}
	name := g.names[g.idx]
	g.idx++
	return name
}
