package testutil

// FixedNamespaceGenerator returns the same namespace tag every time.
//
// Every scenario of a run then shares one namespace, which keeps run traces
// byte-identical across runs for golden comparison.
//
// Unlike isolation.SequenceGenerator, which hands out names in order, this
// generator never runs out.
//
// Thread-safety: FixedNamespaceGenerator is stateless and safe for concurrent use.
type FixedNamespaceGenerator struct {
	name string
}

// NewFixedNamespaceGenerator creates a fixed generator.
//
// If name is empty, Generate() returns "ns-test".
func NewFixedNamespaceGenerator(name string) *FixedNamespaceGenerator {
	if name == "" {
		name = "ns-test"
	}
	return &FixedNamespaceGenerator{name: name}
}

// Generate returns the fixed namespace.
//
// Implements isolation.Generator.
func (g *FixedNamespaceGenerator) Generate() string {
	return g.name
}
