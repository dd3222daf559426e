package facts

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NamesAreThreeWordsAndUnique(t *testing.T) {
	g := New(42)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		name := g.Name()
		assert.Len(t, strings.Fields(name), 3, name)
		assert.False(t, seen[name], "duplicate name %q", name)
		seen[name] = true
	}
}

func TestGenerator_SameSeedSameSequence(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Name(), b.Name())
		assert.Equal(t, a.Domain(), b.Domain())
	}
}

func TestGenerator_Shapes(t *testing.T) {
	g := New(1)

	assert.Regexp(t, regexp.MustCompile(`^#[0-9a-f]{6}$`), g.Color())

	u, err := url.Parse(g.URL())
	require.NoError(t, err)
	assert.NotEmpty(t, u.Scheme)
	assert.NotEmpty(t, u.Hostname())

	assert.Contains(t, g.Domain(), ".")

	port, err := strconv.Atoi(g.Port())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 1024)
	assert.LessOrEqual(t, port, 9999)

	assert.Len(t, g.Threshold(), 2)
	assert.NotEmpty(t, g.Word())
}

func TestGenerator_UniqueVariesWhenSourceRepeats(t *testing.T) {
	g := New(1)
	same := func() string { return "example.com" }

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		v := g.unique(same, subdomain)
		assert.False(t, seen[v], "duplicate %q", v)
		seen[v] = true
	}
	assert.True(t, seen["example.com"])
	assert.True(t, seen["n2.example.com"])
	assert.True(t, seen["n5.example.com"])
}

func TestGenerator_VariedNameKeepsThreeWords(t *testing.T) {
	g := New(1)
	same := func() string { return "alpha beta gamma" }

	assert.Equal(t, "alpha beta gamma", g.unique(same, suffixed))
	varied := g.unique(same, suffixed)
	assert.Equal(t, "alpha beta gamma-2", varied)
	assert.Len(t, strings.Fields(varied), 3)
}
