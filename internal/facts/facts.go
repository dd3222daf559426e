// Package facts generates the random values scenarios type into forms and
// send to the fixture API: check names, domains, URLs, colors and ports.
package facts

import (
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
)

// maxAttempts bounds the retries spent looking for an unused value.
const maxAttempts = 32

// Generator produces values that are unique for the lifetime of the
// generator. It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	seen  map[string]struct{}
}

// New returns a generator. A zero seed picks a random one; any other seed
// makes the sequence reproducible.
func New(seed uint64) *Generator {
	return &Generator{
		faker: gofakeit.New(seed),
		seen:  make(map[string]struct{}),
	}
}

// unique calls gen until it returns a value not handed out before. When
// gen keeps colliding, the last value is varied with an increasing counter
// until it is unused. The caller must hold g.mu.
func (g *Generator) unique(gen func() string, vary func(v string, n int) string) string {
	var v string
	for i := 0; i < maxAttempts; i++ {
		v = gen()
		if _, dup := g.seen[v]; !dup {
			g.seen[v] = struct{}{}
			return v
		}
	}
	for n := 2; ; n++ {
		candidate := vary(v, n)
		if _, dup := g.seen[candidate]; !dup {
			g.seen[candidate] = struct{}{}
			return candidate
		}
	}
}

func suffixed(v string, n int) string { return v + "-" + strconv.Itoa(n) }

// subdomain keeps a varied domain a valid host name.
func subdomain(v string, n int) string { return "n" + strconv.Itoa(n) + "." + v }

// Name returns three lorem words, e.g. "alpha beta gamma".
func (g *Generator) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unique(func() string {
		return strings.Join([]string{
			g.faker.LoremIpsumWord(),
			g.faker.LoremIpsumWord(),
			g.faker.LoremIpsumWord(),
		}, " ")
	}, suffixed)
}

// Domain returns a bare domain name.
func (g *Generator) Domain() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unique(func() string { return strings.ToLower(g.faker.DomainName()) }, subdomain)
}

// URL returns an absolute http(s) URL.
func (g *Generator) URL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unique(g.faker.URL, func(v string, n int) string {
		u, err := url.Parse(v)
		if err != nil || u.Host == "" {
			return v + "#" + strconv.Itoa(n)
		}
		u.Host = subdomain(u.Host, n)
		return u.String()
	})
}

// Color returns a "#rrggbb" color.
func (g *Generator) Color() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strings.ToLower(g.faker.HexColor())
}

// Port returns a four digit port number as text.
func (g *Generator) Port() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strconv.Itoa(g.faker.Number(1024, 9999))
}

// Threshold returns a two digit day count as text.
func (g *Generator) Threshold() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strconv.Itoa(g.faker.Number(10, 99))
}

// Word returns a first name, used for send/expect strings.
func (g *Generator) Word() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faker.FirstName()
}
