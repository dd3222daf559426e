package isolation_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upcheck/internal/catalog"
	"github.com/roach88/upcheck/internal/facts"
	"github.com/roach88/upcheck/internal/fixture"
	"github.com/roach88/upcheck/internal/isolation"
	"github.com/roach88/upcheck/internal/testutil"
)

func setup(t *testing.T) (*fixture.Client, *testutil.FakeAPI) {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	return fixture.New(api.URL(), testutil.FakeToken, fixture.WithFacts(facts.New(11))), api
}

func tagNames(api *testutil.FakeAPI) []string {
	var names []string
	for _, tag := range api.Tags() {
		names = append(names, tag.Tag)
	}
	return names
}

func TestAcquire_EnsuresTagsAndPurgesSuite(t *testing.T) {
	client, api := setup(t)
	api.SeedCheck("http", "left over", "checks_create")
	api.SeedCheck("http", "left over", "checks_create")
	other := api.SeedCheck("http", "other suite", "checks_edit")

	var purged int
	scope, err := isolation.Acquire(context.Background(), client, isolation.Options{
		BaseTag:    "playwright",
		Suite:      "checks_create",
		Namespaces: isolation.NewSequenceGenerator("ns-1"),
		OnDeleted:  func(n int) { purged += n },
	})
	require.NoError(t, err)

	assert.Equal(t, "ns-1", scope.Namespace)
	assert.Equal(t, 2, scope.Stale)
	assert.Equal(t, 2, purged)
	assert.Equal(t, []string{"playwright", "checks_create", "ns-1"}, scope.Tags())
	assert.Equal(t, []string{"playwright", "checks_create", "ns-1"}, tagNames(api))
	assert.Equal(t, isolation.BaseColor, api.Tags()[0].Color)

	remaining := api.Checks()
	require.Len(t, remaining, 1)
	assert.Equal(t, other, remaining[0].PK)
}

func TestAcquire_Placeholder(t *testing.T) {
	client, api := setup(t)

	scope, err := isolation.Acquire(context.Background(), client, isolation.Options{
		BaseTag:         "playwright",
		Suite:           "checks_edit",
		Placeholder:     true,
		PlaceholderName: "lorem ipsum dolor",
		Namespaces:      isolation.NewSequenceGenerator("ns-2"),
	})
	require.NoError(t, err)
	require.NotNil(t, scope.Placeholder)

	assert.Contains(t, tagNames(api), isolation.PlaceholderTag)
	checks := api.Checks()
	require.Len(t, checks, 1)
	assert.Equal(t, "lorem ipsum dolor", checks[0].Name)
	assert.Equal(t, []string{"playwright", "checks_edit", "ns-2", "placeholder"}, checks[0].Tags)

	for _, tag := range api.Tags() {
		if tag.Tag == isolation.PlaceholderTag {
			assert.Equal(t, isolation.PlaceholderColor, tag.Color)
		}
	}
}

func TestAcquire_IsRepeatable(t *testing.T) {
	client, api := setup(t)
	ctx := context.Background()
	gen := isolation.NewSequenceGenerator("ns-a", "ns-b")
	opts := isolation.Options{BaseTag: "playwright", Suite: "s", Placeholder: true, Namespaces: gen}

	first, err := isolation.Acquire(ctx, client, opts)
	require.NoError(t, err)
	second, err := isolation.Acquire(ctx, client, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Stale, "the first placeholder is purged with the suite tag")
	assert.Len(t, api.Checks(), 1)
	assert.NotEqual(t, first.Namespace, second.Namespace)

	// base, suite, placeholder and two namespaces: no duplicates.
	assert.Len(t, api.Tags(), 5)
}

func TestAcquire_RequiresTags(t *testing.T) {
	client, _ := setup(t)

	_, err := isolation.Acquire(context.Background(), client, isolation.Options{Suite: "s"})
	assert.Error(t, err)
	_, err = isolation.Acquire(context.Background(), client, isolation.Options{BaseTag: "b"})
	assert.Error(t, err)
}

func TestAcquire_PropagatesPurgeFailure(t *testing.T) {
	client, api := setup(t)
	pk := api.SeedCheck("http", "stuck", "s")
	api.FailDelete(pk, http.StatusInternalServerError)

	_, err := isolation.Acquire(context.Background(), client, isolation.Options{
		BaseTag:    "playwright",
		Suite:      "s",
		Namespaces: isolation.NewSequenceGenerator("ns-x"),
	})
	require.Error(t, err)
	assert.True(t, fixture.IsRequestError(err))
	assert.Contains(t, err.Error(), `purge suite tag "s"`)
}

func TestCreateFixture_UsesContractPayload(t *testing.T) {
	client, api := setup(t)
	ctx := context.Background()
	scope, err := isolation.Acquire(ctx, client, isolation.Options{
		BaseTag: "playwright", Suite: "s", Namespaces: isolation.NewSequenceGenerator("ns-f"),
	})
	require.NoError(t, err)

	_, err = scope.CreateFixture(ctx, catalog.Whois, "who is", "google.com", map[string]any{"msp_threshold": 45})
	require.NoError(t, err)

	checks := api.Checks()
	require.Len(t, checks, 1)
	c := checks[0]
	assert.Equal(t, "whois", c.Type)
	assert.Equal(t, "google.com", c.Address)
	assert.Equal(t, []string{"playwright", "s", "ns-f"}, c.Tags)
	assert.Equal(t, []any{"AUTO"}, c.Fields["locations"])
	assert.Equal(t, float64(45), c.Fields["msp_threshold"])
	assert.Len(t, scope.Created(), 1)
}

func TestCreateFixture_UnknownType(t *testing.T) {
	client, _ := setup(t)
	scope, err := isolation.Acquire(context.Background(), client, isolation.Options{
		BaseTag: "playwright", Suite: "s", Namespaces: isolation.NewSequenceGenerator("ns-u"),
	})
	require.NoError(t, err)

	_, err = scope.CreateFixture(context.Background(), catalog.Type("ftp"), "x", "y", nil)
	assert.ErrorIs(t, err, catalog.ErrUnknownType)
}

func TestRelease_DeletesNamespaceOnly(t *testing.T) {
	client, api := setup(t)
	ctx := context.Background()
	scope, err := isolation.Acquire(ctx, client, isolation.Options{
		BaseTag: "playwright", Suite: "s", Namespaces: isolation.NewSequenceGenerator("ns-r"),
	})
	require.NoError(t, err)

	_, err = scope.CreateFixture(ctx, catalog.Group, "grp", "", nil)
	require.NoError(t, err)
	_, err = scope.CreateFixture(ctx, catalog.DNS, "dns", "example.com", nil)
	require.NoError(t, err)
	keep := api.SeedCheck("http", "unrelated", "playwright")

	require.NoError(t, scope.Release(ctx))

	checks := api.Checks()
	require.Len(t, checks, 1)
	assert.Equal(t, keep, checks[0].PK)

	// Tags persist across runs.
	assert.Contains(t, tagNames(api), "ns-r")
}

func TestRelease_Idempotent(t *testing.T) {
	client, api := setup(t)
	ctx := context.Background()
	scope, err := isolation.Acquire(ctx, client, isolation.Options{
		BaseTag: "playwright", Suite: "s", Namespaces: isolation.NewSequenceGenerator("ns-i"),
	})
	require.NoError(t, err)

	require.NoError(t, scope.Release(ctx))
	before := len(api.Requests())
	require.NoError(t, scope.Release(ctx))
	assert.Equal(t, before, len(api.Requests()))

	_, err = scope.CreateFixture(ctx, catalog.HTTP, "late", "https://example.com", nil)
	assert.ErrorIs(t, err, isolation.ErrReleased)
}

func TestRelease_ReportsFailure(t *testing.T) {
	client, api := setup(t)
	ctx := context.Background()
	scope, err := isolation.Acquire(ctx, client, isolation.Options{
		BaseTag: "playwright", Suite: "s", Namespaces: isolation.NewSequenceGenerator("ns-e"),
	})
	require.NoError(t, err)
	check, err := scope.CreateFixture(ctx, catalog.ICMP, "ping", "1.1.1.1", nil)
	require.NoError(t, err)
	api.FailDelete(check.PK, http.StatusForbidden)

	err = scope.Release(ctx)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, fixture.StatusOf(err))
}

func TestUUIDv7Generator(t *testing.T) {
	gen := isolation.UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()

	assert.True(t, strings.HasPrefix(a, isolation.NamespacePrefix))
	assert.Len(t, a, len(isolation.NamespacePrefix)+36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "UUIDv7 namespaces sort by creation time")
}

func TestSequenceGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := isolation.NewSequenceGenerator("only")
	assert.Equal(t, "only", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
