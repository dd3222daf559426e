package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/upcheck/internal/catalog"
)

func catalogCmd(t *testing.T, format string, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCatalogCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestCatalogText(t *testing.T) {
	out := catalogCmd(t, "text")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(catalog.Types))
	assert.True(t, strings.HasPrefix(lines[0], "http|"), "first line: %s", lines[0])
}

func TestCatalogJSON(t *testing.T) {
	out := catalogCmd(t, "json")

	var resp struct {
		Status string         `json:"status"`
		Data   []CatalogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, len(catalog.Types))

	for i, e := range resp.Data {
		assert.Equal(t, catalog.Types[i], e.Type)
		assert.NotEmpty(t, e.ListLabel, "type %s", e.Type)
		assert.NotNil(t, e.Fields, "type %s", e.Type)
	}
}

func TestCatalogValidate(t *testing.T) {
	assert.Contains(t, catalogCmd(t, "text", "--validate"), "catalog is valid")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(catalogCmd(t, "json", "--validate")), &resp))
	assert.Equal(t, "ok", resp.Status)
}
