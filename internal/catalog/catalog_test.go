package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "apis": [
    {
      "id": "units-get",
      "name": "Units",
      "description": "Unit inventory and sale status",
      "endpoint": "/units-get",
      "method": "GET",
      "tags": ["inventory", "units"],
      "parameters": [
        {"name": "projectId", "type": "query", "required": true},
        {"name": "status", "type": "query", "default": "all"}
      ]
    },
    {
      "id": "bookings-get",
      "name": "Bookings",
      "description": "Booking records",
      "endpoint": "/bookings-get",
      "method": "GET",
      "tags": ["sales"]
    }
  ]
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	def, ok := c.ByID("units-get")
	require.True(t, ok)
	require.Equal(t, "Units", def.Name)
	require.Len(t, def.Parameters, 2)
	require.Equal(t, LocationQuery, def.Parameters[0].Location)
	require.Equal(t, "all", def.Parameters[1].Default)

	_, ok = c.ByID("nope")
	require.False(t, ok)
}

func TestLoadFileMissingYieldsEmptyCatalog(t *testing.T) {
	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Zero(t, c.Len())
}

func TestLoadFileRejectsMalformedJSON(t *testing.T) {
	_, err := LoadFile(writeCatalog(t, "{broken"))
	require.ErrorContains(t, err, "parse catalog")
}

func TestSearch(t *testing.T) {
	c, err := LoadFile(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	hits := c.Search("booking")
	require.Len(t, hits, 1)
	require.Equal(t, "bookings-get", hits[0].ID)

	hits = c.Search("inventory") // tag match
	require.Len(t, hits, 1)
	require.Equal(t, "units-get", hits[0].ID)

	require.Empty(t, c.Search("  "))
	require.Empty(t, c.Search("nonexistent"))
}

func TestAddPersistsAndRejectsDuplicates(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := LoadFile(path)
	require.NoError(t, err)

	err = c.Add(Capability{ID: "payables-get", Name: "Payables", Endpoint: "/payables-get", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	err = c.Add(Capability{ID: "units-get", Name: "Dup"})
	require.ErrorContains(t, err, "already in catalog")

	err = c.Add(Capability{Name: "no id"})
	require.ErrorContains(t, err, "id is required")

	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Len())
	_, ok := reloaded.ByID("payables-get")
	require.True(t, ok)
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	require.NoError(t, os.WriteFile(path, []byte(`{"apis":[{"id":"only-one","name":"Only","endpoint":"/x","method":"GET"}]}`), 0o644))
	require.NoError(t, c.Reload())
	require.Equal(t, 1, c.Len())
	_, ok := c.ByID("only-one")
	require.True(t, ok)
}
