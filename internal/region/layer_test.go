package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoDistricts = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"GID_2": "D1", "name": "District 1"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"GID_2": "D2", "name": "District 2"},
      "geometry": {
        "type": "MultiPolygon",
        "coordinates": [
          [[[10,10],[12,10],[12,12],[10,12],[10,10]]],
          [[[20,20],[22,20],[22,22],[20,22],[20,20]]]
        ]
      }
    }
  ]
}`

const donut = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"id": 7},
      "geometry": {
        "type": "Polygon",
        "coordinates": [
          [[0,0],[10,0],[10,10],[0,10],[0,0]],
          [[4,4],[6,4],[6,6],[4,6],[4,4]]
        ]
      }
    }
  ]
}`

func writeLayer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadGeoJSONLocate(t *testing.T) {
	layer, err := LoadGeoJSON(writeLayer(t, twoDistricts), "GID_2")
	require.NoError(t, err)

	id, ok := layer.Locate(1, 1)
	require.True(t, ok)
	assert.Equal(t, "D1", id)

	// Both parts of the multipolygon resolve to D2.
	id, ok = layer.Locate(11, 11)
	require.True(t, ok)
	assert.Equal(t, "D2", id)
	id, ok = layer.Locate(21, 21)
	require.True(t, ok)
	assert.Equal(t, "D2", id)

	_, ok = layer.Locate(5, 5)
	assert.False(t, ok)
	_, ok = layer.Locate(-100, -100)
	assert.False(t, ok)
}

func TestLoadGeoJSONNumericIDProperty(t *testing.T) {
	layer, err := LoadGeoJSON(writeLayer(t, donut), "id")
	require.NoError(t, err)
	id, ok := layer.Locate(1, 1)
	require.True(t, ok)
	assert.Equal(t, "7", id)
}

func TestPolygonHoleExcluded(t *testing.T) {
	layer, err := LoadGeoJSON(writeLayer(t, donut), "id")
	require.NoError(t, err)

	_, ok := layer.Locate(5, 5) // inside the hole
	assert.False(t, ok)
	_, ok = layer.Locate(2, 2) // in the ring, outside the hole
	assert.True(t, ok)
}

func TestLoadGeoJSONMissingIDProperty(t *testing.T) {
	_, err := LoadGeoJSON(writeLayer(t, twoDistricts), "NO_SUCH_COLUMN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NO_SUCH_COLUMN")
}

func TestLoadGeoJSONNotACollection(t *testing.T) {
	_, err := LoadGeoJSON(writeLayer(t, `{"type": "Feature"}`), "id")
	require.Error(t, err)
}

func TestLoadGeoJSONMissingFile(t *testing.T) {
	_, err := LoadGeoJSON(filepath.Join(t.TempDir(), "nope.geojson"), "id")
	require.Error(t, err)
}
