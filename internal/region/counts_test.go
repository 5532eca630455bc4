package region

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CVTS/cvts/internal/stops"
)

// gridLayer maps points by integer truncation: id is "x,y" of the unit
// square containing the point; negative space is unmatched.
type gridLayer struct{}

func (gridLayer) Locate(lon, lat float64) (string, bool) {
	if lon < 0 || lat < 0 {
		return "", false
	}
	return string(rune('A'+int(lon))) + string(rune('a'+int(lat))), true
}

func TestMapPoints(t *testing.T) {
	pts := []stops.Point{
		{Lon: 0.5, Lat: 0.5},
		{Lon: 1.5, Lat: 0.2},
		{Lon: -3, Lat: 0},
	}
	ids := MapPoints(gridLayer{}, pts)
	assert.Equal(t, []string{"Aa", "Ba", Unmatched}, ids)
}

func TestCountValues(t *testing.T) {
	ids := []string{"D2", "D1", "D2", "NA", "D2"}
	got := CountValues(ids)
	want := []Count{{"D1", 1}, {"D2", 3}, {"NA", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountValues mismatch (-want +got):\n%s", diff)
	}
}

func TestCountValuesEmpty(t *testing.T) {
	assert.Empty(t, CountValues(nil))
}

func TestCountPairs(t *testing.T) {
	// Trips: D1->D2, D1->D2, D2->D1, D1->D1.
	ids := []string{"D1", "D2", "D1", "D2", "D2", "D1", "D1", "D1"}
	got, err := CountPairs(ids)
	require.NoError(t, err)
	want := []PairCount{
		{"D1", "D1", 1},
		{"D1", "D2", 2},
		{"D2", "D1", 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountPairs mismatch (-want +got):\n%s", diff)
	}
}

func TestCountPairsOddInput(t *testing.T) {
	_, err := CountPairs([]string{"D1"})
	require.Error(t, err)
}

func TestCountPairsCompositeKeyNotConfusedByIDContent(t *testing.T) {
	// Region ids containing separators must not collide: ("a-b", "c")
	// and ("a", "b-c") are distinct pairs.
	ids := []string{"a-b", "c", "a", "b-c"}
	got, err := CountPairs(ids)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestWriteCounts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCounts(&buf, []Count{{"D1", 2}, {"NA", 1}}))
	assert.Equal(t, "geom_id,count\nD1,2\nNA,1\n", buf.String())
}

func TestWritePairCounts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePairCounts(&buf, []PairCount{{"D1", "D2", 2}}))
	assert.Equal(t, "from,to,count\nD1,D2,2\n", buf.String())
}
