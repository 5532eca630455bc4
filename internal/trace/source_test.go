package trace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRaw(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

const rawBody = `lat,lon,time,heading,speed,heading_tolerance
10.0,100.0,0,90,20,45
10.001,100.001,10,90,25,45
10.0011,100.0011,7200,90,15,45
10.002,100.002,7210,90,18,45
`

func TestReadRawFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veh1.csv")
	writeRaw(t, path, rawBody)

	samples, err := ReadRawFile(path)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, LocatedSample{Lat: 10.0, Lon: 100.0, Time: 0, Heading: 90, Speed: 20, HeadingTolerance: 45}, samples[0])
	assert.Equal(t, int64(7210), samples[3].Time)
}

func TestReadRawFileBadHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veh1.csv")
	writeRaw(t, path, "lat,lon,time\n10,100,0\n")

	_, err := ReadRawFile(path)
	require.Error(t, err)
}

func TestReadRawFileBadRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veh1.csv")
	writeRaw(t, path, "lat,lon,time,heading,speed,heading_tolerance\nnope,100,0,0,0,0\n")

	_, err := ReadRawFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad lat")
}

func TestSplitTrips(t *testing.T) {
	samples := []LocatedSample{
		{Time: 0}, {Time: 10}, {Time: 20},
		{Time: 4000}, {Time: 4010},
		{Time: 9000},
	}
	trips := SplitTrips(samples, 30*time.Minute)
	require.Len(t, trips, 3)
	assert.Len(t, trips[0].Samples, 3)
	assert.Len(t, trips[1].Samples, 2)
	assert.Len(t, trips[2].Samples, 1)
}

func TestSplitTripsEmpty(t *testing.T) {
	assert.Nil(t, SplitTrips(nil, time.Minute))
}

func TestSplitTripsSingleTrip(t *testing.T) {
	trips := SplitTrips([]LocatedSample{{Time: 0}, {Time: 1}}, time.Hour)
	require.Len(t, trips, 1)
	assert.Len(t, trips[0].Samples, 2)
}

func TestDirSourceMergesFilesAcrossSubdirs(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, filepath.Join(root, "day1", "veh1.csv"),
		"lat,lon,time,heading,speed,heading_tolerance\n10,100,7200,0,5,45\n")
	writeRaw(t, filepath.Join(root, "day2", "veh1.csv"),
		"lat,lon,time,heading,speed,heading_tolerance\n10,100,0,0,5,45\n")
	writeRaw(t, filepath.Join(root, "veh2.csv"),
		"lat,lon,time,heading,speed,heading_tolerance\n11,101,0,0,5,45\n")

	src, err := NewDirSource(root, 30*time.Minute)
	require.NoError(t, err)

	regos, err := src.Vehicles()
	require.NoError(t, err)
	assert.Equal(t, []string{"veh1", "veh2"}, regos)

	trips, err := src.Trips("veh1")
	require.NoError(t, err)
	require.Len(t, trips, 2)
	// Fixes must be merged and re-ordered by time before segmentation.
	assert.Equal(t, int64(0), trips[0].Start().Time)
	assert.Equal(t, int64(7200), trips[1].Start().Time)
}

func TestDirSourceUnknownVehicle(t *testing.T) {
	src, err := NewDirSource(t.TempDir(), 0)
	require.NoError(t, err)
	_, err = src.Trips("ghost")
	require.Error(t, err)
}

func TestHashRego(t *testing.T) {
	h := HashRego("29A-12345")
	assert.Len(t, h, 24)
	assert.Equal(t, h, HashRego("29A-12345"))
	assert.NotEqual(t, h, HashRego("29A-12346"))
}

func TestTripStartEnd(t *testing.T) {
	tr := Trip{Samples: []LocatedSample{{Time: 1, Lat: 1}, {Time: 2, Lat: 2}, {Time: 3, Lat: 3}}}
	assert.Equal(t, int64(1), tr.Start().Time)
	assert.Equal(t, int64(3), tr.End().Time)
}
