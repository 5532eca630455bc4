package stops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CVTS/cvts/internal/match"
)

func trip(startLon, startLat, endLon, endLat float64) match.TripSummary {
	return match.TripSummary{
		Start:  match.Endpoint{Loc: match.Location{Lat: startLat, Lon: startLon}},
		End:    match.Endpoint{Loc: match.Location{Lat: endLat, Lon: endLon}},
		Status: match.StatusSuccess,
	}
}

func TestStopIteratorMergesCoincidentBoundary(t *testing.T) {
	// Trip A ends exactly where trip B starts: one boundary point.
	trips := []match.TripSummary{
		trip(100, 10, 10.0, 10.0),
		trip(10.0, 10.0, 100.5, 10.5),
	}
	pts := NewStopIterator(trips).Drain()

	// start-of-A, merged boundary, end-of-B (far from B's start).
	require.Equal(t, []Point{
		{Lon: 100, Lat: 10},
		{Lon: 10.0, Lat: 10.0},
		{Lon: 100.5, Lat: 10.5},
	}, pts)
}

func TestStopIteratorKeepsDistantBoundary(t *testing.T) {
	// ~1.5 km between A's end and B's start: both points emitted.
	trips := []match.TripSummary{
		trip(100, 10, 10.0, 10.0),
		trip(10.01, 10.01, 100.5, 10.5),
	}
	pts := NewStopIterator(trips).Drain()

	require.Len(t, pts, 4)
	assert.Equal(t, Point{Lon: 10.0, Lat: 10.0}, pts[1])
	assert.Equal(t, Point{Lon: 10.01, Lat: 10.01}, pts[2])
}

func TestStopIteratorRoundTripSuppressesEnd(t *testing.T) {
	// A single trip returning to its origin emits only the start.
	trips := []match.TripSummary{trip(100, 10, 100, 10)}
	pts := NewStopIterator(trips).Drain()
	require.Equal(t, []Point{{Lon: 100, Lat: 10}}, pts)
}

func TestStopIteratorOneWayTripEmitsEnd(t *testing.T) {
	trips := []match.TripSummary{trip(100, 10, 101, 11)}
	pts := NewStopIterator(trips).Drain()
	require.Equal(t, []Point{{Lon: 100, Lat: 10}, {Lon: 101, Lat: 11}}, pts)
}

func TestStopIteratorEmpty(t *testing.T) {
	it := NewStopIterator(nil)
	_, ok := it.Next()
	assert.False(t, ok)
	// Exhausted iterators stay exhausted.
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestStopIteratorEmissionBounds(t *testing.T) {
	// n trips yield between n and 2n+1 points.
	far := []match.TripSummary{
		trip(100, 10, 101, 11),
		trip(102, 12, 103, 13),
		trip(104, 14, 105, 15),
	}
	near := []match.TripSummary{
		trip(100, 10, 100, 10),
		trip(100, 10, 100, 10),
		trip(100, 10, 100, 10),
	}
	n := len(far)
	maxPts := NewStopIterator(far).Drain()
	minPts := NewStopIterator(near).Drain()
	assert.Equal(t, 2*n, len(maxPts)) // start + both ends of n-1 boundaries + final end
	assert.LessOrEqual(t, len(maxPts), 2*n+1)
	assert.Equal(t, n, len(minPts))
}

func TestStopIteratorNonRestartable(t *testing.T) {
	trips := []match.TripSummary{trip(100, 10, 101, 11)}
	it := NewStopIterator(trips)
	first := it.Drain()
	assert.NotEmpty(t, first)
	assert.Empty(t, it.Drain(), "a drained iterator must not restart")
}

func TestODIteratorEmitsAllEndpointsInOrder(t *testing.T) {
	trips := []match.TripSummary{
		trip(100, 10, 100, 10), // coincident endpoints still both emitted
		trip(102, 12, 103, 13),
	}
	pts := NewODIterator(trips).Drain()
	require.Equal(t, []Point{
		{Lon: 100, Lat: 10},
		{Lon: 100, Lat: 10},
		{Lon: 102, Lat: 12},
		{Lon: 103, Lat: 13},
	}, pts)
}

func TestODIteratorEmpty(t *testing.T) {
	assert.Empty(t, NewODIterator(nil).Drain())
}
