// Package stops derives trip-boundary points from a vehicle's ordered
// trip summaries. Two extractors exist: the merging one used for stop
// density, and an unmerged one whose output alternates trip origins and
// destinations for OD pairing.
package stops

import (
	"github.com/CVTS/cvts/internal/geo"
	"github.com/CVTS/cvts/internal/match"
)

// MergeDistanceMeters is the separation below which the end of one trip
// and the start of the next count as a single stop event. Consecutive
// trips normally share a boundary location; a larger gap suggests
// missing data and is recorded as two distinct stops.
const MergeDistanceMeters = 50.0

// Point is a lon/lat pair, x-first.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func startPoint(t match.TripSummary) Point {
	return Point{Lon: t.Start.Loc.Lon, Lat: t.Start.Loc.Lat}
}

func endPoint(t match.TripSummary) Point {
	return Point{Lon: t.End.Loc.Lon, Lat: t.End.Loc.Lat}
}

// Iterator is a finite, non-restartable point sequence. Next returns
// false once exhausted and every later call keeps returning false.
type Iterator struct {
	trips   []match.TripSummary
	i       int     // index of the next boundary to examine
	pending []Point // points emitted but not yet consumed
	state   iterState
	emitOD  bool
}

type iterState int

const (
	stateFirst iterState = iota
	stateBoundaries
	stateLast
	stateDone
)

// NewStopIterator iterates the merged stop points of one vehicle:
// the first trip's start, each inter-trip boundary (one point when the
// trips meet within MergeDistanceMeters, otherwise both), and the last
// trip's end when it lies more than the threshold from that trip's own
// start.
func NewStopIterator(trips []match.TripSummary) *Iterator {
	return &Iterator{trips: trips}
}

// NewODIterator iterates every trip's start then end, unconditionally
// and in trip order, so that points 2k and 2k+1 form the k-th
// origin/destination pair.
func NewODIterator(trips []match.TripSummary) *Iterator {
	return &Iterator{trips: trips, emitOD: true}
}

// Next returns the next point in the sequence.
func (it *Iterator) Next() (Point, bool) {
	if len(it.pending) > 0 {
		p := it.pending[0]
		it.pending = it.pending[1:]
		return p, true
	}
	if it.emitOD {
		return it.nextOD()
	}
	return it.nextStop()
}

func (it *Iterator) nextOD() (Point, bool) {
	if it.i >= len(it.trips) {
		return Point{}, false
	}
	t := it.trips[it.i]
	it.i++
	it.pending = append(it.pending, endPoint(t))
	return startPoint(t), true
}

func (it *Iterator) nextStop() (Point, bool) {
	for {
		switch it.state {
		case stateFirst:
			if len(it.trips) == 0 {
				it.state = stateDone
				return Point{}, false
			}
			it.state = stateBoundaries
			it.i = 1
			return startPoint(it.trips[0]), true

		case stateBoundaries:
			if it.i >= len(it.trips) {
				it.state = stateLast
				continue
			}
			prev, cur := it.trips[it.i-1], it.trips[it.i]
			it.i++
			e, s := endPoint(prev), startPoint(cur)
			if geo.DistanceMeters(e.Lon, e.Lat, s.Lon, s.Lat) > MergeDistanceMeters {
				it.pending = append(it.pending, s)
			}
			return e, true

		case stateLast:
			it.state = stateDone
			last := it.trips[len(it.trips)-1]
			s, e := startPoint(last), endPoint(last)
			if geo.DistanceMeters(s.Lon, s.Lat, e.Lon, e.Lat) > MergeDistanceMeters {
				return e, true
			}
			return Point{}, false

		default:
			return Point{}, false
		}
	}
}

// Drain consumes the remainder of the iterator into a slice.
func (it *Iterator) Drain() []Point {
	var pts []Point
	for {
		p, ok := it.Next()
		if !ok {
			return pts
		}
		pts = append(pts, p)
	}
}
