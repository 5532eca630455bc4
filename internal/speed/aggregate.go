// Package speed reduces one vehicle's point-match records to weighted
// average speed observations keyed by (way, hour-of-day, weekday).
package speed

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/CVTS/cvts/internal/match"
)

// SpeedFloor excludes near-stationary fixes from the average. Units
// follow the input traces.
const SpeedFloor = 6.0

// Observation is one aggregated traversal statistic. Weekday is
// Monday=0 through Sunday=6.
type Observation struct {
	WayID   int64
	Hour    int
	Weekday int
	Speed   float64
	Weight  int64
}

type groupKey struct {
	wayID   int64
	hour    int
	weekday int
}

// perTrip accumulates qualifying samples of one trip within a group.
type perTrip struct {
	sum float64
	n   int64
}

// Aggregate computes observations over all of a vehicle's records.
//
// Rows are kept only when the trip matched, the sample snapped to an
// edge with a way id, and the GPS speed exceeds SpeedFloor. Surviving
// rows are grouped by (way, hour, weekday) and, within a group, by
// trip; the group's speed is the sample-count-weighted mean of the
// per-trip means and its weight is the total qualifying sample count.
// An empty result is valid and yields nil.
func Aggregate(records []match.PointRecord, loc *time.Location) []Observation {
	if loc == nil {
		loc = time.UTC
	}

	groups := make(map[groupKey]map[int]*perTrip)
	for _, r := range records {
		if r.Status != match.StatusSuccess || r.Edge == nil || r.Edge.WayID == nil {
			continue
		}
		if r.Sample.Speed <= SpeedFloor {
			continue
		}
		ts := time.Unix(r.Sample.Time, 0).In(loc)
		key := groupKey{
			wayID:   *r.Edge.WayID,
			hour:    ts.Hour(),
			weekday: mondayWeekday(ts.Weekday()),
		}
		trips := groups[key]
		if trips == nil {
			trips = make(map[int]*perTrip)
			groups[key] = trips
		}
		pt := trips[r.TripIndex]
		if pt == nil {
			pt = &perTrip{}
			trips[r.TripIndex] = pt
		}
		pt.sum += r.Sample.Speed
		pt.n++
	}
	if len(groups) == 0 {
		return nil
	}

	obs := make([]Observation, 0, len(groups))
	for key, trips := range groups {
		means := make([]float64, 0, len(trips))
		weights := make([]float64, 0, len(trips))
		var total int64
		for _, pt := range trips {
			means = append(means, pt.sum/float64(pt.n))
			weights = append(weights, float64(pt.n))
			total += pt.n
		}
		obs = append(obs, Observation{
			WayID:   key.wayID,
			Hour:    key.hour,
			Weekday: key.weekday,
			Speed:   stat.Mean(means, weights),
			Weight:  total,
		})
	}
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.WayID != b.WayID {
			return a.WayID < b.WayID
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.Weekday < b.Weekday
	})
	return obs
}

// mondayWeekday converts Go's Sunday=0 convention to Monday=0.
func mondayWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}
