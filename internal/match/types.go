// Package match converts one trip at a time into per-point match
// records and a trip summary by consulting an external map-matching
// oracle. The oracle is unreliable by contract: any error it produces
// is absorbed into failure records for the trip, never propagated.
package match

import (
	"context"

	"github.com/CVTS/cvts/internal/trace"
)

// Status of a trip's match attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// NA is the sentinel written for absent edge attributes.
const NA = "NA"

// Edge is one road-network edge from the oracle's response. Speed and
// SpeedLimit are optional in the wire format; WayID is required for a
// response to be considered well formed.
type Edge struct {
	WayID      *int64   `json:"way_id"`
	Speed      *float64 `json:"speed"`
	SpeedLimit *float64 `json:"speed_limit"`
}

// MatchedPoint pairs an input sample with the edge it snapped to.
// EdgeIndex is nil for points the oracle could not place on an edge.
type MatchedPoint struct {
	EdgeIndex *int   `json:"edge_index"`
	Type      string `json:"type"`
}

// Response is the oracle's parsed output for one trip.
type Response struct {
	Edges         []Edge         `json:"edges"`
	MatchedPoints []MatchedPoint `json:"matched_points"`
}

// Oracle matches one trip against the road network. Implementations are
// expected to be safe for concurrent use by independent workers.
type Oracle interface {
	Match(ctx context.Context, rego string, tripIndex int, trip trace.Trip) (*Response, error)
}

// PointRecord is one row of the per-vehicle point-match artifact. There
// is exactly one record per input sample regardless of match outcome.
type PointRecord struct {
	Sample    trace.LocatedSample
	Status    Status
	TripIndex int
	Edge      *Edge  // nil on failure or when the sample snapped to no edge
	Message   string // match type on success, error text on failure
}

// Location is a (lat, lon) pair in the trip-summary artifact.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Endpoint is one end of a trip in the trip-summary artifact.
type Endpoint struct {
	Time int64    `json:"time"`
	Loc  Location `json:"loc"`
}

// TripSummary is one entry of the per-vehicle trip-summary artifact.
type TripSummary struct {
	TripIndex int      `json:"trip_index"`
	Start     Endpoint `json:"start"`
	End       Endpoint `json:"end"`
	WayIDs    []int64  `json:"way_ids"`
	Status    Status   `json:"status"`
	Message   string   `json:"message,omitempty"`
}
