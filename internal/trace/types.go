// Package trace models raw per-vehicle GPS traces and their ingestion
// from CSV files. A vehicle's fixes are ordered by time and segmented
// into trips wherever the gap between consecutive fixes exceeds a
// configurable threshold.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// LocatedSample is one raw GPS fix. Time is unix seconds. The JSON tags
// match the wire format expected by the matching oracle.
type LocatedSample struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	Time             int64   `json:"time"`
	Heading          float64 `json:"heading"`
	Speed            float64 `json:"speed"`
	HeadingTolerance float64 `json:"heading_tolerance"`
}

// Trip is a non-empty ordered sequence of fixes for one vehicle.
type Trip struct {
	Samples []LocatedSample
}

// Start returns the first fix of the trip.
func (t Trip) Start() LocatedSample { return t.Samples[0] }

// End returns the last fix of the trip.
func (t Trip) End() LocatedSample { return t.Samples[len(t.Samples)-1] }

// HashRego anonymises an externally supplied vehicle identifier for use
// in artifact file names: sha256 hex truncated to 24 characters.
func HashRego(rego string) string {
	sum := sha256.Sum256([]byte(rego))
	return hex.EncodeToString(sum[:])[:24]
}
