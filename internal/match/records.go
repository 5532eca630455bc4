package match

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/CVTS/cvts/internal/trace"
)

// RecordHeader is the fixed column order of the point-match artifact.
var RecordHeader = []string{
	"lat", "lon", "time", "heading", "speed", "heading_tolerance",
	"status", "trip_index",
	"way_id", "valhalla_speed", "speed_limit",
	"message",
}

// MatchTrip runs the oracle over one trip and converts the outcome into
// a trip summary plus one PointRecord per sample. Oracle errors and
// malformed responses become failure records; the returned record count
// always equals the trip's sample count.
func MatchTrip(ctx context.Context, o Oracle, rego string, tripIndex int, trip trace.Trip) (TripSummary, []PointRecord) {
	summary := TripSummary{
		TripIndex: tripIndex,
		Start: Endpoint{
			Time: trip.Start().Time,
			Loc:  Location{Lat: trip.Start().Lat, Lon: trip.Start().Lon},
		},
		End: Endpoint{
			Time: trip.End().Time,
			Loc:  Location{Lat: trip.End().Lat, Lon: trip.End().Lon},
		},
	}

	resp, err := o.Match(ctx, rego, tripIndex, trip)
	if err == nil {
		err = validateResponse(resp, len(trip.Samples))
	}
	if err != nil {
		summary.Status = StatusFailure
		summary.Message = err.Error()
		summary.WayIDs = []int64{}
		records := make([]PointRecord, len(trip.Samples))
		for i, s := range trip.Samples {
			records[i] = PointRecord{
				Sample:    s,
				Status:    StatusFailure,
				TripIndex: tripIndex,
				Message:   err.Error(),
			}
		}
		return summary, records
	}

	summary.Status = StatusSuccess
	summary.WayIDs = make([]int64, len(resp.Edges))
	for i, e := range resp.Edges {
		summary.WayIDs[i] = *e.WayID
	}

	records := make([]PointRecord, len(trip.Samples))
	for i, s := range trip.Samples {
		mp := resp.MatchedPoints[i]
		rec := PointRecord{
			Sample:    s,
			Status:    StatusSuccess,
			TripIndex: tripIndex,
			Message:   mp.Type,
		}
		if mp.EdgeIndex != nil {
			rec.Edge = &resp.Edges[*mp.EdgeIndex]
		}
		records[i] = rec
	}
	return summary, records
}

// validateResponse enforces the oracle contract: one matched point per
// sample, in-range edge indices, and a way id on every edge.
func validateResponse(resp *Response, nSamples int) error {
	if resp == nil {
		return fmt.Errorf("oracle returned no response")
	}
	if len(resp.MatchedPoints) != nSamples {
		return fmt.Errorf("oracle returned %d matched points for %d samples",
			len(resp.MatchedPoints), nSamples)
	}
	for i, e := range resp.Edges {
		if e.WayID == nil {
			return fmt.Errorf("oracle edge %d has no way_id", i)
		}
	}
	for i, mp := range resp.MatchedPoints {
		if mp.EdgeIndex != nil && (*mp.EdgeIndex < 0 || *mp.EdgeIndex >= len(resp.Edges)) {
			return fmt.Errorf("matched point %d references edge %d of %d",
				i, *mp.EdgeIndex, len(resp.Edges))
		}
	}
	return nil
}

// WriteRecordHeader writes the artifact header row.
func WriteRecordHeader(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeader); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecords appends one CSV row per record.
func WriteRecords(w io.Writer, records []PointRecord) error {
	cw := csv.NewWriter(w)
	for _, r := range records {
		if err := cw.Write(r.row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r PointRecord) row() []string {
	wayID, edgeSpeed, speedLimit := NA, NA, NA
	if r.Edge != nil {
		wayID = strconv.FormatInt(*r.Edge.WayID, 10)
		if r.Edge.Speed != nil {
			edgeSpeed = formatFloat(*r.Edge.Speed)
		}
		if r.Edge.SpeedLimit != nil {
			speedLimit = formatFloat(*r.Edge.SpeedLimit)
		}
	}
	return []string{
		formatFloat(r.Sample.Lat),
		formatFloat(r.Sample.Lon),
		strconv.FormatInt(r.Sample.Time, 10),
		formatFloat(r.Sample.Heading),
		formatFloat(r.Sample.Speed),
		formatFloat(r.Sample.HeadingTolerance),
		string(r.Status),
		strconv.Itoa(r.TripIndex),
		wayID, edgeSpeed, speedLimit,
		r.Message,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
