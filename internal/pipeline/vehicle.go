package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CVTS/cvts/internal/match"
	"github.com/CVTS/cvts/internal/metrics"
	"github.com/CVTS/cvts/internal/monitoring"
	"github.com/CVTS/cvts/internal/speed"
	"github.com/CVTS/cvts/internal/trace"
)

// Sink receives a vehicle's aggregated speed observations. *db.DB
// satisfies it; tests substitute in-memory fakes.
type Sink interface {
	ReplaceTraversals(rego string, obs []speed.Observation) error
	Close() error
}

// vehicleEnv is everything one worker needs to process vehicles. The
// sink belongs to exactly one worker and is disposed with it.
type vehicleEnv struct {
	oracle  match.Oracle
	sink    Sink
	layout  Layout
	loc     *time.Location
	metrics *metrics.Collector
}

// process runs one vehicle end to end: match every trip, write the
// point-match and trip-summary artifacts, aggregate and persist speed
// observations. The artifacts are written under temp names and renamed
// into place last, so a crash or error leaves the vehicle incomplete
// and eligible for retry. Oracle failures never abort the vehicle;
// only IO and sink errors do.
func (e *vehicleEnv) process(ctx context.Context, rego string, trips []trace.Trip) (err error) {
	vlog := monitoring.Scoped(rego)

	mmPath := e.layout.MMFile(rego)
	seqPath := e.layout.SeqFile(rego)
	mmTmp := mmPath + ".tmp"
	seqTmp := seqPath + ".tmp"
	defer func() {
		if err != nil {
			for _, tmp := range []string{mmTmp, seqTmp} {
				if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
					vlog("could not remove %s: %v", tmp, rmErr)
				}
			}
		}
	}()

	mmFile, err := os.Create(mmTmp)
	if err != nil {
		return fmt.Errorf("creating point-match artifact: %w", err)
	}
	defer mmFile.Close()
	if err := match.WriteRecordHeader(mmFile); err != nil {
		return fmt.Errorf("writing point-match header: %w", err)
	}

	summaries := make([]match.TripSummary, 0, len(trips))
	var allRecords []match.PointRecord
	for tripIndex, trip := range trips {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary, records := match.MatchTrip(ctx, e.oracle, rego, tripIndex, trip)
		if e.metrics != nil {
			if summary.Status == match.StatusSuccess {
				e.metrics.TripsMatched.Inc()
			} else {
				e.metrics.TripsFailed.Inc()
			}
		}
		if summary.Status == match.StatusFailure {
			vlog("trip %d failed: %s", tripIndex, summary.Message)
		}
		if err := match.WriteRecords(mmFile, records); err != nil {
			return fmt.Errorf("writing point-match rows: %w", err)
		}
		summaries = append(summaries, summary)
		allRecords = append(allRecords, records...)
	}
	if err := mmFile.Close(); err != nil {
		return fmt.Errorf("closing point-match artifact: %w", err)
	}

	if obs := speed.Aggregate(allRecords, e.loc); len(obs) > 0 {
		if err := e.sink.ReplaceTraversals(rego, obs); err != nil {
			return fmt.Errorf("persisting %d observations: %w", len(obs), err)
		}
	}

	seqBody, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("encoding trip summaries: %w", err)
	}
	if err := os.WriteFile(seqTmp, seqBody, 0o644); err != nil {
		return fmt.Errorf("writing trip-summary artifact: %w", err)
	}

	// Commit: both artifacts appear together or not at all.
	if err := os.Rename(mmTmp, mmPath); err != nil {
		return fmt.Errorf("committing point-match artifact: %w", err)
	}
	if err := os.Rename(seqTmp, seqPath); err != nil {
		// Roll the first rename back so the done-check stays false.
		if rmErr := os.Remove(mmPath); rmErr != nil {
			vlog("could not roll back %s: %v", mmPath, rmErr)
		}
		return fmt.Errorf("committing trip-summary artifact: %w", err)
	}
	return nil
}

// readSummaries loads a vehicle's trip-summary artifact.
func readSummaries(path string) ([]match.TripSummary, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var summaries []match.TripSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return summaries, nil
}
