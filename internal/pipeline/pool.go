package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CVTS/cvts/internal/match"
	"github.com/CVTS/cvts/internal/metrics"
	"github.com/CVTS/cvts/internal/monitoring"
	"github.com/CVTS/cvts/internal/trace"
)

// PoolConfig configures the per-vehicle worker pool.
type PoolConfig struct {
	// Workers is the pool size; 0 means one worker per CPU.
	Workers int
	Oracle  match.Oracle
	// OpenSink is called once per worker; the returned sink lives and
	// dies with that worker and is never shared.
	OpenSink func() (Sink, error)
	Layout   Layout
	Loc      *time.Location
	Metrics  *metrics.Collector
}

// RunVehicles processes the given vehicles concurrently. Per-vehicle
// failures are logged and counted, never escalated; the returned error
// covers only pool-level problems (worker init, cancelled context).
// The caller is expected to have filtered out already-done vehicles.
func RunVehicles(ctx context.Context, cfg PoolConfig, source trace.Source, regos []string) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(regos) && len(regos) > 0 {
		workers = len(regos)
	}
	if len(regos) == 0 {
		return nil
	}

	jobs := make(chan string)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			sink, err := cfg.OpenSink()
			if err != nil {
				return fmt.Errorf("worker sink init: %w", err)
			}
			defer func() {
				if err := sink.Close(); err != nil {
					monitoring.Logf("closing worker sink: %v", err)
				}
			}()

			env := &vehicleEnv{
				oracle:  cfg.Oracle,
				sink:    sink,
				layout:  cfg.Layout,
				loc:     cfg.Loc,
				metrics: cfg.Metrics,
			}
			for rego := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				runVehicle(ctx, env, source, rego, cfg.Metrics)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, rego := range regos {
			select {
			case jobs <- rego:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

// runVehicle contains a single vehicle's failure domain: read input,
// process, log the outcome.
func runVehicle(ctx context.Context, env *vehicleEnv, source trace.Source, rego string, m *metrics.Collector) {
	trips, err := source.Trips(rego)
	if err == nil {
		err = env.process(ctx, rego, trips)
	}
	if err != nil {
		if m != nil {
			m.VehiclesFailed.Inc()
		}
		monitoring.Logf("processing %s failed: %v", rego, err)
		return
	}
	if m != nil {
		m.VehiclesProcessed.Inc()
	}
	monitoring.Logf("processing %s passed", rego)
}
