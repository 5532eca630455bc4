package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/CVTS/cvts/internal/config"
	"github.com/CVTS/cvts/internal/grid"
	"github.com/CVTS/cvts/internal/match"
	"github.com/CVTS/cvts/internal/metrics"
	"github.com/CVTS/cvts/internal/monitoring"
	"github.com/CVTS/cvts/internal/region"
	"github.com/CVTS/cvts/internal/stops"
	"github.com/CVTS/cvts/internal/trace"
)

// Point-list prefixes shared by pooled artifacts and their region maps.
const (
	stopPrefix    = "stop_points"
	srcDestPrefix = "src_dest_points"
)

// Pipeline wires configuration and collaborators into concrete tasks.
type Pipeline struct {
	Config   *config.Config
	Source   trace.Source
	Oracle   match.Oracle
	Metrics  *metrics.Collector
	OpenSink func() (Sink, error)
	Layout   Layout

	// memoised tasks so shared dependencies are a single node
	matchTask   *matchToNetwork
	pointsTasks map[string]*locationPoints
}

// New creates a pipeline rooted at the config's output directory.
func New(cfg *config.Config, source trace.Source, oracle match.Oracle, openSink func() (Sink, error), m *metrics.Collector) *Pipeline {
	if m != nil {
		oracle = timedOracle{inner: oracle, metrics: m}
	}
	return &Pipeline{
		Config:      cfg,
		Source:      source,
		Oracle:      oracle,
		Metrics:     m,
		OpenSink:    openSink,
		Layout:      Layout{Out: cfg.OutPath},
		pointsTasks: make(map[string]*locationPoints),
	}
}

// timedOracle records every oracle call's wall time.
type timedOracle struct {
	inner   match.Oracle
	metrics *metrics.Collector
}

func (o timedOracle) Match(ctx context.Context, rego string, tripIndex int, trip trace.Trip) (*match.Response, error) {
	start := time.Now()
	resp, err := o.inner.Match(ctx, rego, tripIndex, trip)
	o.metrics.OracleDuration.Observe(time.Since(start).Seconds())
	return resp, err
}

// MatchTask returns the per-vehicle matching stage.
func (p *Pipeline) MatchTask() Task {
	if p.matchTask == nil {
		p.matchTask = &matchToNetwork{p: p}
	}
	return p.matchTask
}

// StopPointsTask returns the merged stop-point pooling stage.
func (p *Pipeline) StopPointsTask() Task { return p.pointsTask(stopPrefix) }

// SourceDestPointsTask returns the unmerged origin/destination pooling stage.
func (p *Pipeline) SourceDestPointsTask() Task { return p.pointsTask(srcDestPrefix) }

func (p *Pipeline) pointsTask(prefix string) *locationPoints {
	t, ok := p.pointsTasks[prefix]
	if !ok {
		t = &locationPoints{p: p, prefix: prefix}
		p.pointsTasks[prefix] = t
	}
	return t
}

// RasterTask returns the stop-point raster stage.
func (p *Pipeline) RasterTask() Task {
	return &rasterCounts{p: p}
}

// RegionCountsTask returns the stop-point region count stage for one geography.
func (p *Pipeline) RegionCountsTask(geography string) Task {
	return &regionCounts{p: p, geography: geography}
}

// SourceDestinationCountsTask returns the OD pair count stage for one geography.
func (p *Pipeline) SourceDestinationCountsTask(geography string) Task {
	return &sourceDestinationCounts{p: p, geography: geography}
}

// newGrid builds the raster from config, falling back to the default
// bounding box.
func (p *Pipeline) newGrid() *grid.Grid {
	g := p.Config.Grid
	if g == nil {
		return grid.NewDefault()
	}
	return grid.New(g.MinLat, g.MinLon, g.MaxLat, g.MaxLon, g.CellSize, g.NAValue)
}

// ---------------------------------------------------------------------------
// MatchToNetwork
// ---------------------------------------------------------------------------

// matchToNetwork runs the parallel per-vehicle phase. Its manifest
// lists the trip-summary files of every completed vehicle; the stage
// counts as done only when the manifest exists and every vehicle's own
// artifacts do too, so a partially failed run resumes the stragglers.
type matchToNetwork struct {
	p *Pipeline
}

func (t *matchToNetwork) Name() string     { return "MatchToNetwork" }
func (t *matchToNetwork) Requires() []Task { return nil }

func (t *matchToNetwork) Outputs() []string {
	return []string{t.p.Layout.SeqManifest()}
}

func (t *matchToNetwork) Done() (bool, error) {
	if !fileExists(t.p.Layout.SeqManifest()) {
		return false, nil
	}
	regos, err := t.p.Source.Vehicles()
	if err != nil {
		return false, err
	}
	for _, rego := range regos {
		if !t.p.Layout.VehicleDone(rego) {
			return false, nil
		}
	}
	return true, nil
}

func (t *matchToNetwork) Run(ctx context.Context) error {
	layout := t.p.Layout
	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	regos, err := t.p.Source.Vehicles()
	if err != nil {
		return fmt.Errorf("listing vehicles: %w", err)
	}

	// Idempotency is decided here, before dispatch: completed vehicles
	// never reach the pool, so re-runs make no oracle calls for them.
	pending := make([]string, 0, len(regos))
	for _, rego := range regos {
		if layout.VehicleDone(rego) {
			monitoring.Logf("skipping %s (done)", rego)
			if t.p.Metrics != nil {
				t.p.Metrics.VehiclesSkipped.Inc()
			}
			continue
		}
		pending = append(pending, rego)
	}

	err = RunVehicles(ctx, PoolConfig{
		Workers:  t.p.Config.Workers,
		Oracle:   t.p.Oracle,
		OpenSink: t.p.OpenSink,
		Layout:   layout,
		Loc:      t.p.Config.Location(),
		Metrics:  t.p.Metrics,
	}, t.p.Source, pending)
	if err != nil {
		return err
	}

	// List the artifacts of vehicles that made it; failed vehicles stay
	// out of the manifest and keep this stage incomplete.
	var seqFiles []string
	for _, rego := range regos {
		if layout.VehicleDone(rego) {
			seqFiles = append(seqFiles, layout.SeqFile(rego))
		}
	}
	sort.Strings(seqFiles)
	return writeFileAtomic(layout.SeqManifest(), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(seqFiles)
	})
}

// ---------------------------------------------------------------------------
// Location points
// ---------------------------------------------------------------------------

// locationPoints pools trip-boundary points across all vehicles: the
// merged stop extractor for stop density, the unmerged one for OD
// pairs. Alongside the pooled CSV it writes each vehicle's own point
// list for ad hoc inspection.
type locationPoints struct {
	p      *Pipeline
	prefix string
}

func (t *locationPoints) Name() string {
	return fmt.Sprintf("LocationPoints(%s)", t.prefix)
}

func (t *locationPoints) Requires() []Task { return []Task{t.p.MatchTask()} }

func (t *locationPoints) Outputs() []string {
	return []string{t.p.Layout.PooledPointsFile(t.prefix)}
}

func (t *locationPoints) perVehicleFile(rego string) string {
	if t.prefix == stopPrefix {
		return t.p.Layout.StopsFile(rego)
	}
	return t.p.Layout.SrcDestFile(rego)
}

func (t *locationPoints) newIterator(summaries []match.TripSummary) *stops.Iterator {
	if t.prefix == stopPrefix {
		return stops.NewStopIterator(summaries)
	}
	return stops.NewODIterator(summaries)
}

func (t *locationPoints) Run(ctx context.Context) error {
	manifest, err := readManifest(t.p.Layout.SeqManifest())
	if err != nil {
		return err
	}

	var pooled []stops.Point
	for _, seqFile := range manifest {
		if err := ctx.Err(); err != nil {
			return err
		}
		summaries, err := readSummaries(seqFile)
		if err != nil {
			return err
		}
		pts := t.newIterator(summaries).Drain()

		rego := regoFromArtifact(seqFile)
		if err := writeFileAtomic(t.perVehicleFile(rego), func(w io.Writer) error {
			return json.NewEncoder(w).Encode(pointList(pts))
		}); err != nil {
			return err
		}
		pooled = append(pooled, pts...)
	}

	return writeFileAtomic(t.p.Layout.PooledPointsFile(t.prefix), func(w io.Writer) error {
		return writePointsCSV(w, pooled)
	})
}

// pointList keeps the JSON encoding of an empty vehicle as [] not null.
func pointList(pts []stops.Point) []stops.Point {
	if pts == nil {
		return []stops.Point{}
	}
	return pts
}

// ---------------------------------------------------------------------------
// Raster counts
// ---------------------------------------------------------------------------

// rasterCounts accumulates pooled stop points on the raster and writes
// the ASCII grid.
type rasterCounts struct {
	p *Pipeline
}

func (t *rasterCounts) Name() string     { return "RasterCounts" }
func (t *rasterCounts) Requires() []Task { return []Task{t.p.StopPointsTask()} }

func (t *rasterCounts) Outputs() []string {
	return []string{t.p.Layout.RasterFile()}
}

func (t *rasterCounts) Run(ctx context.Context) error {
	pts, err := readPointsCSV(t.p.Layout.PooledPointsFile(stopPrefix))
	if err != nil {
		return err
	}
	g := t.p.newGrid()
	for _, pt := range pts {
		if !g.Increment(pt.Lon, pt.Lat) && t.p.Metrics != nil {
			t.p.Metrics.OutOfRasterPoints.Inc()
		}
	}
	monitoring.Logf("raster: %d points binned, %d outside bounds", g.Total(), g.Dropped())
	return g.SaveASCII(t.p.Layout.RasterFile())
}

// ---------------------------------------------------------------------------
// Region mapping and counts
// ---------------------------------------------------------------------------

// pointsToRegions maps a pooled point set onto one geography's polygons
// and stores the resulting id column.
type pointsToRegions struct {
	p         *Pipeline
	prefix    string
	geography string
}

func (t *pointsToRegions) Name() string {
	return fmt.Sprintf("PointsToRegions(%s, %s)", t.prefix, t.geography)
}

func (t *pointsToRegions) Requires() []Task { return []Task{t.p.pointsTask(t.prefix)} }

func (t *pointsToRegions) Outputs() []string {
	return []string{t.p.Layout.GeomIDsFile(t.prefix, t.geography)}
}

func (t *pointsToRegions) Run(ctx context.Context) error {
	column, err := t.p.Config.GeometryColumn(t.geography)
	if err != nil {
		return err
	}
	layer, err := region.LoadGeoJSON(t.p.Config.GeographyPath(t.geography), column)
	if err != nil {
		return err
	}
	pts, err := readPointsCSV(t.p.Layout.PooledPointsFile(t.prefix))
	if err != nil {
		return err
	}
	ids := region.MapPoints(layer, pts)
	return writeFileAtomic(t.p.Layout.GeomIDsFile(t.prefix, t.geography), func(w io.Writer) error {
		return writeIDsCSV(w, ids)
	})
}

// regionCounts tabulates stop points per region of one geography.
type regionCounts struct {
	p         *Pipeline
	geography string
}

func (t *regionCounts) Name() string {
	return fmt.Sprintf("RegionCounts(%s)", t.geography)
}

func (t *regionCounts) Requires() []Task {
	return []Task{&pointsToRegions{p: t.p, prefix: stopPrefix, geography: t.geography}}
}

func (t *regionCounts) Outputs() []string {
	return []string{t.p.Layout.GeomCountsFile(stopPrefix, t.geography)}
}

func (t *regionCounts) Run(ctx context.Context) error {
	ids, err := readIDsCSV(t.p.Layout.GeomIDsFile(stopPrefix, t.geography))
	if err != nil {
		return err
	}
	counts := region.CountValues(ids)
	return writeFileAtomic(t.p.Layout.GeomCountsFile(stopPrefix, t.geography), func(w io.Writer) error {
		return region.WriteCounts(w, counts)
	})
}

// sourceDestinationCounts tabulates origin/destination region pairs.
type sourceDestinationCounts struct {
	p         *Pipeline
	geography string
}

func (t *sourceDestinationCounts) Name() string {
	return fmt.Sprintf("SourceDestinationCounts(%s)", t.geography)
}

func (t *sourceDestinationCounts) Requires() []Task {
	return []Task{&pointsToRegions{p: t.p, prefix: srcDestPrefix, geography: t.geography}}
}

func (t *sourceDestinationCounts) Outputs() []string {
	return []string{t.p.Layout.GeomCountsFile(srcDestPrefix, t.geography)}
}

func (t *sourceDestinationCounts) Run(ctx context.Context) error {
	ids, err := readIDsCSV(t.p.Layout.GeomIDsFile(srcDestPrefix, t.geography))
	if err != nil {
		return err
	}
	pairs, err := region.CountPairs(ids)
	if err != nil {
		return err
	}
	return writeFileAtomic(t.p.Layout.GeomCountsFile(srcDestPrefix, t.geography), func(w io.Writer) error {
		return region.WritePairCounts(w, pairs)
	})
}

// readManifest loads the list of completed trip-summary files.
func readManifest(path string) ([]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var files []string
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return files, nil
}

// regoFromArtifact recovers the vehicle id from a per-vehicle artifact
// path such as seq/<rego>.json.
func regoFromArtifact(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
