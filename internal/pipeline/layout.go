// Package pipeline orchestrates the per-vehicle matching phase and the
// downstream spatial reductions as an idempotent task graph over
// filesystem artifacts.
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/CVTS/cvts/internal/stops"
)

// Layout maps artifact names to paths under the output directory.
type Layout struct {
	Out string
}

func (l Layout) mmDir() string      { return filepath.Join(l.Out, "mm") }
func (l Layout) seqDir() string     { return filepath.Join(l.Out, "seq") }
func (l Layout) stopsDir() string   { return filepath.Join(l.Out, "stops") }
func (l Layout) srcDestDir() string { return filepath.Join(l.Out, "src_dest") }

// MMFile is the per-vehicle point-match artifact.
func (l Layout) MMFile(rego string) string {
	return filepath.Join(l.mmDir(), rego+".csv")
}

// SeqFile is the per-vehicle trip-summary artifact.
func (l Layout) SeqFile(rego string) string {
	return filepath.Join(l.seqDir(), rego+".json")
}

// StopsFile is the per-vehicle merged stop point list.
func (l Layout) StopsFile(rego string) string {
	return filepath.Join(l.stopsDir(), rego+".json")
}

// SrcDestFile is the per-vehicle origin/destination point list.
func (l Layout) SrcDestFile(rego string) string {
	return filepath.Join(l.srcDestDir(), rego+".json")
}

// SeqManifest lists the trip-summary files of completed vehicles.
func (l Layout) SeqManifest() string {
	return filepath.Join(l.Out, "seq_files.json")
}

// PooledPointsFile is the pooled point set for a point-list prefix
// ("stop_points" or "src_dest_points").
func (l Layout) PooledPointsFile(prefix string) string {
	return filepath.Join(l.Out, prefix+"_lon_lat.csv")
}

// GeomIDsFile holds one region id per pooled point for a geography.
func (l Layout) GeomIDsFile(prefix, geography string) string {
	return filepath.Join(l.Out, fmt.Sprintf("%s_geom_ids_%s.csv", prefix, geography))
}

// GeomCountsFile is the final count table for a geography.
func (l Layout) GeomCountsFile(prefix, geography string) string {
	return filepath.Join(l.Out, fmt.Sprintf("%s_geom_counts_%s.csv", prefix, geography))
}

// RasterFile is the stop-point density ASCII grid.
func (l Layout) RasterFile() string {
	return filepath.Join(l.Out, "grid_points.asc")
}

// EnsureDirs creates the artifact directory tree.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.Out, l.mmDir(), l.seqDir(), l.stopsDir(), l.srcDestDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// VehicleDone reports whether both of a vehicle's artifacts exist.
// Artifacts are renamed into place only after a vehicle completes, so
// presence implies completeness.
func (l Layout) VehicleDone(rego string) bool {
	return fileExists(l.MMFile(rego)) && fileExists(l.SeqFile(rego))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// writeFileAtomic writes via a temp file in the same directory and
// renames it over path once fill succeeds.
func writeFileAtomic(path string, fill func(w io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// writePointsCSV writes a pooled point set as lon,lat rows.
func writePointsCSV(w io.Writer, pts []stops.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lon", "lat"}); err != nil {
		return err
	}
	for _, p := range pts {
		row := []string{
			strconv.FormatFloat(p.Lon, 'g', -1, 64),
			strconv.FormatFloat(p.Lat, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readPointsCSV loads a pooled point set.
func readPointsCSV(path string) ([]stops.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 || rows[0][0] != "lon" {
		return nil, fmt.Errorf("%s: missing lon,lat header", path)
	}
	pts := make([]stops.Point, 0, len(rows)-1)
	for i, row := range rows[1:] {
		lon, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad lon %q", path, i+2, row[0])
		}
		lat, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad lat %q", path, i+2, row[1])
		}
		pts = append(pts, stops.Point{Lon: lon, Lat: lat})
	}
	return pts, nil
}

// writeIDsCSV writes one region id per line under a geom_id header.
func writeIDsCSV(w io.Writer, ids []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"geom_id"}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := cw.Write([]string{id}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readIDsCSV loads a region id column written by writeIDsCSV.
func readIDsCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 || rows[0][0] != "geom_id" {
		return nil, fmt.Errorf("%s: missing geom_id header", path)
	}
	ids := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ids = append(ids, row[0])
	}
	return ids, nil
}
