package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTripGap is the idle interval between consecutive fixes that
// starts a new trip.
const DefaultTripGap = 30 * time.Minute

// rawHeader is the required column order of raw trace CSV files.
var rawHeader = []string{"lat", "lon", "time", "heading", "speed", "heading_tolerance"}

// Source enumerates vehicles and reconstructs their ordered trips. The
// pipeline treats the origin of the data (filesystem, document store)
// as opaque behind this interface.
type Source interface {
	Vehicles() ([]string, error)
	Trips(rego string) ([]Trip, error)
}

// DirSource reads raw traces from a directory tree. Every *.csv file
// found anywhere under Root belongs to the vehicle named by its base
// name; the same base name in several subdirectories is merged into a
// single vehicle, mirroring split daily exports.
type DirSource struct {
	Root    string
	TripGap time.Duration

	files map[string][]string // rego -> paths
}

// NewDirSource walks root once and indexes the raw files it finds.
func NewDirSource(root string, tripGap time.Duration) (*DirSource, error) {
	if tripGap <= 0 {
		tripGap = DefaultTripGap
	}
	s := &DirSource{Root: root, TripGap: tripGap, files: make(map[string][]string)}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".csv") {
			return nil
		}
		rego := strings.TrimSuffix(d.Name(), ".csv")
		s.files[rego] = append(s.files[rego], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking raw path %s: %w", root, err)
	}
	return s, nil
}

// Vehicles returns the sorted set of vehicle identifiers found under Root.
func (s *DirSource) Vehicles() ([]string, error) {
	regos := make([]string, 0, len(s.files))
	for rego := range s.files {
		regos = append(regos, rego)
	}
	sort.Strings(regos)
	return regos, nil
}

// Trips reads all raw files for rego, orders the fixes by time and
// segments them into trips at gaps longer than TripGap.
func (s *DirSource) Trips(rego string) ([]Trip, error) {
	paths, ok := s.files[rego]
	if !ok {
		return nil, fmt.Errorf("no raw files for vehicle %s", rego)
	}
	var samples []LocatedSample
	for _, p := range paths {
		ss, err := ReadRawFile(p)
		if err != nil {
			return nil, err
		}
		samples = append(samples, ss...)
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })
	return SplitTrips(samples, s.TripGap), nil
}

// ReadRawFile parses one raw trace CSV file.
func ReadRawFile(path string) ([]LocatedSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raw file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if len(header) != len(rawHeader) {
		return nil, fmt.Errorf("%s: header has %d columns, want %d", path, len(header), len(rawHeader))
	}
	for i, name := range rawHeader {
		if strings.TrimSpace(header[i]) != name {
			return nil, fmt.Errorf("%s: column %d is %q, want %q", path, i, header[i], name)
		}
	}

	var samples []LocatedSample
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		s, err := parseSample(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseSample(rec []string) (LocatedSample, error) {
	var s LocatedSample
	var err error
	if s.Lat, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return s, fmt.Errorf("bad lat %q: %w", rec[0], err)
	}
	if s.Lon, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return s, fmt.Errorf("bad lon %q: %w", rec[1], err)
	}
	if s.Time, err = strconv.ParseInt(rec[2], 10, 64); err != nil {
		return s, fmt.Errorf("bad time %q: %w", rec[2], err)
	}
	if s.Heading, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return s, fmt.Errorf("bad heading %q: %w", rec[3], err)
	}
	if s.Speed, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return s, fmt.Errorf("bad speed %q: %w", rec[4], err)
	}
	if s.HeadingTolerance, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return s, fmt.Errorf("bad heading_tolerance %q: %w", rec[5], err)
	}
	return s, nil
}

// SplitTrips segments time-ordered samples into trips at gaps longer
// than gap. Empty input yields no trips.
func SplitTrips(samples []LocatedSample, gap time.Duration) []Trip {
	if len(samples) == 0 {
		return nil
	}
	gapSecs := int64(gap / time.Second)
	var trips []Trip
	start := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Time-samples[i-1].Time > gapSecs {
			trips = append(trips, Trip{Samples: samples[start:i]})
			start = i
		}
	}
	return append(trips, Trip{Samples: samples[start:]})
}
