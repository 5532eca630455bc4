// Package grid accumulates point counts over a fixed uniform raster and
// writes the result as an ESRI ASCII grid.
package grid

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Default raster covering Vietnam.
const (
	DefaultMinLat   = 7.8584
	DefaultMaxLat   = 23.8882
	DefaultMinLon   = 101.9988
	DefaultMaxLon   = 109.3325
	DefaultCellSize = 0.1
	DefaultNAValue  = -9999
)

// Grid is a fixed-origin 2D count raster. Cells are stored row-major.
type Grid struct {
	MinLat   float64
	MinLon   float64
	CellSize float64
	NAValue  int
	NRow     int
	NCol     int

	cells   []int64
	dropped int64
}

// New constructs a zeroed grid over the given bounding box.
func New(minLat, minLon, maxLat, maxLon, cellSize float64, naValue int) *Grid {
	ncol := int(math.Ceil((maxLon - minLon) / cellSize))
	nrow := int(math.Ceil((maxLat - minLat) / cellSize))
	return &Grid{
		MinLat:   minLat,
		MinLon:   minLon,
		CellSize: cellSize,
		NAValue:  naValue,
		NRow:     nrow,
		NCol:     ncol,
		cells:    make([]int64, nrow*ncol),
	}
}

// NewDefault constructs the grid with the default bounding box.
func NewDefault() *Grid {
	return New(DefaultMinLat, DefaultMinLon, DefaultMaxLat, DefaultMaxLon,
		DefaultCellSize, DefaultNAValue)
}

// Increment adds one to the cell containing (lon, lat) and reports
// whether the point fell inside the raster. Out-of-bounds points are
// dropped silently apart from the Dropped counter.
func (g *Grid) Increment(lon, lat float64) bool {
	row := g.NRow - int(math.Floor((lon-g.MinLon)/g.CellSize)) - 1
	col := int(math.Floor((lat - g.MinLat) / g.CellSize))
	if row < 0 || row >= g.NRow || col < 0 || col >= g.NCol {
		g.dropped++
		return false
	}
	g.cells[row*g.NCol+col]++
	return true
}

// Cell returns the count at (row, col).
func (g *Grid) Cell(row, col int) int64 {
	return g.cells[row*g.NCol+col]
}

// Total returns the sum of all cell counts.
func (g *Grid) Total() int64 {
	var sum int64
	for _, c := range g.cells {
		sum += c
	}
	return sum
}

// Dropped returns the number of points that fell outside the raster.
func (g *Grid) Dropped() int64 { return g.dropped }

// WriteASCII serialises the grid: a fixed six-line header followed by
// the flattened cells, row-major, space separated on a single line.
func (g *Grid) WriteASCII(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols        %d\n", g.NCol)
	fmt.Fprintf(bw, "nrows        %d\n", g.NRow)
	fmt.Fprintf(bw, "xllcorner    %v\n", g.MinLon)
	fmt.Fprintf(bw, "yllcorner    %v\n", g.MinLat)
	fmt.Fprintf(bw, "cellsize     %v\n", g.CellSize)
	fmt.Fprintf(bw, "NODATA_value %d\n", g.NAValue)
	for i, c := range g.cells {
		if i > 0 {
			if err := bw.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(strconv.FormatInt(c, 10)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveASCII writes the ASCII grid atomically: to a temp file first,
// then renamed over the target path.
func (g *Grid) SaveASCII(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := g.WriteASCII(f); err != nil {
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
