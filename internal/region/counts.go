package region

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/CVTS/cvts/internal/stops"
)

// MapPoints resolves every point to a region id, substituting Unmatched
// for points inside no polygon. The output preserves input order.
func MapPoints(layer Layer, pts []stops.Point) []string {
	ids := make([]string, len(pts))
	for i, p := range pts {
		id, ok := layer.Locate(p.Lon, p.Lat)
		if !ok {
			id = Unmatched
		}
		ids[i] = id
	}
	return ids
}

// Count is one row of the region count table.
type Count struct {
	GeomID string
	N      int64
}

// CountValues tabulates distinct-value counts over region ids, sorted
// by id for deterministic output.
func CountValues(ids []string) []Count {
	tally := make(map[string]int64)
	for _, id := range ids {
		tally[id]++
	}
	counts := make([]Count, 0, len(tally))
	for id, n := range tally {
		counts = append(counts, Count{GeomID: id, N: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].GeomID < counts[j].GeomID })
	return counts
}

// PairCount is one row of the origin/destination count table.
type PairCount struct {
	From string
	To   string
	N    int64
}

type pairKey struct{ from, to string }

// CountPairs tabulates origin/destination pairs from a region id
// sequence in which ids 2k and 2k+1 belong to trip k. Pairs are
// deduplicated by their composite (from, to) key and sorted.
func CountPairs(ids []string) ([]PairCount, error) {
	if len(ids)%2 != 0 {
		return nil, fmt.Errorf("odd number of endpoint ids: %d", len(ids))
	}
	tally := make(map[pairKey]int64)
	for i := 0; i < len(ids); i += 2 {
		tally[pairKey{from: ids[i], to: ids[i+1]}]++
	}
	pairs := make([]PairCount, 0, len(tally))
	for k, n := range tally {
		pairs = append(pairs, PairCount{From: k.from, To: k.to, N: n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].From != pairs[j].From {
			return pairs[i].From < pairs[j].From
		}
		return pairs[i].To < pairs[j].To
	})
	return pairs, nil
}

// WriteCounts writes the region count table: geom_id,count.
func WriteCounts(w io.Writer, counts []Count) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"geom_id", "count"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := cw.Write([]string{c.GeomID, strconv.FormatInt(c.N, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePairCounts writes the OD count table: from,to,count.
func WritePairCounts(w io.Writer, pairs []PairCount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"from", "to", "count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := cw.Write([]string{p.From, p.To, strconv.FormatInt(p.N, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
