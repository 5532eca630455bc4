// Package region maps points onto named polygons and tabulates counts
// per region and per origin/destination region pair.
package region

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Unmatched is the region id assigned to points inside no polygon.
const Unmatched = "NA"

// Layer resolves a point to the identity of the region containing it.
type Layer interface {
	Locate(lon, lat float64) (string, bool)
}

// polygonLayer is a Layer backed by a GeoJSON FeatureCollection.
type polygonLayer struct {
	features []feature
}

type feature struct {
	id    string
	rings [][][2]float64 // all rings of all polygons, outer and holes alike
	// bounding box for a cheap containment pre-check
	minLon, minLat, maxLon, maxLat float64
}

type geoJSONDoc struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// LoadGeoJSON reads a FeatureCollection of Polygon/MultiPolygon
// features and indexes them by the value of idProperty. Loading fails
// fast when a feature lacks the identity property, so a misconfigured
// geography is caught at startup rather than mid-reduction.
func LoadGeoJSON(path, idProperty string) (Layer, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geometry layer: %w", err)
	}
	var doc geoJSONDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%s: type is %q, want FeatureCollection", path, doc.Type)
	}

	layer := &polygonLayer{}
	for i, f := range doc.Features {
		raw, ok := f.Properties[idProperty]
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has no property %q", path, i, idProperty)
		}
		id, err := propertyString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: feature %d property %q: %w", path, i, idProperty, err)
		}

		var rings [][][2]float64
		switch f.Geometry.Type {
		case "Polygon":
			var poly [][][2]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &poly); err != nil {
				return nil, fmt.Errorf("%s: feature %d polygon: %w", path, i, err)
			}
			rings = poly
		case "MultiPolygon":
			var multi [][][][2]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &multi); err != nil {
				return nil, fmt.Errorf("%s: feature %d multipolygon: %w", path, i, err)
			}
			for _, poly := range multi {
				rings = append(rings, poly...)
			}
		default:
			return nil, fmt.Errorf("%s: feature %d has unsupported geometry %q", path, i, f.Geometry.Type)
		}

		layer.features = append(layer.features, newFeature(id, rings))
	}
	return layer, nil
}

func propertyString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == math.Trunc(n) {
			return fmt.Sprintf("%d", int64(n)), nil
		}
		return fmt.Sprintf("%v", n), nil
	}
	return "", fmt.Errorf("value %s is neither string nor number", raw)
}

func newFeature(id string, rings [][][2]float64) feature {
	f := feature{
		id:     id,
		rings:  rings,
		minLon: math.Inf(1), minLat: math.Inf(1),
		maxLon: math.Inf(-1), maxLat: math.Inf(-1),
	}
	for _, ring := range rings {
		for _, c := range ring {
			f.minLon = math.Min(f.minLon, c[0])
			f.maxLon = math.Max(f.maxLon, c[0])
			f.minLat = math.Min(f.minLat, c[1])
			f.maxLat = math.Max(f.maxLat, c[1])
		}
	}
	return f
}

// Locate returns the id of the first feature containing the point.
func (l *polygonLayer) Locate(lon, lat float64) (string, bool) {
	for _, f := range l.features {
		if lon < f.minLon || lon > f.maxLon || lat < f.minLat || lat > f.maxLat {
			continue
		}
		if f.contains(lon, lat) {
			return f.id, true
		}
	}
	return "", false
}

// contains uses even-odd ray casting over every ring, so holes toggle
// containment back off.
func (f feature) contains(lon, lat float64) bool {
	inside := false
	for _, ring := range f.rings {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			xi, yi := ring[i][0], ring[i][1]
			xj, yj := ring[j][0], ring[j][1]
			if (yi > lat) != (yj > lat) &&
				lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
				inside = !inside
			}
		}
	}
	return inside
}
