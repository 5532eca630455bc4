// Package geo provides the small amount of geodesic arithmetic the
// pipeline needs. Distances are great-circle (haversine) metres; the
// stop-point merge threshold is expressed in metres, so a planar
// approximation would drift with latitude.
package geo

import "math"

// Mean earth radius in metres.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance in metres
// between two (lon, lat) pairs given in degrees.
//
// The argument order is lon-first to match the (x, y) convention used
// by the point artifacts and the raster grid.
func DistanceMeters(lon0, lat0, lon1, lat1 float64) float64 {
	dLat := radians(lat1 - lat0)
	dLon := radians(lon1 - lon0)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat0))*math.Cos(radians(lat1))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
