package geo

import (
	"math"
	"testing"
)

func TestDistanceMetersZero(t *testing.T) {
	if d := DistanceMeters(105.0, 10.0, 105.0, 10.0); d != 0 {
		t.Errorf("distance of identical points = %v, want 0", d)
	}
}

func TestDistanceMetersKnownValues(t *testing.T) {
	tests := []struct {
		name                   string
		lon0, lat0, lon1, lat1 float64
		want                   float64 // metres
		tol                    float64
	}{
		{
			// One degree of latitude is ~111.2 km everywhere.
			name: "one degree latitude",
			lon0: 105, lat0: 10, lon1: 105, lat1: 11,
			want: 111195, tol: 200,
		},
		{
			// One degree of longitude shrinks with cos(lat).
			name: "one degree longitude at 60N",
			lon0: 0, lat0: 60, lon1: 1, lat1: 60,
			want: 111195 * 0.5, tol: 300,
		},
		{
			// ~0.01 deg in both axes near the equator; well above the
			// 50 m stop merge threshold.
			name: "small offset near equator",
			lon0: 10, lat0: 10, lon1: 10.01, lat1: 10.01,
			want: 1560, tol: 20,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceMeters(tc.lon0, tc.lat0, tc.lon1, tc.lat1)
			if math.Abs(got-tc.want) > tc.tol {
				t.Errorf("DistanceMeters = %.1f, want %.1f +/- %.0f", got, tc.want, tc.tol)
			}
		})
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	a := DistanceMeters(106.7, 10.8, 105.8, 21.0)
	b := DistanceMeters(105.8, 21.0, 106.7, 10.8)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", a, b)
	}
}
