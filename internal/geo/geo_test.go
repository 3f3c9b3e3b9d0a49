package geo

import (
	"math"
	"testing"
)

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{12.9716, 77.5946, 12.9721, 77.5933},
		{40.7128, -74.0060, 34.0522, -118.2437},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{0, 0, 0, 180},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		if ab != ba {
			t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
		}
		if ab < 0 {
			t.Fatalf("negative distance %f", ab)
		}
	}
}

func TestDistanceIdenticalPoints(t *testing.T) {
	if d := DistanceMeters(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// Bangalore city center to Cubbon Park, roughly 1.6km.
	d := DistanceMeters(12.9716, 77.5946, 12.9763, 77.5929)
	if d < 400 || d > 700 {
		t.Fatalf("unexpected distance %f", d)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		p  Point
		ok bool
	}{
		{Point{Lat: 12.97, Lng: 77.59}, true},
		{Point{Lat: 90, Lng: 180}, true},
		{Point{Lat: 91, Lng: 0}, false},
		{Point{Lat: 0, Lng: -181}, false},
		{Point{Lat: math.NaN(), Lng: 0}, false},
	}
	for _, tc := range cases {
		err := Validate(tc.p)
		if tc.ok && err != nil {
			t.Fatalf("expected %v to be valid: %v", tc.p, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("expected %v to be invalid", tc.p)
		}
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Point{{Lat: 10, Lng: 20}, {Lat: 20, Lng: 40}})
	if c.Lat != 15 || c.Lng != 30 {
		t.Fatalf("unexpected centroid %v", c)
	}
	if z := Centroid(nil); z != (Point{}) {
		t.Fatalf("expected zero point for empty input, got %v", z)
	}
}
