// Package geo provides great-circle math for report coordinates (WGS84 degrees).
package geo

import (
	"errors"
	"math"
)

const earthRadiusMeters = 6371000

// ErrInvalidCoordinate is returned by Validate for out-of-range lat/lng values.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether p is a usable WGS84 coordinate.
func Validate(p Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return ErrInvalidCoordinate
	}
	if math.Abs(p.Lat) > 90 || math.Abs(p.Lng) > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceMeters returns the Haversine great-circle distance between two points.
// Symmetric in its arguments and exactly zero for identical points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	const degToRad = math.Pi / 180
	lat1 *= degToRad
	lng1 *= degToRad
	lat2 *= degToRad
	lng2 *= degToRad
	dlat := lat2 - lat1
	dlng := lng2 - lng1
	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Distance is DistanceMeters over Points.
func Distance(a, b Point) float64 {
	return DistanceMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Centroid averages the given points. Returns the zero Point for empty input.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lng: lng / n}
}
