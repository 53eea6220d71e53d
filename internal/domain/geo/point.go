package geo

import (
	"errors"
	"math"
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrNoPoints         = errors.New("centroid of zero points is undefined")
)

// coordTolerance is the per-coordinate tolerance (in degrees) used when
// deciding whether two points are the same place.
const coordTolerance = 1e-4

// Validate checks the point is within valid coordinate ranges.
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// SamePlace reports whether both coordinates of p and q differ by less than
// the shared tolerance.
func (p Point) SamePlace(q Point) bool {
	return math.Abs(p.Latitude-q.Latitude) < coordTolerance &&
		math.Abs(p.Longitude-q.Longitude) < coordTolerance
}

// Distance returns the great-circle (haversine) distance between two points
// in meters.
func Distance(p1, p2 Point) float64 {
	const earthRadiusM = 6371000.0

	lat1 := p1.Latitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	dlat := (p2.Latitude - p1.Latitude) * math.Pi / 180
	dlng := (p2.Longitude - p1.Longitude) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Centroid returns the arithmetic mean position of the given points.
// It errors on an empty input rather than inventing a location.
func Centroid(points []Point) (Point, error) {
	if len(points) == 0 {
		return Point{}, ErrNoPoints
	}

	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Latitude
		sumLng += p.Longitude
	}

	n := float64(len(points))
	return Point{Latitude: sumLat / n, Longitude: sumLng / n}, nil
}
