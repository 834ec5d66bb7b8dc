// Package geo computes distances between positions.
package geo

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the WGS84 equatorial radius.
const EarthRadiusMeters = 6378137.0

// Location is a WGS84 position, altitude in meters.
type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
	Alt float64 `json:"altitude,omitempty"`
}

// Distance returns the great circle distance in meters between a and b, altitude is ignored.
func Distance(a, b Location) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lon)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return pa.Distance(pb).Radians() * EarthRadiusMeters
}
