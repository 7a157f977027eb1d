// Package geo provides geographic primitives for the evacuation engine:
// great-circle distance, compass octant classification, and the planar
// offsets used to generate ring-search candidates.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// EarthRadiusKm is the mean Earth radius used for haversine distance.
const EarthRadiusKm = 6371.0

// DegreesPerKM is an approximate conversion factor for latitude degrees to
// kilometers. At mid-latitudes, 1 degree of latitude is approximately 111 km.
const DegreesPerKM = 1.0 / 111.0

// Point is an immutable geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects NaN, infinite, or out-of-range coordinates. Distance math
// silently propagates NaN, so inputs are checked once at the boundary.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return eris.Errorf("geo: coordinate is not a finite number: (%v, %v)", p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("geo: latitude %v out of range [-90, 90]", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return eris.Errorf("geo: longitude %v out of range [-180, 180]", p.Lng)
	}
	return nil
}

// DistanceKm returns the haversine great-circle distance between two points
// in kilometers.
func DistanceKm(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*sinLng*sinLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Octant is a 45-degree compass sector.
type Octant string

// Compass octants, clockwise from north.
const (
	North     Octant = "N"
	Northeast Octant = "NE"
	East      Octant = "E"
	Southeast Octant = "SE"
	South     Octant = "S"
	Southwest Octant = "SW"
	West      Octant = "W"
	Northwest Octant = "NW"
)

var octants = [8]Octant{North, Northeast, East, Southeast, South, Southwest, West, Northwest}

// BearingOctant maps an angle in radians to the nearest compass octant.
// Index 0 is north; the angle is rounded half-away-from-zero to the nearest
// 45-degree sector.
func BearingOctant(angle float64) Octant {
	idx := int(math.Round(angle/(math.Pi/4))) % 8
	if idx < 0 {
		idx += 8
	}
	return octants[idx]
}

// maxOffsetLat caps the latitude used for the meridian-convergence scale in
// Offset. Past it cos(lat) approaches zero and the scaled longitude blows up
// to Inf/NaN.
const maxOffsetLat = 89.0

// Offset returns the point distanceKm away from origin along the given
// angle, using a local equirectangular approximation. Longitude degrees are
// scaled by cos(lat) to account for meridian convergence; the scale latitude
// is clamped to ±89 so near-polar origins still yield finite longitudes. The
// approximation is only suitable for generating search candidates; safety
// evaluation and reported distances must use DistanceKm.
func Offset(origin Point, distanceKm, angle float64) Point {
	scaleLat := math.Min(math.Max(origin.Lat, -maxOffsetLat), maxOffsetLat)
	lat := origin.Lat + distanceKm*DegreesPerKM*math.Cos(angle)
	lng := origin.Lng + distanceKm*DegreesPerKM/math.Cos(radians(scaleLat))*math.Sin(angle)
	return Point{Lat: lat, Lng: lng}
}

// BearingFrom returns the planar angle of the vector from to toward p,
// in the same convention Offset consumes (0 = north, clockwise positive).
func (p Point) BearingFrom(from Point) float64 {
	return math.Atan2(p.Lng-from.Lng, p.Lat-from.Lat)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
