// Package hazard models active sensor alerts as geographic hazard zones and
// decides whether a position falls inside any zone's safety buffer.
package hazard

import (
	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/sensor"
)

// Severity is the alert level of a hazard zone.
type Severity string

// Severity levels, ordered by urgency.
const (
	SeverityWarning Severity = "Warning"
	SeverityAlert   Severity = "Alert"
)

// Zone is a circular hazard area derived from a single active sensor.
// Zones are rebuilt from sensor data on every evaluation and never persisted.
type Zone struct {
	Name                 string
	Center               geo.Point
	AffectedRadiusMeters float64
	Severity             Severity
}

// AffectedRadiusKm returns the reported impact radius in kilometers.
func (z Zone) AffectedRadiusKm() float64 {
	return z.AffectedRadiusMeters / 1000
}

// BufferPolicy computes the exclusion radius around a hazard zone that safe
// candidates must clear. Two deployment profiles exist in the field: the
// lenient one scales the impact radius by 1.5 with no floor, the aggressive
// one enforces a 10 km minimum regardless of the reported radius.
type BufferPolicy struct {
	// Multiplier scales the reported affected radius.
	Multiplier float64
	// FloorKm is the minimum buffer regardless of radius. Zero disables it.
	FloorKm float64
}

// LenientBuffer is the default policy: 1.5x the impact radius, no floor.
func LenientBuffer() BufferPolicy {
	return BufferPolicy{Multiplier: 1.5}
}

// AggressiveBuffer enforces at least a 10 km clearance around every zone.
func AggressiveBuffer() BufferPolicy {
	return BufferPolicy{Multiplier: 1.0, FloorKm: 10}
}

// SafetyBufferKm returns the exclusion radius for a zone in kilometers.
func (p BufferPolicy) SafetyBufferKm(z Zone) float64 {
	buffer := z.AffectedRadiusKm() * p.Multiplier
	if buffer < p.FloorKm {
		buffer = p.FloorKm
	}
	return buffer
}

// FromSensors converts raw sensor records into hazard zones. Only records
// that are operationally active AND in Warning or Alert status contribute:
// an inactive sensor is not a hazard no matter what status it last reported.
func FromSensors(records []sensor.Record) []Zone {
	zones := make([]Zone, 0, len(records))
	for _, r := range records {
		if !r.Active() {
			continue
		}

		var sev Severity
		switch r.Status {
		case sensor.StatusAlert:
			sev = SeverityAlert
		case sensor.StatusWarning:
			sev = SeverityWarning
		default:
			continue
		}

		if r.AffectedRadiusMeters < 0 {
			continue
		}

		zones = append(zones, Zone{
			Name:                 r.Name,
			Center:               geo.Point{Lat: r.Latitude, Lng: r.Longitude},
			AffectedRadiusMeters: r.AffectedRadiusMeters,
			Severity:             sev,
		})
	}
	return zones
}

// Endangered reports whether the user position falls inside any zone's
// safety buffer. This gates the expensive safe-zone search: a user outside
// every buffer needs no evacuation and no external calls.
func Endangered(user geo.Point, zones []Zone, policy BufferPolicy) bool {
	for _, z := range zones {
		if geo.DistanceKm(user, z.Center) <= policy.SafetyBufferKm(z) {
			return true
		}
	}
	return false
}

// Nearest returns the zone whose center is closest to the user. The second
// return is false when zones is empty.
func Nearest(user geo.Point, zones []Zone) (Zone, bool) {
	if len(zones) == 0 {
		return Zone{}, false
	}
	best := zones[0]
	bestDist := geo.DistanceKm(user, best.Center)
	for _, z := range zones[1:] {
		if d := geo.DistanceKm(user, z.Center); d < bestDist {
			best, bestDist = z, d
		}
	}
	return best, true
}
