// Package route turns a chosen safe zone into drivable guidance: a routed
// path from an external routing service with distance, ETA, and a
// near/far classification, plus a human-readable name for the destination.
package route

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slopewatch/evac-cli/internal/geo"
)

// DefaultFarThresholdKm classifies routes longer than this as Far, which
// the presentation layer escalates with shelter-in-place alternatives.
const DefaultFarThresholdKm = 3.0

// DefaultPlaceName is used when reverse geocoding is unavailable.
const DefaultPlaceName = "Safe Zone"

// Classification says whether the evacuation route is practical on foot.
type Classification string

// Route classifications.
const (
	Near Classification = "near"
	Far  Classification = "far"
)

// Path is the raw answer from a routing service.
type Path struct {
	Polyline        []geo.Point
	DistanceMeters  float64
	DurationSeconds float64
}

// Provider requests a drivable route between two points. Unlike feature
// lookups, routing failures are not absorbed here: the route is
// load-bearing for the final answer, so errors surface to the orchestrator
// as a distinct terminal state.
type Provider interface {
	Route(ctx context.Context, origin, dest geo.Point) (*Path, error)
}

// PlaceNamer resolves a human-readable name for a point.
type PlaceNamer interface {
	ReverseGeocode(ctx context.Context, p geo.Point) (string, error)
}

// Result is a resolved evacuation route ready for presentation.
type Result struct {
	Polyline        []geo.Point    `json:"polyline"`
	DistanceKm      float64        `json:"distance_km"`
	DurationMinutes int            `json:"duration_minutes"`
	Classification  Classification `json:"classification"`
}

// Resolver composes a routing provider and an optional place namer.
type Resolver struct {
	provider       Provider
	placeNamer     PlaceNamer
	farThresholdKm float64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPlaceNamer enables destination naming.
func WithPlaceNamer(pn PlaceNamer) ResolverOption {
	return func(r *Resolver) { r.placeNamer = pn }
}

// WithFarThresholdKm overrides the near/far boundary.
func WithFarThresholdKm(km float64) ResolverOption {
	return func(r *Resolver) { r.farThresholdKm = km }
}

// NewResolver creates a Resolver over the given routing provider.
func NewResolver(p Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider:       p,
		farThresholdKm: DefaultFarThresholdKm,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve requests a route from origin to dest and normalizes units:
// meters to kilometers, seconds to whole minutes rounded up. An error means
// no route could be obtained; the caller decides how to degrade.
func (r *Resolver) Resolve(ctx context.Context, origin, dest geo.Point) (*Result, error) {
	path, err := r.provider.Route(ctx, origin, dest)
	if err != nil {
		return nil, eris.Wrap(err, "route: provider")
	}
	if path == nil || len(path.Polyline) == 0 {
		return nil, eris.New("route: provider returned empty path")
	}

	distanceKm := path.DistanceMeters / 1000
	minutes := int(math.Ceil(path.DurationSeconds / 60))

	classification := Near
	if distanceKm > r.farThresholdKm {
		classification = Far
	}

	return &Result{
		Polyline:        path.Polyline,
		DistanceKm:      distanceKm,
		DurationMinutes: minutes,
		Classification:  classification,
	}, nil
}

// PlaceName resolves a display name for the destination, degrading to
// DefaultPlaceName when no namer is configured or the lookup fails. Names
// are cosmetic, so this fails open like feature lookups.
func (r *Resolver) PlaceName(ctx context.Context, p geo.Point) string {
	if r.placeNamer == nil {
		return DefaultPlaceName
	}

	name, err := r.placeNamer.ReverseGeocode(ctx, p)
	if err != nil || name == "" {
		if err != nil {
			zap.L().Debug("reverse geocode failed, using placeholder",
				zap.Float64("lat", p.Lat),
				zap.Float64("lng", p.Lng),
				zap.Error(err),
			)
		}
		return DefaultPlaceName
	}
	return name
}
