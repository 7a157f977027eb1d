// Package feature answers "are there hazardous natural features near this
// point?" against an external geographic query service. The gate degrades
// gracefully: timeouts, network failures, and malformed responses all read
// as "no features found" so the safe-zone search is never blocked by a
// flaky upstream.
package feature

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/resilience"
)

// Kind classifies a natural hazard feature.
type Kind string

// Feature kinds queried from the map-feature service.
const (
	KindWater            Kind = "water"
	KindCliff            Kind = "cliff"
	KindQuarry           Kind = "quarry"
	KindGeologicalHazard Kind = "geological_hazard"
)

// Feature is one hazardous natural feature near a queried point. Features
// are transient: fetched per candidate-area query and discarded with the
// search that requested them.
type Feature struct {
	Location geo.Point
	Kind     Kind
}

// Provider queries an external service for hazardous natural features
// within radiusKm of center.
type Provider interface {
	Query(ctx context.Context, center geo.Point, radiusKm float64) ([]Feature, error)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTimeout bounds each provider call. Default 8s: the gate runs inside
// the ring-search loop and must not stall an evacuation evaluation.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.timeout = d }
}

// WithCache enables quantized-area caching of provider results.
func WithCache(c *Cache) GateOption {
	return func(g *Gate) { g.cache = c }
}

// WithBreaker installs a circuit breaker so a repeatedly failing provider
// is skipped immediately instead of burning the timeout per candidate.
func WithBreaker(b *resilience.Breaker) GateOption {
	return func(g *Gate) { g.breaker = b }
}

// Gate wraps a Provider with a per-call timeout, optional circuit breaker,
// optional caching, and fail-open error handling.
type Gate struct {
	provider Provider
	timeout  time.Duration
	breaker  *resilience.Breaker
	cache    *Cache
}

// NewGate creates a fail-open gate over the given provider.
func NewGate(p Provider, opts ...GateOption) *Gate {
	g := &Gate{
		provider: p,
		timeout:  8 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Nearby returns hazardous features within radiusKm of p. Any provider
// failure is logged and swallowed: the caller always gets a usable (possibly
// empty) list. Context cancellation is the one error that propagates, so a
// cancelled evaluation stops instead of continuing on empty data.
func (g *Gate) Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.breaker != nil && g.breaker.Open() {
		zap.L().Debug("feature gate: circuit open, assuming no features",
			zap.Float64("lat", p.Lat),
			zap.Float64("lng", p.Lng),
		)
		return nil, nil
	}

	query := func(ctx context.Context) ([]Feature, error) {
		qctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.provider.Query(qctx, p, radiusKm)
	}

	var feats []Feature
	var err error
	if g.cache != nil {
		feats, err = g.cache.GetOrQuery(ctx, p, radiusKm, query)
	} else {
		feats, err = query(ctx)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if g.breaker != nil {
			g.breaker.RecordFailure()
		}
		zap.L().Warn("feature query failed, failing open",
			zap.Float64("lat", p.Lat),
			zap.Float64("lng", p.Lng),
			zap.Float64("radius_km", radiusKm),
			zap.Error(err),
		)
		return nil, nil
	}

	if g.breaker != nil {
		g.breaker.RecordSuccess()
	}
	return feats, nil
}

// HazardWithin reports whether any hazardous feature lies within
// exclusionKm of p, querying features out to queryRadiusKm. Distances are
// true haversine, not the search's planar approximation.
func (g *Gate) HazardWithin(ctx context.Context, p geo.Point, queryRadiusKm, exclusionKm float64) (bool, error) {
	feats, err := g.Nearby(ctx, p, queryRadiusKm)
	if err != nil {
		return false, err
	}
	for _, f := range feats {
		if geo.DistanceKm(p, f.Location) <= exclusionKm {
			return true, nil
		}
	}
	return false, nil
}
