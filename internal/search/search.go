// Package search locates evacuation safe zones with an expanding ring
// search: sample points on widening circles around the user, reject any
// sample inside a hazard's safety buffer or near a hazardous natural
// feature, and keep the closest survivor.
package search

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slopewatch/evac-cli/internal/feature"
	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/hazard"
)

// Candidate is a point believed to be clear of all hazard buffers and
// natural-hazard features, produced and ranked inside one search call.
type Candidate struct {
	Location   geo.Point  `json:"location"`
	DistanceKm float64    `json:"distance_km"`
	Direction  geo.Octant `json:"direction"`

	// Fallback marks the synthesized directional candidate: a point a fixed
	// distance away from the nearest hazard, emitted when every sampled ring
	// point was rejected. It is not re-validated against hazards or
	// features, so it guarantees guidance but not certainty of safety.
	Fallback bool `json:"fallback,omitempty"`
}

// Result holds the search outcome. Best is nil when no candidate exists and
// no fallback could be oriented (no hazards to move away from).
type Result struct {
	Best *Candidate `json:"best,omitempty"`

	// ByOctant keeps the closest accepted candidate per compass direction
	// from the winning ring, for callers that present one option per
	// direction. Best is always the global minimum across octants.
	ByOctant map[geo.Octant]Candidate `json:"by_octant,omitempty"`
}

// Searcher runs ring searches against a hazard list and a feature gate.
type Searcher struct {
	gate    *feature.Gate
	policy  hazard.BufferPolicy
	profile Profile
}

// New creates a Searcher. The gate may be nil, in which case feature
// exclusion is skipped entirely (offline deployments without any feature
// source).
func New(gate *feature.Gate, policy hazard.BufferPolicy, profile Profile) *Searcher {
	return &Searcher{gate: gate, policy: policy, profile: profile.withDefaults()}
}

// Search finds the nearest safe point outside every hazard's safety buffer
// and away from hazardous natural features. Rings widen from
// Profile.RingStartKm to RingMaxKm; the first ring containing an accepted
// candidate wins, and within it the candidate with the lowest true distance
// to the user is chosen (ties broken by scan order). Feature checks within
// one ring run concurrently but the winner is deterministic.
func (s *Searcher) Search(ctx context.Context, user geo.Point, zones []hazard.Zone) (*Result, error) {
	p := s.profile

	log := zap.L().With(
		zap.String("profile", p.Name),
		zap.Int("hazards", len(zones)),
	)

	for radius := p.RingStartKm; radius <= p.RingMaxKm+1e-9; radius += p.RingStepKm {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ring, err := s.scanRing(ctx, user, zones, radius)
		if err != nil {
			return nil, err
		}
		if len(ring) == 0 {
			continue
		}

		result := &Result{ByOctant: make(map[geo.Octant]Candidate, len(ring))}
		for _, c := range ring {
			best, ok := result.ByOctant[c.Direction]
			if !ok || c.DistanceKm < best.DistanceKm {
				result.ByOctant[c.Direction] = c
			}
			if result.Best == nil || c.DistanceKm < result.Best.DistanceKm {
				c := c
				result.Best = &c
			}
		}

		log.Info("safe zone found",
			zap.Float64("ring_km", radius),
			zap.Float64("distance_km", result.Best.DistanceKm),
			zap.String("direction", string(result.Best.Direction)),
			zap.Int("candidates", len(ring)),
		)
		return result, nil
	}

	return s.fallback(user, zones, log)
}

// scanRing samples SampleCount points on one ring and returns those that
// clear every hazard buffer and the feature exclusion. Feature checks are
// dispatched concurrently and joined before returning; acceptance is
// recorded by sample index so the outcome does not depend on completion
// order.
func (s *Searcher) scanRing(ctx context.Context, user geo.Point, zones []hazard.Zone, radiusKm float64) ([]Candidate, error) {
	type sample struct {
		point geo.Point
		angle float64
	}

	samples := make([]sample, 0, s.profile.SampleCount)
	for i := range s.profile.SampleCount {
		angle := float64(i) * 2 * math.Pi / float64(s.profile.SampleCount)
		pt := geo.Offset(user, radiusKm, angle)

		// Buffer rejection uses true distance even though the sample was
		// generated with the planar approximation.
		if s.insideAnyBuffer(pt, zones) {
			continue
		}
		samples = append(samples, sample{point: pt, angle: angle})
	}

	if len(samples) == 0 {
		return nil, nil
	}

	accepted := make([]bool, len(samples))
	if s.gate == nil {
		for i := range accepted {
			accepted[i] = true
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.profile.MaxConcurrentChecks)
		for i, sm := range samples {
			g.Go(func() error {
				hit, err := s.gate.HazardWithin(gctx, sm.point, s.profile.FeatureQueryRadiusKm, s.profile.FeatureExclusionKm)
				if err != nil {
					return err
				}
				accepted[i] = !hit
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var out []Candidate
	for i, sm := range samples {
		if !accepted[i] {
			continue
		}
		out = append(out, Candidate{
			Location:   sm.point,
			DistanceKm: geo.DistanceKm(user, sm.point),
			Direction:  geo.BearingOctant(sm.angle),
		})
	}
	return out, nil
}

func (s *Searcher) insideAnyBuffer(pt geo.Point, zones []hazard.Zone) bool {
	for _, z := range zones {
		if geo.DistanceKm(pt, z.Center) <= s.policy.SafetyBufferKm(z) {
			return true
		}
	}
	return false
}

// fallback synthesizes one candidate directly away from the nearest hazard
// when the ring search is exhausted. The point is not re-checked against
// hazards or features: guaranteed guidance beats a guaranteed empty answer
// when the user is standing inside a hazard buffer.
func (s *Searcher) fallback(user geo.Point, zones []hazard.Zone, log *zap.Logger) (*Result, error) {
	nearest, ok := hazard.Nearest(user, zones)
	if !ok {
		log.Warn("search exhausted with no hazards to orient away from")
		return &Result{}, nil
	}

	angle := user.BearingFrom(nearest.Center)
	pt := geo.Offset(user, s.profile.FallbackDistanceKm, angle)

	c := Candidate{
		Location:   pt,
		DistanceKm: geo.DistanceKm(user, pt),
		Direction:  geo.BearingOctant(angle),
		Fallback:   true,
	}

	log.Warn("no validated safe zone, using directional fallback",
		zap.String("away_from", nearest.Name),
		zap.Float64("distance_km", c.DistanceKm),
		zap.String("direction", string(c.Direction)),
	)
	return &Result{
		Best:     &c,
		ByOctant: map[geo.Octant]Candidate{c.Direction: c},
	}, nil
}
