// Package evac is the evacuation orchestrator: it takes a user position and
// the raw sensor feed, decides whether the user is endangered, and if so
// drives the safe-zone search and route resolution to one presentation-ready
// decision. Each evaluation is independent and owns all of its state; the
// engine retains nothing between calls.
package evac

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/hazard"
	"github.com/slopewatch/evac-cli/internal/route"
	"github.com/slopewatch/evac-cli/internal/search"
	"github.com/slopewatch/evac-cli/internal/sensor"
)

// Narrative identifies the terminal outcome of an evaluation. The caller's
// presentation layer maps it to user-facing messaging; the engine itself
// never formats advisory text.
type Narrative string

// Terminal narratives.
const (
	// NarrativeSafe: no active warning or alert sensors at all.
	NarrativeSafe Narrative = "safe"
	// NarrativeNoHazardNearby: hazards exist but the user is outside every
	// safety buffer.
	NarrativeNoHazardNearby Narrative = "no_hazard_nearby"
	// NarrativeRouteFound: evacuation route resolved within walking range.
	NarrativeRouteFound Narrative = "route_found"
	// NarrativeRouteFoundFar: route resolved but long; caller should offer
	// shelter-in-place alternatives.
	NarrativeRouteFoundFar Narrative = "route_found_far"
	// NarrativeNoSafeZoneFound: search exhausted with nothing to offer.
	NarrativeNoSafeZoneFound Narrative = "no_safe_zone_found"
	// NarrativeRouteLookupFailed: a zone was chosen but routing failed; the
	// caller should advise caution rather than a path.
	NarrativeRouteLookupFailed Narrative = "route_lookup_failed"
)

// Decision is the sole output of an evaluation, consumed read-only by the
// presentation layer.
type Decision struct {
	EvaluationID string            `json:"evaluation_id"`
	Safe         bool              `json:"safe"`
	Narrative    Narrative         `json:"narrative"`
	Severity     hazard.Severity   `json:"severity,omitempty"`
	Zone         *search.Candidate `json:"zone,omitempty"`
	Route        *route.Result     `json:"route,omitempty"`
	PlaceName    string            `json:"place_name,omitempty"`
}

// Engine composes the hazard model, safe-zone search, and route resolver.
type Engine struct {
	searcher *search.Searcher
	resolver *route.Resolver
	policy   hazard.BufferPolicy
}

// New creates an evacuation engine.
func New(searcher *search.Searcher, resolver *route.Resolver, policy hazard.BufferPolicy) *Engine {
	return &Engine{
		searcher: searcher,
		resolver: resolver,
		policy:   policy,
	}
}

// Evaluate runs one evacuation evaluation. The flow is a straight state
// machine: evaluate endangerment, then search, then route, with every
// terminal state mapping to exactly one narrative. A cancelled context
// aborts with an error and no decision.
func (e *Engine) Evaluate(ctx context.Context, user geo.Point, records []sensor.Record) (*Decision, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := zap.L().With(
		zap.String("evaluation_id", id),
		zap.Float64("lat", user.Lat),
		zap.Float64("lng", user.Lng),
	)

	zones := hazard.FromSensors(records)
	if len(zones) == 0 {
		log.Info("no active hazards")
		return &Decision{
			EvaluationID: id,
			Safe:         true,
			Narrative:    NarrativeSafe,
		}, nil
	}

	if !hazard.Endangered(user, zones, e.policy) {
		log.Info("user outside all safety buffers", zap.Int("zones", len(zones)))
		return &Decision{
			EvaluationID: id,
			Safe:         true,
			Narrative:    NarrativeNoHazardNearby,
		}, nil
	}

	severity := worstSeverity(user, zones, e.policy)
	log.Warn("user endangered, searching for safe zone",
		zap.Int("zones", len(zones)),
		zap.String("severity", string(severity)),
	)

	found, err := e.searcher.Search(ctx, user, zones)
	if err != nil {
		return nil, err
	}
	if found.Best == nil {
		log.Error("no safe zone found and no fallback available")
		return &Decision{
			EvaluationID: id,
			Safe:         false,
			Narrative:    NarrativeNoSafeZoneFound,
			Severity:     severity,
		}, nil
	}

	decision := &Decision{
		EvaluationID: id,
		Safe:         false,
		Severity:     severity,
		Zone:         found.Best,
	}

	resolved, err := e.resolver.Resolve(ctx, user, found.Best.Location)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("route lookup failed", zap.Error(err))
		decision.Narrative = NarrativeRouteLookupFailed
		return decision, nil
	}

	decision.Route = resolved
	decision.PlaceName = e.resolver.PlaceName(ctx, found.Best.Location)
	if resolved.Classification == route.Far {
		decision.Narrative = NarrativeRouteFoundFar
	} else {
		decision.Narrative = NarrativeRouteFound
	}

	log.Info("evacuation route resolved",
		zap.Float64("route_km", resolved.DistanceKm),
		zap.Int("eta_minutes", resolved.DurationMinutes),
		zap.String("narrative", string(decision.Narrative)),
	)
	return decision, nil
}

// worstSeverity returns the severity of the most urgent zone whose buffer
// contains the user: Alert outranks Warning.
func worstSeverity(user geo.Point, zones []hazard.Zone, policy hazard.BufferPolicy) hazard.Severity {
	worst := hazard.SeverityWarning
	for _, z := range zones {
		if geo.DistanceKm(user, z.Center) <= policy.SafetyBufferKm(z) && z.Severity == hazard.SeverityAlert {
			worst = hazard.SeverityAlert
		}
	}
	return worst
}
