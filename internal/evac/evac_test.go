package evac

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopewatch/evac-cli/internal/feature"
	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/hazard"
	"github.com/slopewatch/evac-cli/internal/route"
	"github.com/slopewatch/evac-cli/internal/search"
	"github.com/slopewatch/evac-cli/internal/sensor"
)

// emptyFeatures is a Provider that reports a clear landscape.
type emptyFeatures struct {
	mu    sync.Mutex
	calls int
}

func (p *emptyFeatures) Query(context.Context, geo.Point, float64) ([]feature.Feature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil, nil
}

func (p *emptyFeatures) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// stubRouter returns a fixed path or error and counts calls.
type stubRouter struct {
	mu     sync.Mutex
	calls  int
	meters float64
	secs   float64
	err    error
}

func (r *stubRouter) Route(_ context.Context, origin, dest geo.Point) (*route.Path, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &route.Path{
		Polyline:        []geo.Point{origin, dest},
		DistanceMeters:  r.meters,
		DurationSeconds: r.secs,
	}, nil
}

func (r *stubRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// wideProfile reaches past the 7.5 km buffer the scenario sensors produce.
func wideProfile() search.Profile {
	p := search.Fine()
	p.RingMaxKm = 12
	return p
}

func alertSensor() sensor.Record {
	return sensor.Record{
		Name:                 "ridge-7",
		Status:               sensor.StatusAlert,
		OperationalStatus:    sensor.OperationalActive,
		Latitude:             10.01,
		Longitude:            76.01,
		AffectedRadiusMeters: 5000,
	}
}

func newEngine(feats feature.Provider, router route.Provider, profile search.Profile) *Engine {
	policy := hazard.LenientBuffer()
	var gate *feature.Gate
	if feats != nil {
		gate = feature.NewGate(feats)
	}
	return New(
		search.New(gate, policy, profile),
		route.NewResolver(router),
		policy,
	)
}

func TestEvaluate_EmptySensorListIsSafe(t *testing.T) {
	t.Parallel()
	feats := &emptyFeatures{}
	router := &stubRouter{meters: 2000, secs: 300}
	eng := newEngine(feats, router, wideProfile())

	d, err := eng.Evaluate(context.Background(), geo.Point{Lat: 10, Lng: 76}, nil)
	require.NoError(t, err)
	assert.True(t, d.Safe)
	assert.Equal(t, NarrativeSafe, d.Narrative)
	assert.Nil(t, d.Zone)
	assert.Nil(t, d.Route)

	// No hazards means no search and no routing calls at all.
	assert.Zero(t, feats.callCount())
	assert.Zero(t, router.callCount())
}

func TestEvaluate_InactiveAlertSensorIsNotAHazard(t *testing.T) {
	t.Parallel()
	router := &stubRouter{meters: 2000, secs: 300}
	eng := newEngine(&emptyFeatures{}, router, wideProfile())

	rec := alertSensor()
	rec.OperationalStatus = "Maintenance"

	d, err := eng.Evaluate(context.Background(), geo.Point{Lat: 10, Lng: 76}, []sensor.Record{rec})
	require.NoError(t, err)
	assert.True(t, d.Safe)
	assert.Equal(t, NarrativeSafe, d.Narrative)
	assert.Zero(t, router.callCount())
}

func TestEvaluate_UserOutsideBuffersSkipsSearch(t *testing.T) {
	t.Parallel()
	feats := &emptyFeatures{}
	router := &stubRouter{meters: 2000, secs: 300}
	eng := newEngine(feats, router, wideProfile())

	// 7.5 km buffer; the user stands roughly 110 km away.
	d, err := eng.Evaluate(context.Background(), geo.Point{Lat: 11, Lng: 76}, []sensor.Record{alertSensor()})
	require.NoError(t, err)
	assert.True(t, d.Safe)
	assert.Equal(t, NarrativeNoHazardNearby, d.Narrative)
	assert.Zero(t, feats.callCount())
	assert.Zero(t, router.callCount())
}

func TestEvaluate_EndToEnd_RouteFound(t *testing.T) {
	t.Parallel()
	user := geo.Point{Lat: 10.0, Lng: 76.0}
	eng := newEngine(&emptyFeatures{}, &stubRouter{meters: 2000, secs: 300}, wideProfile())

	d, err := eng.Evaluate(context.Background(), user, []sensor.Record{alertSensor()})
	require.NoError(t, err)

	assert.False(t, d.Safe)
	assert.Equal(t, NarrativeRouteFound, d.Narrative)
	assert.Equal(t, hazard.SeverityAlert, d.Severity)
	require.NotNil(t, d.Zone)
	assert.False(t, d.Zone.Fallback)

	// The chosen zone clears the 7.5 km safety buffer around the sensor.
	hzCenter := geo.Point{Lat: 10.01, Lng: 76.01}
	assert.Greater(t, geo.DistanceKm(d.Zone.Location, hzCenter), 7.5)

	require.NotNil(t, d.Route)
	assert.Equal(t, 2.0, d.Route.DistanceKm)
	assert.Equal(t, 5, d.Route.DurationMinutes)
	assert.Equal(t, route.DefaultPlaceName, d.PlaceName)
	assert.NotEmpty(t, d.EvaluationID)
}

func TestEvaluate_EndToEnd_RouteFoundFar(t *testing.T) {
	t.Parallel()
	eng := newEngine(&emptyFeatures{}, &stubRouter{meters: 4500, secs: 1200}, wideProfile())

	d, err := eng.Evaluate(context.Background(), geo.Point{Lat: 10, Lng: 76}, []sensor.Record{alertSensor()})
	require.NoError(t, err)
	assert.Equal(t, NarrativeRouteFoundFar, d.Narrative)
	require.NotNil(t, d.Route)
	assert.Equal(t, route.Far, d.Route.Classification)
}

func TestEvaluate_RoutingFailureIsIsolated(t *testing.T) {
	t.Parallel()
	eng := newEngine(&emptyFeatures{}, &stubRouter{err: errors.New("osrm unreachable")}, wideProfile())

	d, err := eng.Evaluate(context.Background(), geo.Point{Lat: 10, Lng: 76}, []sensor.Record{alertSensor()})
	require.NoError(t, err, "routing errors must not escape the orchestrator")
	assert.False(t, d.Safe)
	assert.Equal(t, NarrativeRouteLookupFailed, d.Narrative)
	require.NotNil(t, d.Zone, "the chosen zone is still reported without a route")
	assert.Nil(t, d.Route)
}

// floodedProvider reports a hazard feature at every queried point.
type floodedProvider struct{}

func (floodedProvider) Query(_ context.Context, center geo.Point, _ float64) ([]feature.Feature, error) {
	return []feature.Feature{{Location: center, Kind: feature.KindWater}}, nil
}

func TestEvaluate_UnsearchableRegionYieldsFallbackGuidance(t *testing.T) {
	t.Parallel()
	eng := newEngine(floodedProvider{}, &stubRouter{meters: 2500, secs: 400}, wideProfile())

	d, err := eng.Evaluate(context.Background(), geo.Point{Lat: 10, Lng: 76}, []sensor.Record{alertSensor()})
	require.NoError(t, err)
	require.NotNil(t, d.Zone)
	assert.True(t, d.Zone.Fallback)
	assert.Equal(t, NarrativeRouteFound, d.Narrative)
}

func TestEvaluate_InvalidCoordinatesRejected(t *testing.T) {
	t.Parallel()
	eng := newEngine(&emptyFeatures{}, &stubRouter{}, wideProfile())

	_, err := eng.Evaluate(context.Background(), geo.Point{Lat: math.NaN(), Lng: 76}, nil)
	require.Error(t, err)

	_, err = eng.Evaluate(context.Background(), geo.Point{Lat: 95, Lng: 76}, nil)
	require.Error(t, err)
}

func TestEvaluate_CancelledContextProducesNoDecision(t *testing.T) {
	t.Parallel()
	eng := newEngine(&emptyFeatures{}, &stubRouter{meters: 2000, secs: 300}, wideProfile())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := eng.Evaluate(ctx, geo.Point{Lat: 10, Lng: 76}, []sensor.Record{alertSensor()})
	require.Error(t, err)
	assert.Nil(t, d)
}

func TestEvaluate_LargerRadiusNeverMakesUserSafer(t *testing.T) {
	t.Parallel()
	user := geo.Point{Lat: 10.0, Lng: 76.0}
	policy := hazard.LenientBuffer()

	rec := alertSensor()
	for radius := rec.AffectedRadiusMeters; radius <= 50000; radius += 5000 {
		rec.AffectedRadiusMeters = radius
		zones := hazard.FromSensors([]sensor.Record{rec})
		assert.True(t, hazard.Endangered(user, zones, policy),
			"radius %v m should keep the user endangered", radius)
	}
}

func TestWorstSeverity(t *testing.T) {
	t.Parallel()
	user := geo.Point{Lat: 10, Lng: 76}
	policy := hazard.LenientBuffer()

	warning := hazard.Zone{
		Center:               geo.Point{Lat: 10.01, Lng: 76.01},
		AffectedRadiusMeters: 5000,
		Severity:             hazard.SeverityWarning,
	}
	alert := warning
	alert.Severity = hazard.SeverityAlert

	assert.Equal(t, hazard.SeverityWarning, worstSeverity(user, []hazard.Zone{warning}, policy))
	assert.Equal(t, hazard.SeverityAlert, worstSeverity(user, []hazard.Zone{warning, alert}, policy))
}
