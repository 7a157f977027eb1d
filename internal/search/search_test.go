package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopewatch/evac-cli/internal/feature"
	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/hazard"
)

// featStub implements feature.Provider with a fixed response.
type featStub struct {
	mu    sync.Mutex
	calls int
	feats []feature.Feature
	err   error
}

func (f *featStub) Query(_ context.Context, _ geo.Point, _ float64) ([]feature.Feature, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.feats, f.err
}

func emptyGate() *feature.Gate {
	return feature.NewGate(&featStub{})
}

func testZones() []hazard.Zone {
	return []hazard.Zone{{
		Name:                 "ridge-7",
		Center:               geo.Point{Lat: 10.01, Lng: 76.01},
		AffectedRadiusMeters: 5000,
		Severity:             hazard.SeverityAlert,
	}}
}

func TestSearch_EveryCandidateClearsBuffers(t *testing.T) {
	t.Parallel()
	user := geo.Point{Lat: 10.0, Lng: 76.0}
	zones := testZones()
	policy := hazard.LenientBuffer() // buffer = 7.5 km

	s := New(emptyGate(), policy, Coarse())
	res, err := s.Search(context.Background(), user, zones)
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.False(t, res.Best.Fallback)

	for _, c := range res.ByOctant {
		for _, z := range zones {
			d := geo.DistanceKm(c.Location, z.Center)
			assert.Greater(t, d, policy.SafetyBufferKm(z),
				"candidate %+v inside buffer of %s", c, z.Name)
		}
	}
}

func TestSearch_BestIsGlobalMinimumAcrossOctants(t *testing.T) {
	t.Parallel()
	s := New(emptyGate(), hazard.LenientBuffer(), Coarse())
	res, err := s.Search(context.Background(), geo.Point{Lat: 10.0, Lng: 76.0}, testZones())
	require.NoError(t, err)
	require.NotNil(t, res.Best)

	for _, c := range res.ByOctant {
		assert.GreaterOrEqual(t, c.DistanceKm, res.Best.DistanceKm)
	}
}

func TestSearch_FeatureExclusionForcesFallback(t *testing.T) {
	t.Parallel()
	// The provider reports a water body on top of every queried point, so
	// no sampled candidate can ever be accepted.
	drowned := &featStub{}
	gate := feature.NewGate(&wrapProvider{inner: drowned})

	s := New(gate, hazard.LenientBuffer(), Fine())
	res, err := s.Search(context.Background(), geo.Point{Lat: 10.0, Lng: 76.0}, testZones())
	require.NoError(t, err)

	require.NotNil(t, res.Best, "fallback candidate expected, not an empty result")
	assert.True(t, res.Best.Fallback)
	assert.InDelta(t, 3.0, res.Best.DistanceKm, 0.2)
}

// wrapProvider returns a feature at the queried center itself.
type wrapProvider struct {
	inner *featStub
}

func (w *wrapProvider) Query(ctx context.Context, center geo.Point, r float64) ([]feature.Feature, error) {
	_, _ = w.inner.Query(ctx, center, r)
	return []feature.Feature{{Location: center, Kind: feature.KindWater}}, nil
}

func TestSearch_FallbackPointsAwayFromNearestHazard(t *testing.T) {
	t.Parallel()
	user := geo.Point{Lat: 10.0, Lng: 76.0}
	// Hazard due south of the user; fallback must head north.
	zones := []hazard.Zone{{
		Name:                 "south-slope",
		Center:               geo.Point{Lat: 9.9, Lng: 76.0},
		AffectedRadiusMeters: 2000,
		Severity:             hazard.SeverityWarning,
	}}

	gate := feature.NewGate(&wrapProvider{inner: &featStub{}})
	s := New(gate, hazard.LenientBuffer(), Fine())

	res, err := s.Search(context.Background(), user, zones)
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.True(t, res.Best.Fallback)
	assert.Equal(t, geo.North, res.Best.Direction)
	assert.Greater(t, res.Best.Location.Lat, user.Lat)
}

func TestSearch_NoHazardsNoFallback(t *testing.T) {
	t.Parallel()
	gate := feature.NewGate(&wrapProvider{inner: &featStub{}})
	s := New(gate, hazard.LenientBuffer(), Fine())

	res, err := s.Search(context.Background(), geo.Point{Lat: 10, Lng: 76}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Best)
	assert.Empty(t, res.ByOctant)
}

func TestSearch_ProviderErrorFailsOpen(t *testing.T) {
	t.Parallel()
	// A broken feature service must not block the search (fail open).
	gate := feature.NewGate(&featStub{err: errors.New("overpass 504")})
	s := New(gate, hazard.LenientBuffer(), Coarse())

	res, err := s.Search(context.Background(), geo.Point{Lat: 10.0, Lng: 76.0}, testZones())
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.False(t, res.Best.Fallback)
}

func TestSearch_NilGateSkipsFeatureChecks(t *testing.T) {
	t.Parallel()
	s := New(nil, hazard.LenientBuffer(), Coarse())
	res, err := s.Search(context.Background(), geo.Point{Lat: 10.0, Lng: 76.0}, testZones())
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.False(t, res.Best.Fallback)
}

func TestSearch_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(emptyGate(), hazard.LenientBuffer(), Fine())
	_, err := s.Search(ctx, geo.Point{Lat: 10.0, Lng: 76.0}, testZones())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_DeterministicAcrossRuns(t *testing.T) {
	t.Parallel()
	user := geo.Point{Lat: 10.0, Lng: 76.0}
	zones := testZones()

	s := New(emptyGate(), hazard.LenientBuffer(), Coarse())
	first, err := s.Search(context.Background(), user, zones)
	require.NoError(t, err)
	require.NotNil(t, first.Best)

	// Concurrent feature checks must not change which candidate wins.
	for range 5 {
		res, err := s.Search(context.Background(), user, zones)
		require.NoError(t, err)
		require.NotNil(t, res.Best)
		assert.Equal(t, first.Best.Location, res.Best.Location)
		assert.Equal(t, first.Best.Direction, res.Best.Direction)
	}
}

func TestProfile_Builtin(t *testing.T) {
	t.Parallel()
	p, ok := Builtin("")
	assert.True(t, ok)
	assert.Equal(t, "fine", p.Name)

	p, ok = Builtin("coarse")
	assert.True(t, ok)
	assert.Equal(t, 100.0, p.RingMaxKm)

	_, ok = Builtin("nope")
	assert.False(t, ok)
}

func TestProfile_Defaults(t *testing.T) {
	t.Parallel()
	p := Profile{Name: "sparse", RingStartKm: 2}.withDefaults()
	assert.Equal(t, 2.0, p.RingStartKm)
	assert.Equal(t, Fine().SampleCount, p.SampleCount)
	// An unset max scales with the start radius (5x, matching fine's ratio).
	assert.Equal(t, 10.0, p.RingMaxKm)
	assert.Positive(t, p.MaxConcurrentChecks)
}

func TestLoadProfiles_WideStartKeepsRingsWalkable(t *testing.T) {
	t.Parallel()
	path := writeTempProfiles(t, `
profiles:
  - name: regional
    ring_start_km: 10
`)
	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Contains(t, profiles, "regional")

	p := profiles["regional"]
	assert.Equal(t, 10.0, p.RingStartKm)
	assert.GreaterOrEqual(t, p.RingMaxKm, p.RingStartKm)
	assert.Equal(t, 50.0, p.RingMaxKm)
}

func TestLoadProfiles(t *testing.T) {
	t.Parallel()
	path := writeTempProfiles(t, `
profiles:
  - name: valley
    ring_start_km: 2
    ring_step_km: 1
    ring_max_km: 20
    sample_count: 12
`)
	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Contains(t, profiles, "valley")

	p := profiles["valley"]
	assert.Equal(t, 20.0, p.RingMaxKm)
	assert.Equal(t, 12, p.SampleCount)
	// Unspecified knobs inherit the fine defaults.
	assert.Equal(t, Fine().FeatureExclusionKm, p.FeatureExclusionKm)
}

func TestLoadProfiles_RejectsUnnamed(t *testing.T) {
	t.Parallel()
	path := writeTempProfiles(t, `
profiles:
  - ring_start_km: 2
`)
	_, err := LoadProfiles(path)
	require.Error(t, err)
}

func writeTempProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
