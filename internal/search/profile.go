package search

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile holds the ring-search tuning constants. Two deployment variants
// shipped historically with hard-coded numbers; they are now data, and extra
// profiles can be loaded from YAML.
type Profile struct {
	Name string `yaml:"name"`

	// RingStartKm is the radius of the first sampling ring.
	RingStartKm float64 `yaml:"ring_start_km"`
	// RingStepKm widens the ring between passes.
	RingStepKm float64 `yaml:"ring_step_km"`
	// RingMaxKm caps the search; beyond it the directional fallback applies.
	RingMaxKm float64 `yaml:"ring_max_km"`
	// SampleCount is the number of evenly spaced angles per ring.
	SampleCount int `yaml:"sample_count"`

	// FeatureQueryRadiusKm is how far around a candidate the feature service
	// is asked for hazards.
	FeatureQueryRadiusKm float64 `yaml:"feature_query_radius_km"`
	// FeatureExclusionKm rejects candidates with a hazardous feature within
	// this distance.
	FeatureExclusionKm float64 `yaml:"feature_exclusion_km"`

	// FallbackDistanceKm is how far the synthesized away-from-hazard
	// candidate is placed when the search is exhausted.
	FallbackDistanceKm float64 `yaml:"fallback_distance_km"`

	// MaxConcurrentChecks bounds in-flight feature queries per ring.
	MaxConcurrentChecks int `yaml:"max_concurrent_checks"`
}

// Fine is the default profile: dense sampling over short distances, suited
// to urban evacuation where the nearest clear street corner matters.
func Fine() Profile {
	return Profile{
		Name:                 "fine",
		RingStartKm:          1.0,
		RingStepKm:           0.5,
		RingMaxKm:            5.0,
		SampleCount:          16,
		FeatureQueryRadiusKm: 5.0,
		FeatureExclusionKm:   1.0,
		FallbackDistanceKm:   3.0,
		MaxConcurrentChecks:  4,
	}
}

// Coarse covers wide rural regions: sparse samples on rings from 25 km out
// to 100 km, paired with the aggressive buffer policy.
func Coarse() Profile {
	return Profile{
		Name:                 "coarse",
		RingStartKm:          25.0,
		RingStepKm:           5.0,
		RingMaxKm:            100.0,
		SampleCount:          8,
		FeatureQueryRadiusKm: 20.0,
		FeatureExclusionKm:   1.0,
		FallbackDistanceKm:   3.0,
		MaxConcurrentChecks:  4,
	}
}

// Builtin returns the named built-in profile, or ok=false.
func Builtin(name string) (Profile, bool) {
	switch name {
	case "", "fine":
		return Fine(), true
	case "coarse":
		return Coarse(), true
	default:
		return Profile{}, false
	}
}

// LoadProfiles reads additional named profiles from a YAML file. Missing
// tuning values fall back to the fine profile's defaults.
func LoadProfiles(path string) (map[string]Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profiles: read %s", path)
	}

	var doc struct {
		Profiles []Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "profiles: parse %s", path)
	}

	out := make(map[string]Profile, len(doc.Profiles))
	for _, p := range doc.Profiles {
		if p.Name == "" {
			return nil, eris.Errorf("profiles: unnamed profile in %s", path)
		}
		out[p.Name] = p.withDefaults()
	}
	return out, nil
}

func (p Profile) withDefaults() Profile {
	def := Fine()
	if p.RingStartKm <= 0 {
		p.RingStartKm = def.RingStartKm
	}
	if p.RingStepKm <= 0 {
		p.RingStepKm = def.RingStepKm
	}
	if p.RingMaxKm < p.RingStartKm {
		// Scale from the start radius so a profile that only widens
		// ring_start_km still gets rings to walk. Fine's default would
		// sit below a start past 5 km and the loop would never run.
		p.RingMaxKm = p.RingStartKm * (def.RingMaxKm / def.RingStartKm)
	}
	if p.SampleCount <= 0 {
		p.SampleCount = def.SampleCount
	}
	if p.FeatureQueryRadiusKm <= 0 {
		p.FeatureQueryRadiusKm = def.FeatureQueryRadiusKm
	}
	if p.FeatureExclusionKm <= 0 {
		p.FeatureExclusionKm = def.FeatureExclusionKm
	}
	if p.FallbackDistanceKm <= 0 {
		p.FallbackDistanceKm = def.FallbackDistanceKm
	}
	if p.MaxConcurrentChecks <= 0 {
		p.MaxConcurrentChecks = def.MaxConcurrentChecks
	}
	return p
}
