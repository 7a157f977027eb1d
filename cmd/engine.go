package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slopewatch/evac-cli/internal/evac"
	"github.com/slopewatch/evac-cli/internal/feature"
	"github.com/slopewatch/evac-cli/internal/hazard"
	"github.com/slopewatch/evac-cli/internal/resilience"
	"github.com/slopewatch/evac-cli/internal/route"
	"github.com/slopewatch/evac-cli/internal/search"
	"github.com/slopewatch/evac-cli/internal/sensor"
	"github.com/slopewatch/evac-cli/pkg/nominatim"
	"github.com/slopewatch/evac-cli/pkg/osrm"
	"github.com/slopewatch/evac-cli/pkg/overpass"
)

// env bundles the wired components a command needs, with a Close that
// releases whatever the chosen configuration opened.
type env struct {
	Engine *evac.Engine
	Source sensor.Source

	closers []func()
}

// Close releases held resources in reverse acquisition order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEnv wires the engine from config: sensor source, feature provider
// with cache and breaker, search profile, router, and geocoder.
func initEnv(ctx context.Context) (*env, error) {
	e := &env{}

	src, err := initSensorSource(ctx, e)
	if err != nil {
		return nil, err
	}
	e.Source = src

	gate, err := initFeatureGate(ctx, e)
	if err != nil {
		e.Close()
		return nil, err
	}

	profile, err := resolveProfile()
	if err != nil {
		e.Close()
		return nil, err
	}

	policy, err := resolvePolicy()
	if err != nil {
		e.Close()
		return nil, err
	}

	router := osrm.NewClient(cfg.OSRM.BaseURL,
		osrm.WithProfile(cfg.OSRM.Profile),
		osrm.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.OSRM.TimeoutSecs) * time.Second}),
	)
	namer := nominatim.NewClient(cfg.Nominatim.BaseURL,
		nominatim.WithUserAgent(cfg.Nominatim.UserAgent),
	)

	e.Engine = evac.New(
		search.New(gate, policy, profile),
		route.NewResolver(router, route.WithPlaceNamer(namer)),
		policy,
	)
	return e, nil
}

func initSensorSource(ctx context.Context, e *env) (sensor.Source, error) {
	switch cfg.Sensors.Driver {
	case "api":
		if cfg.Sensors.Endpoint == "" {
			return nil, eris.New("sensors.endpoint is required for the api driver")
		}
		return sensor.NewAPISource(cfg.Sensors.Endpoint), nil

	case "postgres":
		src, err := sensor.NewPostgres(ctx, cfg.Sensors.DatabaseURL)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, src.Close)
		return src, nil

	case "xlsx":
		if cfg.Sensors.XLSXPath == "" {
			return nil, eris.New("sensors.xlsx_path is required for the xlsx driver")
		}
		return sensor.NewXLSX(cfg.Sensors.XLSXPath, cfg.Sensors.XLSXSheet), nil

	default:
		return nil, eris.Errorf("unknown sensor driver %q", cfg.Sensors.Driver)
	}
}

func initFeatureGate(ctx context.Context, e *env) (*feature.Gate, error) {
	var provider feature.Provider
	if cfg.Overpass.ShapefilePath != "" {
		sp, err := feature.NewShapefileProvider(cfg.Overpass.ShapefilePath)
		if err != nil {
			return nil, err
		}
		provider = sp
		zap.L().Info("using offline shapefile features",
			zap.String("path", cfg.Overpass.ShapefilePath),
			zap.Int("features", sp.Len()),
		)
	} else {
		provider = overpass.NewClient(cfg.Overpass.BaseURL)
	}

	cacheOpts := []feature.CacheOption{
		feature.WithTTL(time.Duration(cfg.Cache.TTLMins) * time.Minute),
	}
	if !cfg.Cache.Disabled && cfg.Cache.Path != "" {
		store, err := feature.NewSQLiteStore(cfg.Cache.Path,
			time.Duration(cfg.Cache.TTLMins)*time.Minute)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = store.Close() })
		if pruned, err := store.Prune(ctx); err == nil && pruned > 0 {
			zap.L().Debug("pruned stale cached features", zap.Int64("rows", pruned))
		}
		cacheOpts = append(cacheOpts, feature.WithPersistentStore(store))
	}

	return feature.NewGate(provider,
		feature.WithTimeout(time.Duration(cfg.Overpass.TimeoutSecs)*time.Second),
		feature.WithCache(feature.NewCache(cacheOpts...)),
		feature.WithBreaker(resilience.NewBreaker("overpass", 5, time.Minute, 2*time.Minute)),
	), nil
}

func resolveProfile() (search.Profile, error) {
	if cfg.Search.ProfilesPath != "" {
		profiles, err := search.LoadProfiles(cfg.Search.ProfilesPath)
		if err != nil {
			return search.Profile{}, err
		}
		if p, ok := profiles[cfg.Search.Profile]; ok {
			return p, nil
		}
	}
	if p, ok := search.Builtin(cfg.Search.Profile); ok {
		return p, nil
	}
	return search.Profile{}, eris.Errorf("unknown search profile %q", cfg.Search.Profile)
}

func resolvePolicy() (hazard.BufferPolicy, error) {
	switch cfg.Search.BufferPolicy {
	case "", "lenient":
		return hazard.LenientBuffer(), nil
	case "aggressive":
		return hazard.AggressiveBuffer(), nil
	default:
		return hazard.BufferPolicy{}, eris.Errorf("unknown buffer policy %q", cfg.Search.BufferPolicy)
	}
}
