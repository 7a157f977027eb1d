// Package osrm is a client for the OSRM routing HTTP API, used to compute
// the evacuation path from the user to the chosen safe zone.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	geopkg "github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/route"
)

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// Client calls the OSRM route service. It implements route.Provider.
type Client struct {
	baseURL    string
	profile    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithProfile sets the routing profile (driving, walking, cycling).
func WithProfile(profile string) Option {
	return func(c *Client) { c.profile = profile }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates an OSRM client. An empty baseURL uses the demo server.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		profile:    "driving",
		userAgent:  "evac-cli/1.0",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry json.RawMessage `json:"geometry"`
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
	} `json:"routes"`
}

// Route computes a path between two points. OSRM addresses coordinates in
// lng,lat order.
func (c *Client) Route(ctx context.Context, origin, dest geopkg.Point) (*route.Path, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osrm: rate limiter wait")
	}

	u := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, c.profile, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: route request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("osrm: unexpected status %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "osrm: unmarshal response")
	}
	if parsed.Code != "Ok" {
		return nil, eris.Errorf("osrm: route failed with code %q", parsed.Code)
	}
	if len(parsed.Routes) == 0 {
		return nil, eris.New("osrm: no routes returned")
	}

	best := parsed.Routes[0]
	polyline, err := decodeLineString(best.Geometry)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("osrm route resolved",
		zap.Float64("distance_m", best.Distance),
		zap.Float64("duration_s", best.Duration),
		zap.Int("points", len(polyline)),
	)
	return &route.Path{
		Polyline:        polyline,
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
	}, nil
}

// decodeLineString parses the route geometry GeoJSON into lat/lng points.
func decodeLineString(raw json.RawMessage) ([]geopkg.Point, error) {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "osrm: decode geometry")
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, eris.Errorf("osrm: unexpected geometry type %T", g)
	}

	coords := ls.Coords()
	points := make([]geopkg.Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, geopkg.Point{Lat: c.Y(), Lng: c.X()})
	}
	return points, nil
}
