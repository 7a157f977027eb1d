// Package overpass queries the Overpass API for OpenStreetMap features
// around a point. It backs the online hazardous-feature provider.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slopewatch/evac-cli/internal/feature"
	"github.com/slopewatch/evac-cli/internal/geo"
)

// DefaultBaseURL is the public Overpass API endpoint.
const DefaultBaseURL = "https://overpass-api.de/api/interpreter"

// selectors pairs an OSM tag filter with the feature kind it maps to. The
// same set drives both query construction and response classification.
var selectors = []struct {
	tag   string
	value string
	kind  feature.Kind
}{
	{"natural", "water", feature.KindWater},
	{"natural", "cliff", feature.KindCliff},
	{"landuse", "quarry", feature.KindQuarry},
	{"geological", "hazard", feature.KindGeologicalHazard},
}

// Client queries Overpass. It implements feature.Provider.
type Client struct {
	baseURL    string
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

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit sets the requests-per-second limit. The public instance
// throttles aggressively, so the default is conservative.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewClient creates an Overpass client. An empty baseURL uses the public
// instance.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		userAgent:  "evac-cli/1.0",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query returns hazardous features within radiusKm of center.
func (c *Client) Query(ctx context.Context, center geo.Point, radiusKm float64) ([]feature.Feature, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limiter wait")
	}

	q := buildQuery(center, radiusKm)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(url.Values{"data": {q}}.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: query")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("overpass: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response")
	}

	features, err := parseResponse(body)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("overpass query complete",
		zap.Float64("lat", center.Lat),
		zap.Float64("lng", center.Lng),
		zap.Float64("radius_km", radiusKm),
		zap.Int("features", len(features)),
	)
	return features, nil
}

// buildQuery assembles an Overpass QL union of node and way selectors with
// an around filter. "out center" makes ways report a representative point.
func buildQuery(center geo.Point, radiusKm float64) string {
	radiusM := radiusKm * 1000

	var b strings.Builder
	b.WriteString("[out:json][timeout:25];(")
	for _, s := range selectors {
		for _, elem := range []string{"node", "way"} {
			fmt.Fprintf(&b, `%s[%q=%q](around:%.0f,%.6f,%.6f);`,
				elem, s.tag, s.value, radiusM, center.Lat, center.Lng)
		}
	}
	b.WriteString(");out center;")
	return b.String()
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func parseResponse(body []byte) ([]feature.Feature, error) {
	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}

	features := make([]feature.Feature, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		kind, ok := classify(el.Tags)
		if !ok {
			continue
		}

		loc := geo.Point{Lat: el.Lat, Lng: el.Lon}
		if el.Center != nil {
			loc = geo.Point{Lat: el.Center.Lat, Lng: el.Center.Lon}
		}
		if loc.Validate() != nil {
			continue
		}
		features = append(features, feature.Feature{Location: loc, Kind: kind})
	}
	return features, nil
}

func classify(tags map[string]string) (feature.Kind, bool) {
	for _, s := range selectors {
		if tags[s.tag] == s.value {
			return s.kind, true
		}
	}
	return "", false
}
