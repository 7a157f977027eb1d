// Package nominatim reverse-geocodes safe-zone coordinates into place names
// via the OpenStreetMap Nominatim service.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/slopewatch/evac-cli/internal/geo"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client reverse-geocodes coordinates. It implements route.PlaceNamer.
// The public instance's usage policy requires an identifying User-Agent
// and at most one request per second.
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

// NewClient creates a Nominatim client. An empty baseURL uses the public
// instance.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		userAgent:  "evac-cli/1.0",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// ReverseGeocode returns the display name for a point. Place names in the
// region mix scripts and composed characters, so the result is normalized
// to NFC before use.
func (c *Client) ReverseGeocode(ctx context.Context, p geo.Point) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "nominatim: rate limiter wait")
	}

	u := fmt.Sprintf("%s/reverse?format=json&lat=%f&lon=%f", c.baseURL, p.Lat, p.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", eris.Wrap(err, "nominatim: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "nominatim: reverse geocode")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("nominatim: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "nominatim: read response")
	}

	var parsed reverseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "nominatim: unmarshal response")
	}
	if parsed.Error != "" {
		return "", eris.Errorf("nominatim: %s", parsed.Error)
	}

	name := strings.TrimSpace(norm.NFC.String(parsed.DisplayName))
	if name == "" {
		return "", eris.New("nominatim: empty display name")
	}
	return name, nil
}
