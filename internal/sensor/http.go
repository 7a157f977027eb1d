package sensor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slopewatch/evac-cli/internal/resilience"
)

// APISource reads sensor records from the relief backend's sensor endpoint.
type APISource struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// APIOption configures an APISource.
type APIOption func(*APISource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) APIOption {
	return func(s *APISource) { s.client = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) APIOption {
	return func(s *APISource) { s.userAgent = ua }
}

// WithRetry overrides the retry configuration.
func WithRetry(cfg resilience.RetryConfig) APIOption {
	return func(s *APISource) { s.retry = cfg }
}

// NewAPISource creates a Source that fetches sensor records over HTTP.
func NewAPISource(endpoint string, opts ...APIOption) *APISource {
	s := &APISource{
		endpoint:  endpoint,
		userAgent: "evac-cli/1.0",
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sensors fetches the current sensor records. Transient upstream failures
// are retried with backoff; a non-transient failure or exhausted retries
// surface as an error since sensor data cannot be substituted.
func (s *APISource) Sensors(ctx context.Context) ([]Record, error) {
	// Copy the config: Sensors may run concurrently and the source must
	// stay read-only after construction.
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("backend", "get_sensor_data")

	records, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]Record, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "sensor: rate limiter wait")
		}
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("fetched sensor records",
		zap.String("endpoint", s.endpoint),
		zap.Int("count", len(records)),
	)
	return records, nil
}

func (s *APISource) fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sensor: create request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sensor: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("sensor: unexpected status %d from %s", resp.StatusCode, s.endpoint)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sensor: read response body")
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, eris.Wrap(err, "sensor: unmarshal response")
	}
	return records, nil
}
