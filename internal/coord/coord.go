// Package coord issues outbound weather and geocoding requests. It gates
// every call through the local sliding-window limiter, registers a
// cancellation token per request, classifies failures into sentinel errors,
// and schema-validates bodies before handing them back. It never writes to
// any cache; persistence is the caller's concern.
package coord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weathercache/internal/models"
	"github.com/kjstillabower/weathercache/internal/observability"
	"github.com/kjstillabower/weathercache/internal/ratelimit"
)

// MaxCityNameLength bounds geocoding queries.
const MaxCityNameLength = 100

// Admitter is the outbound rate-limit gate. Satisfied by *ratelimit.Limiter.
type Admitter interface {
	Admit(now time.Time) bool
}

// Coordinator issues outbound HTTP calls with rate limiting and cancellation.
type Coordinator struct {
	apiKey      string
	weatherBase string
	geoBase     string
	timeout     time.Duration
	client      *http.Client
	limiter     Admitter
	logger      *zap.Logger

	pending *pendingSet
}

// New creates a Coordinator. weatherBase and geoBase are the API roots
// (e.g. https://api.openweathermap.org/data/2.5 and .../geo/1.0).
func New(apiKey, weatherBase, geoBase string, timeout time.Duration, limiter Admitter, logger *zap.Logger) (*Coordinator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrAuth)
	}
	if limiter == nil {
		limiter = ratelimit.New(30, time.Minute)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		apiKey:      apiKey,
		weatherBase: strings.TrimRight(weatherBase, "/"),
		geoBase:     strings.TrimRight(geoBase, "/"),
		timeout:     timeout,
		client:      &http.Client{Timeout: timeout},
		limiter:     limiter,
		logger:      logger,
		pending:     newPendingSet(),
	}, nil
}

// FetchWeather retrieves the raw validated payload for the given kind at the
// coordinates. The payload is returned as fetched; the caller decides whether
// to persist it.
func (c *Coordinator) FetchWeather(ctx context.Context, lat, lon float64, kind models.SnapshotKind) (json.RawMessage, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown snapshot kind %q", ErrInvalidInput, kind)
	}
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	endpoint := "weather"
	if kind == models.KindForecast {
		endpoint = "forecast"
	}
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))
	params.Set("units", "metric")

	body, err := c.call(ctx, endpoint, c.weatherBase+"/"+endpoint, params)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(body, kind); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return body, nil
}

// GeocodeCity resolves a city name to a Location. A non-match is ErrNotFound.
func (c *Coordinator) GeocodeCity(ctx context.Context, name string) (models.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Location{}, fmt.Errorf("%w: city name is required", ErrInvalidInput)
	}
	if len([]rune(name)) > MaxCityNameLength {
		return models.Location{}, fmt.Errorf("%w: city name exceeds %d characters", ErrInvalidInput, MaxCityNameLength)
	}

	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", "1")

	body, err := c.call(ctx, "geocode", c.geoBase+"/direct", params)
	if err != nil {
		return models.Location{}, err
	}
	return parseGeoResult(body)
}

// ReverseGeocode resolves coordinates to the nearest named place.
func (c *Coordinator) ReverseGeocode(ctx context.Context, lat, lon float64) (models.Location, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return models.Location{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))
	params.Set("limit", "1")

	body, err := c.call(ctx, "reverse_geocode", c.geoBase+"/reverse", params)
	if err != nil {
		return models.Location{}, err
	}
	loc, err := parseGeoResult(body)
	if err != nil {
		return models.Location{}, err
	}
	loc.IsCurrentLocation = true
	return loc, nil
}

// Cancel aborts the pending request with the given id, if still in flight.
// Returns true if a request was cancelled.
func (c *Coordinator) Cancel(id string) bool {
	return c.pending.cancel(id)
}

// CancelAll aborts every pending request. Idempotent; safe with zero pending.
// Cancelled requests surface ErrCancelled to their callers and therefore
// never reach a cache write.
func (c *Coordinator) CancelAll() {
	n := c.pending.cancelAll()
	if n > 0 {
		c.logger.Info("cancelled pending requests", zap.Int("count", n))
	}
}

// PendingCount returns the number of requests currently in flight.
func (c *Coordinator) PendingCount() int {
	return c.pending.len()
}

// call gates the request through the limiter, executes it with a registered
// cancellation token, classifies the outcome, and returns the raw body.
func (c *Coordinator) call(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	if !c.limiter.Admit(time.Now()) {
		observability.RateLimitDeniedTotal.Inc()
		c.logger.Debug("local rate limit denied", zap.String("endpoint", endpoint))
		return nil, fmt.Errorf("%w: local request budget exhausted", ErrRateLimited)
	}

	params.Set("appid", c.apiKey)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid API URL: %v", ErrUpstream, err)
	}
	u.RawQuery = params.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	id := uuid.New().String()
	c.pending.add(id, cancel)
	observability.RequestsInFlight.Inc()
	defer func() {
		c.pending.remove(id)
		observability.RequestsInFlight.Dec()
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.APICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.APICallDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if reqCtx.Err() != nil && errors.Is(reqCtx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrCancelled, endpoint)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: request timeout: %v", ErrUpstream, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.APICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.APICallDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := classifyStatus(resp); err != nil {
		c.logger.Debug("api call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if reqCtx.Err() != nil && errors.Is(reqCtx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrCancelled, endpoint)
		}
		return nil, fmt.Errorf("%w: read response body: %v", ErrUpstream, err)
	}
	return body, nil
}

// classifyStatus maps a non-2xx response to its sentinel error. The upstream
// error message is extracted best-effort from the body.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: key rejected by upstream", ErrAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: upstream throttled the request", ErrRateLimited)
	}
	msg := extractUpstreamMessage(resp.Body)
	if msg != "" {
		return fmt.Errorf("%w: HTTP %d: %s", ErrUpstream, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
}

// extractUpstreamMessage pulls the provider's error message field from a
// failure body. Anything unparseable yields an empty string.
func extractUpstreamMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
