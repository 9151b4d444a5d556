package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weathercache/internal/coord"
	"github.com/kjstillabower/weathercache/internal/lifecycle"
	"github.com/kjstillabower/weathercache/internal/models"
	"github.com/kjstillabower/weathercache/internal/service"
	"github.com/kjstillabower/weathercache/internal/store"
	"github.com/kjstillabower/weathercache/internal/strategy"
)

// Canceller is the pending-request surface the handlers expose. Satisfied by
// *coord.Coordinator.
type Canceller interface {
	CancelAll()
	PendingCount() int
}

// HealthConfig holds metadata and probes for the health handler.
type HealthConfig struct {
	Version   string
	StartTime time.Time
	// StorePing, when set, checks store reachability. Used when the backend
	// is redis or memcached.
	StorePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	cache          *store.DomainCache
	engine         *strategy.Engine
	canceller      Canceller
	assetOrigin    string
	healthConfig   *HealthConfig
	logger         *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. assetOrigin is the base URL the asset
// proxy resolves paths against; engine and canceller may be nil in tests.
func NewHandler(
	weatherService *service.WeatherService,
	cache *store.DomainCache,
	engine *strategy.Engine,
	canceller Canceller,
	assetOrigin string,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		cache:          cache,
		engine:         engine,
		canceller:      canceller,
		assetOrigin:    strings.TrimSuffix(assetOrigin, "/"),
		healthConfig:   healthConfig,
		logger:         logger,
	}
}

// GetCurrent handles GET /api/weather/current.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	h.getWeather(w, r, models.KindCurrent)
}

// GetForecast handles GET /api/weather/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	h.getWeather(w, r, models.KindForecast)
}

// getWeather implements the load contract for one snapshot kind: resolve the
// location from the optional lat/lon query pair, fetch-or-fall-back through
// the service, and remember the resolved location for the next session.
func (h *Handler) getWeather(w http.ResponseWriter, r *http.Request, kind models.SnapshotKind) {
	lat, lon, err := parseCoords(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	loc, err := h.weatherService.ResolveLocation(r.Context(), lat, lon)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}

	snap, err := h.weatherService.Load(r.Context(), kind, loc)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	h.weatherService.RememberLocation(r.Context(), loc)
	writeJSON(w, http.StatusOK, snap)
}

// Geocode handles GET /api/geocode?q=city.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "query parameter q is required")
		return
	}
	loc, err := h.weatherService.Geocode(r.Context(), q)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// ListLocations handles GET /api/locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.SavedLocations(r.Context()))
}

// AddLocation handles POST /api/locations. Locations within the duplicate
// tolerance of an existing entry return 409 with the stored entry.
func (h *Handler) AddLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed location body")
		return
	}
	if err := models.ValidateCoordinates(loc.Lat, loc.Lon); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	saved, err := h.cache.AddSavedLocation(r.Context(), loc)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// DeleteLocation handles DELETE /api/locations/{id}.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "location id must be an integer")
		return
	}
	removed, err := h.cache.RemoveSavedLocation(r.Context(), id)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no saved location with id "+strconv.FormatInt(id, 10))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelRequests handles POST /api/requests/cancel. Cancels every pending
// outbound request; callers waiting on them observe a cancellation error.
func (h *Handler) CancelRequests(w http.ResponseWriter, r *http.Request) {
	pending := h.canceller.PendingCount()
	h.canceller.CancelAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cancelled": pending,
	})
}

// GetAsset proxies app shell documents and static assets through the cache
// strategy engine. Offline misses come back as the synthesized 503 payload
// rather than an error.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/assets")
	if path == "" {
		path = "/"
	}
	res, err := h.engine.Do(r.Context(), h.assetOrigin+path)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	if res.FromCache {
		w.Header().Set("X-Served-From", "cache")
	}
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig != nil && h.healthConfig.StorePing != nil {
		if h.healthConfig.StorePing() == nil {
			checks["store"] = "healthy"
		} else {
			checks["store"] = "unhealthy"
		}
	}

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weathercache",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.canceller != nil {
		resp["pendingRequests"] = h.canceller.PendingCount()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.StorePing != nil {
		if err := h.healthConfig.StorePing(); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// parseCoords reads the optional lat/lon query pair. Supplying one without
// the other, or an unparsable value, is invalid input.
func parseCoords(r *http.Request) (*float64, *float64, error) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" && lonStr == "" {
		return nil, nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, nil, fmt.Errorf("%w: lat and lon must be supplied together", coord.ErrInvalidInput)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: lat must be a number", coord.ErrInvalidInput)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: lon must be a number", coord.ErrInvalidInput)
	}
	return &lat, &lon, nil
}
