// Package service orchestrates the view "load" contract: resolve a location,
// fetch through the request coordinator, persist on success, and fall back to
// the last fresh snapshot when the upstream is unreachable.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weathercache/internal/coord"
	"github.com/kjstillabower/weathercache/internal/models"
	"github.com/kjstillabower/weathercache/internal/observability"
	"github.com/kjstillabower/weathercache/internal/store"
)

// Fetcher is the coordinator surface the service depends on. Satisfied by
// *coord.Coordinator.
type Fetcher interface {
	FetchWeather(ctx context.Context, lat, lon float64, kind models.SnapshotKind) (json.RawMessage, error)
	GeocodeCity(ctx context.Context, name string) (models.Location, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (models.Location, error)
}

// WeatherService implements the load flow for the weather views.
type WeatherService struct {
	fetcher         Fetcher
	cache           *store.DomainCache
	defaultLocation models.Location
	logger          *zap.Logger
}

// NewWeatherService creates a WeatherService. defaultLocation is the place
// shown when nothing is stored and no coordinates are supplied.
func NewWeatherService(fetcher Fetcher, cache *store.DomainCache, defaultLocation models.Location, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		fetcher:         fetcher,
		cache:           cache,
		defaultLocation: defaultLocation,
		logger:          logger,
	}
}

// Load fetches the snapshot kind for loc and persists it. On a classified
// upstream failure it serves the cached snapshot if still inside its max-age
// window, marked stale. Invalid input and cancellation never fall back.
func (s *WeatherService) Load(ctx context.Context, kind models.SnapshotKind, loc models.Location) (models.Snapshot, error) {
	start := time.Now()

	payload, err := s.fetcher.FetchWeather(ctx, loc.Lat, loc.Lon, kind)
	if err != nil {
		if errors.Is(err, coord.ErrInvalidInput) || errors.Is(err, coord.ErrCancelled) {
			return models.Snapshot{}, err
		}
		return s.fallback(ctx, kind, loc, err)
	}

	snap, putErr := s.cache.PutSnapshot(ctx, kind, payload, loc)
	if putErr != nil {
		// Non-fatal: the fetched data is still good, the next fetch will
		// retry the write.
		s.logger.Warn("snapshot write failed", zap.String("kind", string(kind)), zap.Error(putErr))
		snap = models.Snapshot{Payload: payload, Location: loc, FetchedAt: time.Now()}
	}

	s.logger.Debug("weather served",
		zap.String("kind", string(kind)),
		zap.String("location", loc.Name),
		zap.Bool("cached", false),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

// fallback serves the cached snapshot for kind if fresh; otherwise the
// original fetch error propagates and the view renders its no-data state.
func (s *WeatherService) fallback(ctx context.Context, kind models.SnapshotKind, loc models.Location, fetchErr error) (models.Snapshot, error) {
	snap, ok := s.cache.GetSnapshot(ctx, kind)
	if !ok || !s.cache.IsFresh(snap, kind) {
		return models.Snapshot{}, fmt.Errorf("fetch %s for %s: %w", kind, loc.Name, fetchErr)
	}

	observability.StaleServesTotal.WithLabelValues(string(kind)).Inc()
	snap.Stale = true
	s.logger.Info("serving cached snapshot after upstream failure",
		zap.String("kind", string(kind)),
		zap.Duration("age", snap.Age(time.Now())),
		zap.Error(fetchErr))
	return snap, nil
}

// Cached returns the stored snapshot for kind without touching the network.
// ok is false when the slot is empty or past its max-age window.
func (s *WeatherService) Cached(ctx context.Context, kind models.SnapshotKind) (models.Snapshot, bool) {
	snap, ok := s.cache.GetSnapshot(ctx, kind)
	if !ok || !s.cache.IsFresh(snap, kind) {
		return models.Snapshot{}, false
	}
	observability.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
	return snap, true
}

// ResolveLocation implements the view contract's location resolution:
// supplied coordinates (reverse-geocoded best-effort) win, then the fresh
// last-viewed location, then the configured default.
func (s *WeatherService) ResolveLocation(ctx context.Context, lat, lon *float64) (models.Location, error) {
	if lat != nil && lon != nil {
		if err := models.ValidateCoordinates(*lat, *lon); err != nil {
			return models.Location{}, fmt.Errorf("%w: %v", coord.ErrInvalidInput, err)
		}
		loc, err := s.fetcher.ReverseGeocode(ctx, *lat, *lon)
		if err != nil {
			if errors.Is(err, coord.ErrInvalidInput) || errors.Is(err, coord.ErrCancelled) {
				return models.Location{}, err
			}
			// The place name is cosmetic; raw coordinates still identify
			// the forecast point.
			loc = models.NewLocation(*lat, *lon, "Current location", "")
			loc.IsCurrentLocation = true
		}
		return loc, nil
	}

	if loc, ok := s.cache.LastLocation(ctx); ok && s.cache.LastLocationFresh(loc) {
		return loc, nil
	}
	return s.defaultLocation, nil
}

// Geocode resolves a city name through the coordinator.
func (s *WeatherService) Geocode(ctx context.Context, name string) (models.Location, error) {
	return s.fetcher.GeocodeCity(ctx, name)
}

// RememberLocation overwrites the last-viewed location slot. Write failures
// are logged, not surfaced: losing the slot only costs the next session its
// starting location.
func (s *WeatherService) RememberLocation(ctx context.Context, loc models.Location) {
	if err := s.cache.SetLastLocation(ctx, loc); err != nil {
		s.logger.Warn("last-location write failed", zap.Error(err))
	}
}

// WarmSnapshots refreshes both snapshot kinds for the resolved location.
// Used at startup and by the periodic refresh job; failures are logged and
// the sweep continues.
func (s *WeatherService) WarmSnapshots(ctx context.Context) {
	loc, err := s.ResolveLocation(ctx, nil, nil)
	if err != nil {
		s.logger.Debug("warm skipped, no location", zap.Error(err))
		return
	}
	for _, kind := range []models.SnapshotKind{models.KindCurrent, models.KindForecast} {
		if _, err := s.Load(ctx, kind, loc); err != nil {
			s.logger.Debug("warm fetch failed",
				zap.String("kind", string(kind)),
				zap.String("location", loc.Name),
				zap.Error(err))
		}
	}
}
