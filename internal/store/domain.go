package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kjstillabower/weathercache/internal/models"
	"github.com/kjstillabower/weathercache/internal/observability"
)

// Persisted state layout.
const (
	keyCurrent      = "weather:current"
	keyForecast     = "weather:forecast"
	keyLastLocation = "location:last"
	keySaved        = "locations:saved"
)

// MaxAges holds the per-entity freshness windows.
type MaxAges struct {
	Current      time.Duration
	Forecast     time.Duration
	LastLocation time.Duration
}

// DefaultMaxAges mirrors the shipped policy: weather entities one hour,
// last-viewed location five minutes.
func DefaultMaxAges() MaxAges {
	return MaxAges{
		Current:      time.Hour,
		Forecast:     time.Hour,
		LastLocation: 5 * time.Minute,
	}
}

// DomainCache stores the three domain entities on a Store with per-entity
// max-age policy. Reads swallow storage and parse failures: a corrupt slot
// behaves like an empty one. Writes surface ErrStorage.
type DomainCache struct {
	store   Store
	maxAges MaxAges
	now     func() time.Time
}

// NewDomainCache creates a DomainCache over the given store.
func NewDomainCache(s Store, maxAges MaxAges) *DomainCache {
	if maxAges.Current <= 0 {
		maxAges.Current = DefaultMaxAges().Current
	}
	if maxAges.Forecast <= 0 {
		maxAges.Forecast = DefaultMaxAges().Forecast
	}
	if maxAges.LastLocation <= 0 {
		maxAges.LastLocation = DefaultMaxAges().LastLocation
	}
	return &DomainCache{store: s, maxAges: maxAges, now: time.Now}
}

func snapshotKey(kind models.SnapshotKind) string {
	if kind == models.KindForecast {
		return keyForecast
	}
	return keyCurrent
}

// PutSnapshot stamps and persists a snapshot for the kind, overwriting
// unconditionally. Last writer wins; concurrent fetches of the same slot are
// not ordered.
func (dc *DomainCache) PutSnapshot(ctx context.Context, kind models.SnapshotKind, payload json.RawMessage, loc models.Location) (models.Snapshot, error) {
	snap := models.Snapshot{
		Payload:   payload,
		Location:  loc,
		FetchedAt: dc.now(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: encode snapshot: %v", ErrStorage, err)
	}
	if err := dc.store.Set(ctx, snapshotKey(kind), raw); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("put_snapshot").Inc()
		return models.Snapshot{}, err
	}
	return snap, nil
}

// GetSnapshot returns the stored snapshot for the kind, or ok=false if the
// slot is empty or unreadable.
func (dc *DomainCache) GetSnapshot(ctx context.Context, kind models.SnapshotKind) (models.Snapshot, bool) {
	raw, ok, err := dc.store.Get(ctx, snapshotKey(kind))
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("get_snapshot").Inc()
		return models.Snapshot{}, false
	}
	if !ok {
		return models.Snapshot{}, false
	}
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("decode_snapshot").Inc()
		return models.Snapshot{}, false
	}
	return snap, true
}

// IsFresh reports whether the snapshot is inside its kind's max-age window.
func (dc *DomainCache) IsFresh(snap models.Snapshot, kind models.SnapshotKind) bool {
	maxAge := dc.maxAges.Current
	if kind == models.KindForecast {
		maxAge = dc.maxAges.Forecast
	}
	return snap.Age(dc.now()) < maxAge
}

// LastLocation returns the last-viewed location slot, absent-on-corrupt.
func (dc *DomainCache) LastLocation(ctx context.Context) (models.Location, bool) {
	raw, ok, err := dc.store.Get(ctx, keyLastLocation)
	if err != nil || !ok {
		if err != nil {
			observability.StoreErrorsTotal.WithLabelValues("get_last_location").Inc()
		}
		return models.Location{}, false
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return models.Location{}, false
	}
	return loc, true
}

// LastLocationFresh reports whether the stored last-viewed location is inside
// its max-age window.
func (dc *DomainCache) LastLocationFresh(loc models.Location) bool {
	age := dc.now().Sub(time.UnixMilli(loc.Timestamp))
	return age < dc.maxAges.LastLocation
}

// SetLastLocation overwrites the last-viewed location slot silently.
func (dc *DomainCache) SetLastLocation(ctx context.Context, loc models.Location) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("%w: encode location: %v", ErrStorage, err)
	}
	if err := dc.store.Set(ctx, keyLastLocation, raw); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("set_last_location").Inc()
		return err
	}
	return nil
}

// SavedLocations returns the saved list in order. An unreadable slot yields
// an empty list.
func (dc *DomainCache) SavedLocations(ctx context.Context) []models.Location {
	raw, ok, err := dc.store.Get(ctx, keySaved)
	if err != nil || !ok {
		if err != nil {
			observability.StoreErrorsTotal.WithLabelValues("get_saved").Inc()
		}
		return nil
	}
	var list []models.Location
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// AddSavedLocation appends loc to the saved list, enforcing the duplicate
// guard, and returns the stored entry with its assigned id.
func (dc *DomainCache) AddSavedLocation(ctx context.Context, loc models.Location) (models.Location, error) {
	list := dc.SavedLocations(ctx)
	var maxID int64
	for _, existing := range list {
		if models.SamePlace(existing, loc) {
			return existing, fmt.Errorf("%w: %s", ErrDuplicateLocation, existing.Name)
		}
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}

	loc.ID = maxID + 1
	loc.SavedLocationID = loc.ID
	if loc.Timestamp == 0 {
		loc.Timestamp = dc.now().UnixMilli()
	}
	list = append(list, loc)

	if err := dc.writeSaved(ctx, list); err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

// RemoveSavedLocation deletes the entry with the given id. The boolean
// reports whether anything was removed.
func (dc *DomainCache) RemoveSavedLocation(ctx context.Context, id int64) (bool, error) {
	list := dc.SavedLocations(ctx)
	kept := list[:0]
	removed := false
	for _, loc := range list {
		if loc.ID == id {
			removed = true
			continue
		}
		kept = append(kept, loc)
	}
	if !removed {
		return false, nil
	}
	if err := dc.writeSaved(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

func (dc *DomainCache) writeSaved(ctx context.Context, list []models.Location) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("%w: encode saved locations: %v", ErrStorage, err)
	}
	if err := dc.store.Set(ctx, keySaved, raw); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("set_saved").Inc()
		return err
	}
	return nil
}
