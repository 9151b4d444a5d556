package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kjstillabower/weathercache/internal/models"
)

func TestDomainCache_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	dc := NewDomainCache(NewMemoryStore(), DefaultMaxAges())

	payload := json.RawMessage(`{"name":"Seattle","main":{"temp":10}}`)
	loc := models.Location{Lat: 47.6, Lon: -122.3, Name: "Seattle", Country: "US", Timestamp: 1700000000000}

	put, err := dc.PutSnapshot(ctx, models.KindCurrent, payload, loc)
	if err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	if put.FetchedAt.IsZero() {
		t.Error("PutSnapshot() did not stamp FetchedAt")
	}

	got, ok := dc.GetSnapshot(ctx, models.KindCurrent)
	if !ok {
		t.Fatal("GetSnapshot() ok = false after put")
	}
	var wantPayload, gotPayload interface{}
	_ = json.Unmarshal(payload, &wantPayload)
	_ = json.Unmarshal(got.Payload, &gotPayload)
	if !reflect.DeepEqual(wantPayload, gotPayload) {
		t.Errorf("GetSnapshot() payload = %s, want %s", got.Payload, payload)
	}
	if !reflect.DeepEqual(got.Location, loc) {
		t.Errorf("GetSnapshot() location = %+v, want %+v", got.Location, loc)
	}
}

func TestDomainCache_SnapshotKindsAreSeparateSlots(t *testing.T) {
	ctx := context.Background()
	dc := NewDomainCache(NewMemoryStore(), DefaultMaxAges())
	loc := models.Location{Name: "X"}

	if _, err := dc.PutSnapshot(ctx, models.KindCurrent, json.RawMessage(`{"kind":"current"}`), loc); err != nil {
		t.Fatal(err)
	}
	if _, ok := dc.GetSnapshot(ctx, models.KindForecast); ok {
		t.Error("forecast slot populated by current-weather write")
	}
}

func TestDomainCache_GetSnapshot_CorruptIsAbsent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	dc := NewDomainCache(mem, DefaultMaxAges())

	if err := mem.Set(ctx, "weather:current", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, ok := dc.GetSnapshot(ctx, models.KindCurrent); ok {
		t.Error("GetSnapshot() ok = true for corrupt slot, want false")
	}
}

func TestDomainCache_IsFresh(t *testing.T) {
	dc := NewDomainCache(NewMemoryStore(), MaxAges{Current: time.Hour, Forecast: 30 * time.Minute, LastLocation: 5 * time.Minute})
	now := time.Unix(5000, 0)
	dc.now = func() time.Time { return now }

	tests := []struct {
		name string
		kind models.SnapshotKind
		age  time.Duration
		want bool
	}{
		{"current inside window", models.KindCurrent, 59 * time.Minute, true},
		{"current at boundary", models.KindCurrent, time.Hour, false},
		{"forecast inside window", models.KindForecast, 29 * time.Minute, true},
		{"forecast past window", models.KindForecast, 31 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := models.Snapshot{FetchedAt: now.Add(-tt.age)}
			if got := dc.IsFresh(snap, tt.kind); got != tt.want {
				t.Errorf("IsFresh(age=%v, %s) = %v, want %v", tt.age, tt.kind, got, tt.want)
			}
		})
	}
}

func TestDomainCache_LastLocation(t *testing.T) {
	ctx := context.Background()
	dc := NewDomainCache(NewMemoryStore(), DefaultMaxAges())

	if _, ok := dc.LastLocation(ctx); ok {
		t.Error("LastLocation() ok = true on empty store")
	}

	loc := models.NewLocation(47.6, -122.3, "Seattle", "US")
	if err := dc.SetLastLocation(ctx, loc); err != nil {
		t.Fatalf("SetLastLocation() error = %v", err)
	}
	got, ok := dc.LastLocation(ctx)
	if !ok || got.Name != "Seattle" {
		t.Errorf("LastLocation() = %+v ok=%v, want Seattle", got, ok)
	}

	// Overwrite silently.
	if err := dc.SetLastLocation(ctx, models.NewLocation(1, 1, "Elsewhere", "FR")); err != nil {
		t.Fatal(err)
	}
	got, _ = dc.LastLocation(ctx)
	if got.Name != "Elsewhere" {
		t.Errorf("LastLocation() after overwrite = %s, want Elsewhere", got.Name)
	}
}

func TestDomainCache_AddSavedLocation_DuplicateGuard(t *testing.T) {
	ctx := context.Background()
	dc := NewDomainCache(NewMemoryStore(), DefaultMaxAges())

	first, err := dc.AddSavedLocation(ctx, models.NewLocation(47.6062, -122.3321, "Seattle", "US"))
	if err != nil {
		t.Fatalf("AddSavedLocation() error = %v", err)
	}
	if first.ID == 0 || first.SavedLocationID != first.ID {
		t.Errorf("AddSavedLocation() id = %d savedLocationId = %d", first.ID, first.SavedLocationID)
	}

	// Within 0.01 degrees on both axes: rejected, list unchanged.
	_, err = dc.AddSavedLocation(ctx, models.NewLocation(47.6100, -122.3350, "Seattle again", "US"))
	if !errors.Is(err, ErrDuplicateLocation) {
		t.Fatalf("AddSavedLocation(duplicate) error = %v, want ErrDuplicateLocation", err)
	}
	if got := dc.SavedLocations(ctx); len(got) != 1 {
		t.Errorf("SavedLocations() len = %d after duplicate, want 1", len(got))
	}

	// Far enough on one axis: accepted with a new unique id.
	second, err := dc.AddSavedLocation(ctx, models.NewLocation(47.6062, -122.20, "Bellevue", "US"))
	if err != nil {
		t.Fatalf("AddSavedLocation() error = %v", err)
	}
	if second.ID == first.ID {
		t.Errorf("AddSavedLocation() reused id %d", second.ID)
	}
	if got := dc.SavedLocations(ctx); len(got) != 2 {
		t.Errorf("SavedLocations() len = %d, want 2", len(got))
	}
}

func TestDomainCache_RemoveSavedLocation(t *testing.T) {
	ctx := context.Background()
	dc := NewDomainCache(NewMemoryStore(), DefaultMaxAges())

	loc, err := dc.AddSavedLocation(ctx, models.NewLocation(10, 10, "A", "AA"))
	if err != nil {
		t.Fatal(err)
	}

	removed, err := dc.RemoveSavedLocation(ctx, loc.ID)
	if err != nil || !removed {
		t.Errorf("RemoveSavedLocation() = %v, %v, want true, nil", removed, err)
	}
	removed, err = dc.RemoveSavedLocation(ctx, loc.ID)
	if err != nil || removed {
		t.Errorf("RemoveSavedLocation(gone) = %v, %v, want false, nil", removed, err)
	}
}

type failingStore struct {
	*MemoryStore
	failWrites bool
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failWrites {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func TestDomainCache_WriteFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{MemoryStore: NewMemoryStore(), failWrites: true}
	dc := NewDomainCache(fs, DefaultMaxAges())

	if _, err := dc.PutSnapshot(ctx, models.KindCurrent, json.RawMessage(`{}`), models.Location{}); err == nil {
		t.Error("PutSnapshot() error = nil on failing store")
	}
	if err := dc.SetLastLocation(ctx, models.Location{}); err == nil {
		t.Error("SetLastLocation() error = nil on failing store")
	}
	if _, err := dc.AddSavedLocation(ctx, models.NewLocation(1, 1, "A", "AA")); err == nil {
		t.Error("AddSavedLocation() error = nil on failing store")
	}
}
