package models

import (
	"encoding/json"
	"time"
)

// SnapshotKind names the two cached weather entities.
type SnapshotKind string

const (
	KindCurrent  SnapshotKind = "current"
	KindForecast SnapshotKind = "forecast"
)

// Valid reports whether k is a known snapshot kind.
func (k SnapshotKind) Valid() bool {
	return k == KindCurrent || k == KindForecast
}

// Snapshot is one persisted weather payload plus metadata. Payload holds the
// raw validated API response; it is stored as fetched and never merged.
type Snapshot struct {
	Payload   json.RawMessage `json:"data"`
	Location  Location        `json:"location"`
	FetchedAt time.Time       `json:"timestamp"`
	Stale     bool            `json:"stale,omitempty"` // set when served from fallback past a failed fetch
}

// Age returns how long ago the snapshot was fetched.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
