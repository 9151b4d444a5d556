package models

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidCoordinates is returned when a latitude/longitude pair is not a
// finite number within range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// DuplicateTolerance is the per-axis degree tolerance used by the saved-list
// duplicate guard: two locations within this distance on both axes are the
// same place.
const DuplicateTolerance = 0.01

// Location identifies a place the user viewed or saved. ID is assigned only
// for saved entries. SavedLocationID links a transient (e.g. last-viewed)
// location back to its saved entry, if any.
type Location struct {
	ID                int64   `json:"id,omitempty"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Name              string  `json:"name"`
	Country           string  `json:"country,omitempty"`
	IsCurrentLocation bool    `json:"isCurrentLocation"`
	SavedLocationID   int64   `json:"savedLocationId,omitempty"`
	Timestamp         int64   `json:"timestamp"` // epoch ms
}

// NewLocation builds a Location stamped with the current time.
func NewLocation(lat, lon float64, name, country string) Location {
	return Location{
		Lat:       lat,
		Lon:       lon,
		Name:      name,
		Country:   country,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ValidateCoordinates rejects NaN, infinities, and out-of-range values.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return ErrInvalidCoordinates
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// SamePlace reports whether two locations fall within DuplicateTolerance on
// both axes.
func SamePlace(a, b Location) bool {
	return math.Abs(a.Lat-b.Lat) < DuplicateTolerance && math.Abs(a.Lon-b.Lon) < DuplicateTolerance
}
