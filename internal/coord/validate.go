package coord

import (
	"encoding/json"
	"fmt"

	"github.com/kjstillabower/weathercache/internal/models"
)

// Response shapes use pointer fields where the check is "present", not
// "non-zero": a temperature of 0 is valid, a missing one is not.

type currentPayload struct {
	Name string `json:"name"`
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Weather []json.RawMessage `json:"weather"`
	Sys     *struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type forecastPayload struct {
	City *struct {
		Name string `json:"name"`
	} `json:"city"`
	List []forecastEntry `json:"list"`
}

type forecastEntry struct {
	Dt      *int64            `json:"dt"`
	Weather []json.RawMessage `json:"weather"`
	Main    json.RawMessage   `json:"main"`
}

// validatePayload checks the kind-specific required fields of a 2xx body.
// A payload failing here is never cached.
func validatePayload(body []byte, kind models.SnapshotKind) error {
	switch kind {
	case models.KindCurrent:
		return validateCurrent(body)
	case models.KindForecast:
		return validateForecast(body)
	}
	return fmt.Errorf("unknown kind %q", kind)
}

func validateCurrent(body []byte) error {
	var p currentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("parse current weather: %w", err)
	}
	if p.Name == "" {
		return fmt.Errorf("current weather missing name")
	}
	if p.Main == nil || p.Main.Temp == nil {
		return fmt.Errorf("current weather missing main.temp")
	}
	if len(p.Weather) == 0 {
		return fmt.Errorf("current weather missing weather[0]")
	}
	if p.Sys == nil || p.Sys.Country == "" {
		return fmt.Errorf("current weather missing sys.country")
	}
	return nil
}

func validateForecast(body []byte) error {
	var p forecastPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("parse forecast: %w", err)
	}
	if p.City == nil || p.City.Name == "" {
		return fmt.Errorf("forecast missing city.name")
	}
	if len(p.List) == 0 {
		return fmt.Errorf("forecast list is empty")
	}
	for i, entry := range p.List {
		if entry.Dt == nil {
			return fmt.Errorf("forecast entry %d missing dt", i)
		}
		if len(entry.Weather) == 0 {
			return fmt.Errorf("forecast entry %d missing weather[0]", i)
		}
		if len(entry.Main) == 0 {
			return fmt.Errorf("forecast entry %d missing main", i)
		}
	}
	return nil
}

type geoResult struct {
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// parseGeoResult turns a geocoding response array into a Location. Empty
// arrays and incomplete entries are ErrNotFound: the query was well-formed
// but yielded nothing usable.
func parseGeoResult(body []byte) (models.Location, error) {
	var results []geoResult
	if err := json.Unmarshal(body, &results); err != nil {
		return models.Location{}, fmt.Errorf("%w: parse geocode response: %v", ErrInvalidResponse, err)
	}
	if len(results) == 0 {
		return models.Location{}, fmt.Errorf("%w: no geocoding match", ErrNotFound)
	}
	r := results[0]
	if r.Lat == nil || r.Lon == nil || r.Name == "" || r.Country == "" {
		return models.Location{}, fmt.Errorf("%w: incomplete geocoding match", ErrNotFound)
	}
	if err := models.ValidateCoordinates(*r.Lat, *r.Lon); err != nil {
		return models.Location{}, fmt.Errorf("%w: geocoding coordinates out of range", ErrNotFound)
	}
	return models.NewLocation(*r.Lat, *r.Lon, r.Name, r.Country), nil
}
