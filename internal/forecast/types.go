package forecast

import (
	"encoding/json"
	"strconv"
	"time"
)

// NotAvailable is the sentinel reported for any current-conditions value the
// upstream omitted or that could not be matched.
const NotAvailable = "N/D"

// UnavailableDescription replaces the description of degraded current conditions.
const UnavailableDescription = "Condições atuais indisponíveis"

// Query identifies a location either by name or by coordinates.
// Days selects the forecast feed length: 0 for the default feed or 7.
type Query struct {
	Name string
	Lat  *float64
	Lon  *float64
	Days int
}

// Place is the human-readable name a query resolved to.
type Place struct {
	DisplayName string
}

// City is an entry of the upstream city directory. Code is only meaningful
// to the forecast feed.
type City struct {
	Code   int
	Name   string
	Region string
}

// Label renders the city as "Name - UF".
func (c City) Label() string {
	return c.Name + " - " + c.Region
}

// DailyForecast is one day of the forecast feed. Day is 1-based and follows
// document order.
type DailyForecast struct {
	Day                  int     `json:"day"`
	Date                 string  `json:"date"`
	Condition            string  `json:"condition"`
	ConditionDescription string  `json:"condition_description"`
	TempMin              float64 `json:"temp_min"`
	TempMax              float64 `json:"temp_max"`
	UVIndex              float64 `json:"uv_index"`
}

// Forecast is the decoded forecast feed of one city.
type Forecast struct {
	UpdatedAt time.Time
	Days      []DailyForecast
}

// Reading is a measured value or the NotAvailable sentinel.
type Reading struct {
	value float64
	ok    bool
}

// Available wraps a measured value.
func Available(v float64) Reading {
	return Reading{value: v, ok: true}
}

// Missing returns the sentinel reading.
func Missing() Reading {
	return Reading{}
}

// Value returns the measured value and whether one is present.
func (r Reading) Value() (float64, bool) {
	return r.value, r.ok
}

// String renders the value, or NotAvailable.
func (r Reading) String() string {
	if !r.ok {
		return NotAvailable
	}
	return strconv.FormatFloat(r.value, 'f', -1, 64)
}

// MarshalJSON encodes a JSON number, or the NotAvailable string.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.ok {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON accepts either a number or the NotAvailable string.
func (r *Reading) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*r = Available(f)
		return nil
	}
	*r = Missing()
	return nil
}

// CurrentConditions is the latest observation of one station.
type CurrentConditions struct {
	StationCode   string  `json:"station_code"`
	ObservedAt    string  `json:"observed_at"`
	Temperature   Reading `json:"temperature"`
	Humidity      Reading `json:"humidity"`
	Pressure      Reading `json:"pressure"`
	WindSpeed     Reading `json:"wind_speed"`
	WindDirection Reading `json:"wind_direction_degrees"`
	Visibility    Reading `json:"visibility"`
	Description   string  `json:"description"`
}

// UnavailableConditions is the record reported when current conditions
// could not be obtained.
func UnavailableConditions() CurrentConditions {
	return CurrentConditions{
		StationCode: NotAvailable,
		ObservedAt:  NotAvailable,
		Description: UnavailableDescription,
	}
}

// Result is the aggregated answer to a Query.
type Result struct {
	LocationLabel     string            `json:"location_label"`
	GeneratedAt       time.Time         `json:"generated_at"`
	Forecast          []DailyForecast   `json:"forecast"`
	CurrentConditions CurrentConditions `json:"current_conditions"`
}
