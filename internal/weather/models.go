package weather

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// DefaultHorizon is the number of daily entries returned when none is requested.
const DefaultHorizon = 5

// Unavailable is how a missing value is printed.
const Unavailable = "N/A"

// Field is an optional provider value. The zero Field is unavailable.
// It marshals to JSON null when unavailable.
type Field[T int | float64] struct {
	val T
	ok  bool
}

// Of returns an available Field holding v.
func Of[T int | float64](v T) Field[T] { return Field[T]{val: v, ok: true} }

// Missing returns an unavailable Field.
func Missing[T int | float64]() Field[T] { return Field[T]{} }

// FromPtr maps a decoded optional JSON value to a Field.
func FromPtr[T int | float64](p *T) Field[T] {
	if p == nil {
		return Field[T]{}
	}
	return Of(*p)
}

// Get returns the value and whether it is available.
func (f Field[T]) Get() (T, bool) { return f.val, f.ok }

// Valid reports whether the value is available.
func (f Field[T]) Valid() bool { return f.ok }

// AtLeast reports whether the value is available and >= limit.
func (f Field[T]) AtLeast(limit T) bool { return f.ok && f.val >= limit }

// AtMost reports whether the value is available and <= limit.
func (f Field[T]) AtMost(limit T) bool { return f.ok && f.val <= limit }

// Below reports whether the value is available and < limit.
func (f Field[T]) Below(limit T) bool { return f.ok && f.val < limit }

func (f Field[T]) String() string {
	if !f.ok {
		return Unavailable
	}
	switch v := any(f.val).(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', 1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.ok {
		return []byte("null"), nil
	}
	return json.Marshal(f.val)
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Field[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Of(v)
	return nil
}

// Percent clamps an optional percentage into [0,100].
func Percent(f Field[int]) Field[int] {
	v, ok := f.Get()
	if !ok {
		return f
	}
	return Of(min(max(v, 0), 100))
}

// Snapshot holds current conditions.
type Snapshot struct {
	Time                     time.Time      `json:"time"` // always UTC
	Temperature              Field[float64] `json:"temperatureC"`
	Humidity                 Field[int]     `json:"humidityPercent"`
	WindSpeed                Field[float64] `json:"windSpeedMs"`
	PrecipitationProbability Field[int]     `json:"precipitationProbability"`
	WeatherCode              Field[int]     `json:"weatherCode"`
	Condition                Condition      `json:"condition"`
}

// DailyForecast is a single calendar day of forecast.
type DailyForecast struct {
	Date        Date           `json:"date"`
	TempMin     Field[float64] `json:"tempMinC"`
	TempMax     Field[float64] `json:"tempMaxC"`
	RainChance  Field[int]     `json:"rainChance"`
	WindAvg     Field[float64] `json:"windAvgMs"`
	WeatherCode Field[int]     `json:"weatherCode"`
	Condition   Condition      `json:"condition"`
}

// ForecastBundle is the canonical provider-independent forecast.
// It is built fresh per query and never mutated afterwards.
type ForecastBundle struct {
	Location string          `json:"location"`
	Provider string          `json:"provider"`
	Current  Snapshot        `json:"current"`
	Daily    []DailyForecast `json:"daily"`
}

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's own offset.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(s string) (Date, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(ts), nil
	}
	ts, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return NewDate(ts), nil
}

func (d Date) String() string { return d.Format(time.DateOnly) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
