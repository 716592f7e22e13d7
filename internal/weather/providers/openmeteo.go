package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/weather"
)

const openMeteoHourLayout = "2006-01-02T15:04"

// OpenMeteoProvider implements weather.Provider for Open-Meteo. It needs no API
// key; the location name is resolved through Open-Meteo's geocoding endpoint.
type OpenMeteoProvider struct {
	name       string
	baseURL    string
	geocodeURL string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker

	now func() time.Time
}

func NewOpenMeteoProvider(client *http.Client, limiter *rate.Limiter) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:       "openmeteo",
		baseURL:    "https://api.open-meteo.com/v1/forecast",
		geocodeURL: "https://geocoding-api.open-meteo.com/v1/search",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
			Limiter: limiter,
		},
		circuit: newBreaker("openmeteo"),
		now:     time.Now,
	}
}

// WithBaseURLs points the provider at other forecast and geocoding endpoints.
func (p *OpenMeteoProvider) WithBaseURLs(forecast, geocode string) *OpenMeteoProvider {
	p.baseURL = forecast
	p.geocodeURL = geocode
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type geoResult struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type openMeteoPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Hourly           *struct {
		Time                     []string   `json:"time"`
		Temperature              []*float64 `json:"temperature_2m"`
		Humidity                 []*float64 `json:"relative_humidity_2m"`
		WindSpeed                []*float64 `json:"wind_speed_10m"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		WeatherCode              []*float64 `json:"weather_code"`
	} `json:"hourly"`
	Daily *struct {
		Time                     []string   `json:"time"`
		TempMin                  []*float64 `json:"temperature_2m_min"`
		TempMax                  []*float64 `json:"temperature_2m_max"`
		PrecipitationProbability []*float64 `json:"precipitation_probability_max"`
		WeatherCode              []*float64 `json:"weather_code"`
	} `json:"daily"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, location string, days int) (weather.ForecastBundle, error) {
	geo, err := p.geocode(ctx, location)
	if err != nil {
		return weather.ForecastBundle{}, apperr.Provider(p.name, err)
	}

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(geo.Latitude, 'f', 4, 64))
	values.Set("longitude", strconv.FormatFloat(geo.Longitude, 'f', 4, 64))
	values.Set("hourly", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation_probability,weather_code")
	values.Set("daily", "temperature_2m_min,temperature_2m_max,precipitation_probability_max,weather_code")
	values.Set("wind_speed_unit", "ms")
	values.Set("timezone", "auto")
	values.Set("forecast_days", strconv.Itoa(min(max(days, 1), 16)))
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload openMeteoPayload
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.ForecastBundle{}, apperr.Provider(p.name, err)
	}
	if payload.Hourly == nil || len(payload.Hourly.Time) == 0 {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no hourly series"))
	}
	if payload.Daily == nil || len(payload.Daily.Time) == 0 {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no daily series"))
	}

	zone := time.FixedZone("", payload.UTCOffsetSeconds)
	h := payload.Hourly
	idx := p.currentHour(h.Time, zone)
	ts, err := time.ParseInLocation(openMeteoHourLayout, h.Time[idx], zone)
	if err != nil {
		ts = p.now()
	}
	code := intField(at(h.WeatherCode, idx))

	label := geo.Name
	if geo.Country != "" {
		label = geo.Name + ", " + geo.Country
	}
	bundle := weather.ForecastBundle{
		Location: label,
		Provider: p.name,
		Current: weather.Snapshot{
			Time:                     ts.UTC(),
			Temperature:              weather.FromPtr(at(h.Temperature, idx)),
			Humidity:                 weather.Percent(intField(at(h.Humidity, idx))),
			WindSpeed:                weather.FromPtr(at(h.WindSpeed, idx)),
			PrecipitationProbability: weather.Percent(intField(at(h.PrecipitationProbability, idx))),
			WeatherCode:              code,
			Condition:                weather.ConditionForWMOCode(code),
		},
	}

	windAvg := dailyMeans(h.Time, h.WindSpeed)
	d := payload.Daily
	for i, raw := range d.Time {
		date, err := weather.ParseDate(raw)
		if err != nil {
			continue
		}
		dcode := intField(at(d.WeatherCode, i))
		wind := weather.Missing[float64]()
		if v, ok := windAvg[raw]; ok {
			wind = weather.Of(v)
		}
		bundle.Daily = append(bundle.Daily, weather.DailyForecast{
			Date:        date,
			TempMin:     weather.FromPtr(at(d.TempMin, i)),
			TempMax:     weather.FromPtr(at(d.TempMax, i)),
			RainChance:  weather.Percent(intField(at(d.PrecipitationProbability, i))),
			WindAvg:     wind,
			WeatherCode: dcode,
			Condition:   weather.ConditionForWMOCode(dcode),
		})
	}
	bundle.Daily = weather.TrimDaily(bundle.Daily, days)
	return bundle, nil
}

func (p *OpenMeteoProvider) geocode(ctx context.Context, location string) (geoResult, error) {
	values := url.Values{}
	values.Set("name", location)
	values.Set("count", "1")
	values.Set("language", "en")
	values.Set("format", "json")
	u := fmt.Sprintf("%s?%s", p.geocodeURL, values.Encode())

	var payload struct {
		Results []geoResult `json:"results"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return geoResult{}, fmt.Errorf("geocode: %w", err)
	}
	if len(payload.Results) == 0 {
		return geoResult{}, fmt.Errorf("geocode: location %q not found", location)
	}
	return payload.Results[0], nil
}

// currentHour returns the index of the first hourly slot not before the current
// hour. Open-Meteo series start at local midnight.
func (p *OpenMeteoProvider) currentHour(times []string, zone *time.Location) int {
	local := p.now().In(zone)
	now := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, zone)
	for i, raw := range times {
		ts, err := time.ParseInLocation(openMeteoHourLayout, raw, zone)
		if err != nil {
			continue
		}
		if !ts.Before(now) {
			return i
		}
	}
	return 0
}

// dailyMeans averages an hourly series per calendar day (keyed YYYY-MM-DD).
func dailyMeans(times []string, series []*float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, raw := range times {
		v := at(series, i)
		if v == nil || len(raw) < len(time.DateOnly) {
			continue
		}
		day := raw[:len(time.DateOnly)]
		sums[day] += *v
		counts[day]++
	}
	out := make(map[string]float64, len(sums))
	for day, sum := range sums {
		out[day] = sum / float64(counts[day])
	}
	return out
}

func at(series []*float64, i int) *float64 {
	if i < 0 || i >= len(series) {
		return nil
	}
	return series[i]
}
