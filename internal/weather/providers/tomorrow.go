package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/weather"
)

// TomorrowProvider implements weather.Provider for the Tomorrow.io forecast API.
type TomorrowProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewTomorrowProvider creates the provider. The free tier allows 25 requests per
// hour, so limiter is usually a slow bucket; nil disables throttling.
func NewTomorrowProvider(client *http.Client, apiKey string, limiter *rate.Limiter) *TomorrowProvider {
	return &TomorrowProvider{
		name:    "tomorrow.io",
		apiKey:  apiKey,
		baseURL: "https://api.tomorrow.io/v4/weather/forecast",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
			Limiter: limiter,
		},
		circuit: newBreaker("tomorrow.io"),
	}
}

// WithBaseURL points the provider at another endpoint (tests, proxies).
func (p *TomorrowProvider) WithBaseURL(u string) *TomorrowProvider {
	p.baseURL = u
	return p
}

func (p *TomorrowProvider) Name() string {
	return p.name
}

type tomorrowPayload struct {
	Timelines struct {
		Hourly []tomorrowEntry `json:"hourly"`
		Daily  []tomorrowEntry `json:"daily"`
	} `json:"timelines"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
}

type tomorrowEntry struct {
	Time   string `json:"time"`
	Values struct {
		Temperature                 *float64 `json:"temperature"`
		Humidity                    *float64 `json:"humidity"`
		WindSpeed                   *float64 `json:"windSpeed"`
		PrecipitationProbability    *float64 `json:"precipitationProbability"`
		WeatherCode                 *float64 `json:"weatherCode"`
		TemperatureMin              *float64 `json:"temperatureMin"`
		TemperatureMax              *float64 `json:"temperatureMax"`
		PrecipitationProbabilityAvg *float64 `json:"precipitationProbabilityAvg"`
		PrecipitationProbabilityMax *float64 `json:"precipitationProbabilityMax"`
		WindSpeedAvg                *float64 `json:"windSpeedAvg"`
		WeatherCodeMax              *float64 `json:"weatherCodeMax"`
	} `json:"values"`
}

func (p *TomorrowProvider) Fetch(ctx context.Context, location string, days int) (weather.ForecastBundle, error) {
	if p.apiKey == "" {
		return weather.ForecastBundle{}, apperr.Providerf(p.name, "api key is not configured")
	}

	values := url.Values{}
	values.Set("location", location)
	values.Set("timesteps", "1h,1d")
	values.Set("units", "metric")
	values.Set("apikey", p.apiKey)
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload tomorrowPayload
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.ForecastBundle{}, apperr.Provider(p.name, err)
	}
	if len(payload.Timelines.Hourly) == 0 {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no hourly timeline"))
	}
	if len(payload.Timelines.Daily) == 0 {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no daily timeline"))
	}

	bundle := weather.ForecastBundle{
		Location: location,
		Provider: p.name,
		Current:  p.current(payload.Timelines.Hourly[0]),
	}
	if payload.Location.Name != "" {
		bundle.Location = payload.Location.Name
	}
	for _, e := range payload.Timelines.Daily {
		d, err := weather.ParseDate(e.Time)
		if err != nil {
			// a day we cannot place on the calendar is dropped, not fatal
			continue
		}
		rain := e.Values.PrecipitationProbabilityAvg
		if rain == nil {
			rain = e.Values.PrecipitationProbabilityMax
		}
		code := intField(e.Values.WeatherCodeMax)
		bundle.Daily = append(bundle.Daily, weather.DailyForecast{
			Date:        d,
			TempMin:     weather.FromPtr(e.Values.TemperatureMin),
			TempMax:     weather.FromPtr(e.Values.TemperatureMax),
			RainChance:  weather.Percent(intField(rain)),
			WindAvg:     weather.FromPtr(e.Values.WindSpeedAvg),
			WeatherCode: code,
			Condition:   weather.ConditionForTomorrowCode(code),
		})
	}
	bundle.Daily = weather.TrimDaily(bundle.Daily, days)
	return bundle, nil
}

func (p *TomorrowProvider) current(e tomorrowEntry) weather.Snapshot {
	ts, err := time.Parse(time.RFC3339, e.Time)
	if err != nil {
		ts = time.Now()
	}
	code := intField(e.Values.WeatherCode)
	return weather.Snapshot{
		Time:                     ts.UTC(),
		Temperature:              weather.FromPtr(e.Values.Temperature),
		Humidity:                 weather.Percent(intField(e.Values.Humidity)),
		WindSpeed:                weather.FromPtr(e.Values.WindSpeed),
		PrecipitationProbability: weather.Percent(intField(e.Values.PrecipitationProbability)),
		WeatherCode:              code,
		Condition:                weather.ConditionForTomorrowCode(code),
	}
}

// intField rounds an optional decoded number to an integer field.
func intField(p *float64) weather.Field[int] {
	if p == nil {
		return weather.Missing[int]()
	}
	return weather.Of(int(math.Round(*p)))
}
