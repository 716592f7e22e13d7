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
	"github.com/i474232898/agri-assist/internal/common"
	"github.com/i474232898/agri-assist/internal/weather"
)

// WeatherAPIProvider implements weather.Provider for WeatherAPI.com's forecast endpoint.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, limiter *rate.Limiter) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
			Limiter: limiter,
		},
		circuit: newBreaker("weatherapi"),
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *WeatherAPIProvider) WithBaseURL(u string) *WeatherAPIProvider {
	p.baseURL = u
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPICondition struct {
	Code *float64 `json:"code"`
	Text string   `json:"text"`
}

type weatherAPIPayload struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current *struct {
		LastUpdatedEpoch int64               `json:"last_updated_epoch"`
		TempC            *float64            `json:"temp_c"`
		Humidity         *float64            `json:"humidity"`
		WindKph          *float64            `json:"wind_kph"`
		Condition        weatherAPICondition `json:"condition"`
	} `json:"current"`
	Forecast *struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MinTempC          *float64            `json:"mintemp_c"`
				MaxTempC          *float64            `json:"maxtemp_c"`
				DailyChanceOfRain *float64            `json:"daily_chance_of_rain"`
				Condition         weatherAPICondition `json:"condition"`
			} `json:"day"`
			Hour []struct {
				TimeEpoch    int64    `json:"time_epoch"`
				WindKph      *float64 `json:"wind_kph"`
				ChanceOfRain *float64 `json:"chance_of_rain"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, location string, days int) (weather.ForecastBundle, error) {
	if p.apiKey == "" {
		return weather.ForecastBundle{}, apperr.Providerf(p.name, "api key is not configured")
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", location)
	values.Set("days", strconv.Itoa(min(max(days, 1), 14)))
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload weatherAPIPayload
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.ForecastBundle{}, apperr.Provider(p.name, err)
	}
	if payload.Current == nil {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no current conditions"))
	}
	if payload.Forecast == nil || len(payload.Forecast.ForecastDay) == 0 {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no daily forecast"))
	}

	cur := payload.Current
	observed := time.Unix(cur.LastUpdatedEpoch, 0).UTC()
	code := intField(cur.Condition.Code)

	// WeatherAPI has no current precipitation probability; use the hour slot
	// covering the observation.
	precip := weather.Missing[int]()
	for _, h := range payload.Forecast.ForecastDay[0].Hour {
		if h.TimeEpoch+3600 > cur.LastUpdatedEpoch {
			precip = weather.Percent(intField(h.ChanceOfRain))
			break
		}
	}

	bundle := weather.ForecastBundle{
		Location: location,
		Provider: p.name,
		Current: weather.Snapshot{
			Time:                     observed,
			Temperature:              weather.FromPtr(cur.TempC),
			Humidity:                 weather.Percent(intField(cur.Humidity)),
			WindSpeed:                kphToMS(cur.WindKph),
			PrecipitationProbability: precip,
			WeatherCode:              code,
			Condition:                conditionForWeatherAPIText(cur.Condition.Text),
		},
	}
	if payload.Location.Name != "" {
		bundle.Location = payload.Location.Name
		if payload.Location.Country != "" {
			bundle.Location += ", " + payload.Location.Country
		}
	}

	for _, fd := range payload.Forecast.ForecastDay {
		date, err := weather.ParseDate(fd.Date)
		if err != nil {
			continue
		}
		var windSum float64
		var windN int
		for _, h := range fd.Hour {
			if h.WindKph != nil {
				windSum += *h.WindKph
				windN++
			}
		}
		wind := weather.Missing[float64]()
		if windN > 0 {
			avg := windSum / float64(windN)
			wind = kphToMS(&avg)
		}
		bundle.Daily = append(bundle.Daily, weather.DailyForecast{
			Date:        date,
			TempMin:     weather.FromPtr(fd.Day.MinTempC),
			TempMax:     weather.FromPtr(fd.Day.MaxTempC),
			RainChance:  weather.Percent(intField(fd.Day.DailyChanceOfRain)),
			WindAvg:     wind,
			WeatherCode: intField(fd.Day.Condition.Code),
			Condition:   conditionForWeatherAPIText(fd.Day.Condition.Text),
		})
	}
	bundle.Daily = weather.TrimDaily(bundle.Daily, days)
	return bundle, nil
}

// kphToMS converts wind from kph to m/s.
func kphToMS(kph *float64) weather.Field[float64] {
	if kph == nil {
		return weather.Missing[float64]()
	}
	return weather.Of(*kph / 3.6)
}

func conditionForWeatherAPIText(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(text, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(text, "snow", "sleet", "blizzard", "ice pellets"):
		return weather.ConditionSnow
	case common.HasAny(text, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(text, "mist", "fog"):
		return weather.ConditionMist
	case common.HasAny(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(text, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
