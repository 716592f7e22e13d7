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

// OpenWeatherProvider implements weather.Provider on OpenWeatherMap's 5 day /
// 3 hour forecast. Daily values are folded from the 3-hour slots.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, limiter *rate.Limiter) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/forecast",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
			Limiter: limiter,
		},
		circuit: newBreaker("openweather"),
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *OpenWeatherProvider) WithBaseURL(u string) *OpenWeatherProvider {
	p.baseURL = u
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmSlot struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     *float64 `json:"temp"`
		TempMin  *float64 `json:"temp_min"`
		TempMax  *float64 `json:"temp_max"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Pop     *float64 `json:"pop"`
	Weather []struct {
		ID int `json:"id"`
	} `json:"weather"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, location string, days int) (weather.ForecastBundle, error) {
	if p.apiKey == "" {
		return weather.ForecastBundle{}, apperr.Providerf(p.name, "api key is not configured")
	}

	values := url.Values{}
	values.Set("q", location)
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload struct {
		List []owmSlot `json:"list"`
		City struct {
			Name     string `json:"name"`
			Country  string `json:"country"`
			Timezone int    `json:"timezone"`
		} `json:"city"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.ForecastBundle{}, apperr.Provider(p.name, err)
	}
	if len(payload.List) == 0 {
		return weather.ForecastBundle{}, apperr.Provider(p.name, errors.New("response has no forecast slots"))
	}

	first := payload.List[0]
	code := owmCode(first)
	bundle := weather.ForecastBundle{
		Location: location,
		Provider: p.name,
		Current: weather.Snapshot{
			Time:                     time.Unix(first.Dt, 0).UTC(),
			Temperature:              weather.FromPtr(first.Main.Temp),
			Humidity:                 weather.Percent(intField(first.Main.Humidity)),
			WindSpeed:                weather.FromPtr(first.Wind.Speed),
			PrecipitationProbability: popPercent(first.Pop),
			WeatherCode:              code,
			Condition:                conditionForOpenWeatherCode(code),
		},
	}
	if payload.City.Name != "" {
		bundle.Location = payload.City.Name
		if payload.City.Country != "" {
			bundle.Location += ", " + payload.City.Country
		}
	}

	zone := time.FixedZone("", payload.City.Timezone)
	bundle.Daily = weather.TrimDaily(foldOpenWeatherDays(payload.List, zone), days)
	return bundle, nil
}

// foldOpenWeatherDays groups 3-hour slots by local calendar day.
func foldOpenWeatherDays(slots []owmSlot, zone *time.Location) []weather.DailyForecast {
	type acc struct {
		day            weather.DailyForecast
		minT, maxT     float64
		hasMin, hasMax bool
		windSum        float64
		windN          int
		pop            float64
		hasPop         bool
	}
	var order []string
	days := make(map[string]*acc)

	for _, s := range slots {
		local := time.Unix(s.Dt, 0).In(zone)
		key := local.Format(time.DateOnly)
		a, ok := days[key]
		if !ok {
			code := owmCode(s)
			a = &acc{day: weather.DailyForecast{
				Date:        weather.NewDate(local),
				WeatherCode: code,
				Condition:   conditionForOpenWeatherCode(code),
			}}
			days[key] = a
			order = append(order, key)
		}
		if v := s.Main.TempMin; v != nil && (!a.hasMin || *v < a.minT) {
			a.minT, a.hasMin = *v, true
		}
		if v := s.Main.TempMax; v != nil && (!a.hasMax || *v > a.maxT) {
			a.maxT, a.hasMax = *v, true
		}
		if v := s.Wind.Speed; v != nil {
			a.windSum += *v
			a.windN++
		}
		if v := s.Pop; v != nil && (!a.hasPop || *v > a.pop) {
			a.pop, a.hasPop = *v, true
		}
	}

	out := make([]weather.DailyForecast, 0, len(order))
	for _, key := range order {
		a := days[key]
		if a.hasMin {
			a.day.TempMin = weather.Of(a.minT)
		}
		if a.hasMax {
			a.day.TempMax = weather.Of(a.maxT)
		}
		if a.windN > 0 {
			a.day.WindAvg = weather.Of(a.windSum / float64(a.windN))
		}
		if a.hasPop {
			a.day.RainChance = popPercent(&a.pop)
		}
		out = append(out, a.day)
	}
	return out
}

// popPercent converts OpenWeather's 0..1 probability of precipitation.
func popPercent(p *float64) weather.Field[int] {
	if p == nil {
		return weather.Missing[int]()
	}
	return weather.Percent(weather.Of(int(math.Round(*p * 100))))
}

func owmCode(s owmSlot) weather.Field[int] {
	if len(s.Weather) == 0 {
		return weather.Missing[int]()
	}
	return weather.Of(s.Weather[0].ID)
}

func conditionForOpenWeatherCode(f weather.Field[int]) weather.Condition {
	code, ok := f.Get()
	if !ok {
		return weather.ConditionUnknown
	}
	switch {
	case code >= 200 && code < 300:
		return weather.ConditionStorm
	case code >= 300 && code < 600:
		return weather.ConditionRain
	case code >= 600 && code < 700:
		return weather.ConditionSnow
	case code >= 700 && code < 800:
		return weather.ConditionMist
	case code == 800:
		return weather.ConditionClear
	case code > 800 && code < 900:
		return weather.ConditionCloudy
	default:
		return weather.ConditionUnknown
	}
}
