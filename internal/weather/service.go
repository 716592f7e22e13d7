package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/cache"
)

// FailureObserver is notified when a provider fails a fetch.
type FailureObserver interface {
	ProviderFailure(provider string)
}

// Service resolves forecasts through an ordered provider list and memoizes them.
type Service struct {
	providers []Provider
	cache     *cache.TTL[ForecastBundle]
	timeout   time.Duration
	obs       FailureObserver
}

// NewService creates a new Service. Providers are tried in order; the first
// success wins. Results are cached for ttl (ttl <= 0 disables expiry).
func NewService(providers []Provider, ttl, timeout time.Duration, cacheObs cache.Observer, obs FailureObserver) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		providers: providers,
		cache:     cache.New[ForecastBundle]("weather.forecast", ttl, cacheObs),
		timeout:   timeout,
		obs:       obs,
	}
}

// Forecast returns the normalized bundle for location with at most days daily entries.
// days <= 0 selects DefaultHorizon.
func (s *Service) Forecast(ctx context.Context, location string, days int) (ForecastBundle, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return ForecastBundle{}, apperr.Input("location is required")
	}
	if days <= 0 {
		days = DefaultHorizon
	}

	// the fetch is shared by every caller waiting on key, so one caller
	// canceling must not fail the others; per-provider timeouts bound it
	shared := context.WithoutCancel(ctx)
	key := cache.Key("weather.forecast", location, strconv.Itoa(days))
	return s.cache.GetOrCompute(key, func() (ForecastBundle, error) {
		return s.fetch(shared, location, days)
	})
}

// Warm fetches location into the cache unless a fresh entry already exists.
func (s *Service) Warm(ctx context.Context, location string, days int) error {
	_, err := s.Forecast(ctx, location, days)
	return err
}

// PurgeExpired drops expired cached forecasts.
func (s *Service) PurgeExpired() int {
	return s.cache.PurgeExpired()
}

func (s *Service) fetch(ctx context.Context, location string, days int) (ForecastBundle, error) {
	log.Printf("DEBUG: fetching forecast for %q (%d days) from %d providers", location, days, len(s.providers))
	if len(s.providers) == 0 {
		log.Printf("ERROR: no providers available to fetch weather data for %q", location)
		return ForecastBundle{}, apperr.Providerf("", "no weather providers configured")
	}

	var errs []error
	for _, p := range s.providers {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		bundle, err := p.Fetch(pctx, location, days)
		cancel()
		if err != nil {
			log.Printf("provider %s forecast failed for %q: %v", p.Name(), location, err)
			if s.obs != nil {
				s.obs.ProviderFailure(p.Name())
			}
			errs = append(errs, err)
			continue
		}
		if bundle.Location == "" {
			bundle.Location = location
		}
		bundle.Daily = TrimDaily(bundle.Daily, days)
		return bundle, nil
	}

	return ForecastBundle{}, &apperr.ProviderError{
		Err: fmt.Errorf("all providers failed for %q: %w", location, errors.Join(errs...)),
	}
}

// TrimDaily orders entries by ascending date and keeps at most days of them.
// The input slice is not modified.
func TrimDaily(daily []DailyForecast, days int) []DailyForecast {
	out := make([]DailyForecast, len(daily))
	copy(out, daily)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date.Time)
	})
	if days >= 0 && len(out) > days {
		out = out[:days]
	}
	return out
}
