package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/agri-assist/internal/apperr"
)

var fastBackoff = BackoffConfig{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

// tomorrowBody builds a payload with n daily entries listed newest first so
// ordering is exercised too.
func tomorrowBody(n int, hourly string) string {
	var daily []string
	for i := n - 1; i >= 0; i-- {
		day := time.Date(2026, 10, 15+i, 0, 0, 0, 0, time.UTC)
		daily = append(daily, fmt.Sprintf(`{"time":%q,"values":{"temperatureMin":%d,"temperatureMax":%d,"precipitationProbabilityAvg":%d,"windSpeedAvg":3.5,"weatherCodeMax":1000}}`,
			day.Format(time.RFC3339), 20+i, 30+i, 10*i))
	}
	return fmt.Sprintf(`{"timelines":{"hourly":[%s],"daily":[%s]},"location":{"name":"Delhi, India"}}`,
		hourly, strings.Join(daily, ","))
}

const delhiHour = `{"time":"2026-10-15T08:00:00Z","values":{"temperature":31.2,"humidity":48,"windSpeed":4.1,"precipitationProbability":75,"weatherCode":4001}}`

func newTestTomorrow(t *testing.T, handler http.HandlerFunc) *TomorrowProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewTomorrowProvider(srv.Client(), "test-key", nil).WithBaseURL(srv.URL)
	p.httpCfg.Backoff = fastBackoff
	return p
}

func TestTomorrowFetchNormalizesAndTruncates(t *testing.T) {
	p := newTestTomorrow(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("location") != "Delhi" || q.Get("units") != "metric" || q.Get("apikey") != "test-key" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("timesteps") != "1h,1d" {
			t.Errorf("expected hourly and daily timesteps, got %q", q.Get("timesteps"))
		}
		fmt.Fprint(w, tomorrowBody(10, delhiHour))
	})

	bundle, err := p.Fetch(context.Background(), "Delhi", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Location != "Delhi, India" || bundle.Provider != "tomorrow.io" {
		t.Fatalf("unexpected bundle header %+v", bundle)
	}
	if v, ok := bundle.Current.PrecipitationProbability.Get(); !ok || v != 75 {
		t.Fatalf("expected precipitation 75, got %v", bundle.Current.PrecipitationProbability)
	}
	if bundle.Current.Condition != "rain" {
		t.Fatalf("expected rain condition, got %s", bundle.Current.Condition)
	}
	if len(bundle.Daily) != 5 {
		t.Fatalf("expected 5 daily entries, got %d", len(bundle.Daily))
	}
	for i := 1; i < len(bundle.Daily); i++ {
		if !bundle.Daily[i-1].Date.Before(bundle.Daily[i].Date.Time) {
			t.Fatalf("daily entries not ascending: %v then %v", bundle.Daily[i-1].Date, bundle.Daily[i].Date)
		}
	}
	if got := bundle.Daily[0].Date.String(); got != "2026-10-15" {
		t.Fatalf("expected first day 2026-10-15, got %s", got)
	}
}

func TestTomorrowMissingFieldIsUnavailable(t *testing.T) {
	hour := `{"time":"2026-10-15T08:00:00Z","values":{"temperature":31.2,"windSpeed":4.1,"precipitationProbability":10}}`
	p := newTestTomorrow(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tomorrowBody(3, hour))
	})

	bundle, err := p.Fetch(context.Background(), "Delhi", 5)
	if err != nil {
		t.Fatalf("missing humidity must not fail the request: %v", err)
	}
	if bundle.Current.Humidity.Valid() {
		t.Fatalf("expected humidity to be unavailable")
	}
	if got := bundle.Current.Humidity.String(); got != "N/A" {
		t.Fatalf("expected N/A marker, got %q", got)
	}
	if len(bundle.Daily) != 3 {
		t.Fatalf("expected all 3 available days, got %d", len(bundle.Daily))
	}
}

func TestTomorrowMissingTimelineIsProviderError(t *testing.T) {
	p := newTestTomorrow(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"timelines":{"hourly":[%s]}}`, delhiHour)
	})

	_, err := p.Fetch(context.Background(), "Delhi", 5)
	if !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTomorrowErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		p := NewTomorrowProvider(http.DefaultClient, "", nil)
		if _, err := p.Fetch(context.Background(), "Delhi", 5); !apperr.IsProvider(err) {
			t.Fatalf("expected provider error, got %v", err)
		}
	})

	t.Run("server error retried", func(t *testing.T) {
		var calls atomic.Int32
		p := newTestTomorrow(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		if _, err := p.Fetch(context.Background(), "Delhi", 5); !apperr.IsProvider(err) {
			t.Fatalf("expected provider error, got %v", err)
		}
		if calls.Load() != 2 {
			t.Fatalf("expected one retry, got %d calls", calls.Load())
		}
	})

	t.Run("client error not retried", func(t *testing.T) {
		var calls atomic.Int32
		p := newTestTomorrow(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		})
		if _, err := p.Fetch(context.Background(), "Delhi", 5); !apperr.IsProvider(err) {
			t.Fatalf("expected provider error, got %v", err)
		}
		if calls.Load() != 1 {
			t.Fatalf("expected a single call, got %d", calls.Load())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		p := newTestTomorrow(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"timelines":`)
		})
		if _, err := p.Fetch(context.Background(), "Delhi", 5); !apperr.IsProvider(err) {
			t.Fatalf("expected provider error, got %v", err)
		}
	})
}
