package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/agri-assist/internal/apperr"
)

func TestOpenWeatherFoldsSlotsIntoDays(t *testing.T) {
	start := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) // 05:30 in Delhi
	var slots []string
	for i := 0; i < 16; i++ {
		dt := start.Add(time.Duration(i) * 3 * time.Hour)
		slots = append(slots, fmt.Sprintf(
			`{"dt":%d,"main":{"temp":%d,"temp_min":%d,"temp_max":%d,"humidity":55},"wind":{"speed":%d},"pop":%.2f,"weather":[{"id":500}]}`,
			dt.Unix(), 25+i, 20+i, 26+i, 2+i%2, float64(i)/20))
	}
	body := fmt.Sprintf(`{"list":[%s],"city":{"name":"Delhi","country":"IN","timezone":19800}}`, strings.Join(slots, ","))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "k" || r.URL.Query().Get("units") != "metric" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), "k", nil).WithBaseURL(srv.URL)
	p.httpCfg.Backoff = fastBackoff

	bundle, err := p.Fetch(context.Background(), "Delhi", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Location != "Delhi, IN" {
		t.Fatalf("unexpected location %q", bundle.Location)
	}
	if v, _ := bundle.Current.PrecipitationProbability.Get(); v != 0 {
		t.Fatalf("expected first slot pop 0, got %d", v)
	}
	// slots 0..6 fall on 2026-10-15 local (05:30..23:30), 7..14 on the 16th, 15 on the 17th
	if len(bundle.Daily) != 3 {
		t.Fatalf("expected 3 local days, got %d", len(bundle.Daily))
	}
	first := bundle.Daily[0]
	if lo, _ := first.TempMin.Get(); lo != 20 {
		t.Fatalf("expected min 20, got %v", lo)
	}
	if hi, _ := first.TempMax.Get(); hi != 32 {
		t.Fatalf("expected max 32, got %v", hi)
	}
	if rain, _ := first.RainChance.Get(); rain != 30 {
		t.Fatalf("expected max pop 30%%, got %d", rain)
	}
	if first.Condition != "rain" {
		t.Fatalf("expected rain condition, got %s", first.Condition)
	}
}

func TestOpenWeatherEmptyListIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"list":[]}`)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), "k", nil).WithBaseURL(srv.URL)
	if _, err := p.Fetch(context.Background(), "Delhi", 5); !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
