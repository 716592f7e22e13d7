package weather

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/agri-assist/internal/apperr"
)

type stubProvider struct {
	name   string
	err    error
	daily  int
	calls  atomic.Int32
	gotDay int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(_ context.Context, location string, days int) (ForecastBundle, error) {
	s.calls.Add(1)
	s.gotDay = days
	if s.err != nil {
		return ForecastBundle{}, s.err
	}
	b := ForecastBundle{Provider: s.name, Current: Snapshot{Temperature: Of(30.0)}}
	for i := s.daily - 1; i >= 0; i-- {
		b.Daily = append(b.Daily, DailyForecast{Date: NewDate(time.Date(2026, 10, 15+i, 0, 0, 0, 0, time.UTC))})
	}
	return b, nil
}

type failureCounter struct{ n atomic.Int32 }

func (f *failureCounter) ProviderFailure(string) { f.n.Add(1) }

func TestForecastFailsOverToNextProvider(t *testing.T) {
	broken := &stubProvider{name: "a", err: apperr.Providerf("a", "down")}
	healthy := &stubProvider{name: "b", daily: 10}
	failures := &failureCounter{}
	svc := NewService([]Provider{broken, healthy}, time.Hour, time.Second, nil, failures)

	bundle, err := svc.Forecast(context.Background(), "Delhi", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Provider != "b" || bundle.Location != "Delhi" {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
	if len(bundle.Daily) != 5 {
		t.Fatalf("expected truncation to 5 days, got %d", len(bundle.Daily))
	}
	if failures.n.Load() != 1 {
		t.Fatalf("expected one recorded failure, got %d", failures.n.Load())
	}
}

func TestForecastAllProvidersFailing(t *testing.T) {
	cause := errors.New("dns")
	svc := NewService([]Provider{
		&stubProvider{name: "a", err: apperr.Provider("a", cause)},
		&stubProvider{name: "b", err: apperr.Providerf("b", "401")},
	}, time.Hour, time.Second, nil, nil)

	_, err := svc.Forecast(context.Background(), "Delhi", 5)
	if !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected every provider cause to be kept, got %v", err)
	}
}

func TestForecastIsMemoizedPerLocationAndHorizon(t *testing.T) {
	p := &stubProvider{name: "a", daily: 7}
	svc := NewService([]Provider{p}, time.Hour, time.Second, nil, nil)
	ctx := context.Background()

	for _, loc := range []string{"Delhi", " delhi ", "DELHI"} {
		if _, err := svc.Forecast(ctx, loc, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected one provider call for equivalent locations, got %d", p.calls.Load())
	}

	if _, err := svc.Forecast(ctx, "Delhi", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("expected a different horizon to miss the cache, got %d calls", p.calls.Load())
	}
}

func TestForecastDefaultsAndValidation(t *testing.T) {
	p := &stubProvider{name: "a", daily: 10}
	svc := NewService([]Provider{p}, time.Hour, time.Second, nil, nil)

	bundle, err := svc.Forecast(context.Background(), "Delhi", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.gotDay != DefaultHorizon || len(bundle.Daily) != DefaultHorizon {
		t.Fatalf("expected default horizon %d, got request=%d len=%d", DefaultHorizon, p.gotDay, len(bundle.Daily))
	}

	if _, err := svc.Forecast(context.Background(), "   ", 5); !apperr.IsInput(err) {
		t.Fatalf("expected input error for blank location, got %v", err)
	}
}

func TestNoProvidersConfigured(t *testing.T) {
	svc := NewService(nil, time.Hour, time.Second, nil, nil)
	if _, err := svc.Forecast(context.Background(), "Delhi", 5); !apperr.IsProvider(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTrimDailyOrdersWithoutMutating(t *testing.T) {
	in := []DailyForecast{
		{Date: NewDate(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))},
		{Date: NewDate(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))},
		{Date: NewDate(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))},
	}
	out := TrimDaily(in, 2)
	if len(out) != 2 || out[0].Date.String() != "2026-10-15" || out[1].Date.String() != "2026-10-16" {
		t.Fatalf("unexpected trim result %v", out)
	}
	if in[0].Date.String() != "2026-10-17" {
		t.Fatalf("input slice was reordered")
	}
}

func TestFieldUnavailableMarker(t *testing.T) {
	var humidity Field[int]
	b, err := humidity.MarshalJSON()
	if err != nil || string(b) != "null" {
		t.Fatalf("expected null, got %s %v", b, err)
	}
	if humidity.String() != Unavailable {
		t.Fatalf("expected %q, got %q", Unavailable, humidity.String())
	}
	if humidity.AtLeast(0) || humidity.AtMost(100) {
		t.Fatalf("unavailable values must not satisfy comparisons")
	}
	if got := Percent(Of(130)); got != Of(100) {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
}

type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Fetch(ctx context.Context, location string, days int) (ForecastBundle, error) {
	if p.calls.Add(1) == 1 {
		close(p.entered)
	}
	<-p.release
	if err := ctx.Err(); err != nil {
		return ForecastBundle{}, err
	}
	return ForecastBundle{Provider: "blocking"}, nil
}

func TestCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	p := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService([]Provider{p}, time.Hour, 5*time.Second, nil, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Forecast(firstCtx, "Delhi", 5)
		firstDone <- err
	}()
	<-p.entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.Forecast(context.Background(), "Delhi", 5)
		secondDone <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	close(p.release)

	if err := <-secondDone; err != nil {
		t.Fatalf("waiting caller failed because another caller canceled: %v", err)
	}
	<-firstDone
	if p.calls.Load() != 1 {
		t.Fatalf("expected one shared fetch, got %d", p.calls.Load())
	}
}
