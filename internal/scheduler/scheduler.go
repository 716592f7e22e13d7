package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Forecaster keeps forecasts for a location warm.
type Forecaster interface {
	Warm(ctx context.Context, location string, days int) error
	PurgeExpired() int
}

// Purger drops stale entries and reports how many went.
type Purger interface {
	PurgeIdle() int
}

// Scheduler periodically refreshes forecasts for configured locations and
// drops expired cache entries and idle conversations.
type Scheduler struct {
	scheduler     *gocron.Scheduler
	forecasts     Forecaster
	conversations Purger
	locations     []string
	days          int
	interval      time.Duration
	timeout       time.Duration
}

// New creates a new Scheduler.
func New(locations []string, days int, interval, timeout time.Duration, forecasts Forecaster, conversations Purger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		scheduler:     s,
		forecasts:     forecasts,
		conversations: conversations,
		locations:     locations,
		days:          days,
		interval:      interval,
		timeout:       timeout,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	if _, err := s.scheduler.Every(minutes).Minutes().Do(s.housekeeping); err != nil {
		return err
	}
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; only housekeeping is scheduled")
	} else if _, err := s.scheduler.Every(minutes).Minutes().Do(s.warm); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) warm() {
	log.Println("scheduler: running forecast warm-up job")

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			if err := s.forecasts.Warm(ctx, loc, s.days); err != nil {
				log.Printf("scheduler: warm-up failed for %s: %v", loc, err)
			}
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed forecast warm-up job")
}

func (s *Scheduler) housekeeping() {
	expired := s.forecasts.PurgeExpired()
	idle := 0
	if s.conversations != nil {
		idle = s.conversations.PurgeIdle()
	}
	if expired > 0 || idle > 0 {
		log.Printf("scheduler: purged %d expired forecasts and %d idle conversations", expired, idle)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
