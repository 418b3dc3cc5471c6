package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/Carlos329173/AEMET/internal/logger"
)

// Refresher pulls a UTC range for one station from upstream into the cache.
type Refresher interface {
	Refresh(ctx context.Context, station string, startUTC, endUTC time.Time) (int, error)
}

// Scheduler periodically refreshes the most recent window of each station.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	stations  []string
	interval  time.Duration
	window    time.Duration
	timeout   time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a new Scheduler. window is how far back each run reaches.
func New(stations []string, interval, window time.Duration, refresher Refresher) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		stations:  stations,
		interval:  interval,
		window:    window,
		timeout:   2 * time.Minute,
		log:       logger.GetLogger("scheduler"),
		now:       time.Now,
	}
}

// Start schedules the warm-up job and starts the underlying scheduler.
// A zero interval disables it.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.log.Info().Msg("warm-up disabled")
		return nil
	}
	if len(s.stations) == 0 {
		s.log.Info().Msg("no stations configured; nothing to schedule")
		return nil
	}

	// SingletonMode skips a tick while the previous run is still going.
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.runOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info().
		Dur("interval", s.interval).
		Dur("window", s.window).
		Strs("stations", s.stations).
		Msg("warm-up scheduled")
	return nil
}

// runOnce refreshes [now-window, now] for every station concurrently.
func (s *Scheduler) runOnce(ctx context.Context) {
	end := s.now().UTC().Truncate(time.Second)
	start := end.Add(-s.window)
	s.log.Debug().Time("start", start).Time("end", end).Msg("running warm-up")

	var wg sync.WaitGroup
	for _, station := range s.stations {
		station := station
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			inserted, err := s.refresher.Refresh(ctx, station, start, end)
			if err != nil {
				s.log.Warn().Err(err).Str("station", station).Msg("warm-up refresh failed")
				return
			}
			s.log.Debug().Str("station", station).Int("inserted", inserted).Msg("warm-up refresh done")
		}()
	}
	wg.Wait()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
