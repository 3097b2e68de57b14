package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"cvbuilder/api/internal/repository"
)

const DefaultSweepSchedule = "0 */5 * * * *"

// Scheduler runs the idle-session sweep. The storage adapter never expires
// sessions on its own; this is the only caller of MarkIdleSessionsInactive.
type Scheduler struct {
	cron        *cron.Cron
	store       repository.SessionStore
	idleTimeout time.Duration
	schedule    string
	now         func() time.Time
	log         zerolog.Logger
}

func NewScheduler(store repository.SessionStore, schedule string, idleTimeout time.Duration, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		store:       store,
		idleTimeout: idleTimeout,
		schedule:    schedule,
		now:         time.Now,
		log:         log,
	}
}

func (s *Scheduler) Start() error {
	if s.store == nil || s.store.Kind() == "null" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweepIdle); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		<-s.cron.Stop().Done()
		cancel()
	}()
	return func() {
		<-ctx.Done()
	}
}

func (s *Scheduler) sweepIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.SweepIdle(ctx); err != nil {
		s.log.Error().Err(err).Msg("idle session sweep failed")
	}
}

// SweepIdle marks sessions idle for longer than the idle timeout inactive.
func (s *Scheduler) SweepIdle(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.idleTimeout)
	n, err := s.store.MarkIdleSessionsInactive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("sessions", n).Time("cutoff", cutoff).Msg("idle sessions marked inactive")
	}
	return n, nil
}
