package worker

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler submits a mailbox poll job on a fixed interval. Polls run
// as pool jobs, so blocking IMAP I/O occupies one worker slot and the
// remaining workers keep processing messages.
type Scheduler struct {
	cron     *cron.Cron
	pool     *Pool
	interval time.Duration
	log      zerolog.Logger
}

func NewScheduler(pool *Pool, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 90 * time.Second
	}
	return &Scheduler{
		cron:     cron.New(),
		pool:     pool,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		if !s.pool.Submit(NewMessage(JobMailPoll, nil)) {
			s.log.Warn().Msg("poll job not submitted, pool not running")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule poll job: %w", err)
	}

	s.cron.Start()
	s.log.Info().Dur("interval", s.interval).Msg("poll scheduler started")

	// First poll right away instead of waiting out the interval.
	s.pool.Submit(NewMessage(JobMailPoll, nil))
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("poll scheduler stopped")
}
