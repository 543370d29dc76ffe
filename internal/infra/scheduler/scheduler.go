// Package scheduler runs the progression engine's background jobs on a cron
// schedule in the configured timezone. The daily rollover purges quest rows
// left over from earlier days; fresh quests are rolled lazily on first access.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultRolloverSpec fires at local midnight.
const DefaultRolloverSpec = "0 0 * * *"

// QuestPurger deletes quest rows from days before today.
type QuestPurger interface {
	PurgeStaleQuests(ctx context.Context) (int64, error)
}

// Config configures the scheduler.
type Config struct {
	RolloverSpec string         // standard 5-field cron spec
	Location     *time.Location // default time.Local
}

// Scheduler owns the cron runner and its registered jobs.
type Scheduler struct {
	cron   *cron.Cron
	purger QuestPurger
	spec   string
}

// New validates the rollover spec and builds a scheduler. Jobs are not
// registered until Start.
func New(purger QuestPurger, cfg Config) (*Scheduler, error) {
	if cfg.RolloverSpec == "" {
		cfg.RolloverSpec = DefaultRolloverSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if _, err := cron.ParseStandard(cfg.RolloverSpec); err != nil {
		return nil, fmt.Errorf("rollover spec %q: %w", cfg.RolloverSpec, err)
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(cfg.Location)),
		purger: purger,
		spec:   cfg.RolloverSpec,
	}, nil
}

// Start registers the jobs and starts the cron runner. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		log.Info("[CRON] daily quest rollover")
		if _, err := s.Rollover(ctx); err != nil {
			log.WithError(err).Error("[CRON] quest rollover failed")
		}
	}); err != nil {
		return fmt.Errorf("register rollover: %w", err)
	}

	s.cron.Start()
	log.WithField("spec", s.spec).Info("scheduler started")
	return nil
}

// Rollover runs the daily quest purge once.
func (s *Scheduler) Rollover(ctx context.Context) (int64, error) {
	n, err := s.purger.PurgeStaleQuests(ctx)
	if err != nil {
		return 0, err
	}
	log.WithField("deleted", n).Info("stale quests purged")
	return n, nil
}

// Next returns when the rollover fires next, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("scheduler stopped")
}
