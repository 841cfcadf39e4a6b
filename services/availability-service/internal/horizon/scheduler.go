package horizon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher rolls every configured provider's slot window forward.
type Refresher interface {
	RefreshHorizon(ctx context.Context) (int, error)
}

// Purger drops delivered outbox rows older than the cutoff.
type Purger interface {
	PurgePublished(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config holds five-field cron expressions evaluated in UTC. An empty
// PurgeSpec disables outbox cleanup.
type Config struct {
	RefreshSpec     string
	PurgeSpec       string
	OutboxRetention time.Duration
	JobTimeout      time.Duration
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	purger    Purger
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func New(refresher Refresher, purger Purger, logger *slog.Logger, cfg Config) (*Scheduler, error) {
	if cfg.RefreshSpec == "" {
		cfg.RefreshSpec = "5 0 * * *"
	}
	if cfg.OutboxRetention <= 0 {
		cfg.OutboxRetention = 7 * 24 * time.Hour
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		refresher: refresher,
		purger:    purger,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.RefreshSpec, func() { s.refresh(context.Background()) }); err != nil {
		return nil, fmt.Errorf("horizon refresh schedule %q: %w", cfg.RefreshSpec, err)
	}
	if cfg.PurgeSpec != "" && purger != nil {
		if _, err := s.cron.AddFunc(cfg.PurgeSpec, func() { s.purge(context.Background()) }); err != nil {
			return nil, fmt.Errorf("outbox purge schedule %q: %w", cfg.PurgeSpec, err)
		}
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("horizon scheduler started", "refresh", s.cfg.RefreshSpec, "purge", s.cfg.PurgeSpec)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("horizon scheduler stopped")
}

// Entries lists the next activation time of every registered job.
func (s *Scheduler) Entries() []time.Time {
	var next []time.Time
	for _, e := range s.cron.Entries() {
		next = append(next, e.Schedule.Next(s.now().UTC()))
	}
	return next
}

func (s *Scheduler) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	started := s.now()
	n, err := s.refresher.RefreshHorizon(ctx)
	if err != nil {
		s.logger.Error("horizon refresh finished with errors", "refreshed", n, "err", err)
		return
	}
	s.logger.Info("horizon refreshed", "providers", n, "took", s.now().Sub(started).String())
}

func (s *Scheduler) purge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	n, err := s.purger.PurgePublished(ctx, s.now().Add(-s.cfg.OutboxRetention))
	if err != nil {
		s.logger.Error("outbox purge failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("outbox purged", "rows", n)
	}
}
