// Package scheduler runs periodic sweeps: clear the store, then scrape every
// configured site in turn.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pricetracker/price-tracker/internal/models"
	"github.com/pricetracker/price-tracker/internal/scraper"
)

type Runner interface {
	Run(ctx context.Context, site models.SiteProfile, maxAttempts int) scraper.Result
}

type Clearer interface {
	ClearAll(ctx context.Context) error
}

// Pacer spaces site runs. ratelimit.AdaptiveRateLimiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

type Config struct {
	Interval    time.Duration
	RunOnStart  bool
	MaxAttempts int
}

type Scheduler struct {
	runner Runner
	store  Clearer
	pacer  Pacer
	sites  []models.SiteProfile
	cfg    Config
	logger *slog.Logger
}

// SweepReport describes one completed sweep.
type SweepReport struct {
	ID       uuid.UUID
	Started  time.Time
	Duration time.Duration
	Results  []scraper.Result
}

func (r SweepReport) Persisted() int {
	n := 0
	for _, res := range r.Results {
		if res.State == scraper.StatePersisted {
			n++
		}
	}
	return n
}

func New(runner Runner, store Clearer, pacer Pacer, sites []models.SiteProfile, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner: runner,
		store:  store,
		pacer:  pacer,
		sites:  sites,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
	}
}

// Start sweeps every Interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"sites", len(s.sites),
		"run_on_start", s.cfg.RunOnStart)

	if s.cfg.RunOnStart {
		s.sweepAndLog(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("sweep failed", "error", err)
	}
}

// Sweep clears the store and runs every site once. A site that fails does not
// stop the sweep. An error is returned only when the store cannot be cleared
// or ctx ends the sweep early.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{ID: uuid.New(), Started: time.Now()}
	logger := s.logger.With("sweep_id", report.ID)

	if err := s.store.ClearAll(ctx); err != nil {
		return report, fmt.Errorf("failed to clear store: %w", err)
	}

	logger.Info("sweep started", "sites", len(s.sites))

	for _, site := range s.sites {
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				report.Duration = time.Since(report.Started)
				return report, err
			}
		}

		res := s.runner.Run(ctx, site, s.cfg.MaxAttempts)
		report.Results = append(report.Results, res)

		if res.State == scraper.StateCanceled {
			report.Duration = time.Since(report.Started)
			return report, res.Err
		}

		if s.pacer != nil {
			if res.State == scraper.StatePersisted {
				s.pacer.RecordSuccess()
			} else {
				s.pacer.RecordError()
			}
		}

		logger.Info("site finished",
			"site", res.Site,
			"state", res.State,
			"attempts", res.Attempts,
			"records", res.Records)
	}

	report.Duration = time.Since(report.Started)
	logger.Info("sweep completed",
		"duration", report.Duration,
		"persisted_sites", report.Persisted(),
		"total_sites", len(s.sites))

	return report, nil
}
