package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pricetracker/price-tracker/internal/browser"
	"github.com/pricetracker/price-tracker/internal/models"
)

const DefaultConcurrency = 10

// State is a node of the per-run state machine:
//
//	Idle -> Navigating -> Challenged
//	                   -> Extracting -> Persisted
//	                   -> Failed -> Navigating | Exhausted
type State string

const (
	StateIdle       State = "idle"
	StateNavigating State = "navigating"
	StateExtracting State = "extracting"
	StateFailed     State = "failed"
	StateChallenged State = "challenged"
	StatePersisted  State = "persisted"
	StateExhausted  State = "exhausted"
	StateCanceled   State = "canceled"
)

func (s State) Terminal() bool {
	switch s {
	case StateChallenged, StatePersisted, StateExhausted, StateCanceled:
		return true
	}
	return false
}

type Options struct {
	Concurrency       int
	NavigationTimeout time.Duration
	RetryDelay        time.Duration
}

// Result summarises one Run. Err holds the error of the last failed attempt,
// or ErrChallengeDetected / ErrRetriesExhausted for those outcomes.
type Result struct {
	Site     string
	State    State
	Attempts int
	Records  int
	Err      error
}

type Orchestrator struct {
	launcher   browser.Launcher
	identities IdentitySource
	detector   Detector
	extractor  *Extractor
	sink       Sink
	opts       Options
	logger     *slog.Logger
}

func NewOrchestrator(launcher browser.Launcher, identities IdentitySource, detector Detector, extractor *Extractor, sink Sink, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		launcher:   launcher,
		identities: identities,
		detector:   detector,
		extractor:  extractor,
		sink:       sink,
		opts:       opts,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run scrapes one site, retrying whole attempts up to maxAttempts. It does not
// return an error: every failure is terminal for this site only and is
// reported through the Result and the log.
func (o *Orchestrator) Run(ctx context.Context, site models.SiteProfile, maxAttempts int) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	res := Result{Site: site.Key, State: StateIdle}
	logger := o.logger.With("site", site.Key)

	for !res.State.Terminal() {
		switch res.State {
		case StateIdle, StateFailed:
			if err := ctx.Err(); err != nil {
				res.State, res.Err = StateCanceled, err
				continue
			}
			if res.Attempts >= maxAttempts {
				res.State = StateExhausted
				res.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, res.Attempts, res.Err)
				logger.Error("scrape retries exhausted", "attempts", res.Attempts, "error", res.Err)
				continue
			}
			if res.State == StateFailed && o.opts.RetryDelay > 0 {
				if err := sleep(ctx, o.opts.RetryDelay*time.Duration(res.Attempts)); err != nil {
					res.State, res.Err = StateCanceled, err
					continue
				}
			}
			res.Attempts++
			res.State = StateNavigating

		case StateNavigating:
			logger.Info("scrape attempt started", "attempt", res.Attempts, "max_attempts", maxAttempts)
			records, state, err := o.attempt(ctx, site, logger.With("attempt", res.Attempts))
			res.State, res.Records, res.Err = state, records, err

		default:
			res.State = StateFailed
			res.Err = fmt.Errorf("unexpected state %q", res.State)
		}
	}

	return res
}

// attempt performs one session's worth of work. The session is released
// before attempt returns, whatever the outcome.
func (o *Orchestrator) attempt(ctx context.Context, site models.SiteProfile, logger *slog.Logger) (records int, state State, err error) {
	session, err := o.launcher.Acquire(ctx, o.identities.Next())
	if err != nil {
		logger.Error("failed to acquire session", "error", err)
		return 0, StateFailed, fmt.Errorf("failed to acquire session: %w", err)
	}
	defer func() {
		if relErr := session.Release(); relErr != nil {
			logger.Warn("failed to release session", "error", relErr)
		}
	}()

	page := session.Page()
	if err := page.Navigate(ctx, site.SearchURL, browser.NavigateOptions{
		WaitUntil: browser.WaitNetworkIdle,
		Timeout:   o.opts.NavigationTimeout,
	}); err != nil {
		logger.Error("navigation failed", "url", site.SearchURL, "error", err)
		return 0, StateFailed, err
	}

	challenged, err := o.detector.IsChallenged(page)
	if err != nil {
		logger.Error("challenge check failed", "error", err)
		return 0, StateFailed, err
	}
	if challenged {
		logger.Warn("bot challenge detected", "url", site.SearchURL)
		return 0, StateChallenged, ErrChallengeDetected
	}

	batch, err := o.extractAll(ctx, site, session)
	if errors.Is(err, ErrChallengeDetected) {
		logger.Warn("bot challenge detected", "error", err)
		return 0, StateChallenged, err
	}
	if err != nil {
		logger.Error("extraction failed", "error", err)
		return 0, StateFailed, err
	}

	if err := o.sink.InsertBatch(ctx, batch); err != nil {
		logger.Error("failed to persist batch", "records", len(batch), "error", err)
		return 0, StateFailed, fmt.Errorf("failed to persist batch: %w", err)
	}

	logger.Info("scrape completed", "records", len(batch))
	return len(batch), StatePersisted, nil
}

// extractAll extracts every listing with at most opts.Concurrency extractions
// in flight. The returned slice keeps DOM order. The first listing error
// cancels the rest and fails the attempt.
func (o *Orchestrator) extractAll(ctx context.Context, site models.SiteProfile, session browser.Session) ([]models.ProductRecord, error) {
	nodes, err := session.Page().QueryAll(site.Locators.ProductList)
	if err != nil {
		return nil, fmt.Errorf("%w: listing lookup: %v", ErrExtractionFailure, err)
	}

	records := make([]models.ProductRecord, len(nodes))
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	var admitErr error
	for i, node := range nodes {
		if err := sem.Acquire(gctx, 1); err != nil {
			admitErr = err
			break
		}

		g.Go(func() (err error) {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: listing %d panicked: %v", ErrExtractionFailure, i, r)
				}
			}()

			rec, err := o.extractor.ExtractListing(gctx, node, site, session)
			if err != nil {
				return fmt.Errorf("listing %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if admitErr != nil {
		return nil, admitErr
	}

	return records, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
