package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pricetracker/price-tracker/internal/models"
	"github.com/pricetracker/price-tracker/internal/scraper"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, site models.SiteProfile, maxAttempts int) scraper.Result {
	args := m.Called(ctx, site, maxAttempts)
	return args.Get(0).(scraper.Result)
}

type MockClearer struct {
	mock.Mock
}

func (m *MockClearer) ClearAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type countingPacer struct {
	waits     atomic.Int32
	successes atomic.Int32
	errors    atomic.Int32
	err       error
}

func (p *countingPacer) Wait(context.Context) error {
	p.waits.Add(1)
	return p.err
}

func (p *countingPacer) RecordSuccess() { p.successes.Add(1) }
func (p *countingPacer) RecordError()   { p.errors.Add(1) }

var sites = []models.SiteProfile{
	{Key: "n11"},
	{Key: "hepsiburada"},
	{Key: "trendyol"},
}

func siteKey(key string) any {
	return mock.MatchedBy(func(s models.SiteProfile) bool { return s.Key == key })
}

func TestSweep_RunsEverySiteAfterClear(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	store := new(MockClearer)
	pacer := &countingPacer{}

	var cleared atomic.Bool
	store.On("ClearAll", ctx).Run(func(mock.Arguments) { cleared.Store(true) }).Return(nil).Once()

	runner.On("Run", ctx, siteKey("n11"), 3).Run(func(mock.Arguments) {
		assert.True(t, cleared.Load(), "store must be cleared before the first run")
	}).Return(scraper.Result{Site: "n11", State: scraper.StatePersisted, Attempts: 1, Records: 24}).Once()
	runner.On("Run", ctx, siteKey("hepsiburada"), 3).
		Return(scraper.Result{Site: "hepsiburada", State: scraper.StateChallenged, Attempts: 1, Err: scraper.ErrChallengeDetected}).Once()
	runner.On("Run", ctx, siteKey("trendyol"), 3).
		Return(scraper.Result{Site: "trendyol", State: scraper.StatePersisted, Attempts: 2, Records: 18}).Once()

	s := New(runner, store, pacer, sites, Config{MaxAttempts: 3}, nil)

	report, err := s.Sweep(ctx)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, "n11", report.Results[0].Site)
	assert.Equal(t, "trendyol", report.Results[2].Site)
	assert.Equal(t, 2, report.Persisted())
	assert.NotEqual(t, uuid.Nil, report.ID)

	assert.Equal(t, int32(3), pacer.waits.Load())
	assert.Equal(t, int32(2), pacer.successes.Load())
	assert.Equal(t, int32(1), pacer.errors.Load())

	runner.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestSweep_ExhaustedSiteDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	store := new(MockClearer)

	store.On("ClearAll", ctx).Return(nil)
	runner.On("Run", ctx, siteKey("n11"), 2).
		Return(scraper.Result{Site: "n11", State: scraper.StateExhausted, Attempts: 2, Err: scraper.ErrRetriesExhausted})
	runner.On("Run", ctx, siteKey("hepsiburada"), 2).
		Return(scraper.Result{Site: "hepsiburada", State: scraper.StateExhausted, Attempts: 2, Err: scraper.ErrRetriesExhausted})
	runner.On("Run", ctx, siteKey("trendyol"), 2).
		Return(scraper.Result{Site: "trendyol", State: scraper.StatePersisted, Attempts: 1})

	report, err := New(runner, store, nil, sites, Config{MaxAttempts: 2}, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.Persisted())
	runner.AssertNumberOfCalls(t, "Run", 3)
}

func TestSweep_ClearFailureSkipsRuns(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	store := new(MockClearer)

	store.On("ClearAll", ctx).Return(errors.New("connection refused"))

	_, err := New(runner, store, nil, sites, Config{}, nil).Sweep(ctx)
	assert.ErrorContains(t, err, "failed to clear store")
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_CanceledRunStopsSweep(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	store := new(MockClearer)

	store.On("ClearAll", ctx).Return(nil)
	runner.On("Run", ctx, siteKey("n11"), 3).
		Return(scraper.Result{Site: "n11", State: scraper.StateCanceled, Err: context.Canceled})

	report, err := New(runner, store, nil, sites, Config{}, nil).Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Results, 1)
	runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestSweep_PacerErrorStopsSweep(t *testing.T) {
	ctx := context.Background()
	runner := new(MockRunner)
	store := new(MockClearer)
	pacer := &countingPacer{err: context.DeadlineExceeded}

	store.On("ClearAll", ctx).Return(nil)

	_, err := New(runner, store, pacer, sites, Config{}, nil).Sweep(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_RunOnStartAndTicks(t *testing.T) {
	runner := new(MockRunner)
	store := new(MockClearer)

	var sweeps atomic.Int32
	store.On("ClearAll", mock.Anything).Run(func(mock.Arguments) { sweeps.Add(1) }).Return(nil)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(scraper.Result{State: scraper.StatePersisted})

	s := New(runner, store, nil, sites[:1], Config{Interval: 20 * time.Millisecond, RunOnStart: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Start(ctx)
	}()

	assert.Eventually(t, func() bool { return sweeps.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(nil, nil, nil, nil, Config{}, nil)
	assert.Equal(t, 6*time.Hour, s.cfg.Interval)
	assert.Equal(t, 3, s.cfg.MaxAttempts)
}
