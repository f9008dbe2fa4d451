package scraper

import (
	"context"
	"errors"

	"github.com/pricetracker/price-tracker/internal/browser"
	"github.com/pricetracker/price-tracker/internal/models"
	"github.com/pricetracker/price-tracker/internal/parser"
)

var (
	ErrNavigationTimeout = browser.ErrNavigationTimeout
	ErrChallengeDetected = errors.New("bot challenge detected")
	ErrExtractionFailure = errors.New("extraction failure")
	ErrRetriesExhausted  = errors.New("retries exhausted")
)

// Sink receives one batch per successful scrape attempt.
type Sink interface {
	InsertBatch(ctx context.Context, records []models.ProductRecord) error
}

type Detector interface {
	IsChallenged(page parser.ContentSource) (bool, error)
}

type IdentitySource interface {
	Next() string
}
