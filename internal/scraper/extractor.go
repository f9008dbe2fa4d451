package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/pricetracker/price-tracker/internal/browser"
	"github.com/pricetracker/price-tracker/internal/models"
)

const defaultDetailTimeout = 60 * time.Second

// Extractor reads one product record out of a listing node.
type Extractor struct {
	detector      Detector
	detailTimeout time.Duration
	logger        *slog.Logger
}

// NewExtractor returns an extractor. detector may be nil, in which case detail
// pages opened for the seller fallback are not checked for challenges.
func NewExtractor(detector Detector, detailTimeout time.Duration, logger *slog.Logger) *Extractor {
	if detailTimeout <= 0 {
		detailTimeout = defaultDetailTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		detector:      detector,
		detailTimeout: detailTimeout,
		logger:        logger.With("component", "extractor"),
	}
}

// ExtractListing never fails because a field is missing; missing fields are
// set to models.Unavailable. Errors mean the DOM or browser misbehaved.
func (e *Extractor) ExtractListing(ctx context.Context, node browser.Element, site models.SiteProfile, session browser.Session) (models.ProductRecord, error) {
	rec := models.NewProductRecord(site.Key)
	loc := site.Locators

	var err error
	if rec.Name, err = lookup(node, loc.Name, collapsedText); err != nil {
		return rec, fmt.Errorf("%w: name: %v", ErrExtractionFailure, err)
	}
	if rec.Price, err = lookup(node, loc.Price, trimmedText); err != nil {
		return rec, fmt.Errorf("%w: price: %v", ErrExtractionFailure, err)
	}
	if rec.DetailURL, err = lookup(node, loc.DetailURL, linkTarget); err != nil {
		return rec, fmt.Errorf("%w: detail url: %v", ErrExtractionFailure, err)
	}
	if rec.Seller, err = lookup(node, loc.Seller, trimmedValue); err != nil {
		return rec, fmt.Errorf("%w: seller: %v", ErrExtractionFailure, err)
	}

	if rec.Seller == models.Unavailable && isResolvable(rec.DetailURL) {
		seller, err := e.sellerFromDetailPage(ctx, session, rec.DetailURL, loc.Seller)
		if err != nil {
			return rec, err
		}
		rec.Seller = seller
	}

	return rec, nil
}

func (e *Extractor) sellerFromDetailPage(ctx context.Context, session browser.Session, detailURL, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	seller := models.Unavailable
	err := browser.WithTab(session, func(page browser.Page) error {
		if err := page.Navigate(ctx, detailURL, browser.NavigateOptions{
			WaitUntil: browser.WaitNetworkIdle,
			Timeout:   e.detailTimeout,
		}); err != nil {
			return err
		}

		if e.detector != nil {
			challenged, err := e.detector.IsChallenged(page)
			if err != nil {
				return fmt.Errorf("%w: detail page check: %v", ErrExtractionFailure, err)
			}
			if challenged {
				return fmt.Errorf("%w: on detail page %s", ErrChallengeDetected, detailURL)
			}
		}

		el, err := page.Query(selector)
		if err != nil {
			return fmt.Errorf("%w: detail seller: %v", ErrExtractionFailure, err)
		}
		if el == nil {
			return nil
		}

		text, err := trimmedText(el)
		if err != nil {
			return fmt.Errorf("%w: detail seller: %v", ErrExtractionFailure, err)
		}
		seller = orUnavailable(text)
		return nil
	})
	if err != nil {
		return models.Unavailable, err
	}

	e.logger.Debug("seller resolved from detail page", "url", detailURL, "seller", seller)
	return seller, nil
}

// lookup finds selector under node and reads it with read. A missing node
// collapses to models.Unavailable.
func lookup(node browser.Element, selector string, read func(browser.Element) (string, error)) (string, error) {
	el, err := node.Query(selector)
	if err != nil {
		return "", err
	}
	if el == nil {
		return models.Unavailable, nil
	}
	return read(el)
}

func collapsedText(el browser.Element) (string, error) {
	text, err := el.InnerText()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func trimmedText(el browser.Element) (string, error) {
	text, err := el.InnerText()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func linkTarget(el browser.Element) (string, error) {
	href, err := el.Href()
	if err != nil {
		return "", err
	}
	return orUnavailable(strings.TrimSpace(href)), nil
}

// trimmedValue reads the value property. An element without one counts as
// missing so the detail-page fallback can still run.
func trimmedValue(el browser.Element) (string, error) {
	value, err := el.Value()
	if err != nil {
		return "", err
	}
	return orUnavailable(strings.TrimSpace(value)), nil
}

func orUnavailable(s string) string {
	if s == "" {
		return models.Unavailable
	}
	return s
}

func isResolvable(link string) bool {
	if link == "" || link == models.Unavailable {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
