package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrSessionReleased   = errors.New("session already released")
)

// WaitCondition is the page-load signal a navigation waits for.
type WaitCondition string

const (
	WaitNetworkIdle      WaitCondition = "networkidle"
	WaitLoad             WaitCondition = "load"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
)

type NavigateOptions struct {
	WaitUntil WaitCondition
	Timeout   time.Duration
}

// Element is a DOM node handle. Query returns a nil Element and a nil error
// when nothing matches.
type Element interface {
	Query(selector string) (Element, error)
	InnerText() (string, error)
	// Href returns the resolved link target, or "" when the node has none.
	Href() (string, error)
	// Value returns the node's value property, or "" when the node has none.
	Value() (string, error)
}

type Page interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	Content() (string, error)
	Query(selector string) (Element, error)
	QueryAll(selector string) ([]Element, error)
	Close() error
}

// Session is one isolated browser process with its pages. It belongs to a
// single scrape attempt and is never shared.
type Session interface {
	Identity() string
	// Page is the main page opened by Acquire.
	Page() Page
	// OpenTab opens another page with the same identity and request filtering.
	OpenTab() (Page, error)
	// Release closes every open page, then the session. Safe to call more than once.
	Release() error
}

type Launcher interface {
	Acquire(ctx context.Context, identity string) (Session, error)
}

// WithTab opens a tab on s, runs fn and closes the tab on every return path.
func WithTab(s Session, fn func(Page) error) (err error) {
	page, err := s.OpenTab()
	if err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}

	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close tab: %w", closeErr))
		}
	}()

	return fn(page)
}

// blockedResourceTypes are aborted at the network layer.
var blockedResourceTypes = map[string]bool{
	"image":      true,
	"stylesheet": true,
	"font":       true,
}

func ShouldBlock(resourceType string) bool {
	return blockedResourceTypes[resourceType]
}
