package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pricetracker/price-tracker/internal/browser"
	"github.com/pricetracker/price-tracker/internal/models"
	"github.com/pricetracker/price-tracker/internal/parser"
)

var testSite = models.SiteProfile{
	Key:       "shop",
	BaseURL:   "https://shop.example.com",
	SearchURL: "https://shop.example.com/search?q=macbook",
	Locators: models.Locators{
		ProductList: ".item",
		Name:        ".name",
		Price:       ".price",
		DetailURL:   "a",
		Seller:      ".seller",
	},
}

type fakeElement struct {
	children map[string]*fakeElement
	text     string
	href     string
	value    string
	readErr  error
}

func (e *fakeElement) Query(selector string) (browser.Element, error) {
	if e.readErr != nil {
		return nil, e.readErr
	}
	child, ok := e.children[selector]
	if !ok {
		return nil, nil
	}
	return child, nil
}

func (e *fakeElement) InnerText() (string, error) { return e.text, e.readErr }
func (e *fakeElement) Href() (string, error)      { return e.href, e.readErr }
func (e *fakeElement) Value() (string, error)     { return e.value, e.readErr }

type listingFixture struct {
	name, price, href, sellerValue string
	noName, noPrice, noLink       bool
	noSeller                      bool
}

func newListing(s listingFixture) *fakeElement {
	children := map[string]*fakeElement{}
	if !s.noName {
		children[".name"] = &fakeElement{text: s.name}
	}
	if !s.noPrice {
		children[".price"] = &fakeElement{text: s.price}
	}
	if !s.noLink {
		children["a"] = &fakeElement{href: s.href}
	}
	if !s.noSeller {
		children[".seller"] = &fakeElement{value: s.sellerValue}
	}
	return &fakeElement{children: children}
}

// fakeWorld describes what every session sees: the search page, detail pages
// by URL and a per-attempt navigation outcome.
type fakeWorld struct {
	mu sync.Mutex

	searchHTML   string
	listings     []*fakeElement
	detailHTML   string
	detailSeller map[string]string
	detailDelay  func(url string) time.Duration
	navErrs      []error
	detailNavErr error

	identities      []string
	acquired        atomic.Int32
	released        atomic.Int32
	detailNavs      atomic.Int32
	openTabs        atomic.Int32
	maxOpenTabs     atomic.Int32
	unclosedAtClose atomic.Int32
}

func (w *fakeWorld) Acquire(ctx context.Context, identity string) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int(w.acquired.Add(1))

	w.mu.Lock()
	w.identities = append(w.identities, identity)
	w.mu.Unlock()

	var navErr error
	if n-1 < len(w.navErrs) {
		navErr = w.navErrs[n-1]
	}

	s := &fakeSession{world: w, identity: identity}
	s.main = &fakePage{world: w, session: s, navErr: navErr, search: true}
	return s, nil
}

type fakeSession struct {
	world    *fakeWorld
	identity string
	main     *fakePage

	mu       sync.Mutex
	tabs     []*fakePage
	released bool
}

func (s *fakeSession) Identity() string   { return s.identity }
func (s *fakeSession) Page() browser.Page { return s.main }

func (s *fakeSession) OpenTab() (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, browser.ErrSessionReleased
	}

	p := &fakePage{world: s.world, session: s}
	s.tabs = append(s.tabs, p)

	open := s.world.openTabs.Add(1)
	for {
		cur := s.world.maxOpenTabs.Load()
		if open <= cur || s.world.maxOpenTabs.CompareAndSwap(cur, open) {
			break
		}
	}
	return p, nil
}

func (s *fakeSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	for _, tab := range s.tabs {
		if !tab.closed.Load() {
			s.world.unclosedAtClose.Add(1)
		}
	}
	s.world.released.Add(1)
	return nil
}

type fakePage struct {
	world   *fakeWorld
	session *fakeSession
	search  bool
	navErr  error
	url     string
	closed  atomic.Bool
}

func (p *fakePage) Navigate(ctx context.Context, url string, _ browser.NavigateOptions) error {
	if p.search {
		return p.navErr
	}

	p.world.detailNavs.Add(1)
	if p.world.detailDelay != nil {
		select {
		case <-time.After(p.world.detailDelay(url)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.world.detailNavErr != nil {
		return p.world.detailNavErr
	}
	p.url = url
	return nil
}

func (p *fakePage) Content() (string, error) {
	if p.search {
		return p.world.searchHTML, nil
	}
	return p.world.detailHTML, nil
}

func (p *fakePage) Query(selector string) (browser.Element, error) {
	if p.search || selector != testSite.Locators.Seller {
		return nil, nil
	}
	seller, ok := p.world.detailSeller[p.url]
	if !ok {
		return nil, nil
	}
	return &fakeElement{text: seller}, nil
}

func (p *fakePage) QueryAll(selector string) ([]browser.Element, error) {
	if !p.search || selector != testSite.Locators.ProductList {
		return nil, nil
	}
	out := make([]browser.Element, len(p.world.listings))
	for i, l := range p.world.listings {
		out[i] = l
	}
	return out, nil
}

func (p *fakePage) Close() error {
	if !p.closed.Swap(true) && !p.search {
		p.world.openTabs.Add(-1)
	}
	return nil
}

type sequenceIdentities struct {
	n atomic.Int32
}

func (s *sequenceIdentities) Next() string {
	return fmt.Sprintf("identity-%d", s.n.Add(1))
}

// MockSink is a mock for the persistence sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) InsertBatch(ctx context.Context, records []models.ProductRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func newTestOrchestrator(w *fakeWorld, sink Sink, concurrency int) *Orchestrator {
	detector := parser.NewChallengeDetector()
	extractor := NewExtractor(detector, time.Second, nil)
	return NewOrchestrator(w, &sequenceIdentities{}, detector, extractor, sink, Options{
		Concurrency:       concurrency,
		NavigationTimeout: time.Second,
	}, nil)
}

var errTimeout = fmt.Errorf("%w: https://shop.example.com/search?q=macbook", browser.ErrNavigationTimeout)

var errBoom = errors.New("boom")

const (
	cleanHTML     = `<html><body><ul><li class="item">MacBook</li></ul></body></html>`
	challengeHTML = `<html><body><form><input type="hidden" name="cf-turnstile-response"></form><p>Verification in progress</p></body></html>`
)
