package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pricetracker/price-tracker/internal/config"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  800,
		ViewportHeight: 600,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "Europe/Istanbul",
		Locale:         "tr-TR",
		ExtraHeaders: map[string]string{
			"Accept-Encoding": "gzip, deflate, br",
		},
	}
}

// OptionsFromConfig applies the browser and scraper settings on top of DefaultOptions.
func OptionsFromConfig(cfg *config.Config) *Options {
	opts := DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Scraper.NavigationTimeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.Locale = cfg.Browser.Locale
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.ProxyServer = cfg.Scraper.Proxy
	return opts
}

// PlaywrightLauncher keeps one playwright driver and launches a fresh
// Chromium process for every acquired session.
type PlaywrightLauncher struct {
	pw     *playwright.Playwright
	opts   *Options
	logger *slog.Logger
}

func NewLauncher(opts *Options, logger *slog.Logger) (*PlaywrightLauncher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &PlaywrightLauncher{
		pw:     pw,
		opts:   opts,
		logger: logger.With("component", "browser"),
	}, nil
}

func (l *PlaywrightLauncher) Acquire(ctx context.Context, identity string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &l.opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			fmt.Sprintf("--window-size=%d,%d", l.opts.ViewportWidth, l.opts.ViewportHeight),
		},
	}

	if l.opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: l.opts.ProxyServer,
		}
	}

	b, err := l.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{
		"User-Agent":      identity,
		"Accept-Language": l.opts.AcceptLanguage,
	}
	for k, v := range l.opts.ExtraHeaders {
		headers[k] = v
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &identity,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &l.opts.Locale,
		TimezoneId:        &l.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  l.opts.ViewportWidth,
			Height: l.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	// Registered on the context so the main page and every tab share it.
	if err := bctx.Route("**/*", filterResources); err != nil {
		bctx.Close()
		b.Close()
		return nil, fmt.Errorf("failed to enable request interception: %w", err)
	}

	s := &playwrightSession{
		browser:  b,
		context:  bctx,
		identity: identity,
		timeout:  l.opts.Timeout,
		pages:    make(map[*playwrightPage]struct{}),
		logger:   l.logger,
	}

	main, err := s.newPage()
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("failed to create main page: %w", err)
	}
	s.main = main

	l.logger.Debug("session acquired", "identity", identity)
	return s, nil
}

// Close stops the playwright driver. Sessions must be released first.
func (l *PlaywrightLauncher) Close() error {
	if err := l.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func filterResources(route playwright.Route) {
	if ShouldBlock(route.Request().ResourceType()) {
		route.Abort()
		return
	}
	route.Continue()
}

type playwrightSession struct {
	mu       sync.Mutex
	browser  playwright.Browser
	context  playwright.BrowserContext
	main     *playwrightPage
	pages    map[*playwrightPage]struct{}
	identity string
	timeout  time.Duration
	released bool
	logger   *slog.Logger
}

func (s *playwrightSession) Identity() string {
	return s.identity
}

func (s *playwrightSession) Page() Page {
	return s.main
}

func (s *playwrightSession) OpenTab() (Page, error) {
	return s.newPage()
}

func (s *playwrightSession) newPage() (*playwrightPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrSessionReleased
	}

	raw, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	raw.SetDefaultTimeout(float64(s.timeout.Milliseconds()))

	p := &playwrightPage{page: raw, session: s}
	s.pages[p] = struct{}{}
	return p, nil
}

func (s *playwrightSession) forget(p *playwrightPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, p)
}

func (s *playwrightSession) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	pages := make([]*playwrightPage, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	s.pages = map[*playwrightPage]struct{}{}
	s.mu.Unlock()

	var errs []error

	for _, p := range pages {
		if err := p.closeOnce(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	s.logger.Debug("session released", "identity", s.identity, "pages_closed", len(pages))
	return errors.Join(errs...)
}

type playwrightPage struct {
	page    playwright.Page
	session *playwrightSession
	once    sync.Once
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}

	if _, err := p.page.Goto(url, gotoOpts); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s: %v", ErrNavigationTimeout, url, err)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Query(selector string) (Element, error) {
	h, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if h == nil {
		return nil, nil
	}
	return &playwrightElement{handle: h}, nil
}

func (p *playwrightPage) QueryAll(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}

	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{handle: h})
	}
	return elements, nil
}

func (p *playwrightPage) Close() error {
	p.session.forget(p)
	return p.closeOnce()
}

func (p *playwrightPage) closeOnce() error {
	var err error
	p.once.Do(func() {
		err = p.page.Close()
	})
	return err
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Query(selector string) (Element, error) {
	h, err := e.handle.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if h == nil {
		return nil, nil
	}
	return &playwrightElement{handle: h}, nil
}

func (e *playwrightElement) InnerText() (string, error) {
	return e.handle.InnerText()
}

func (e *playwrightElement) Href() (string, error) {
	return e.evalString(`el => el.href`)
}

func (e *playwrightElement) Value() (string, error) {
	return e.evalString(`el => el.value`)
}

func (e *playwrightElement) evalString(expr string) (string, error) {
	v, err := e.handle.Evaluate(expr)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func waitUntilState(c WaitCondition) *playwright.WaitUntilState {
	switch c {
	case WaitLoad:
		return playwright.WaitUntilStateLoad
	case WaitDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	default:
		return playwright.WaitUntilStateNetworkidle
	}
}
