package login

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

const surfaceEventBuffer = 64

// PlaywrightHost opens Chromium windows through playwright-go.
type PlaywrightHost struct {
	headless bool
	log      zerolog.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightHost creates a host. The driver is started lazily by Open.
func NewPlaywrightHost(headless bool, log zerolog.Logger) *PlaywrightHost {
	return &PlaywrightHost{headless: headless, log: log}
}

// Install downloads the playwright driver and Chromium if missing.
func Install() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

func (h *PlaywrightHost) driver() (*playwright.Playwright, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pw != nil {
		return h.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	h.pw = pw
	return pw, nil
}

// Open launches a browser window with a fresh cookie jar.
func (h *PlaywrightHost) Open(ctx context.Context) (Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := h.driver()
	if err != nil {
		return nil, err
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(h.headless),
	})
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	bctx, err := browser.NewContext()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	s := &playwrightSurface{
		browser: browser,
		bctx:    bctx,
		page:    page,
		events:  make(chan Event, surfaceEventBuffer),
		log:     h.log,
	}
	// Handlers run on the driver's dispatch goroutine and must not call
	// back into playwright.
	page.OnFrameNavigated(func(frame playwright.Frame) {
		if frame == page.MainFrame() {
			s.emit(Event{Kind: EventNavigated, URL: frame.URL()})
		}
	})
	page.OnLoad(func(p playwright.Page) {
		s.emit(Event{Kind: EventTitleChanged, URL: p.URL()})
	})
	page.OnClose(func(playwright.Page) {
		s.emit(Event{Kind: EventClosed})
	})
	return s, nil
}

// Stop shuts the playwright driver down.
func (h *PlaywrightHost) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pw == nil {
		return nil
	}
	err := h.pw.Stop()
	h.pw = nil
	return err
}

type playwrightSurface struct {
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	events chan Event
}

func (s *playwrightSurface) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("event", ev.Kind.String()).Msg("login surface event dropped")
	}
}

func (s *playwrightSurface) Events() <-chan Event {
	return s.events
}

func (s *playwrightSurface) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (s *playwrightSurface) Cookies(ctx context.Context, url string) ([]Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.bctx.Cookies(url)
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return out, nil
}

func (s *playwrightSurface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	return errors.Join(s.bctx.Close(), s.browser.Close())
}
