// Package login captures a SoundCloud session token by watching an
// interactive sign-in window for the oauth_token cookie.
package login

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// Options configures a Coordinator. Zero values select the SoundCloud
// defaults.
type Options struct {
	SignInURL    string
	TargetDomain string
	CookieURL    string
	CookieName   string
	PollInterval time.Duration
	Log          zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.SignInURL == "" {
		o.SignInURL = model.SoundCloudSignInURL
	}
	if o.TargetDomain == "" {
		o.TargetDomain = model.SoundCloudHost
	}
	if o.CookieURL == "" {
		o.CookieURL = model.SoundCloudCookieURL
	}
	if o.CookieName == "" {
		o.CookieName = model.OAuthCookieName
	}
	if o.PollInterval <= 0 {
		o.PollInterval = model.DefaultLoginPollInterval
	}
}

// Coordinator runs at most one login session at a time.
type Coordinator struct {
	host Host
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	active bool
	state  model.LoginState
}

// NewCoordinator creates a Coordinator backed by host.
func NewCoordinator(host Host, opts Options) *Coordinator {
	opts.applyDefaults()
	return &Coordinator{host: host, opts: opts, log: opts.Log}
}

// State reports the current (or last) session state.
func (c *Coordinator) State() model.LoginState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s model.LoginState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Debug().Str("state", s.String()).Msg("login state")
}

// Login opens the sign-in window and blocks until the session resolves.
// It returns the token, or ErrAlreadyInProgress, ErrLoginCancelled or
// ErrLoginInterrupted.
func (c *Coordinator) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return "", model.ErrAlreadyInProgress
	}
	c.active = true
	c.state = model.LoginWindowOpening
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
	}()

	surface, err := c.host.Open(ctx)
	if err != nil {
		c.setState(model.LoginResolved)
		return "", fmt.Errorf("%w: open login window: %w", model.ErrLoginInterrupted, err)
	}
	if err := surface.Navigate(ctx, c.opts.SignInURL); err != nil {
		c.closeSurface(surface)
		c.setState(model.LoginResolved)
		return "", fmt.Errorf("%w: navigate to %s: %w", model.ErrLoginInterrupted, c.opts.SignInURL, err)
	}
	c.setState(model.LoginAwaitingTargetHost)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	comp := newCompletion()
	go c.eventLoop(sessionCtx, surface, comp)

	outcome := <-comp.outcome()
	cancel()
	c.setState(model.LoginResolved)
	c.closeSurface(surface)
	c.log.Info().Str("outcome", outcome.Kind.String()).Msg("login resolved")
	if err := outcome.Err(); err != nil {
		return "", err
	}
	return outcome.Token, nil
}

// eventLoop consumes surface events until the completion fires. Cookie
// reads never run on this goroutine.
func (c *Coordinator) eventLoop(ctx context.Context, surface Surface, comp *completion) {
	events := surface.Events()
	var poll <-chan time.Time
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-comp.done():
			return
		case <-ctx.Done():
			comp.resolve(model.InterruptedOutcome())
			return
		case ev, ok := <-events:
			if !ok {
				comp.resolve(model.InterruptedOutcome())
				return
			}
			c.log.Debug().Str("event", ev.Kind.String()).Str("url", ev.URL).Msg("login surface event")
			switch ev.Kind {
			case EventClosed:
				comp.resolve(model.CancelledOutcome())
				return
			case EventNavigated, EventTitleChanged:
				if !c.isTargetHost(ev.URL) {
					continue
				}
				if ticker == nil {
					ticker = time.NewTicker(c.opts.PollInterval)
					poll = ticker.C
				}
				go c.inspectCookies(ctx, surface, comp)
			}
		case <-poll:
			go c.inspectCookies(ctx, surface, comp)
		}
	}
}

func (c *Coordinator) inspectCookies(ctx context.Context, surface Surface, comp *completion) {
	cookies, err := surface.Cookies(ctx, c.opts.CookieURL)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Debug().Err(err).Msg("cookie read failed")
		}
		return
	}
	for _, ck := range cookies {
		if ck.Name == c.opts.CookieName && ck.Value != "" {
			comp.resolve(model.TokenOutcome(ck.Value))
			return
		}
	}
}

// isTargetHost reports whether rawURL is on the target domain or one of
// its subdomains.
func (c *Coordinator) isTargetHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(c.opts.TargetDomain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (c *Coordinator) closeSurface(surface Surface) {
	if err := surface.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close login window")
	}
}
