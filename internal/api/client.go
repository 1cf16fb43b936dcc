// Package api is the SoundCloud v2 API gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/jmagar/cloudie-cli/internal/model"
)

const (
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	defaultRatePerSec  = 5.0
	defaultBurst       = 10
	defaultAttempts    = 4
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	breakerThreshold   = 5
	breakerCooldown    = 60 * time.Second
	maxErrorBodyLength = 512
)

// StatusError is a non-retryable HTTP failure from the API.
type StatusError struct {
	Label      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API %s: HTTP %d", e.Label, e.StatusCode)
	}
	return fmt.Sprintf("API %s: HTTP %d - %s", e.Label, e.StatusCode, e.Body)
}

// retryableStatus marks a 429/5xx response; retryAfter comes from the header.
type retryableStatus struct {
	status     string
	retryAfter time.Duration
}

func (e *retryableStatus) Error() string { return "HTTP " + e.status }

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	BaseURL    string
	ClientID   string
	OAuthToken string
	HTTPClient *http.Client
	RatePerSec float64
	Burst      int
	Attempts   uint
	BaseDelay  time.Duration
	Log        zerolog.Logger
}

// Client talks to api-v2.soundcloud.com. Every call passes the rate
// limiter, the circuit breaker and the retry policy in that order.
type Client struct {
	base      string
	clientID  string
	token     string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *circuitBreaker
	attempts  uint
	baseDelay time.Duration
	log       zerolog.Logger
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	c := &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:  opts.ClientID,
		token:     strings.TrimPrefix(opts.OAuthToken, "OAuth "),
		http:      httpClient,
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
		log:       opts.Log,
	}
	if c.base == "" {
		c.base = model.APIV2Base
	}
	if c.attempts == 0 {
		c.attempts = defaultAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	ratePerSec, burst := opts.RatePerSec, opts.Burst
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	c.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	c.breaker = newCircuitBreaker(breakerThreshold, breakerCooldown)
	c.breaker.onTransition = func(from, to circuitState) {
		c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("api circuit state change")
	}
	return c, nil
}

// SetOAuthToken replaces the token used for authenticated calls.
func (c *Client) SetOAuthToken(token string) {
	c.token = strings.TrimPrefix(token, "OAuth ")
}

// Authenticated reports whether an OAuth token is configured.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// do is the single gateway for every outbound API call. The caller closes
// the response body. Responses other than 429/5xx are returned as-is.
func (c *Client) do(ctx context.Context, label, rawURL string) (*http.Response, error) {
	reqURL, err := c.withClientID(rawURL)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()

	var resp *http.Response
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			waitStart := time.Now()
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(fmt.Errorf("rate limiter cancelled for %s: %w", label, err))
			}
			if waited := time.Since(waitStart); waited > time.Millisecond {
				c.log.Debug().Str("label", label).Dur("waited", waited).Msg("rate limit wait")
			}

			state, allowed := c.breaker.allow()
			if !allowed {
				c.log.Warn().Str("label", label).Msg("api request rejected, circuit open")
				return retry.Unrecoverable(fmt.Errorf("%w (label: %s)", ErrCircuitOpen, label))
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", UserAgent)
			req.Header.Set("Accept", "application/json")
			if c.token != "" {
				req.Header.Set("Authorization", "OAuth "+c.token)
			}

			start := time.Now()
			r, err := c.http.Do(req)
			event := c.log.Debug().Str("label", label).Str("request_id", requestID).Int("attempt", attempt).
				Dur("duration", time.Since(start)).Str("circuit_state", state.String())
			if err != nil {
				// Network errors do not count against the breaker.
				event.Err(err).Msg("api request")
				return retry.Unrecoverable(err)
			}
			event.Int("status_code", r.StatusCode).Msg("api request")

			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				r.Body.Close()
				c.breaker.failure()
				return &retryableStatus{status: r.Status, retryAfter: parseRetryAfter(r.Header.Get("Retry-After"))}
			}
			c.breaker.success()
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.baseDelay),
		retry.MaxDelay(defaultMaxDelay),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			var rs *retryableStatus
			if errors.As(err, &rs) && rs.retryAfter > 0 {
				return rs.retryAfter
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Info().Str("label", label).Uint("retry", n+1).Err(err).Msg("api retry")
		}),
	)
	if err != nil {
		var rs *retryableStatus
		if errors.As(err, &rs) {
			return nil, fmt.Errorf("API %s failed after %d attempts: %w", label, attempt, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) withClientID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid API url %q: %w", rawURL, err)
	}
	if c.clientID != "" {
		q := u.Query()
		q.Set("client_id", c.clientID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) getJSON(ctx context.Context, label, rawURL string, out any) error {
	resp, err := c.do(ctx, label, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return &StatusError{Label: label, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", label, err)
	}
	return nil
}

func (c *Client) v2URL(endpoint string, params url.Values) string {
	u := c.base + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Resolve looks up a soundcloud.com permalink and returns either a track or
// a playlist (the other is nil).
func (c *Client) Resolve(ctx context.Context, pageURL string) (*model.Track, *model.Playlist, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "resolve", c.v2URL("/resolve", url.Values{"url": {pageURL}}), &raw); err != nil {
		return nil, nil, err
	}
	var head model.ResolveResponse
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, nil, fmt.Errorf("decode resolve response: %w", err)
	}
	switch head.Kind {
	case "track":
		var t model.Track
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, nil, fmt.Errorf("decode track: %w", err)
		}
		return &t, nil, nil
	case "playlist", "system-playlist":
		var p model.Playlist
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, nil, fmt.Errorf("decode playlist: %w", err)
		}
		return nil, &p, nil
	default:
		return nil, nil, fmt.Errorf("%s resolves to unsupported kind %q", pageURL, head.Kind)
	}
}

// Track fetches one track.
func (c *Client) Track(ctx context.Context, id int64) (*model.Track, error) {
	var t model.Track
	if err := c.getJSON(ctx, "tracks.get", c.v2URL("/tracks/"+strconv.FormatInt(id, 10), nil), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// tracksBatchSize is the most ids /tracks accepts per call.
const tracksBatchSize = 50

// Tracks fetches full metadata for ids, preserving the order of ids.
// Unknown ids are skipped.
func (c *Client) Tracks(ctx context.Context, ids []int64) ([]model.Track, error) {
	byID := make(map[int64]model.Track, len(ids))
	for start := 0; start < len(ids); start += tracksBatchSize {
		end := min(start+tracksBatchSize, len(ids))
		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		var batch []model.Track
		if err := c.getJSON(ctx, "tracks.list", c.v2URL("/tracks", url.Values{"ids": {strings.Join(parts, ",")}}), &batch); err != nil {
			return nil, err
		}
		for _, t := range batch {
			byID[t.ID] = t
		}
	}
	out := make([]model.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// TranscodingURL follows a transcoding URL and returns the media URL it
// points at (an m3u8 playlist or a progressive file).
func (c *Client) TranscodingURL(ctx context.Context, transcodingURL string) (string, error) {
	var res model.StreamURLResponse
	if err := c.getJSON(ctx, "transcoding", transcodingURL, &res); err != nil {
		return "", err
	}
	if res.URL == "" {
		return "", fmt.Errorf("transcoding %s returned no url", transcodingURL)
	}
	return res.URL, nil
}

// DownloadLink returns the original-file download URL for a track.
func (c *Client) DownloadLink(ctx context.Context, trackID int64) (string, error) {
	var res model.DownloadLinkResponse
	endpoint := "/tracks/" + strconv.FormatInt(trackID, 10) + "/download"
	if err := c.getJSON(ctx, "tracks.download", c.v2URL(endpoint, nil), &res); err != nil {
		return "", err
	}
	if res.RedirectURI == "" {
		return "", fmt.Errorf("track %d has no download link", trackID)
	}
	return res.RedirectURI, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.getJSON(ctx, "me", c.v2URL("/me", nil), &u); err != nil {
		return nil, err
	}
	return &u, nil
}
