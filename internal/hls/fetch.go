package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// Fetcher downloads a manifest and its segments.
type Fetcher struct {
	client *http.Client
	log    zerolog.Logger
}

// NewFetcher returns a Fetcher using client, or http.DefaultClient when nil.
func NewFetcher(client *http.Client, log zerolog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, log: log}
}

// Manifest fetches the playlist text.
func (f *Fetcher) Manifest(ctx context.Context, manifestURL string) (string, error) {
	data, err := f.get(ctx, manifestURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch manifest: %w", err)
	}
	return string(data), nil
}

// Acquire fetches the manifest at manifestURL and returns the ordered
// concatenation of every segment it references.
func (f *Fetcher) Acquire(ctx context.Context, manifestURL string, onProgress model.ProgressFunc) ([]byte, error) {
	manifest, err := f.Manifest(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	info, decoded, err := Inspect(manifest)
	if err != nil {
		return nil, err
	}
	urls := ExtractURLs(manifest)
	if decoded {
		f.log.Debug().Int("segments", info.Segments).Float64("duration_s", info.Duration).Int("urls", len(urls)).Msg("hls manifest")
	} else {
		f.log.Debug().Int("urls", len(urls)).Msg("hls manifest not decodable, using url scan")
	}
	return f.FetchAll(ctx, urls, onProgress)
}

// FetchAll fetches urls concurrently and concatenates the bodies in the
// order of urls. The first failure cancels the remaining fetches and is
// returned; no partial result is produced.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, onProgress model.ProgressFunc) ([]byte, error) {
	results := make([][]byte, len(urls))
	tracker := newProgress(len(urls), onProgress)

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			data, err := f.get(gctx, u, tracker.segment(i))
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := 0
	for _, r := range results {
		size += len(r)
	}
	out := make([]byte, 0, size)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, counter *segmentCounter) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", model.ErrNetwork)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %s", model.ErrNetwork, resp.Status)
	}

	var body io.Reader = resp.Body
	if counter != nil {
		counter.start(resp.ContentLength)
		body = io.TeeReader(resp.Body, counter)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", model.ErrNetwork, err)
	}
	return data, nil
}

// progress aggregates per-segment byte counts into one callback.
type progress struct {
	mu         sync.Mutex
	fn         model.ProgressFunc
	downloaded []int64
	totals     []int64
}

func newProgress(n int, fn model.ProgressFunc) *progress {
	return &progress{fn: fn, downloaded: make([]int64, n), totals: make([]int64, n)}
}

func (p *progress) segment(i int) *segmentCounter {
	if p.fn == nil {
		return nil
	}
	return &segmentCounter{p: p, i: i}
}

func (p *progress) report() {
	var done, total int64
	known := true
	for i := range p.downloaded {
		done += p.downloaded[i]
		if p.totals[i] <= 0 {
			known = false
		}
		total += p.totals[i]
	}
	if !known {
		total = 0
	}
	p.fn(done, total)
}

type segmentCounter struct {
	p *progress
	i int
}

func (c *segmentCounter) start(total int64) {
	c.p.mu.Lock()
	c.p.totals[c.i] = total
	c.p.mu.Unlock()
}

func (c *segmentCounter) Write(b []byte) (int, error) {
	c.p.mu.Lock()
	c.p.downloaded[c.i] += int64(len(b))
	c.p.report()
	c.p.mu.Unlock()
	return len(b), nil
}
