// Package acquire turns a resolved stream URL into bytes plus the extension
// they should be saved with.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// Response headers used by direct downloads.
const (
	HeaderFileType           = "x-amz-meta-file-type"
	HeaderContentDisposition = "Content-Disposition"
	dispositionMarker        = "filename*=utf-8''"
	dispositionMarkerUpper   = "filename*=UTF-8''"
)

// UserAgent is sent with every acquisition request.
const UserAgent = "cloudie-cli/1.0"

// Muxer remuxes a remote stream into a container.
type Muxer interface {
	Mux(ctx context.Context, sourceURL, container string) ([]byte, error)
}

// SegmentFetcher downloads and concatenates an HLS segment set.
type SegmentFetcher interface {
	Acquire(ctx context.Context, manifestURL string, onProgress model.ProgressFunc) ([]byte, error)
}

// Dispatcher selects an acquisition strategy from the transport kind.
type Dispatcher struct {
	client   *http.Client
	muxer    Muxer
	segments SegmentFetcher
	log      zerolog.Logger
}

// NewDispatcher builds a Dispatcher. client may be nil; its Timeout is left
// as configured by the caller.
func NewDispatcher(client *http.Client, muxer Muxer, segments SegmentFetcher, log zerolog.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{client: client, muxer: muxer, segments: segments, log: log}
}

// Acquire fetches req.SourceURL using the strategy for req.Transport.
// onProgress may be nil.
func (d *Dispatcher) Acquire(ctx context.Context, req model.TrackAcquisitionRequest, onProgress model.ProgressFunc) (*model.AcquiredMedia, error) {
	start := time.Now()
	var (
		media *model.AcquiredMedia
		err   error
	)
	switch req.Transport {
	case model.TransportDirect:
		media, err = d.direct(ctx, req.SourceURL, onProgress)
	case model.TransportProgressive:
		media, err = d.progressive(ctx, req.SourceURL, req.Preset, onProgress)
	case model.TransportHLS:
		media, err = d.hls(ctx, req.SourceURL, req.Preset, onProgress)
	default:
		return nil, fmt.Errorf("%s: %w", req.Transport, model.ErrUnreachable)
	}
	if err != nil {
		return nil, err
	}
	d.log.Info().
		Str("transport", req.Transport.String()).
		Str("preset", req.Preset).
		Str("ext", media.Extension).
		Str("size", humanize.Bytes(uint64(len(media.Data)))).
		Dur("elapsed", time.Since(start)).
		Msg("track acquired")
	return media, nil
}

func (d *Dispatcher) direct(ctx context.Context, sourceURL string, onProgress model.ProgressFunc) (*model.AcquiredMedia, error) {
	resp, err := d.get(ctx, "direct download", sourceURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rawExt := resp.Header.Get(HeaderFileType)
	if rawExt == "" {
		return nil, fmt.Errorf("direct download: %w", model.ErrMissingExtensionHeader)
	}
	ext := NormaliseExtension(rawExt)
	if !model.IsAllowedExtension(ext) {
		return nil, fmt.Errorf("direct download: %q: %w", rawExt, model.ErrUnsupportedExtension)
	}
	origName := ParseOriginalFileName(resp.Header.Get(HeaderContentDisposition))

	data, err := readBody(resp, onProgress)
	if err != nil {
		return nil, fmt.Errorf("direct download: %w", err)
	}
	return &model.AcquiredMedia{Data: data, Extension: ext, OriginalFileName: origName}, nil
}

func (d *Dispatcher) progressive(ctx context.Context, sourceURL, preset string, onProgress model.ProgressFunc) (*model.AcquiredMedia, error) {
	resp, err := d.get(ctx, "progressive download", sourceURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp, onProgress)
	if err != nil {
		return nil, fmt.Errorf("progressive download: %w", err)
	}
	return &model.AcquiredMedia{Data: data, Extension: ProgressiveExtension(preset)}, nil
}

func (d *Dispatcher) hls(ctx context.Context, sourceURL, preset string, onProgress model.ProgressFunc) (*model.AcquiredMedia, error) {
	switch {
	case preset == model.PresetAAC160:
		data, err := d.muxer.Mux(ctx, sourceURL, "mp4")
		if err != nil {
			return nil, fmt.Errorf("hls %s remux: %w", preset, err)
		}
		return &model.AcquiredMedia{Data: data, Extension: model.ExtM4A}, nil
	case strings.Contains(preset, "mp3") || preset == model.PresetOpus:
		data, err := d.segments.Acquire(ctx, sourceURL, onProgress)
		if err != nil {
			return nil, fmt.Errorf("hls %s segments: %w", preset, err)
		}
		ext := model.ExtOpus
		if strings.HasPrefix(preset, "mp3") {
			ext = model.ExtMP3
		}
		return &model.AcquiredMedia{Data: data, Extension: ext}, nil
	default:
		return nil, fmt.Errorf("hls preset %q: %w", preset, model.ErrUnsupportedPreset)
	}
}

func (d *Dispatcher) get(ctx context.Context, step, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", step, model.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", step, model.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w: HTTP %s", step, model.ErrNetwork, resp.Status)
	}
	return resp, nil
}

// ProgressiveExtension picks mp3 for mp3 presets and m4a otherwise.
func ProgressiveExtension(preset string) string {
	if strings.Contains(preset, "mp3") {
		return model.ExtMP3
	}
	return model.ExtM4A
}

// NormaliseExtension lower-cases ext and strips a leading dot.
func NormaliseExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// ParseOriginalFileName returns everything after the filename*=utf-8''
// marker, percent-decoded when the encoding is valid. A missing marker
// yields "".
func ParseOriginalFileName(disposition string) string {
	_, raw, found := strings.Cut(disposition, dispositionMarker)
	if !found {
		_, raw, found = strings.Cut(disposition, dispositionMarkerUpper)
	}
	if !found {
		return ""
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func readBody(resp *http.Response, onProgress model.ProgressFunc) ([]byte, error) {
	var body io.Reader = resp.Body
	if onProgress != nil {
		body = io.TeeReader(resp.Body, &progressWriter{total: resp.ContentLength, fn: onProgress})
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w: %v", model.ErrNetwork, err)
	}
	return data, nil
}

type progressWriter struct {
	done  int64
	total int64
	fn    model.ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	total := p.total
	if total < 0 {
		total = 0
	}
	p.fn(p.done, total)
	return len(b), nil
}
