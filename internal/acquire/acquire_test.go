package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func httpResponse(status int, body string, headers map[string]string) *http.Response {
	resp := &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        make(http.Header),
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

type fakeMuxer struct {
	calls     int
	container string
	data      []byte
	err       error
}

func (m *fakeMuxer) Mux(_ context.Context, _ string, container string) ([]byte, error) {
	m.calls++
	m.container = container
	return m.data, m.err
}

type fakeSegments struct {
	calls int
	data  []byte
	err   error
}

func (s *fakeSegments) Acquire(_ context.Context, _ string, _ model.ProgressFunc) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

func newDispatcher(rt roundTripFunc, mux *fakeMuxer, seg *fakeSegments) *Dispatcher {
	if mux == nil {
		mux = &fakeMuxer{}
	}
	if seg == nil {
		seg = &fakeSegments{}
	}
	return NewDispatcher(&http.Client{Transport: rt}, mux, seg, zerolog.Nop())
}

func TestAcquire_Direct(t *testing.T) {
	d := newDispatcher(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("User-Agent") != UserAgent {
			t.Errorf("missing user agent")
		}
		return httpResponse(http.StatusOK, "flac-ish", map[string]string{
			HeaderFileType:           ".MP3",
			HeaderContentDisposition: "attachment; filename*=utf-8''My%20Song%20%28Final%29.mp3",
		}), nil
	}, nil, nil)

	var lastDone, lastTotal int64
	media, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{
		SourceURL: "https://cf-media.example/download",
		Transport: model.TransportDirect,
		Preset:    model.PresetNone,
	}, func(done, total int64) { lastDone, lastTotal = done, total })
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if media.Extension != "mp3" {
		t.Fatalf("ext = %q", media.Extension)
	}
	if media.OriginalFileName != "My Song (Final).mp3" {
		t.Fatalf("orig = %q", media.OriginalFileName)
	}
	if string(media.Data) != "flac-ish" {
		t.Fatalf("data = %q", media.Data)
	}
	if lastDone != 8 || lastTotal != 8 {
		t.Fatalf("progress = %d/%d", lastDone, lastTotal)
	}
}

func TestAcquire_DirectHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    error
	}{
		{"missing file type", map[string]string{}, model.ErrMissingExtensionHeader},
		{"unsupported file type", map[string]string{HeaderFileType: "wav"}, model.ErrUnsupportedExtension},
		{"path-like file type", map[string]string{HeaderFileType: "../../etc"}, model.ErrUnsupportedExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(func(*http.Request) (*http.Response, error) {
				return httpResponse(http.StatusOK, "x", tt.headers), nil
			}, nil, nil)
			_, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{
				SourceURL: "https://x", Transport: model.TransportDirect,
			}, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAcquire_DirectWithoutDispositionMarker(t *testing.T) {
	d := newDispatcher(func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusOK, "x", map[string]string{
			HeaderFileType:           "m4a",
			HeaderContentDisposition: `attachment; filename="plain.m4a"`,
		}), nil
	}, nil, nil)
	media, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{SourceURL: "https://x", Transport: model.TransportDirect}, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if media.OriginalFileName != "" {
		t.Fatalf("expected empty original filename, got %q", media.OriginalFileName)
	}
}

func TestAcquire_ProgressiveExtension(t *testing.T) {
	tests := []struct {
		preset string
		want   string
	}{
		{"mp3_128", "mp3"},
		{"mp3_0_1", "mp3"},
		{"aac_160k", "m4a"},
		{"abr_sq", "m4a"},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			d := newDispatcher(func(*http.Request) (*http.Response, error) {
				return httpResponse(http.StatusOK, "bytes", nil), nil
			}, nil, nil)
			media, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{
				SourceURL: "https://x", Transport: model.TransportProgressive, Preset: tt.preset,
			}, nil)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if media.Extension != tt.want {
				t.Fatalf("ext = %q, want %q", media.Extension, tt.want)
			}
			if media.OriginalFileName != "" {
				t.Fatalf("progressive must not produce an original filename")
			}
		})
	}
}

func TestAcquire_HTTPErrorIsNetwork(t *testing.T) {
	d := newDispatcher(func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusForbidden, "nope", nil), nil
	}, nil, nil)
	_, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{SourceURL: "https://x", Transport: model.TransportProgressive, Preset: "mp3_128"}, nil)
	if !errors.Is(err, model.ErrNetwork) || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected network error with status, got %v", err)
	}
}

func TestAcquire_HLSBranches(t *testing.T) {
	noHTTP := func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("unexpected request: %s", req.URL)
	}
	tests := []struct {
		preset      string
		wantExt     string
		wantMux     int
		wantSegment int
	}{
		{"aac_160k", "m4a", 1, 0},
		{"opus_0_0", "opus", 0, 1},
		{"mp3_1_0", "mp3", 0, 1},
		{"mp3_standard", "mp3", 0, 1},
		{"hq_mp3_0_0", "opus", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			mux := &fakeMuxer{data: []byte("m4a")}
			seg := &fakeSegments{data: []byte("segs")}
			d := newDispatcher(noHTTP, mux, seg)
			media, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{
				SourceURL: "https://x/playlist.m3u8", Transport: model.TransportHLS, Preset: tt.preset,
			}, nil)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if media.Extension != tt.wantExt {
				t.Fatalf("ext = %q, want %q", media.Extension, tt.wantExt)
			}
			if mux.calls != tt.wantMux || seg.calls != tt.wantSegment {
				t.Fatalf("mux=%d segments=%d", mux.calls, seg.calls)
			}
			if tt.wantMux == 1 && mux.container != "mp4" {
				t.Fatalf("container = %q", mux.container)
			}
		})
	}
}

func TestAcquire_HLSUnsupportedPreset(t *testing.T) {
	for _, preset := range []string{"abr_sq", "aac_256k", "opus_0_1", ""} {
		d := newDispatcher(nil, nil, nil)
		_, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{
			SourceURL: "https://x", Transport: model.TransportHLS, Preset: preset,
		}, nil)
		if !errors.Is(err, model.ErrUnsupportedPreset) {
			t.Fatalf("preset %q: expected ErrUnsupportedPreset, got %v", preset, err)
		}
	}
}

func TestAcquire_HLSPropagatesFailures(t *testing.T) {
	exitErr := &model.ProcessExitError{Status: 1}
	d := newDispatcher(nil, &fakeMuxer{err: exitErr}, &fakeSegments{err: model.ErrNetwork})

	_, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{Transport: model.TransportHLS, Preset: "aac_160k"}, nil)
	if !errors.Is(err, model.ErrProcessExitNonZero) {
		t.Fatalf("expected process exit error, got %v", err)
	}
	_, err = d.Acquire(context.Background(), model.TrackAcquisitionRequest{Transport: model.TransportHLS, Preset: "opus_0_0"}, nil)
	if !errors.Is(err, model.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestAcquire_UnknownTransport(t *testing.T) {
	d := newDispatcher(nil, nil, nil)
	_, err := d.Acquire(context.Background(), model.TrackAcquisitionRequest{Transport: model.TransportKind(42)}, nil)
	if !errors.Is(err, model.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestParseOriginalFileName(t *testing.T) {
	tests := map[string]string{
		"":                                   "",
		"attachment":                         "",
		"attachment; filename*=utf-8''a.mp3": "a.mp3",
		"attachment; filename*=UTF-8''%E6%97%A5.m4a":  "日.m4a",
		"attachment; filename*=utf-8''bad%zzname.mp3": "bad%zzname.mp3",
	}
	for in, want := range tests {
		if got := ParseOriginalFileName(in); got != want {
			t.Errorf("ParseOriginalFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
