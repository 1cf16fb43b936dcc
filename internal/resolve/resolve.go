// Package resolve picks the transport, preset and final media URL for a track.
package resolve

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// API is the part of the SoundCloud client the parser needs.
type API interface {
	DownloadLink(ctx context.Context, trackID int64) (string, error)
	TranscodingURL(ctx context.Context, transcodingURL string) (string, error)
}

// Parser turns track metadata into a model.ParsedDownload.
type Parser struct {
	api API
	log zerolog.Logger
}

// NewParser creates a Parser.
func NewParser(api API, log zerolog.Logger) *Parser {
	return &Parser{api: api, log: log}
}

// SortTranscodings returns the transcodings matching protocol in preset
// priority order. Unknown presets sort last; ties keep API order.
// Encrypted HLS flavours are never returned.
func SortTranscodings(track *model.Track, protocol string) []model.Transcoding {
	out := make([]model.Transcoding, 0, len(track.Media.Transcodings))
	for _, t := range track.Media.Transcodings {
		if t.Format.Protocol != protocol || t.IsEncrypted() {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b model.Transcoding) int {
		return presetRank(a.Preset) - presetRank(b.Preset)
	})
	return out
}

func presetRank(preset string) int {
	if i := slices.Index(model.PresetOrder, preset); i >= 0 {
		return i
	}
	return len(model.PresetOrder)
}

// ParseDownload chooses how track will be downloaded. With preferDirect and
// a downloadable track the original upload is used; otherwise the best HLS
// transcoding, then the progressive one.
func (p *Parser) ParseDownload(ctx context.Context, track *model.Track, preferDirect bool) (model.ParsedDownload, error) {
	if track.Downloadable && preferDirect {
		link, err := p.api.DownloadLink(ctx, track.ID)
		if err != nil {
			return model.ParsedDownload{}, fmt.Errorf(
				"direct link failed for track %s (the uploader may have hit the download limit): %w", track.Title, err)
		}
		return model.ParsedDownload{FinalURL: link, Transport: model.TransportDirect, Preset: model.PresetNone}, nil
	}

	for _, protocol := range []string{model.ProtocolHLS, model.ProtocolProgressive} {
		candidates := SortTranscodings(track, protocol)
		if len(candidates) == 0 {
			continue
		}
		best := candidates[0]
		p.log.Debug().Int64("track_id", track.ID).Str("preset", best.Preset).Str("protocol", protocol).Msg("selected transcoding")
		mediaURL, err := p.api.TranscodingURL(ctx, best.URL)
		if err != nil {
			return model.ParsedDownload{}, fmt.Errorf("resolve %s stream for %s: %w", best.Preset, track.Title, err)
		}
		kind, err := model.ParseTransportKind(protocol)
		if err != nil {
			return model.ParsedDownload{}, err
		}
		return model.ParsedDownload{FinalURL: mediaURL, Transport: kind, Preset: best.Preset}, nil
	}
	return model.ParsedDownload{}, fmt.Errorf("track %d: %w", track.ID, model.ErrNoStreams)
}
