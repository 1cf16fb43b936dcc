// Package hls fetches HLS segment sets whose segments can be concatenated
// byte for byte (SoundCloud mp3 and opus transcodings).
package hls

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/grafov/m3u8"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// ExtractURLs returns every token starting with "http" in manifest order.
// A token ends at the first whitespace character.
func ExtractURLs(manifest string) []string {
	var urls []string
	rest := manifest
	for {
		i := strings.Index(rest, "http")
		if i < 0 {
			return urls
		}
		rest = rest[i:]
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return append(urls, rest)
		}
		urls = append(urls, rest[:end])
		rest = rest[end:]
	}
}

// Info summarises a decoded media playlist.
type Info struct {
	Segments int
	Duration float64
}

// Inspect decodes manifest as a media playlist. Playlists whose segments
// carry a key with a method other than NONE return model.ErrEncryptedStream.
// ok is false when the manifest could not be decoded as a media playlist;
// callers fall back to the plain URL scan in that case.
func Inspect(manifest string) (info Info, ok bool, err error) {
	playlist, listType, decodeErr := m3u8.DecodeFrom(strings.NewReader(manifest), false)
	if decodeErr != nil || listType != m3u8.MEDIA {
		return Info{}, false, nil
	}
	media, isMedia := playlist.(*m3u8.MediaPlaylist)
	if !isMedia {
		return Info{}, false, nil
	}

	if encrypted(media.Key) {
		return Info{}, true, fmt.Errorf("media playlist key %s: %w", media.Key.Method, model.ErrEncryptedStream)
	}
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if encrypted(seg.Key) {
			return Info{}, true, fmt.Errorf("segment key %s: %w", seg.Key.Method, model.ErrEncryptedStream)
		}
		info.Segments++
		info.Duration += seg.Duration
	}
	return info, true, nil
}

func encrypted(key *m3u8.Key) bool {
	return key != nil && key.Method != "" && !strings.EqualFold(key.Method, "NONE")
}
