package api

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// URLKind classifies a soundcloud.com link.
type URLKind int

const (
	URLUnknown URLKind = iota
	URLTrack
	URLPlaylist
	URLLikes
	URLShort
)

func (k URLKind) String() string {
	switch k {
	case URLTrack:
		return "track"
	case URLPlaylist:
		return "playlist"
	case URLLikes:
		return "likes"
	case URLShort:
		return "short"
	default:
		return "unknown"
	}
}

// ErrUnsupportedURL is returned for links that are not SoundCloud pages the
// resolver understands.
var ErrUnsupportedURL = errors.New("unsupported SoundCloud url")

// urlPatterns are matched against the normalised URL in order.
var urlPatterns = []struct {
	re   *regexp.Regexp
	kind URLKind
}{
	{regexp.MustCompile(`^https://on\.soundcloud\.com/[A-Za-z0-9]+$`), URLShort},
	{regexp.MustCompile(`^https://soundcloud\.com/[^/]+/likes$`), URLLikes},
	{regexp.MustCompile(`^https://soundcloud\.com/[^/]+/sets/[^/]+$`), URLPlaylist},
	{regexp.MustCompile(`^https://soundcloud\.com/[^/]+/[^/]+$`), URLTrack},
}

// reservedFirstSegments are user-level pages that look like tracks.
var reservedFirstSegments = map[string]bool{
	"discover": true, "stream": true, "search": true, "you": true, "upload": true, "signin": true,
}

// NormalizeURL canonicalises a SoundCloud page link: https scheme, no
// www/m prefix, no query, fragment or trailing slash.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUnsupportedURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Join(ErrUnsupportedURL, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if host != "soundcloud.com" && host != "on.soundcloud.com" {
		return "", ErrUnsupportedURL
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		return "", ErrUnsupportedURL
	}
	return "https://" + host + path, nil
}

// CheckURL normalises raw and reports what kind of page it is.
func CheckURL(raw string) (string, URLKind, error) {
	normalised, err := NormalizeURL(raw)
	if err != nil {
		return "", URLUnknown, err
	}
	for _, p := range urlPatterns {
		if !p.re.MatchString(normalised) {
			continue
		}
		if p.kind == URLTrack {
			first := strings.SplitN(strings.TrimPrefix(normalised, "https://soundcloud.com/"), "/", 2)[0]
			if reservedFirstSegments[first] {
				return "", URLUnknown, ErrUnsupportedURL
			}
		}
		return normalised, p.kind, nil
	}
	return "", URLUnknown, ErrUnsupportedURL
}
