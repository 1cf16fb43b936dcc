package model

import "strings"

// User is the subset of a SoundCloud user object the client needs.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Permalink string `json:"permalink"`
}

// TranscodingFormat describes how a transcoding is delivered.
type TranscodingFormat struct {
	Protocol string `json:"protocol"`
	MimeType string `json:"mime_type"`
}

// Transcoding is one encoding of a track offered by the API.
type Transcoding struct {
	URL                 string            `json:"url"`
	Preset              string            `json:"preset"`
	Duration            int64             `json:"duration"`
	Snipped             bool              `json:"snipped"`
	Format              TranscodingFormat `json:"format"`
	Quality             string            `json:"quality"`
	IsLegacyTranscoding bool              `json:"is_legacy_transcoding"`
}

// IsEncrypted reports whether the transcoding uses a DRM-protected HLS flavour.
func (t Transcoding) IsEncrypted() bool {
	return strings.Contains(t.Format.Protocol, "encrypted")
}

// Media wraps a track's transcodings.
type Media struct {
	Transcodings []Transcoding `json:"transcodings"`
}

// Track is the subset of a SoundCloud track object the downloader needs.
type Track struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	Downloadable bool   `json:"downloadable"`
	ArtworkURL   string `json:"artwork_url"`
	PermalinkURL string `json:"permalink_url"`
	User         User   `json:"user"`
	Media        Media  `json:"media"`
	// PublisherMetadata may carry a more accurate artist name.
	PublisherMetadata *struct {
		Artist string `json:"artist"`
	} `json:"publisher_metadata,omitempty"`
}

// Artist returns the best artist name available for the track.
func (t *Track) Artist() string {
	if t.PublisherMetadata != nil && strings.TrimSpace(t.PublisherMetadata.Artist) != "" {
		return t.PublisherMetadata.Artist
	}
	return t.User.Username
}

// Playlist is a SoundCloud playlist (set).
type Playlist struct {
	ID     int64   `json:"id"`
	Kind   string  `json:"kind"`
	Title  string  `json:"title"`
	User   User    `json:"user"`
	Tracks []Track `json:"tracks"`
}

// ResolveResponse is the loosely typed body of /resolve.
type ResolveResponse struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// StreamURLResponse is returned when a transcoding URL is followed.
type StreamURLResponse struct {
	URL string `json:"url"`
}

// DownloadLinkResponse is returned by /tracks/{id}/download.
type DownloadLinkResponse struct {
	RedirectURI string `json:"redirectUri"`
}

// ParsedDownload is what the download parser hands to the pipeline.
type ParsedDownload struct {
	FinalURL  string
	Transport TransportKind
	Preset    string
}
