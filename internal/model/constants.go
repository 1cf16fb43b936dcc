package model

import "time"

// Presets the pipeline branches on.
const (
	PresetNone    = "none"
	PresetAAC160  = "aac_160k"
	PresetOpus    = "opus_0_0"
	PresetABRSQ   = "abr_sq"
	PresetMP3_1_0 = "mp3_1_0"
)

// PresetOrder lists presets from most to least preferred.
// opus (~480k) > aac (160k) > mp3 (128k); the last mp3 variants show up on older uploads.
var PresetOrder = []string{
	PresetOpus,
	PresetAAC160,
	PresetMP3_1_0,
	"mp3_0_1",
	"mp3_standard",
	"mp3_0_0",
	PresetABRSQ,
}

// Protocols reported in transcoding formats.
const (
	ProtocolHLS         = "hls"
	ProtocolProgressive = "progressive"
)

// File naming modes for downloaded tracks.
const (
	FileNamingTitle       = "title"
	FileNamingArtistTitle = "artist-title"
	FileNamingTitleArtist = "title-artist"
)

// Defaults applied when config.json leaves a value unset.
const (
	DefaultParallelDownloads = 3
	DefaultListenAddr        = "127.0.0.1:7420"
	DefaultLogMaxSizeMB      = 10
	DefaultLogMaxBackups     = 3
	DefaultLogMaxAgeDays     = 28
	DefaultLoginPollInterval = time.Second
)

// Provider endpoints.
const (
	SoundCloudHost      = "soundcloud.com"
	SoundCloudSignInURL = "https://soundcloud.com/signin"
	SoundCloudCookieURL = "https://soundcloud.com"
	OAuthCookieName     = "oauth_token"
	APIV2Base           = "https://api-v2.soundcloud.com"
)
