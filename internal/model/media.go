package model

import (
	"fmt"
	"strings"
)

// TransportKind identifies how a track's bytes are delivered.
type TransportKind int

const (
	TransportDirect TransportKind = iota + 1
	TransportProgressive
	TransportHLS
)

// String returns the wire name of the transport.
func (k TransportKind) String() string {
	switch k {
	case TransportDirect:
		return "direct"
	case TransportProgressive:
		return "progressive"
	case TransportHLS:
		return "hls"
	default:
		return fmt.Sprintf("transport(%d)", int(k))
	}
}

// ParseTransportKind converts a wire name to a TransportKind.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct":
		return TransportDirect, nil
	case "progressive":
		return TransportProgressive, nil
	case "hls":
		return TransportHLS, nil
	default:
		return 0, fmt.Errorf("unknown transport %q", s)
	}
}

// Output extensions. Nothing else is ever written to disk.
const (
	ExtMP3  = "mp3"
	ExtM4A  = "m4a"
	ExtOpus = "opus"
)

// IsAllowedExtension reports whether ext (lower-case, no dot) is one of the
// extensions the pipeline produces.
func IsAllowedExtension(ext string) bool {
	switch ext {
	case ExtMP3, ExtM4A, ExtOpus:
		return true
	}
	return false
}

// TrackAcquisitionRequest describes one download. Treat as immutable.
type TrackAcquisitionRequest struct {
	SourceURL    string
	Transport    TransportKind
	Preset       string
	Title        string
	PlaylistName string
}

// AcquiredMedia is the raw result of an acquisition.
type AcquiredMedia struct {
	Data             []byte
	Extension        string
	OriginalFileName string
}

// DestinationPlan is where a track ends up on disk.
type DestinationPlan struct {
	Directory string
	FileName  string
	FullPath  string
}

// ProgressFunc receives byte counts while a download is in flight.
// total is 0 when unknown.
type ProgressFunc func(downloaded, total int64)
