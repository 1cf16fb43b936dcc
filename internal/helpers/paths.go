package helpers

import (
	"fmt"
	"strings"

	"github.com/jmagar/cloudie-cli/internal/model"
)

var sanitiser = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Sanitise replaces every character that is reserved in file names
// (\ / : * ? " < > |) with an underscore.
func Sanitise(filename string) string {
	return sanitiser.Replace(filename)
}

// SafePathComponent sanitises s and rejects values that would still resolve
// outside their parent directory.
func SafePathComponent(s string) (string, error) {
	san := Sanitise(s)
	switch strings.TrimSpace(san) {
	case "", ".", "..":
		return "", fmt.Errorf("%q: %w", s, model.ErrInvalidName)
	}
	if err := ValidatePath(san); err != nil {
		return "", fmt.Errorf("%q: %w: %v", s, model.ErrInvalidName, err)
	}
	return san, nil
}

// BuildTrackTitle builds the file title for a track according to the fileNaming setting.
func BuildTrackTitle(title, artist, naming string) string {
	if strings.TrimSpace(artist) == "" {
		return title
	}
	switch naming {
	case model.FileNamingTitle:
		return title
	case model.FileNamingArtistTitle:
		return artist + " - " + title
	case model.FileNamingTitleArtist, "":
		return title + " - " + artist
	default:
		return title
	}
}

// ValidatePath checks that a path does not contain dangerous characters.
func ValidatePath(path string) error {
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("path contains invalid characters")
	}
	return nil
}
