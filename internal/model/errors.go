package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for download and login operations.
var (
	// ErrConfigMissing is returned when a required setting is absent or has the wrong type.
	ErrConfigMissing = errors.New("config value missing")
	// ErrIO covers local filesystem failures.
	ErrIO = errors.New("i/o error")
	// ErrNetwork covers connection failures, non-success statuses and body read failures.
	ErrNetwork = errors.New("network error")
	// ErrMissingExtensionHeader is returned when a direct download has no file-type header.
	ErrMissingExtensionHeader = errors.New("missing x-amz-meta-file-type header")
	// ErrUnsupportedExtension is returned when a direct download advertises a type we do not write.
	ErrUnsupportedExtension = errors.New("unsupported file type")
	// ErrUnsupportedPreset is returned for HLS presets with no acquisition strategy.
	ErrUnsupportedPreset = errors.New("unsupported preset")
	// ErrUnreachable is returned for transport kinds outside the closed set.
	ErrUnreachable = errors.New("unknown transport kind")
	// ErrEncryptedStream is returned for HLS playlists carrying a segment key.
	ErrEncryptedStream = errors.New("encrypted hls stream")
	// ErrProcessSpawnFailed is returned when ffmpeg could not be started.
	ErrProcessSpawnFailed = errors.New("failed to start ffmpeg")
	// ErrProcessExitNonZero is matched by *ProcessExitError.
	ErrProcessExitNonZero = errors.New("ffmpeg exited with non-zero status")
	// ErrAcquisitionFailed wraps any dispatcher error seen by the orchestrator.
	ErrAcquisitionFailed = errors.New("acquisition failed")
	// ErrInvalidName is returned when a title or playlist name cannot be used as a path component.
	ErrInvalidName = errors.New("invalid file or directory name")
	// ErrNoStreams is returned when a track has no usable transcoding.
	ErrNoStreams = errors.New("no available streams or encrypted")

	// ErrAlreadyInProgress is returned when a login session is already open.
	ErrAlreadyInProgress = errors.New("login already in progress")
	// ErrLoginCancelled is returned when the user closes the login window.
	ErrLoginCancelled = errors.New("login cancelled")
	// ErrLoginInterrupted is returned when the session ends without an outcome.
	ErrLoginInterrupted = errors.New("login interrupted")
)

// ConfigMissingError names the setting that could not be read.
type ConfigMissingError struct {
	Field string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("config value %q missing or invalid", e.Field)
}

func (e *ConfigMissingError) Is(target error) bool {
	return target == ErrConfigMissing
}

// ProcessExitError carries the raw exit status of a failed ffmpeg run.
type ProcessExitError struct {
	Status int
	Stderr string
}

func (e *ProcessExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg failed with code %d", e.Status)
	}
	return fmt.Sprintf("ffmpeg failed with code %d: %s", e.Status, e.Stderr)
}

func (e *ProcessExitError) Is(target error) bool {
	return target == ErrProcessExitNonZero
}
