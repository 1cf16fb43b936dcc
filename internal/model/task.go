package model

import "time"

// TaskStatus is the lifecycle state of a queued download.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskGetInfo     TaskStatus = "getinfo"
	TaskDownloading TaskStatus = "downloading"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskPaused      TaskStatus = "paused"
)

// IsActive reports whether a worker currently owns the task.
func (s TaskStatus) IsActive() bool {
	return s == TaskGetInfo || s == TaskDownloading
}

// IsFinished reports whether the task reached a terminal state.
func (s TaskStatus) IsFinished() bool {
	return s == TaskCompleted || s == TaskFailed
}

// LikedPlaylistID is used for tasks queued outside any playlist.
const LikedPlaylistID = "liked"

// DownloadTask is one row of the persistent download queue.
type DownloadTask struct {
	ID           int64      `json:"taskId"`
	TrackID      int64      `json:"trackId"`
	PlaylistID   string     `json:"playlistId"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist"`
	PlaylistName string     `json:"playlistName,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Path         string     `json:"path"`
	OrigFileName string     `json:"origFileName,omitempty"`
	Status       TaskStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	// Track is the full SoundCloud metadata, stored alongside the task.
	Track *Track `json:"-"`
}
