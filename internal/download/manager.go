package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/jmagar/cloudie-cli/internal/helpers"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/notify"
)

// ErrQueueRunning is returned by Run while another Run is active. The
// active run picks up tasks queued in the meantime.
var ErrQueueRunning = errors.New("download queue already running")

// TaskStore persists download tasks.
type TaskStore interface {
	UpsertTask(ctx context.Context, track *model.Track, playlist *model.Playlist) (*model.DownloadTask, error)
	Task(ctx context.Context, id int64) (*model.DownloadTask, error)
	ListTasks(ctx context.Context) ([]*model.DownloadTask, error)
	TasksWithStatus(ctx context.Context, status model.TaskStatus) ([]*model.DownloadTask, error)
	UpdateTask(ctx context.Context, task *model.DownloadTask) error
	SetStatus(ctx context.Context, id int64, status model.TaskStatus) error
	DeleteTask(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
}

// Resolver picks the stream for a track.
type Resolver interface {
	ParseDownload(ctx context.Context, track *model.Track, preferDirect bool) (model.ParsedDownload, error)
}

// Downloader writes one resolved track to disk.
type Downloader interface {
	DownloadTrack(ctx context.Context, req model.TrackAcquisitionRequest, onProgress model.ProgressFunc) (*model.DownloadResult, error)
}

// TrackLookup fills in playlist entries that only carry an id.
type TrackLookup interface {
	Tracks(ctx context.Context, ids []int64) ([]model.Track, error)
}

// Deps holds the optional callbacks the caller wires for console or HTTP
// feedback. Nil callbacks are skipped.
type Deps struct {
	// OnStatus is called after every persisted status change.
	OnStatus func(task *model.DownloadTask)
	// OnProgress receives byte counts while a task downloads.
	OnProgress func(task *model.DownloadTask, downloaded, total int64)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	ParallelDownloads    int
	PreferDirectDownload bool
	FileNaming           string
	Notifier             notify.Notifier
	Lookup               TrackLookup
	Deps                 Deps
	Log                  zerolog.Logger
}

// Manager runs the persistent download queue.
type Manager struct {
	store      TaskStore
	resolver   Resolver
	downloader Downloader
	opts       ManagerOptions
	log        zerolog.Logger

	runMu     sync.Mutex
	mu        sync.Mutex
	attempted map[int64]bool
}

// NewManager wires a Manager.
func NewManager(store TaskStore, resolver Resolver, downloader Downloader, opts ManagerOptions) *Manager {
	if opts.ParallelDownloads <= 0 {
		opts.ParallelDownloads = model.DefaultParallelDownloads
	}
	return &Manager{
		store:      store,
		resolver:   resolver,
		downloader: downloader,
		opts:       opts,
		log:        opts.Log,
		attempted:  make(map[int64]bool),
	}
}

// ManagerOptionsFromConfig copies the queue settings out of cfg.
func ManagerOptionsFromConfig(cfg *model.Config) ManagerOptions {
	opts := ManagerOptions{
		ParallelDownloads:    cfg.ParallelDownloads,
		PreferDirectDownload: cfg.PreferDirectDownload,
		FileNaming:           cfg.FileNaming,
	}
	if n := notify.FromConfig(cfg); n != nil {
		opts.Notifier = n
	}
	return opts
}

// Add queues track, optionally as part of playlist.
func (m *Manager) Add(ctx context.Context, track *model.Track, playlist *model.Playlist) (*model.DownloadTask, error) {
	task, err := m.store.UpsertTask(ctx, track, playlist)
	if err != nil {
		return nil, err
	}
	m.forget(task.ID)
	m.log.Info().Int64("task_id", task.ID).Int64("track_id", track.ID).Str("playlist_id", task.PlaylistID).Msg("task queued")
	return task, nil
}

// AddPlaylist queues every track of playlist. Entries the API returned
// without metadata are fetched first.
func (m *Manager) AddPlaylist(ctx context.Context, playlist *model.Playlist) ([]*model.DownloadTask, error) {
	tracks, err := m.completeTracks(ctx, playlist.Tracks)
	if err != nil {
		return nil, fmt.Errorf("load tracks of playlist %q: %w", playlist.Title, err)
	}
	tasks := make([]*model.DownloadTask, 0, len(tracks))
	for i := range tracks {
		task, err := m.Add(ctx, &tracks[i], playlist)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *Manager) completeTracks(ctx context.Context, tracks []model.Track) ([]model.Track, error) {
	var stubs []int64
	for _, t := range tracks {
		if t.Title == "" {
			stubs = append(stubs, t.ID)
		}
	}
	if len(stubs) == 0 || m.opts.Lookup == nil {
		return tracks, nil
	}
	full, err := m.opts.Lookup.Tracks(ctx, stubs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Track, len(full))
	for _, t := range full {
		byID[t.ID] = t
	}
	out := make([]model.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Title == "" {
			var ok bool
			if t, ok = byID[t.ID]; !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// List returns every task, newest first.
func (m *Manager) List(ctx context.Context) ([]*model.DownloadTask, error) {
	return m.store.ListTasks(ctx)
}

// Resume puts a failed or paused task back to pending.
func (m *Manager) Resume(ctx context.Context, id int64) (*model.DownloadTask, error) {
	task, err := m.store.Task(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case task.Status == model.TaskPending:
		return task, nil
	case task.Status.IsActive(), task.Status == model.TaskCompleted:
		return nil, fmt.Errorf("task %d is %s and cannot be resumed", id, task.Status)
	}
	if err := m.store.SetStatus(ctx, id, model.TaskPending); err != nil {
		return nil, err
	}
	m.forget(id)
	task.Status = model.TaskPending
	task.Error = ""
	m.emitStatus(task)
	return task, nil
}

// Delete removes one task. Files already written are kept.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	return m.store.DeleteTask(ctx, id)
}

// DeleteAll removes every task.
func (m *Manager) DeleteAll(ctx context.Context) (int64, error) {
	return m.store.DeleteAll(ctx)
}

func (m *Manager) forget(id int64) {
	m.mu.Lock()
	delete(m.attempted, id)
	m.mu.Unlock()
}

// nextBatch returns pending tasks not yet attempted in this run, newest first.
func (m *Manager) nextBatch(ctx context.Context) ([]*model.DownloadTask, error) {
	pending, err := m.store.TasksWithStatus(ctx, model.TaskPending)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := pending[:0]
	for _, t := range pending {
		if m.attempted[t.ID] {
			continue
		}
		m.attempted[t.ID] = true
		batch = append(batch, t)
	}
	return batch, nil
}

// Run downloads pending tasks, newest first, with at most
// ParallelDownloads in flight, until none are left. Individual task
// failures are recorded on the task and do not stop the run.
func (m *Manager) Run(ctx context.Context) error {
	if !m.runMu.TryLock() {
		return ErrQueueRunning
	}
	defer m.runMu.Unlock()

	for {
		p := pool.New().WithMaxGoroutines(m.opts.ParallelDownloads)
		fed, err := m.feed(ctx, p)
		p.Wait()
		if err != nil {
			return err
		}
		if fed == 0 {
			return nil
		}
	}
}

// feed submits pending tasks to p until the store has none left. p.Go
// blocks while every slot is busy, so tasks queued meanwhile are seen
// before the pool drains.
func (m *Manager) feed(ctx context.Context, p *pool.Pool) (int, error) {
	fed := 0
	for {
		if err := ctx.Err(); err != nil {
			return fed, err
		}
		batch, err := m.nextBatch(ctx)
		if err != nil {
			return fed, fmt.Errorf("load pending tasks: %w", err)
		}
		if len(batch) == 0 {
			return fed, nil
		}
		for _, task := range batch {
			p.Go(func() { m.runTask(ctx, task) })
			fed++
		}
	}
}

func (m *Manager) runTask(ctx context.Context, task *model.DownloadTask) {
	log := m.log.With().Int64("task_id", task.ID).Int64("track_id", task.TrackID).Logger()

	if err := m.transition(ctx, task, model.TaskGetInfo); err != nil {
		log.Error().Err(err).Msg("task status update failed")
		return
	}
	parsed, err := m.resolver.ParseDownload(ctx, task.Track, m.opts.PreferDirectDownload)
	if err != nil {
		m.fail(ctx, task, err)
		return
	}
	log.Debug().Str("transport", parsed.Transport.String()).Str("preset", parsed.Preset).Msg("stream selected")

	if err := m.transition(ctx, task, model.TaskDownloading); err != nil {
		log.Error().Err(err).Msg("task status update failed")
		return
	}
	req := model.TrackAcquisitionRequest{
		SourceURL:    parsed.FinalURL,
		Transport:    parsed.Transport,
		Preset:       parsed.Preset,
		Title:        helpers.BuildTrackTitle(task.Title, task.Artist, m.opts.FileNaming),
		PlaylistName: task.PlaylistName,
	}
	var onProgress model.ProgressFunc
	if m.opts.Deps.OnProgress != nil {
		onProgress = func(downloaded, total int64) { m.opts.Deps.OnProgress(task, downloaded, total) }
	}
	res, err := m.downloader.DownloadTrack(ctx, req, onProgress)
	if err != nil {
		m.fail(ctx, task, err)
		return
	}

	task.Path = res.Path
	task.OrigFileName = res.OriginalFileName
	task.Status = model.TaskCompleted
	task.Error = ""
	if err := m.store.UpdateTask(ctx, task); err != nil {
		log.Error().Err(err).Msg("task status update failed")
		return
	}
	log.Info().Str("path", res.Path).Msg("task completed")
	m.emitStatus(task)
}

func (m *Manager) transition(ctx context.Context, task *model.DownloadTask, status model.TaskStatus) error {
	if err := m.store.SetStatus(ctx, task.ID, status); err != nil {
		return err
	}
	task.Status = status
	m.emitStatus(task)
	return nil
}

func (m *Manager) fail(ctx context.Context, task *model.DownloadTask, cause error) {
	task.Status = model.TaskFailed
	task.Error = cause.Error()
	m.log.Error().Int64("task_id", task.ID).Err(cause).Msg("task failed")
	if err := m.store.UpdateTask(ctx, task); err != nil {
		m.log.Error().Int64("task_id", task.ID).Err(err).Msg("task status update failed")
	}
	m.emitStatus(task)
	if m.opts.Notifier != nil {
		title, msg := notify.TaskFailed(task)
		if err := m.opts.Notifier.Notify(context.WithoutCancel(ctx), title, msg); err != nil {
			m.log.Warn().Err(err).Msg("failure notification not delivered")
		}
	}
}

func (m *Manager) emitStatus(task *model.DownloadTask) {
	if m.opts.Deps.OnStatus != nil {
		m.opts.Deps.OnStatus(task)
	}
}
