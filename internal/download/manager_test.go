package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// memStore is an in-memory TaskStore.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	clock  int64
	tasks  map[int64]*model.DownloadTask
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[int64]*model.DownloadTask)}
}

func (s *memStore) UpsertTask(_ context.Context, track *model.Track, playlist *model.Playlist) (*model.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlistID, playlistName := model.LikedPlaylistID, ""
	if playlist != nil {
		playlistID, playlistName = fmt.Sprint(playlist.ID), playlist.Title
	}
	s.clock++
	for _, t := range s.tasks {
		if t.TrackID == track.ID && t.PlaylistID == playlistID {
			t.Status, t.Error, t.Timestamp = model.TaskPending, "", time.UnixMilli(s.clock)
			c := *t
			return &c, nil
		}
	}
	s.nextID++
	tr := *track
	t := &model.DownloadTask{
		ID: s.nextID, TrackID: track.ID, PlaylistID: playlistID, PlaylistName: playlistName,
		Title: track.Title, Artist: track.Artist(), Timestamp: time.UnixMilli(s.clock),
		Status: model.TaskPending, Track: &tr,
	}
	s.tasks[t.ID] = t
	c := *t
	return &c, nil
}

func (s *memStore) Task(_ context.Context, id int64) (*model.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	c := *t
	return &c, nil
}

func (s *memStore) sorted(filter func(*model.DownloadTask) bool) []*model.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DownloadTask
	for _, t := range s.tasks {
		if filter(t) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *memStore) ListTasks(context.Context) ([]*model.DownloadTask, error) {
	return s.sorted(func(*model.DownloadTask) bool { return true }), nil
}

func (s *memStore) TasksWithStatus(_ context.Context, status model.TaskStatus) ([]*model.DownloadTask, error) {
	return s.sorted(func(t *model.DownloadTask) bool { return t.Status == status }), nil
}

func (s *memStore) UpdateTask(_ context.Context, task *model.DownloadTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[task.ID]
	if !ok {
		return errors.New("not found")
	}
	t.Status, t.Path, t.OrigFileName, t.Error = task.Status, task.Path, task.OrigFileName, task.Error
	return nil
}

func (s *memStore) SetStatus(_ context.Context, id int64, status model.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	t.Status, t.Error = status, ""
	return nil
}

func (s *memStore) DeleteTask(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errors.New("not found")
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) DeleteAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.tasks))
	s.tasks = make(map[int64]*model.DownloadTask)
	return n, nil
}

type fakeResolver struct {
	fail map[int64]error
}

func (f *fakeResolver) ParseDownload(_ context.Context, track *model.Track, _ bool) (model.ParsedDownload, error) {
	if err := f.fail[track.ID]; err != nil {
		return model.ParsedDownload{}, err
	}
	return model.ParsedDownload{FinalURL: fmt.Sprintf("https://cdn/%d", track.ID), Transport: model.TransportHLS, Preset: model.PresetOpus}, nil
}

type fakeDownloader struct {
	mu       sync.Mutex
	requests []model.TrackAcquisitionRequest
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	err      error
}

func (f *fakeDownloader) DownloadTrack(_ context.Context, req model.TrackAcquisitionRequest, onProgress model.ProgressFunc) (*model.DownloadResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if onProgress != nil {
		onProgress(5, 10)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.DownloadResult{Path: "/music/" + req.Title + ".opus", OriginalFileName: "orig"}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, _, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

type fakeLookup struct{ calls [][]int64 }

func (f *fakeLookup) Tracks(_ context.Context, ids []int64) ([]model.Track, error) {
	f.calls = append(f.calls, ids)
	out := make([]model.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Track{ID: id, Title: fmt.Sprintf("Full %d", id)})
	}
	return out, nil
}

func testTrack(id int64, title, artist string) *model.Track {
	return &model.Track{ID: id, Title: title, User: model.User{Username: artist}}
}

func TestManager_RunCompletesTasksWithStatusTransitions(t *testing.T) {
	store := newMemStore()
	dl := &fakeDownloader{}
	var mu sync.Mutex
	var seen []model.TaskStatus
	var progress atomic.Int32
	m := NewManager(store, &fakeResolver{}, dl, ManagerOptions{
		ParallelDownloads: 1,
		FileNaming:        model.FileNamingArtistTitle,
		Log:               zerolog.Nop(),
		Deps: Deps{
			OnStatus: func(task *model.DownloadTask) {
				mu.Lock()
				seen = append(seen, task.Status)
				mu.Unlock()
			},
			OnProgress: func(*model.DownloadTask, int64, int64) { progress.Add(1) },
		},
	})
	ctx := context.Background()

	task, err := m.Add(ctx, testTrack(1, "Song", "DJ"), &model.Playlist{ID: 7, Title: "Mix"})
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	got, err := store.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
	assert.Equal(t, "/music/DJ - Song.opus", got.Path)
	assert.Equal(t, "orig", got.OrigFileName)
	assert.Equal(t, []model.TaskStatus{model.TaskGetInfo, model.TaskDownloading, model.TaskCompleted}, seen)
	assert.Equal(t, int32(1), progress.Load())

	require.Len(t, dl.requests, 1)
	assert.Equal(t, "Mix", dl.requests[0].PlaylistName)
	assert.Equal(t, model.TransportHLS, dl.requests[0].Transport)
	assert.Equal(t, "https://cdn/1", dl.requests[0].SourceURL)
}

func TestManager_RunNewestFirstWithinParallelLimit(t *testing.T) {
	store := newMemStore()
	dl := &fakeDownloader{delay: 20 * time.Millisecond}
	m := NewManager(store, &fakeResolver{}, dl, ManagerOptions{ParallelDownloads: 2, FileNaming: model.FileNamingTitle, Log: zerolog.Nop()})
	ctx := context.Background()
	for i := int64(1); i <= 6; i++ {
		_, err := m.Add(ctx, testTrack(i, fmt.Sprintf("T%d", i), ""), nil)
		require.NoError(t, err)
	}

	require.NoError(t, m.Run(ctx))
	assert.LessOrEqual(t, dl.peak.Load(), int32(2))
	require.Len(t, dl.requests, 6)

	tasks, err := m.List(ctx)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, model.TaskCompleted, task.Status, "task %d", task.ID)
	}
}

func TestManager_RunSequentialOrderIsNewestFirst(t *testing.T) {
	store := newMemStore()
	dl := &fakeDownloader{}
	m := NewManager(store, &fakeResolver{}, dl, ManagerOptions{ParallelDownloads: 1, FileNaming: model.FileNamingTitle, Log: zerolog.Nop()})
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		_, err := m.Add(ctx, testTrack(i, fmt.Sprintf("T%d", i), ""), nil)
		require.NoError(t, err)
	}

	require.NoError(t, m.Run(ctx))
	var titles []string
	for _, r := range dl.requests {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"T3", "T2", "T1"}, titles)
}

func TestManager_FailureRecordsErrorAndNotifies(t *testing.T) {
	store := newMemStore()
	notifier := &fakeNotifier{}
	m := NewManager(store, &fakeResolver{fail: map[int64]error{2: model.ErrNoStreams}}, &fakeDownloader{}, ManagerOptions{
		ParallelDownloads: 2, Notifier: notifier, Log: zerolog.Nop(),
	})
	ctx := context.Background()
	ok, err := m.Add(ctx, testTrack(1, "Good", "A"), nil)
	require.NoError(t, err)
	bad, err := m.Add(ctx, testTrack(2, "Bad", "B"), nil)
	require.NoError(t, err)

	require.NoError(t, m.Run(ctx))

	got, err := store.Task(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Contains(t, got.Error, model.ErrNoStreams.Error())

	got, err = store.Task(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "B - Bad")
}

func TestManager_DownloadFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, &fakeResolver{}, &fakeDownloader{err: model.ErrAcquisitionFailed}, ManagerOptions{Log: zerolog.Nop()})
	ctx := context.Background()
	task, err := m.Add(ctx, testTrack(1, "Song", ""), nil)
	require.NoError(t, err)

	require.NoError(t, m.Run(ctx))
	got, err := store.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
}

func TestManager_ResumeRunsFailedTaskAgain(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{fail: map[int64]error{1: errors.New("temporary")}}
	m := NewManager(store, resolver, &fakeDownloader{}, ManagerOptions{Log: zerolog.Nop()})
	ctx := context.Background()
	task, err := m.Add(ctx, testTrack(1, "Song", ""), nil)
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	resolver.fail = nil
	resumed, err := m.Resume(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, resumed.Status)
	assert.Empty(t, resumed.Error)

	require.NoError(t, m.Run(ctx))
	got, err := store.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
}

func TestManager_ResumeRejectsCompletedTask(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, &fakeResolver{}, &fakeDownloader{}, ManagerOptions{Log: zerolog.Nop()})
	ctx := context.Background()
	task, err := m.Add(ctx, testTrack(1, "Song", ""), nil)
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	_, err = m.Resume(ctx, task.ID)
	require.Error(t, err)
}

func TestManager_ResumeRejectsActiveTask(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, &fakeResolver{}, &fakeDownloader{}, ManagerOptions{Log: zerolog.Nop()})
	ctx := context.Background()
	for i, status := range []model.TaskStatus{model.TaskGetInfo, model.TaskDownloading} {
		task, err := m.Add(ctx, testTrack(int64(i+1), "Song", ""), nil)
		require.NoError(t, err)
		require.NoError(t, store.SetStatus(ctx, task.ID, status))

		_, err = m.Resume(ctx, task.ID)
		require.Error(t, err, "status %s", status)
		got, err := store.Task(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}
}

func TestManager_RunRejectsConcurrentRun(t *testing.T) {
	store := newMemStore()
	dl := &fakeDownloader{delay: 50 * time.Millisecond}
	m := NewManager(store, &fakeResolver{}, dl, ManagerOptions{Log: zerolog.Nop()})
	ctx := context.Background()
	_, err := m.Add(ctx, testTrack(1, "Song", ""), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool { return dl.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, m.Run(ctx), ErrQueueRunning)
	require.NoError(t, <-done)
}

func TestManager_AddPlaylistFillsStubs(t *testing.T) {
	store := newMemStore()
	lookup := &fakeLookup{}
	m := NewManager(store, &fakeResolver{}, &fakeDownloader{}, ManagerOptions{Lookup: lookup, Log: zerolog.Nop()})
	playlist := &model.Playlist{ID: 3, Title: "Set", Tracks: []model.Track{
		*testTrack(1, "Known", "A"),
		{ID: 2},
		{ID: 3},
	}}

	tasks, err := m.AddPlaylist(context.Background(), playlist)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, [][]int64{{2, 3}}, lookup.calls)
	assert.Equal(t, "Known", tasks[0].Title)
	assert.Equal(t, "Full 2", tasks[1].Title)
	assert.Equal(t, "Set", tasks[2].PlaylistName)
}

func TestManager_DeleteAndDeleteAll(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, &fakeResolver{}, &fakeDownloader{}, ManagerOptions{Log: zerolog.Nop()})
	ctx := context.Background()
	a, err := m.Add(ctx, testTrack(1, "A", ""), nil)
	require.NoError(t, err)
	_, err = m.Add(ctx, testTrack(2, "B", ""), nil)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, a.ID))
	require.Error(t, m.Delete(ctx, a.ID))
	n, err := m.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	tasks, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
