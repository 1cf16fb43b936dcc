package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmagar/cloudie-cli/internal/config"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/workers"
)

type fakeAcquirer struct {
	media *model.AcquiredMedia
	err   error
	calls int
}

func (f *fakeAcquirer) Acquire(_ context.Context, _ model.TrackAcquisitionRequest, _ model.ProgressFunc) (*model.AcquiredMedia, error) {
	f.calls++
	return f.media, f.err
}

func newTestOrchestrator(settings config.Store, acq Acquirer, fs afero.Fs) *Orchestrator {
	return NewOrchestrator(settings, acq, fs, workers.New(2), zerolog.Nop())
}

func TestDownloadTrack_Layout(t *testing.T) {
	tests := []struct {
		name     string
		separate bool
		playlist string
		want     string
	}{
		{"flat", false, "Mix: Vol/1", "/music/A_B.mp3"},
		{"playlist dir", true, "Mix: Vol/1", "/music/Mix_ Vol_1/A_B.mp3"},
		{"no playlist name", true, "", "/music/A_B.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			acq := &fakeAcquirer{media: &model.AcquiredMedia{Data: []byte("audio"), Extension: "mp3", OriginalFileName: "orig.mp3"}}
			o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": tt.separate}, acq, fs)

			res, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{
				SourceURL: "https://x", Transport: model.TransportProgressive, Preset: "mp3_128",
				Title: "A/B", PlaylistName: tt.playlist,
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), res.Path)
			assert.Equal(t, "orig.mp3", res.OriginalFileName)

			data, err := afero.ReadFile(fs, res.Path)
			require.NoError(t, err)
			assert.Equal(t, "audio", string(data))
		})
	}
}

func TestDownloadTrack_ConfigMissing(t *testing.T) {
	tests := []struct {
		name     string
		settings config.MapStore
		field    string
	}{
		{"no save path", config.MapStore{"playlistSeparateDir": true}, "savePath"},
		{"no separate flag", config.MapStore{"savePath": "/music"}, "playlistSeparateDir"},
		{"wrong type", config.MapStore{"savePath": 12.0, "playlistSeparateDir": true}, "savePath"},
		{"flag as string", config.MapStore{"savePath": "/music", "playlistSeparateDir": "yes"}, "playlistSeparateDir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq := &fakeAcquirer{}
			o := newTestOrchestrator(tt.settings, acq, afero.NewMemMapFs())
			_, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: "t"}, nil)
			require.ErrorIs(t, err, model.ErrConfigMissing)
			var cme *model.ConfigMissingError
			require.True(t, errors.As(err, &cme))
			assert.Equal(t, tt.field, cme.Field)
			assert.Zero(t, acq.calls, "dispatcher must not run without config")
		})
	}
}

func TestDownloadTrack_PlaylistDotNamesRejected(t *testing.T) {
	o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": true}, &fakeAcquirer{}, afero.NewMemMapFs())
	for _, name := range []string{".", "..", " .. "} {
		_, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: "x", PlaylistName: name}, nil)
		assert.ErrorIs(t, err, model.ErrInvalidName, "playlist %q", name)
	}
}

func TestDownloadTrack_DotTitlesStayInSaveDir(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{title: ".", want: "..mp3"},
		{title: "..", want: "...mp3"},
		{title: "../up", want: ".._up.mp3"},
	}
	for _, tt := range tests {
		fs := afero.NewMemMapFs()
		acq := &fakeAcquirer{media: &model.AcquiredMedia{Data: []byte("x"), Extension: "mp3"}}
		o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": false}, acq, fs)
		res, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: tt.title}, nil)
		require.NoError(t, err, "title %q", tt.title)
		assert.Equal(t, filepath.Join("/music", tt.want), res.Path)
		ok, err := afero.Exists(fs, res.Path)
		require.NoError(t, err)
		assert.True(t, ok, "title %q", tt.title)
	}
}

func TestDownloadTrack_EmptyTitleRejected(t *testing.T) {
	acq := &fakeAcquirer{}
	o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": false}, acq, afero.NewMemMapFs())
	for _, title := range []string{"", "   "} {
		_, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: title}, nil)
		assert.ErrorIs(t, err, model.ErrInvalidName, "title %q", title)
	}
	assert.Zero(t, acq.calls)
}

func TestDownloadTrack_AcquisitionFailureWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	acq := &fakeAcquirer{err: model.ErrNetwork}
	o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": true}, acq, fs)

	_, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: "song", PlaylistName: "pl"}, nil)
	require.ErrorIs(t, err, model.ErrAcquisitionFailed)
	require.ErrorIs(t, err, model.ErrNetwork)

	// the directory stays, no file is produced
	entries, err := afero.ReadDir(fs, filepath.FromSlash("/music/pl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadTrack_OverwritesExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := filepath.FromSlash("/music/song.opus")
	require.NoError(t, afero.WriteFile(fs, target, []byte("old content that is longer"), 0644))

	acq := &fakeAcquirer{media: &model.AcquiredMedia{Data: []byte("new"), Extension: "opus"}}
	o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": false}, acq, fs)
	res, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: "song"}, nil)
	require.NoError(t, err)
	assert.Equal(t, target, res.Path)

	data, err := afero.ReadFile(fs, target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := afero.ReadDir(fs, filepath.FromSlash("/music"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestDownloadTrack_MkdirFailureIsIO(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, filepath.FromSlash("/music/pl"), []byte("file in the way"), 0644))
	fs := afero.NewReadOnlyFs(base)

	acq := &fakeAcquirer{}
	o := newTestOrchestrator(config.MapStore{"savePath": "/music", "playlistSeparateDir": true}, acq, fs)
	_, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: "song", PlaylistName: "new"}, nil)
	require.ErrorIs(t, err, model.ErrIO)
	assert.Zero(t, acq.calls)
}

func TestDownloadTrack_OsFilesystem(t *testing.T) {
	dir := t.TempDir()
	acq := &fakeAcquirer{media: &model.AcquiredMedia{Data: []byte("m4a"), Extension: "m4a"}}
	o := newTestOrchestrator(config.MapStore{"savePath": dir, "playlistSeparateDir": true}, acq, nil)
	res, err := o.DownloadTrack(context.Background(), model.TrackAcquisitionRequest{Title: "t", PlaylistName: "p"}, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "m4a", string(data))
}
