package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jmagar/cloudie-cli/internal/config"
	"github.com/jmagar/cloudie-cli/internal/helpers"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/workers"
)

// Acquirer fetches the bytes for a request.
type Acquirer interface {
	Acquire(ctx context.Context, req model.TrackAcquisitionRequest, onProgress model.ProgressFunc) (*model.AcquiredMedia, error)
}

// Orchestrator resolves where a track goes, acquires it and writes it.
type Orchestrator struct {
	settings config.Store
	acquirer Acquirer
	fs       afero.Fs
	pool     *workers.Pool
	log      zerolog.Logger
}

// NewOrchestrator wires an Orchestrator. fs nil means the OS filesystem.
func NewOrchestrator(settings config.Store, acquirer Acquirer, fs afero.Fs, pool *workers.Pool, log zerolog.Logger) *Orchestrator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if pool == nil {
		pool = workers.New(0)
	}
	return &Orchestrator{settings: settings, acquirer: acquirer, fs: fs, pool: pool, log: log}
}

// Plan computes the target directory and file name for req. FullPath is
// left empty until the extension is known.
func (o *Orchestrator) Plan(req model.TrackAcquisitionRequest) (model.DestinationPlan, error) {
	savePath, err := config.String(o.settings, config.KeySavePath)
	if err != nil {
		return model.DestinationPlan{}, err
	}
	separate, err := config.Bool(o.settings, config.KeyPlaylistSeparateDir)
	if err != nil {
		return model.DestinationPlan{}, err
	}
	if strings.TrimSpace(savePath) == "" {
		return model.DestinationPlan{}, &model.ConfigMissingError{Field: config.KeySavePath}
	}

	// The extension always follows, so "." and ".." titles stay inside dir.
	fileName := helpers.Sanitise(req.Title)
	if strings.TrimSpace(fileName) == "" {
		return model.DestinationPlan{}, fmt.Errorf("title %q: %w", req.Title, model.ErrInvalidName)
	}

	dir := savePath
	if separate && strings.TrimSpace(req.PlaylistName) != "" {
		sub, err := helpers.SafePathComponent(req.PlaylistName)
		if err != nil {
			return model.DestinationPlan{}, fmt.Errorf("playlist name: %w", err)
		}
		dir = filepath.Join(savePath, sub)
	}
	return model.DestinationPlan{Directory: dir, FileName: fileName}, nil
}

// DownloadTrack runs the full pipeline for one request and returns the
// written path. Directories created before a failure are left in place.
func (o *Orchestrator) DownloadTrack(ctx context.Context, req model.TrackAcquisitionRequest, onProgress model.ProgressFunc) (*model.DownloadResult, error) {
	plan, err := o.Plan(req)
	if err != nil {
		return nil, err
	}

	err = o.pool.Do(ctx, func() error {
		return o.fs.MkdirAll(plan.Directory, 0755)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w: %v", plan.Directory, model.ErrIO, err)
	}

	media, err := o.acquirer.Acquire(ctx, req, onProgress)
	if err != nil {
		o.log.Error().Err(err).Str("title", req.Title).Str("transport", req.Transport.String()).Msg("acquisition failed")
		return nil, fmt.Errorf("%w: %w", model.ErrAcquisitionFailed, err)
	}

	plan.FullPath = filepath.Join(plan.Directory, plan.FileName+"."+media.Extension)
	if err := o.pool.Do(ctx, func() error { return o.write(plan, media.Data) }); err != nil {
		return nil, fmt.Errorf("write %s: %w: %v", plan.FullPath, model.ErrIO, err)
	}

	o.log.Info().Str("path", plan.FullPath).Int("bytes", len(media.Data)).Msg("track saved")
	return &model.DownloadResult{Path: plan.FullPath, OriginalFileName: media.OriginalFileName}, nil
}

// write replaces plan.FullPath with data via a sibling temp file.
func (o *Orchestrator) write(plan model.DestinationPlan, data []byte) error {
	tmp, err := afero.TempFile(o.fs, plan.Directory, ".cloudie-*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		o.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		o.fs.Remove(tmpName)
		return err
	}
	if err := o.fs.Rename(tmpName, plan.FullPath); err != nil {
		o.fs.Remove(tmpName)
		return err
	}
	return nil
}
