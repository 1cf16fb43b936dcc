package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/acquire"
	"github.com/jmagar/cloudie-cli/internal/api"
	"github.com/jmagar/cloudie-cli/internal/config"
	"github.com/jmagar/cloudie-cli/internal/download"
	"github.com/jmagar/cloudie-cli/internal/hls"
	"github.com/jmagar/cloudie-cli/internal/logging"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/resolve"
	"github.com/jmagar/cloudie-cli/internal/store"
	"github.com/jmagar/cloudie-cli/internal/transcode"
	"github.com/jmagar/cloudie-cli/internal/workers"
)

// app holds the process-wide collaborators built from config.json.
type app struct {
	args      *model.Args
	loaded    *config.Loaded
	cfg       *model.Config
	log       zerolog.Logger
	logCloser io.Closer
	pool      *workers.Pool
	http      *http.Client
}

func newApp(args *model.Args) (*app, error) {
	loaded, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.New(logging.OptionsFromConfig(loaded.Config))
	if err != nil {
		return nil, err
	}
	return &app{
		args:      args,
		loaded:    loaded,
		cfg:       loaded.Config,
		log:       log,
		logCloser: closer,
		pool:      workers.New(0),
		http:      &http.Client{},
	}, nil
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) dispatch(ctx context.Context) error {
	switch {
	case a.args.Fetch != nil:
		return a.runFetch(ctx, a.args.Fetch)
	case a.args.Grab != nil:
		return a.runGrab(ctx, a.args.Grab)
	case a.args.Tasks != nil:
		return a.runTasks(ctx, a.args.Tasks)
	case a.args.Login != nil:
		return a.runLogin(ctx, a.args.Login)
	case a.args.Serve != nil:
		return a.runServe(ctx, a.args.Serve)
	}
	return nil
}

// orchestrator builds the acquisition pipeline. A missing ffmpeg is only
// fatal for the aac_160k HLS path, so it is logged rather than returned.
func (a *app) orchestrator() *download.Orchestrator {
	ffmpeg, err := config.ResolveFfmpegBinary(a.cfg)
	if err != nil {
		a.log.Warn().Err(err).Msg("ffmpeg not resolved, falling back to PATH lookup at run time")
		ffmpeg = "ffmpeg"
	}
	fetcher := hls.NewFetcher(a.http, a.log)
	muxer := transcode.New(ffmpeg, a.cfg.CacheDir, a.pool, a.log)
	dispatcher := acquire.NewDispatcher(a.http, muxer, fetcher, a.log)
	return download.NewOrchestrator(a.loaded.Store, dispatcher, nil, a.pool, a.log)
}

func (a *app) apiClient() (*api.Client, error) {
	return api.New(api.Options{
		ClientID:   a.cfg.ClientID,
		OAuthToken: a.cfg.OAuthToken,
		Log:        a.log,
	})
}

// openStore opens the task database and requeues tasks an earlier
// process left mid-flight.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.DBPath, a.log)
	if err != nil {
		return nil, err
	}
	if n, err := st.ResetActive(ctx); err != nil {
		st.Close()
		return nil, err
	} else if n > 0 {
		a.log.Info().Int64("count", n).Msg("requeued interrupted tasks")
	}
	return st, nil
}

func (a *app) manager(st *store.Store, client *api.Client, deps download.Deps) *download.Manager {
	opts := download.ManagerOptionsFromConfig(a.cfg)
	opts.Lookup = client
	opts.Deps = deps
	opts.Log = a.log
	return download.NewManager(st, resolve.NewParser(client, a.log), a.orchestrator(), opts)
}

// saveToken stores a captured OAuth token in config.json. The file is
// re-read so per-run overrides such as --out are not persisted.
func (a *app) saveToken(token string) error {
	path := a.loaded.Store.Path()
	fresh, err := config.LoadFileStore(path)
	if err != nil {
		return err
	}
	fresh.Set(config.KeyOAuthToken, token)
	if err := fresh.Save(); err != nil {
		return fmt.Errorf("save token to %s: %w", path, err)
	}
	a.loaded.Store.Set(config.KeyOAuthToken, token)
	a.cfg.OAuthToken = token
	return nil
}
