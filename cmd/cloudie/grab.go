package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmagar/cloudie-cli/internal/api"
	"github.com/jmagar/cloudie-cli/internal/download"
	"github.com/jmagar/cloudie-cli/internal/helpers"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

func (a *app) runGrab(ctx context.Context, cmd *model.GrabCmd) error {
	targets, rejected, err := helpers.CollectURLs(cmd.Urls)
	if err != nil {
		return err
	}
	for _, r := range rejected {
		ui.PrintError(fmt.Sprintf("Skipping %s: %v", r.Source, r.Err))
	}
	if len(targets) == 0 {
		ui.PrintWarning("Nothing queued")
		return nil
	}

	client, err := a.apiClient()
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	m := a.manager(st, client, a.consoleDeps())
	queued := 0
	for _, target := range targets {
		n, err := a.enqueue(ctx, client, m, target)
		if err != nil {
			ui.PrintError(fmt.Sprintf("Failed to queue %s: %v", target.URL, err))
			continue
		}
		queued += n
	}
	if queued == 0 {
		ui.PrintWarning("Nothing queued")
		return nil
	}
	ui.PrintInfo(fmt.Sprintf("Queued %d track(s), downloading %d at a time", queued, max(a.cfg.ParallelDownloads, 1)))
	return m.Run(ctx)
}

func (a *app) enqueue(ctx context.Context, client *api.Client, m *download.Manager, target helpers.URLTarget) (int, error) {
	track, playlist, err := client.Resolve(ctx, target.URL)
	if err != nil {
		return 0, err
	}
	if track != nil {
		if _, err := m.Add(ctx, track, nil); err != nil {
			return 0, err
		}
		ui.PrintMusic(track.Title + " - " + track.Artist())
		return 1, nil
	}
	tasks, err := m.AddPlaylist(ctx, playlist)
	if err != nil {
		return len(tasks), err
	}
	ui.PrintMusic(fmt.Sprintf("%s (%d tracks)", playlist.Title, len(tasks)))
	return len(tasks), nil
}

// consoleDeps prints one line per status change. The single-line progress
// bar is only drawn when tasks run one at a time.
func (a *app) consoleDeps() download.Deps {
	var mu sync.Mutex
	started := map[int64]time.Time{}
	deps := download.Deps{
		OnStatus: func(task *model.DownloadTask) {
			mu.Lock()
			defer mu.Unlock()
			name := helpers.BuildTrackTitle(task.Title, task.Artist, a.cfg.FileNaming)
			switch task.Status {
			case model.TaskDownloading:
				started[task.ID] = time.Now()
			case model.TaskCompleted:
				fmt.Print("\r")
				ui.PrintSuccess(name + " " + ui.SymbolArrow + " " + task.Path)
			case model.TaskFailed:
				fmt.Print("\r")
				ui.PrintError(name + ": " + task.Error)
			}
			if task.Status.IsFinished() {
				delete(started, task.ID)
			}
		},
	}
	if a.cfg.ParallelDownloads <= 1 {
		deps.OnProgress = func(task *model.DownloadTask, downloaded, total int64) {
			mu.Lock()
			at := started[task.ID]
			mu.Unlock()
			ui.RenderProgress(task.Title, downloaded, total, at)
		}
	}
	return deps
}
