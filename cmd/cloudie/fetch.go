package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

func (a *app) runFetch(ctx context.Context, cmd *model.FetchCmd) error {
	kind, err := model.ParseTransportKind(cmd.Type)
	if err != nil {
		return err
	}
	req := model.TrackAcquisitionRequest{
		SourceURL:    cmd.URL,
		Transport:    kind,
		Preset:       cmd.Preset,
		Title:        cmd.Title,
		PlaylistName: cmd.Playlist,
	}

	ui.PrintDownload(fmt.Sprintf("Fetching %s (%s, %s)", cmd.Title, kind, cmd.Preset))
	started := time.Now()
	res, err := a.orchestrator().DownloadTrack(ctx, req, func(downloaded, total int64) {
		ui.RenderProgress(cmd.Title, downloaded, total, started)
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("download %s: %w", cmd.Title, err)
	}

	ui.PrintSuccess("Saved " + res.Path)
	if res.OriginalFileName != "" {
		ui.PrintKeyValue("Original file", res.OriginalFileName, ui.ColorReset)
	}
	return nil
}
