package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

func (a *app) runTasks(ctx context.Context, cmd *model.TasksCmd) error {
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

	needID := func() error {
		if cmd.ID <= 0 {
			return errors.New("usage: cloudie tasks " + cmd.Action + " <id>")
		}
		return nil
	}

	switch cmd.Action {
	case "", "list":
		tasks, err := m.List(ctx)
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	case "resume":
		if err := needID(); err != nil {
			return err
		}
		task, err := m.Resume(ctx, cmd.ID)
		if err != nil {
			return err
		}
		ui.PrintInfo(fmt.Sprintf("Task %d (%s) queued again", task.ID, task.Title))
		return m.Run(ctx)
	case "delete":
		if err := needID(); err != nil {
			return err
		}
		if err := m.Delete(ctx, cmd.ID); err != nil {
			return err
		}
		ui.PrintSuccess("Deleted task " + strconv.FormatInt(cmd.ID, 10))
		return nil
	case "clear":
		n, err := m.DeleteAll(ctx)
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Deleted %d task(s)", n))
		return nil
	case "run":
		return m.Run(ctx)
	default:
		return fmt.Errorf("unknown tasks action %q (list, resume, delete, clear or run)", cmd.Action)
	}
}

func printTasks(tasks []*model.DownloadTask) {
	if len(tasks) == 0 {
		ui.PrintInfo("No download tasks")
		return
	}
	ui.PrintSection(fmt.Sprintf("Download tasks (%d)", len(tasks)))
	width := ui.GetTermWidth()
	titleWidth := max(width-70, 20)
	table := ui.NewTable(
		[]string{"ID", "Status", "Title", "Artist", "Playlist", "Queued"},
		[]int{6, 11, titleWidth, 18, 14, 14},
	)
	for _, t := range tasks {
		playlist := t.PlaylistName
		if t.PlaylistID == model.LikedPlaylistID {
			playlist = "-"
		}
		table.AddRow(
			strconv.FormatInt(t.ID, 10),
			ui.StatusColor(t.Status)+string(t.Status)+ui.ColorReset,
			t.Title,
			t.Artist,
			playlist,
			humanize.Time(t.Timestamp),
		)
	}
	table.Print()
	for _, t := range tasks {
		if t.Status == model.TaskFailed && t.Error != "" {
			ui.PrintKeyValue(fmt.Sprintf("Task %d", t.ID), t.Error, ui.ColorRed)
		}
	}
}
