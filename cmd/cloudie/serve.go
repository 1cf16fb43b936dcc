package main

import (
	"context"
	"errors"
	"strings"

	"github.com/jmagar/cloudie-cli/internal/download"
	"github.com/jmagar/cloudie-cli/internal/login"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/server"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

func (a *app) runServe(ctx context.Context, cmd *model.ServeCmd) error {
	addr := strings.TrimSpace(cmd.Addr)
	if addr == "" {
		addr = a.cfg.ListenAddr
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

	m := a.manager(st, client, download.Deps{})
	host := login.NewPlaywrightHost(false, a.log)
	defer host.Stop()

	srv := server.New(ctx, server.Options{
		Downloader: a.orchestrator(),
		Login:      login.NewCoordinator(host, login.Options{Log: a.log}),
		Tasks:      m,
		OnToken: func(token string) error {
			if err := a.saveToken(token); err != nil {
				return err
			}
			client.SetOAuthToken(token)
			return nil
		},
		Log: a.log,
	})

	ui.PrintInfo("Listening on http://" + addr)
	go func() {
		if err := m.Run(ctx); err != nil && !errors.Is(err, download.ErrQueueRunning) && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("startup queue run failed")
		}
	}()
	return srv.ListenAndServe(ctx, addr)
}
