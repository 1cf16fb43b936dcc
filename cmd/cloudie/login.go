package main

import (
	"context"
	"fmt"

	"github.com/jmagar/cloudie-cli/internal/login"
	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

func (a *app) runLogin(ctx context.Context, cmd *model.LoginCmd) error {
	ui.PrintInfo("Preparing browser...")
	if err := login.Install(); err != nil {
		return fmt.Errorf("install browser: %w", err)
	}
	host := login.NewPlaywrightHost(cmd.Headless, a.log)
	defer host.Stop()

	ui.PrintInfo("Sign in to SoundCloud in the browser window. Close it to cancel.")
	token, err := login.NewCoordinator(host, login.Options{Log: a.log}).Login(ctx)
	if err != nil {
		return err
	}
	if err := a.saveToken(token); err != nil {
		return err
	}

	client, err := a.apiClient()
	if err != nil {
		return err
	}
	me, err := client.Me(ctx)
	if err != nil {
		ui.PrintWarning(fmt.Sprintf("Token saved, but verifying it failed: %v", err))
		return nil
	}
	ui.PrintSuccess("Signed in as " + me.Username)
	ui.PrintKeyValue("Status", ui.DescribeAuthStatus(a.cfg), ui.ColorGreen)
	return nil
}
