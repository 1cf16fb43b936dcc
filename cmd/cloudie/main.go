package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmagar/cloudie-cli/internal/config"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

func main() {
	args, parser := config.ParseArgs()
	if parser.Subcommand() == nil {
		parser.WriteHelp(os.Stdout)
		os.Exit(2)
	}

	// Completion scripts need no config.
	if args.Completion != nil {
		if err := runCompletion(args.Completion); err != nil {
			ui.PrintError(err.Error())
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(args)
	if err != nil {
		ui.PrintError("Failed to load config: " + err.Error())
		os.Exit(1)
	}
	err = a.dispatch(ctx)
	a.close()
	if err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
	if ui.RunErrorCount > 0 {
		os.Exit(1)
	}
}
