package main

import (
	"fmt"
	"os"

	"github.com/jmagar/cloudie-cli/internal/completion"
	"github.com/jmagar/cloudie-cli/internal/model"
)

func runCompletion(cmd *model.CompletionCmd) error {
	if cmd.Shell == "" {
		fmt.Print(completion.Usage)
		return nil
	}
	return completion.Write(os.Stdout, cmd.Shell)
}
