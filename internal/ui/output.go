package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// RunErrorCount and RunWarningCount track errors/warnings during a run.
var (
	countMu         sync.Mutex
	RunErrorCount   int
	RunWarningCount int
)

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorGreen, SymbolCheck, ColorReset, msg, ColorReset)
}

// PrintError prints an error message to stderr and increments the error counter.
func PrintError(msg string) {
	countMu.Lock()
	RunErrorCount++
	countMu.Unlock()
	fmt.Fprintf(os.Stderr, "%s%s%s %s%s\n", ColorRed, SymbolCross, ColorReset, msg, ColorReset)
}

// PrintInfo prints an info message.
func PrintInfo(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorBlue, SymbolInfo, ColorReset, msg, ColorReset)
}

// PrintWarning prints a warning message and increments the warning counter.
func PrintWarning(msg string) {
	countMu.Lock()
	RunWarningCount++
	countMu.Unlock()
	fmt.Printf("%s%s%s %s%s\n", ColorYellow, SymbolWarning, ColorReset, msg, ColorReset)
}

// PrintDownload prints a download message.
func PrintDownload(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorCyan, SymbolDownload, ColorReset, msg, ColorReset)
}

// PrintMusic prints a music message.
func PrintMusic(msg string) {
	fmt.Printf("%s%s%s %s%s\n", ColorGreen, SymbolMusic, ColorReset, msg, ColorReset)
}

// StatusColor picks the colour used for a task status.
func StatusColor(status model.TaskStatus) string {
	switch {
	case status.IsActive():
		return ColorCyan
	case status == model.TaskCompleted:
		return ColorGreen
	case status == model.TaskFailed:
		return ColorRed
	case status == model.TaskPaused:
		return ColorYellow
	default:
		return ColorBlue
	}
}

// DescribeAuthStatus returns a human-readable authentication status.
func DescribeAuthStatus(cfg *model.Config) string {
	switch {
	case strings.TrimSpace(cfg.OAuthToken) != "" && strings.TrimSpace(cfg.ClientID) != "":
		return "Signed in"
	case strings.TrimSpace(cfg.ClientID) != "":
		return "Anonymous (client id only)"
	default:
		return "Not configured"
	}
}
