package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI color codes - exported for use across packages.
var (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[91m"
	ColorGreen  = "\033[92m"
	ColorYellow = "\033[93m"
	ColorBlue   = "\033[94m"
	ColorCyan   = "\033[96m"
	ColorBold   = "\033[1m"
	ActiveTheme = "soundwave"
)

// Unicode symbols
var (
	SymbolCheck    = "✓"
	SymbolCross    = "✗"
	SymbolArrow    = "→"
	SymbolMusic    = "♪"
	SymbolDownload = "⬇"
	SymbolInfo     = "ℹ"
	SymbolWarning  = "⚠"
)

func init() {
	InitColorPalette()
}

// InitColorPalette selects the color theme based on CLOUDIE_THEME.
// "plain" (or NO_COLOR, or stdout not being a terminal) disables colour.
func InitColorPalette() {
	theme := strings.ToLower(strings.TrimSpace(os.Getenv("CLOUDIE_THEME")))
	if theme != "" {
		ActiveTheme = theme
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		ActiveTheme = "plain"
	}

	switch ActiveTheme {
	case "plain":
		initPlainPalette()
	case "vivid":
		initVividPalette()
	default:
		initSoundwavePalette()
	}
}

func initPlainPalette() {
	ColorReset, ColorRed, ColorGreen, ColorYellow = "", "", "", ""
	ColorBlue, ColorCyan, ColorBold = "", "", ""
}

func initVividPalette() {
	if SupportsTruecolor() {
		ColorRed = "\033[1;38;2;255;76;102m"
		ColorGreen = "\033[1;38;2;80;250;123m"
		ColorYellow = "\033[1;38;2;255;221;87m"
		ColorBlue = "\033[1;38;2;110;196;255m"
		ColorCyan = "\033[1;38;2;0;245;255m"
		return
	}
	ColorRed = "\033[1;91m"
	ColorGreen = "\033[1;92m"
	ColorYellow = "\033[1;93m"
	ColorBlue = "\033[1;94m"
	ColorCyan = "\033[1;96m"
}

// soundwave leans on SoundCloud orange for the accent colour.
func initSoundwavePalette() {
	if SupportsTruecolor() {
		ColorRed = "\033[1;38;2;224;108;117m"
		ColorGreen = "\033[1;38;2;152;195;121m"
		ColorYellow = "\033[1;38;2;255;136;0m"
		ColorBlue = "\033[1;38;2;143;188;255m"
		ColorCyan = "\033[1;38;2;255;85;0m"
		return
	}
	if Supports256Color() {
		ColorRed = "\033[1;38;5;210m"
		ColorGreen = "\033[1;38;5;114m"
		ColorYellow = "\033[1;38;5;214m"
		ColorBlue = "\033[1;38;5;111m"
		ColorCyan = "\033[1;38;5;202m"
	}
}

// SupportsTruecolor checks if the terminal supports 24-bit color.
func SupportsTruecolor() bool {
	colorTerm := strings.ToLower(os.Getenv("COLORTERM"))
	return strings.Contains(colorTerm, "truecolor") || strings.Contains(colorTerm, "24bit")
}

// Supports256Color checks if the terminal supports 256 colors.
func Supports256Color() bool {
	return strings.Contains(strings.ToLower(os.Getenv("TERM")), "256color")
}
