package ui

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// Box drawing characters
const (
	BoxVertical   = "│"
	BoxHorizontal = "─"
	BulletDiamond = "◆"
)

// AnsiRegex is compiled once for performance.
var AnsiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

const termWidthCacheTTL = 500 * time.Millisecond

var (
	termWidthMu         sync.Mutex
	cachedTermWidth     = 80
	cachedTermWidthTime time.Time
)

// GetTermWidth returns the terminal width, defaulting to 80.
func GetTermWidth() int {
	termWidthMu.Lock()
	defer termWidthMu.Unlock()
	if time.Since(cachedTermWidthTime) <= termWidthCacheTTL && cachedTermWidth > 0 {
		return cachedTermWidth
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width == 0 {
		width = 80
	}
	cachedTermWidth = width
	cachedTermWidthTime = time.Now()
	return width
}

// StripAnsiCodes removes ANSI escape sequences from a string.
func StripAnsiCodes(s string) string {
	return AnsiRegex.ReplaceAllString(s, "")
}

// VisibleLength returns the visible length of a string (excluding ANSI codes).
func VisibleLength(s string) int {
	return utf8.RuneCountInString(StripAnsiCodes(s))
}

// TruncateWithEllipsis shortens s to maxLen visible runes.
// Colour codes are dropped from truncated values.
func TruncateWithEllipsis(s string, maxLen int) string {
	if VisibleLength(s) <= maxLen {
		return s
	}
	runes := []rune(StripAnsiCodes(s))
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// PadRight pads a string to the specified width using visible length.
func PadRight(s string, width int) string {
	visLen := VisibleLength(s)
	if visLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visLen)
}

// PrintSection prints a section title with underline.
func PrintSection(title string) {
	fmt.Printf("\n%s%s %s%s\n", ColorBold, BulletDiamond, title, ColorReset)
	fmt.Printf("%s%s%s\n\n", ColorCyan, strings.Repeat(BoxHorizontal, len(title)+2), ColorReset)
}

// PrintKeyValue prints a key-value pair with styling.
func PrintKeyValue(key, value, valueColor string) {
	maxValueWidth := GetTermWidth() - len(key) - 10
	if maxValueWidth > 0 && VisibleLength(value) > maxValueWidth {
		value = TruncateWithEllipsis(value, maxValueWidth)
	}
	fmt.Printf("  %s%-20s%s %s%s%s\n", ColorCyan, key+":", ColorReset, valueColor, value, ColorReset)
}

// Table is a plain column table.
type Table struct {
	Headers []string
	Widths  []int
	Rows    [][]string
}

// NewTable creates a table; widths are maximum visible widths per column.
func NewTable(headers []string, widths []int) *Table {
	return &Table{Headers: headers, Widths: widths}
}

// AddRow adds a row, padding or dropping cells to match the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Print renders the table to stdout.
func (t *Table) Print() {
	sep := " " + ColorCyan + BoxVertical + ColorReset + " "
	render := func(cells []string, style string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = style + PadRight(TruncateWithEllipsis(c, t.Widths[i]), t.Widths[i]) + ColorReset
		}
		fmt.Println(strings.Join(parts, sep))
	}
	render(t.Headers, ColorBold)
	total := 0
	for _, w := range t.Widths {
		total += w + 3
	}
	fmt.Printf("%s%s%s\n", ColorCyan, strings.Repeat(BoxHorizontal, total), ColorReset)
	for _, row := range t.Rows {
		render(row, "")
	}
}

// RenderProgress draws a single-line progress bar, rewriting the current line.
func RenderProgress(label string, downloaded, total int64, startedAt time.Time) {
	percentage := 0
	totalStr := UnknownSize
	if total > 0 {
		percentage = int(float64(downloaded) / float64(total) * 100)
		if percentage > 100 {
			percentage = 100
		}
		totalStr = humanize.Bytes(uint64(total))
	}
	speed := uint64(0)
	if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
		speed = uint64(float64(downloaded) / elapsed)
	}

	const barWidth = 30
	filled := (percentage * barWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("%s%s%s %s[%s%s%s]%s %s%3d%%%s @ %s/s, %s/%s ",
		ColorBold, TruncateWithEllipsis(label, 32), ColorReset,
		ColorCyan, ColorGreen, bar, ColorCyan, ColorReset,
		ColorBold, percentage, ColorReset,
		humanize.Bytes(speed), humanize.Bytes(uint64(downloaded)), totalStr)
	fmt.Printf("\r%s", line)
}

// UnknownSize is shown when the server does not report a length.
const UnknownSize = "unknown"
