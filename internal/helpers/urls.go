package helpers

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jmagar/cloudie-cli/internal/api"
)

var (
	// ErrReadURLList is returned when a .txt list of links cannot be read.
	ErrReadURLList = errors.New("failed to read url list")
	// ErrLikesUnsupported rejects likes pages, which need paging through an
	// authenticated collection.
	ErrLikesUnsupported = errors.New("likes pages are not supported, queue the tracks or sets instead")
)

// URLTarget is one SoundCloud page collected from the grab arguments.
type URLTarget struct {
	URL  string
	Kind api.URLKind
}

// RejectedURL is an argument or list line that is not a usable page.
type RejectedURL struct {
	// Source is the argument itself, or "list.txt:3" for list lines.
	Source string
	Value  string
	Err    error
}

// CollectURLs expands .txt list files (one link per line, # comments),
// normalises every entry and drops duplicates, keeping first-seen order.
// An unreadable list aborts; bad entries are reported in rejected.
func CollectURLs(args []string) (targets []URLTarget, rejected []RejectedURL, err error) {
	seen := map[string]bool{}
	readLists := map[string]bool{}

	add := func(source, value string) {
		pageURL, kind, err := api.CheckURL(value)
		if err == nil && kind == api.URLLikes {
			err = ErrLikesUnsupported
		}
		if err != nil {
			rejected = append(rejected, RejectedURL{Source: source, Value: value, Err: err})
			return
		}
		key := strings.ToLower(pageURL)
		if seen[key] {
			return
		}
		seen[key] = true
		targets = append(targets, URLTarget{URL: pageURL, Kind: kind})
	}

	for _, arg := range args {
		if !strings.HasSuffix(strings.ToLower(arg), ".txt") {
			add(arg, arg)
			continue
		}
		if readLists[arg] {
			continue
		}
		readLists[arg] = true
		if err := scanURLList(arg, add); err != nil {
			return nil, nil, err
		}
	}
	return targets, rejected, nil
}

func scanURLList(path string, add func(source, value string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrReadURLList, path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		add(fmt.Sprintf("%s:%d", path, n), line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrReadURLList, path, err)
	}
	return nil
}
