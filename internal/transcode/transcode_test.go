package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/testutil"
	"github.com/jmagar/cloudie-cli/internal/workers"
)

// lastArg is the sink ffmpeg was told to write to.
const lastArg = `for a; do last="$a"; done
`

func fakeFfmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	return testutil.WriteScript(t, filepath.Join(t.TempDir(), "ffmpeg"), lastArg+body)
}

func TestBuildArgs(t *testing.T) {
	got := strings.Join(BuildArgs("https://x/playlist.m3u8", "mp4", 23, "/tmp/out"), " ")
	want := "-y -loglevel warning -i https://x/playlist.m3u8 -bsf:a aac_adtstoasc -c:v copy -c copy -crf 23 -f mp4 /tmp/out"
	if got != want {
		t.Fatalf("args:\n got %s\nwant %s", got, want)
	}
}

func TestNeedsSeekableOutput(t *testing.T) {
	for _, c := range []string{"mp4", "ipod", "MOV"} {
		if !NeedsSeekableOutput(c) {
			t.Fatalf("%s should need a file", c)
		}
	}
	for _, c := range []string{"adts", "mp3", "ogg"} {
		if NeedsSeekableOutput(c) {
			t.Fatalf("%s should stream to stdout", c)
		}
	}
}

func TestMux_StdoutCapture(t *testing.T) {
	bin := fakeFfmpeg(t, `[ "$last" = "pipe:1" ] || exit 9
printf 'adts-bytes'
`)
	inv := New(bin, t.TempDir(), workers.New(1), zerolog.Nop())
	data, err := inv.Mux(context.Background(), "https://x/a.m3u8", "adts")
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	if string(data) != "adts-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestMux_TempFileReadBackAndRemoved(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	bin := fakeFfmpeg(t, `case "$last" in *.mp4) ;; *) exit 9 ;; esac
printf 'mp4-bytes' > "$last"
`)
	inv := New(bin, cacheDir, workers.New(1), zerolog.Nop(), WithCRF(18))
	data, err := inv.Mux(context.Background(), "https://x/a.m3u8", "mp4")
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Fatalf("data = %q", data)
	}
	assertEmptyDir(t, cacheDir)
}

func TestMux_NonZeroExitCleansTempFile(t *testing.T) {
	cacheDir := t.TempDir()
	bin := fakeFfmpeg(t, `printf 'partial' > "$last"
echo "Invalid data found when processing input" >&2
exit 3
`)
	inv := New(bin, cacheDir, workers.New(1), zerolog.Nop())
	_, err := inv.Mux(context.Background(), "https://x/a.m3u8", "mp4")
	if !errors.Is(err, model.ErrProcessExitNonZero) {
		t.Fatalf("expected ErrProcessExitNonZero, got %v", err)
	}
	var pe *model.ProcessExitError
	if !errors.As(err, &pe) || pe.Status != 3 {
		t.Fatalf("expected status 3, got %v", err)
	}
	if !strings.Contains(pe.Stderr, "Invalid data") {
		t.Fatalf("stderr not captured: %q", pe.Stderr)
	}
	assertEmptyDir(t, cacheDir)
}

func TestMux_SpawnFailure(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "missing-ffmpeg"), t.TempDir(), workers.New(1), zerolog.Nop())
	_, err := inv.Mux(context.Background(), "https://x/a.m3u8", "adts")
	if !errors.Is(err, model.ErrProcessSpawnFailed) {
		t.Fatalf("expected ErrProcessSpawnFailed, got %v", err)
	}
}

func TestMux_FilesystemWorkWaitsForPoolSlot(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	marker := filepath.Join(t.TempDir(), "ran")
	bin := fakeFfmpeg(t, `touch "`+marker+`"
`)
	pool := workers.New(1)
	release := make(chan struct{})
	busy := make(chan struct{})
	go pool.Do(context.Background(), func() error {
		close(busy)
		<-release
		return nil
	})
	<-busy
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := New(bin, cacheDir, pool, zerolog.Nop())
	_, err := inv.Mux(ctx, "https://x/a.m3u8", "mp4")
	if !errors.Is(err, model.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if _, err := os.Stat(cacheDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cache dir created outside the pool: %v", err)
	}
	if _, err := os.Stat(marker); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("ffmpeg ran with no free pool slot")
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}
