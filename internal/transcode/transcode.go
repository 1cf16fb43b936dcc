// Package transcode remuxes remote streams with ffmpeg without re-encoding.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/workers"
)

// DefaultCRF is passed with -crf on every run.
const DefaultCRF = 23

// StdoutSink tells ffmpeg to write the muxed stream to standard output.
const StdoutSink = "pipe:1"

// Invoker runs ffmpeg for one source at a time per pool slot.
type Invoker struct {
	ffmpeg   string
	cacheDir string
	crf      int
	pool     *workers.Pool
	log      zerolog.Logger
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithCRF overrides DefaultCRF.
func WithCRF(crf int) Option {
	return func(i *Invoker) { i.crf = crf }
}

// New returns an Invoker. cacheDir holds temp files for containers that
// need a seekable output.
func New(ffmpeg, cacheDir string, pool *workers.Pool, log zerolog.Logger, opts ...Option) *Invoker {
	if pool == nil {
		pool = workers.New(0)
	}
	inv := &Invoker{ffmpeg: ffmpeg, cacheDir: cacheDir, crf: DefaultCRF, pool: pool, log: log}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// BuildArgs returns the ffmpeg argument list for a stream-copy remux.
func BuildArgs(sourceURL, container string, crf int, sink string) []string {
	return []string{
		"-y",
		"-loglevel", "warning",
		"-i", sourceURL,
		"-bsf:a", "aac_adtstoasc",
		"-c:v", "copy",
		"-c", "copy",
		"-crf", strconv.Itoa(crf),
		"-f", container,
		sink,
	}
}

// NeedsSeekableOutput reports whether container must be written to a file.
// The mp4 family writes its index after the media data.
func NeedsSeekableOutput(container string) bool {
	switch strings.ToLower(container) {
	case "mp4", "ipod", "mov":
		return true
	}
	return false
}

// Mux remuxes sourceURL into container and returns the encoded bytes.
// Spawn failures match model.ErrProcessSpawnFailed; non-zero exits return
// a *model.ProcessExitError.
func (i *Invoker) Mux(ctx context.Context, sourceURL, container string) ([]byte, error) {
	if !NeedsSeekableOutput(container) {
		var stdout bytes.Buffer
		if err := i.run(ctx, sourceURL, container, StdoutSink, &stdout); err != nil {
			return nil, err
		}
		return stdout.Bytes(), nil
	}

	if err := i.pool.Do(ctx, func() error { return os.MkdirAll(i.cacheDir, 0700) }); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w: %v", i.cacheDir, model.ErrIO, err)
	}
	tmp := filepath.Join(i.cacheDir, "cloudie_temp_"+uuid.NewString()+"."+container)
	defer i.removeTemp(tmp)

	if err := i.run(ctx, sourceURL, container, tmp, nil); err != nil {
		return nil, err
	}
	data, err := workers.Run(ctx, i.pool, func() ([]byte, error) { return os.ReadFile(tmp) })
	if err != nil {
		return nil, fmt.Errorf("read transcode output: %w: %v", model.ErrIO, err)
	}
	return data, nil
}

// removeTemp deletes tmp on the pool. The wait for a slot ignores the
// request context so the file is removed even after cancellation.
func (i *Invoker) removeTemp(tmp string) {
	err := i.pool.Do(context.Background(), func() error { return os.Remove(tmp) })
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		i.log.Warn().Err(err).Str("path", tmp).Msg("failed to remove transcode temp file")
	}
}

func (i *Invoker) run(ctx context.Context, sourceURL, container, sink string, stdout *bytes.Buffer) error {
	args := BuildArgs(sourceURL, container, i.crf, sink)
	return i.pool.Do(ctx, func() error {
		var errBuffer bytes.Buffer
		cmd := exec.Command(i.ffmpeg, args...)
		cmd.Stderr = &errBuffer
		if stdout != nil {
			cmd.Stdout = stdout
		}
		if err := cmd.Start(); err != nil {
			i.log.Error().Err(err).Str("ffmpeg", i.ffmpeg).Msg("ffmpeg spawn failed")
			return fmt.Errorf("%w: %v", model.ErrProcessSpawnFailed, err)
		}
		if err := cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				stderr := strings.TrimSpace(errBuffer.String())
				i.log.Error().Int("status", exitErr.ExitCode()).Str("container", container).Str("stderr", stderr).Msg("ffmpeg failed")
				return &model.ProcessExitError{Status: exitErr.ExitCode(), Stderr: stderr}
			}
			return fmt.Errorf("wait for ffmpeg: %w", err)
		}
		i.log.Debug().Str("container", container).Str("sink", sink).Msg("ffmpeg finished")
		return nil
	})
}
