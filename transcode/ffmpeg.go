package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"media_ingest/constants"
	"media_ingest/milog"
)

// FFmpeg runs an external ffmpeg binary on a temp copy of the upload
type FFmpeg struct {
	Path    string        // binary name or path, resolved through PATH
	Timeout time.Duration // wall clock limit per run
	TempDir string        // defaults to os.TempDir()
}

// NewFFmpeg returns an FFmpeg transcoder with defaults applied to empty fields
func NewFFmpeg(path string, timeout time.Duration, tempDir string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = constants.TRANSCODE_TIMEOUT
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpeg{Path: path, Timeout: timeout, TempDir: tempDir}
}

func (f *FFmpeg) args(in, out string) []string {
	return []string{"-y", "-i", in, "-vcodec", "libx264", "-crf", "28", "-preset", "fast", "-acodec", "copy", out}
}

// Transcode never returns an error. Every failure is reported through Result.Message
// and the caller keeps the original bytes.
func (f *FFmpeg) Transcode(ctx context.Context, name string, raw []byte) Result {
	bin, err := exec.LookPath(f.Path)
	if err != nil {
		return failed("ffmpeg not found.")
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	id := uuid.NewString()
	in := filepath.Join(f.TempDir, fmt.Sprintf("%s_%s%s", base, id, ext))
	out := filepath.Join(f.TempDir, id+".mp4")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := os.WriteFile(in, raw, 0o600); err != nil {
		return failed("Exception - %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, f.args(in, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		milog.Warnw("ffmpeg timed out", "name", name, "timeout", f.Timeout)
		return failed("Timeout after %s.", f.Timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return failed("Exception - %v", runErr)
		}
		return failed("FFmpeg didn't output file.\nStderr: %s", stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		return failed("FFmpeg didn't output file.\nStderr: %s", stderr.String())
	}

	milog.Debugw("ffmpeg finished", "name", name, "elapsed", time.Since(start), "in", len(raw), "out", len(data))
	return Result{
		Data:    data,
		OK:      true,
		Message: fmt.Sprintf(" | COMPRESSED: New size: %.2f MB (was %.2f MB)", megabytes(len(data)), megabytes(len(raw))),
	}
}
