// Package transcode shrinks oversized uploads before they are queued.
package transcode

import (
	"context"
	"fmt"
)

// Result of a transcode attempt. Message is appended verbatim to the client reply.
type Result struct {
	Data    []byte
	Message string
	OK      bool
}

// Transcoder turns raw upload bytes into a smaller encoding
type Transcoder interface {
	Transcode(ctx context.Context, name string, raw []byte) Result
}

// NeedsTranscode reports whether a payload of size bytes is over threshold
func NeedsTranscode(size, threshold int64) bool {
	return size > threshold
}

// Nop is used when transcoding is disabled
type Nop struct{}

func (Nop) Transcode(context.Context, string, []byte) Result {
	return Result{}
}

func failed(format string, args ...any) Result {
	return Result{Message: " | COMPRESSION_FAILED: " + fmt.Sprintf(format, args...)}
}

func megabytes(n int) float64 {
	return float64(n) / (1024.0 * 1024.0)
}
