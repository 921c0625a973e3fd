package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"media_ingest/client/comms"
	"media_ingest/constants"
	"media_ingest/fileio"
	"media_ingest/milog"
	"media_ingest/networking"
)

// SendFunc uploads the file at path under name and returns the receiver reply
type SendFunc func(ctx context.Context, path, name string) (string, error)

// Summary tallies outcomes by receiver status
type Summary struct {
	Sent      int // accepted under the original name
	Duplicate int // accepted under a renamed copy
	Dropped   int // rejected with QUEUE_FULL
	Failed    int // transport errors and unrecognised replies
}

func (s *Summary) add(o Summary) {
	s.Sent += o.Sent
	s.Duplicate += o.Duplicate
	s.Dropped += o.Dropped
	s.Failed += o.Failed
}

// FileSender streams files through a buffered reader over one connection each
func FileSender(address string, opts comms.Options) SendFunc {
	return func(ctx context.Context, path, name string) (string, error) {
		r, err := fileio.OpenBufferedReader(path, constants.DEFAULT_FILE_BUFFER_SIZE)
		if err != nil {
			return "", err
		}
		defer r.Close()
		return comms.SendStream(ctx, address, name, r.Size(), r, opts)
	}
}

// SendDirectories runs one goroutine per directory and waits for all of them
func SendDirectories(ctx context.Context, dirs []string, send SendFunc) Summary {
	var (
		mu    sync.Mutex
		total Summary
		wg    sync.WaitGroup
	)
	for _, dir := range dirs {
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			s := SendDirectory(ctx, dir, send)
			mu.Lock()
			total.add(s)
			mu.Unlock()
		}(dir)
	}
	wg.Wait()
	return total
}

// SendDirectory uploads the regular files directly under dir in name order.
// A failed file is counted and the rest of the directory is still sent.
func SendDirectory(ctx context.Context, dir string, send SendFunc) Summary {
	var s Summary
	entries, err := os.ReadDir(dir)
	if err != nil {
		milog.Errorw("cannot read directory", "dir", dir, "error", err)
		s.Failed++
		return s
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return s
		}
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		milog.Infow("sending file", "path", path)

		resp, err := send(ctx, path, e.Name())
		if err != nil {
			milog.Errorw("error sending file", "path", path, "error", err)
			s.Failed++
			continue
		}
		milog.Infow("received response", "path", path, "response", resp)

		switch networking.ParseStatus(resp) {
		case networking.StatusOK:
			s.Sent++
		case networking.StatusDuplicate:
			s.Duplicate++
		case networking.StatusQueueFull:
			milog.Warnw("receiver dropped file, skipping", "path", path)
			s.Dropped++
		default:
			s.Failed++
		}
	}
	return s
}
