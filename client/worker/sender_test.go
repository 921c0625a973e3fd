package worker

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_ingest/client/comms"
	"media_ingest/networking"
)

func makeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

type recordingSender struct {
	mu    sync.Mutex
	calls []string
	reply func(name string) (string, error)
}

func (r *recordingSender) send(_ context.Context, _, name string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
	return r.reply(name)
}

func TestSendDirectoryClassifiesReplies(t *testing.T) {
	dir := makeDir(t, map[string]string{
		"a.mp4": "a", "b.mp4": "b", "c.mp4": "c", "d.mp4": "d", "e.mp4": "e",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	rec := &recordingSender{reply: func(name string) (string, error) {
		switch name {
		case "a.mp4":
			return networking.Accepted(name, ""), nil
		case "b.mp4":
			return networking.Duplicate(name, "b_copy1.mp4", ""), nil
		case "c.mp4":
			return networking.QueueFull(name), nil
		case "d.mp4":
			return "", errors.New("connection refused")
		default:
			return "garbage", nil
		}
	}}

	s := SendDirectory(context.Background(), dir, rec.send)
	assert.Equal(t, Summary{Sent: 1, Duplicate: 1, Dropped: 1, Failed: 2}, s)
	// Files go out in name order, one call each, and the directory is skipped.
	assert.Equal(t, []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4"}, rec.calls)
}

func TestSendDirectoryMissing(t *testing.T) {
	rec := &recordingSender{reply: func(string) (string, error) { return "", nil }}
	s := SendDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), rec.send)
	assert.Equal(t, Summary{Failed: 1}, s)
	assert.Empty(t, rec.calls)
}

func TestSendDirectoryStopsOnCancel(t *testing.T) {
	dir := makeDir(t, map[string]string{"a": "1", "b": "2"})
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordingSender{reply: func(string) (string, error) {
		cancel()
		return "OK: File accepted", nil
	}}
	s := SendDirectory(ctx, dir, rec.send)
	assert.Equal(t, Summary{Sent: 1}, s)
}

func TestSendDirectoriesRunsConcurrently(t *testing.T) {
	d1 := makeDir(t, map[string]string{"one.mp4": "1"})
	d2 := makeDir(t, map[string]string{"two.mp4": "2"})

	// Both directories must be in flight at once for either send to complete.
	var barrier sync.WaitGroup
	barrier.Add(2)
	rec := &recordingSender{reply: func(name string) (string, error) {
		barrier.Done()
		waited := make(chan struct{})
		go func() { barrier.Wait(); close(waited) }()
		select {
		case <-waited:
			return networking.Accepted(name, ""), nil
		case <-time.After(2 * time.Second):
			return "", errors.New("directories were sent sequentially")
		}
	}}

	s := SendDirectories(context.Background(), []string{d1, d2}, rec.send)
	assert.Equal(t, Summary{Sent: 2}, s)
	sort.Strings(rec.calls)
	assert.Equal(t, []string{"one.mp4", "two.mp4"}, rec.calls)
}

func TestFileSenderStreamsFile(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	got := make(chan *networking.Request, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := networking.ReadRequest(conn, networking.Limits{MaxName: 255, MaxPayload: 1 << 20})
		if err != nil {
			return
		}
		got <- req
		networking.WriteResponse(conn, networking.Accepted(req.Name, ""))
	}()

	body := string(make([]byte, 300*1024))
	dir := makeDir(t, map[string]string{"movie.mp4": body})

	opts := comms.DefaultOptions()
	opts.ReadTimeout = 5 * time.Second
	s := SendDirectory(context.Background(), dir, FileSender(l.Addr().String(), opts))
	assert.Equal(t, Summary{Sent: 1}, s)

	req := <-got
	assert.Equal(t, "movie.mp4", req.Name)
	assert.Equal(t, len(body), len(req.Payload))
}
