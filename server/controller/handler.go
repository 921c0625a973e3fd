package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"media_ingest/fileio"
	"media_ingest/milog"
	"media_ingest/networking"
	"media_ingest/queue"
	"media_ingest/server/worker"
	"media_ingest/transcode"
)

// HandlerOptions bound what a single upload may cost the receiver
type HandlerOptions struct {
	Limits      networking.Limits
	Threshold   int64         // payloads larger than this go through the transcoder
	ReadTimeout time.Duration // idle read deadline, refreshed on every read; 0 for none
}

// idleReader fails a read once the peer has sent nothing for timeout
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

// Handler serves exactly one upload per connection
type Handler struct {
	queue      *queue.DropQueue[*worker.Upload]
	names      *fileio.NameRegistry
	transcoder transcode.Transcoder
	opts       HandlerOptions
}

// NewHandler wires admission. A nil transcoder disables transcoding.
func NewHandler(q *queue.DropQueue[*worker.Upload], names *fileio.NameRegistry, tc transcode.Transcoder, opts HandlerOptions) *Handler {
	if tc == nil {
		tc = transcode.Nop{}
	}
	return &Handler{queue: q, names: names, transcoder: tc, opts: opts}
}

// Handle reads one request, answers it once and closes conn. Nothing escapes it, panics included.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			milog.Errorw("upload handler panicked", "remote", remote, "panic", r)
		}
	}()

	var src io.Reader = conn
	if h.opts.ReadTimeout > 0 {
		src = idleReader{conn: conn, timeout: h.opts.ReadTimeout}
	}

	req, err := networking.ReadRequest(src, h.opts.Limits)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			milog.Warnw("upload stalled, closing", "remote", remote, "idle", h.opts.ReadTimeout, "error", err)
		case errors.Is(err, networking.ErrMalformed):
			milog.Warnw("dropping malformed upload", "remote", remote, "error", err)
		case errors.Is(err, networking.ErrAborted):
			milog.Infow("client aborted upload", "remote", remote, "error", err)
		default:
			milog.Warnw("failed to read upload", "remote", remote, "error", err)
		}
		return
	}
	conn.SetReadDeadline(time.Time{})

	resp := h.Admit(ctx, req)
	if err := networking.WriteResponse(conn, resp); err != nil {
		milog.Warnw("failed to send response", "remote", remote, "name", req.Name, "error", err)
		return
	}
	milog.Infow("upload handled", "remote", remote, "name", req.Name, "size", req.Size, "status", networking.ParseStatus(resp).String())
}

// Admit transcodes, names and enqueues a fully read request and returns the reply text.
func (h *Handler) Admit(ctx context.Context, req *networking.Request) string {
	data := req.Payload
	compressionMsg := ""
	if transcode.NeedsTranscode(int64(len(data)), h.opts.Threshold) {
		res := h.transcoder.Transcode(ctx, req.Name, data)
		compressionMsg = res.Message
		if res.OK {
			data = res.Data
		}
	}

	name, renamed := h.names.ResolveName(ctx, req.Name)
	upload := &worker.Upload{
		Name:     name,
		Original: req.Name,
		Data:     data,
		Accepted: time.Now(),
	}
	if !h.queue.TryEnqueue(upload) {
		h.names.Release(name)
		milog.Warnw("queue full, dropping upload", "name", req.Name, "capacity", h.queue.Capacity())
		return networking.QueueFull(req.Name)
	}

	if renamed {
		return networking.Duplicate(req.Name, name, compressionMsg)
	}
	return networking.Accepted(req.Name, compressionMsg)
}
