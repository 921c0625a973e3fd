package comms

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_ingest/networking"
)

// fakeReceiver accepts one connection per reply, reads the full request and answers with reply(req).
func fakeReceiver(t *testing.T, reply func(*networking.Request) string) (string, <-chan *networking.Request) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	got := make(chan *networking.Request, 8)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				req, err := networking.ReadRequest(conn, networking.Limits{MaxName: 1024, MaxPayload: 16 << 20})
				if err != nil {
					return
				}
				// The sender half-closes; a second read must see EOF.
				var one [1]byte
				if n, _ := conn.Read(one[:]); n != 0 {
					return
				}
				got <- req
				if msg := reply(req); msg != "" {
					networking.WriteResponse(conn, msg)
				}
			}()
		}
	}()
	return l.Addr().String(), got
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReadTimeout = 5 * time.Second
	return opts
}

func TestSendRoundTrip(t *testing.T) {
	addr, got := fakeReceiver(t, func(r *networking.Request) string {
		return networking.Accepted(r.Name, "")
	})

	payload := bytes.Repeat([]byte("chunk"), 10000)
	resp, err := Send(context.Background(), addr, "клип.mp4", payload, testOptions())
	require.NoError(t, err)
	assert.Equal(t, "OK: File accepted: клип.mp4", resp)

	req := <-got
	assert.Equal(t, "клип.mp4", req.Name)
	assert.Equal(t, payload, req.Payload)
}

func TestSendEmptyPayload(t *testing.T) {
	addr, got := fakeReceiver(t, func(r *networking.Request) string {
		return networking.QueueFull(r.Name)
	})

	resp, err := Send(context.Background(), addr, "x.bin", nil, testOptions())
	require.NoError(t, err)
	assert.Equal(t, networking.StatusQueueFull, networking.ParseStatus(resp))
	assert.Equal(t, int64(0), (<-got).Size)
}

func TestSendNoResponse(t *testing.T) {
	addr, _ := fakeReceiver(t, func(*networking.Request) string { return "" })

	_, err := Send(context.Background(), addr, "x.bin", []byte("x"), testOptions())
	assert.True(t, errors.Is(err, ErrNoResponse), "got %v", err)
}

func TestSendDialFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = Send(context.Background(), addr, "x.bin", []byte("x"), testOptions())
	assert.Error(t, err)
}

func TestSendStreamShortSource(t *testing.T) {
	addr, _ := fakeReceiver(t, func(r *networking.Request) string { return "OK:" })

	_, err := SendStream(context.Background(), addr, "x.bin", 10, bytes.NewReader([]byte("abc")), testOptions())
	assert.ErrorContains(t, err, "source ended after 3 of 10 bytes")
}

func TestSendCanceled(t *testing.T) {
	// A receiver that never answers.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go io.Copy(io.Discard, conn)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = Send(ctx, l.Addr().String(), "x.bin", []byte("x"), testOptions())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}
