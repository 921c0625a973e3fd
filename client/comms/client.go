package comms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"media_ingest/constants"
	"media_ingest/milog"
	"media_ingest/networking"
)

// ErrNoResponse is returned when the receiver closed the connection without replying
var ErrNoResponse = errors.New("receiver closed connection without response")

// Options for a single upload connection
type Options struct {
	DSCP         int // 0 leaves the TOS byte untouched
	MultipathTCP bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
}

// DefaultOptions returns the sender defaults
func DefaultOptions() Options {
	return Options{
		DSCP:        constants.DEFAULT_DSCP,
		DialTimeout: constants.SENDER_DIAL_TIMEOUT,
		ReadTimeout: constants.SENDER_READ_TIMEOUT,
	}
}

// Connect opens a TCP connection to the receiver
func Connect(ctx context.Context, address string, opts Options) (net.Conn, error) {
	dial := &net.Dialer{Timeout: opts.DialTimeout}
	// Set MPTCP.
	dial.SetMultipathTCP(opts.MultipathTCP)
	conn, err := dial.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Set TCP_NODELAY to always immediately send.
		tcp.SetNoDelay(true)
	}
	if opts.DSCP > 0 {
		// DSCP occupies the upper six bits of the TOS byte. Not applied on IPv6 or by default on Windows.
		if err := ipv4.NewConn(conn).SetTOS(opts.DSCP << 2); err != nil {
			milog.Debugf("could not set DSCP on %s: %v", address, err)
		}
	}
	return conn, nil
}

// Send uploads payload under name and returns the receiver's reply
func Send(ctx context.Context, address, name string, payload []byte, opts Options) (string, error) {
	return SendStream(ctx, address, name, int64(len(payload)), bytes.NewReader(payload), opts)
}

// SendStream uploads size bytes read from body. The write side is half-closed once
// the payload is sent, then the reply is read until the receiver closes.
func SendStream(ctx context.Context, address, name string, size int64, body io.Reader, opts Options) (string, error) {
	conn, err := Connect(ctx, address, opts)
	if err != nil {
		return "", fmt.Errorf("connect %s: %w", address, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := networking.WriteHeader(conn, name, size); err != nil {
		return "", err
	}
	n, err := io.Copy(conn, io.LimitReader(body, size))
	if err != nil {
		return "", fmt.Errorf("send %s: %w", name, err)
	}
	if n != size {
		return "", fmt.Errorf("send %s: source ended after %d of %d bytes", name, n, size)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return "", fmt.Errorf("half-close: %w", err)
		}
	}

	if opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	}
	resp, err := networking.ReadResponse(conn, constants.MAX_RESPONSE_SIZE)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return resp, err
	}
	if resp == "" {
		return "", ErrNoResponse
	}
	return resp, nil
}
