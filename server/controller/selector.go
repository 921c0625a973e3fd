package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"media_ingest/constants"
	"media_ingest/milog"
)

// Options configure the listening socket
type Options struct {
	Addr           string // host:port to bind
	MaxConnections int    // concurrent handlers, 0 for unbounded
	MultipathTCP   bool
}

// Server accepts connections and hands each to its own Handler goroutine
type Server struct {
	opts    Options
	handler *Handler
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

// NewServer validates the listen address
func NewServer(handler *Handler, opts Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server needs a handler")
	}
	_, portStr, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", opts.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid listen port %q", portStr)
	}
	if opts.MaxConnections < 0 {
		return nil, fmt.Errorf("max connections must not be negative, got %d", opts.MaxConnections)
	}

	s := &Server{opts: opts, handler: handler}
	if opts.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxConnections))
	}
	return s, nil
}

// ListenAndServe binds opts.Addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := new(net.ListenConfig)
	lc.SetMultipathTCP(s.opts.MultipathTCP)
	l, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("could not bind listening socket on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts on l until ctx is done, then closes l and waits for in-flight handlers.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()
	defer s.wg.Wait()

	milog.Infof("listening on %s", l.Addr())

	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				milog.Infof("listener on %s closed", l.Addr())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if backoff == 0 {
				backoff = constants.INITIAL_ACCEPT_BACKOFF
			} else {
				backoff = min(backoff*2, constants.MAX_ACCEPT_BACKOFF)
			}
			milog.Warnf("failed to accept connection: %v; retrying in %s", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		// Always send immediately.
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				conn.Close()
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.sem != nil {
				defer s.sem.Release(1)
			}
			s.handler.Handle(ctx, conn)
		}()
	}
}
