package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"media_ingest/catalog"
	"media_ingest/fileio"
	"media_ingest/milog"
	"media_ingest/queue"
)

// Options tune a Pool
type Options struct {
	// Delay is slept after each item is stored and before it is announced.
	Delay time.Duration
	// OnDone, if set, is called after each item is handled with its persist error.
	OnDone func(u *Upload, err error)
}

// Stats counts handled items since Start
type Stats struct {
	Persisted uint64
	Failed    uint64
}

// Pool runs identical persistence loops over a shared queue
type Pool struct {
	workers int
	queue   *queue.DropQueue[*Upload]
	store   fileio.Store
	catalog catalog.Catalog
	names   *fileio.NameRegistry
	opts    Options

	wg        sync.WaitGroup
	started   atomic.Bool
	persisted atomic.Uint64
	failed    atomic.Uint64
}

// NewPool validates workers. catalog and names may be nil.
func NewPool(workers int, q *queue.DropQueue[*Upload], store fileio.Store, cat catalog.Catalog, names *fileio.NameRegistry, opts Options) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if q == nil || store == nil {
		return nil, errors.New("worker pool needs a queue and a store")
	}
	return &Pool{
		workers: workers,
		queue:   q,
		store:   store,
		catalog: cat,
		names:   names,
		opts:    opts,
	}, nil
}

// Start launches the workers. They exit when ctx is done; items still queued at that point are not persisted.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	milog.Infof("starting %d persistence workers", p.workers)
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has returned
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Stats() Stats {
	return Stats{Persisted: p.persisted.Load(), Failed: p.failed.Load()}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		u, err := p.queue.Dequeue(ctx)
		if err != nil {
			milog.Debugw("worker stopping", "worker", id)
			return
		}
		err = p.persist(ctx, id, u)
		if p.opts.OnDone != nil {
			p.opts.OnDone(u, err)
		}
	}
}

// persist stores u and announces it. An item already taken off the queue is
// finished even during shutdown; only the delay is cut short by ctx.
func (p *Pool) persist(ctx context.Context, id int, u *Upload) (err error) {
	defer func() {
		if p.names != nil {
			p.names.Release(u.Name)
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while persisting %s: %v", u.Name, r)
		}
		if err != nil {
			p.failed.Add(1)
			milog.Errorw("failed to persist upload", "worker", id, "name", u.Name, "error", err)
		}
	}()

	storeCtx := context.WithoutCancel(ctx)
	sum, err := p.store.Put(storeCtx, u.Name, u.Data)
	if err != nil {
		return err
	}
	p.persisted.Add(1)
	fields := []any{
		"worker", id,
		"name", u.Name,
		"size", len(u.Data),
		"crc32", fmt.Sprintf("%08x", sum),
		"queued", time.Since(u.Accepted).Round(time.Millisecond),
	}
	if u.Original != u.Name {
		fields = append(fields, "original", u.Original)
	}
	milog.Infow("upload persisted", fields...)

	if p.opts.Delay > 0 {
		select {
		case <-time.After(p.opts.Delay):
		case <-ctx.Done():
		}
	}

	if p.catalog != nil {
		if _, err := p.catalog.Announce(storeCtx, u.Name); err != nil {
			// The file is stored; a catalog miss is not a persist failure.
			milog.Warnw("catalog announce failed", "name", u.Name, "error", err)
		}
	}
	return nil
}
