package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/akamensky/argparse"

	"media_ingest/catalog"
	"media_ingest/config"
	"media_ingest/constants"
	"media_ingest/fileio"
	"media_ingest/milog"
	"media_ingest/networking"
	"media_ingest/queue"
	server "media_ingest/server/controller"
	"media_ingest/server/worker"
	"media_ingest/transcode"
)

func main() {
	loader := config.NewLoader()
	cfg, err := loader.Load("")
	if err != nil {
		milog.Fatalf("%v", err)
	}

	args := argparse.NewParser("server", constants.Title)

	workers := args.Int("t", "threads", &argparse.Options{Required: false, Help: "Number of persistence workers",
		Default: cfg.Workers})
	capacity := args.Int("q", "queue", &argparse.Options{Required: false, Help: "Upload queue capacity",
		Default: cfg.QueueCapacity})
	bind := args.String("l", "listen", &argparse.Options{Required: false, Help: "Listen on address",
		Default: cfg.Bind})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Listening port",
		Default: cfg.Port})
	root := args.String("r", "root", &argparse.Options{Required: false, Help: "Directory for storing uploads (local backend)",
		Default: cfg.Storage.Dir})
	maxConns := args.Int("m", "max-connections", &argparse.Options{Required: false, Help: "Concurrent connection limit, 0 for unbounded",
		Default: cfg.MaxConnections})
	level := args.String("v", "log-level", &argparse.Options{Required: false, Help: "Log level (debug, info, warn, error)",
		Default: cfg.LogLevel})
	noTranscode := args.Flag("n", "no-transcode", &argparse.Options{Required: false, Help: "Store oversized uploads as received"})
	mptcp := args.Flag("M", "mptcp", &argparse.Options{Required: false, Help: "Enable multipath TCP on the listener"})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	cfg.Workers = *workers
	cfg.QueueCapacity = *capacity
	cfg.Bind = *bind
	cfg.Port = *port
	cfg.Storage.Dir = *root
	cfg.MaxConnections = *maxConns
	cfg.LogLevel = *level
	if *noTranscode {
		cfg.Transcode.Enabled = false
	}
	if *mptcp {
		cfg.Server.Multipath = true
	}

	if err := cfg.Validate(); err != nil {
		milog.Fatalf("%v", err)
	}
	lvl, _ := milog.ParseLevel(cfg.LogLevel)
	milog.SetLevel(lvl)
	defer milog.Sync()

	debug.SetGCPercent(666)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader.Watch(nil)
	if err := run(ctx, cfg); err != nil {
		milog.Fatalf("%v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (fileio.Store, error) {
	if cfg.Storage.Backend == config.BackendMinio {
		m := cfg.Storage.Minio
		return fileio.NewMinioStore(ctx, fileio.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
	}
	return fileio.NewLocalStore(cfg.Storage.Dir, constants.DEFAULT_FILE_BUFFER_SIZE)
}

func openCatalog(ctx context.Context, cfg config.Config) (catalog.Catalog, func(), error) {
	if cfg.Catalog.Backend == config.BackendRedis {
		r := cfg.Catalog.Redis
		c, err := catalog.NewRedis(ctx, catalog.RedisOptions{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Key:      r.Key,
			Channel:  r.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	}
	return catalog.NewMemory(func(name string) {
		milog.Infow("catalog updated", "name", name)
	}), func() {}, nil
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	cat, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()

	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	if err := cat.Seed(ctx, existing); err != nil {
		return err
	}
	milog.Infof("catalog seeded with %d stored uploads", len(existing))

	if local, ok := store.(*fileio.LocalStore); ok && cfg.Catalog.Watch {
		w, err := catalog.NewWatcher(local.Dir(), cat)
		if err != nil {
			return err
		}
		go w.Run(ctx)
	}

	var tc transcode.Transcoder = transcode.Nop{}
	if cfg.Transcode.Enabled {
		tc = transcode.NewFFmpeg(cfg.Transcode.FFmpegPath, cfg.Transcode.Timeout, cfg.Transcode.TempDir)
	}

	q, err := queue.New[*worker.Upload](cfg.QueueCapacity)
	if err != nil {
		return err
	}
	names := fileio.NewNameRegistry(store)

	pool, err := worker.NewPool(cfg.Workers, q, store, cat, names, worker.Options{Delay: cfg.Worker.Delay})
	if err != nil {
		return err
	}
	pool.Start(ctx)

	handler := server.NewHandler(q, names, tc, server.HandlerOptions{
		Limits:      networking.Limits{MaxName: cfg.MaxNameLength, MaxPayload: cfg.MaxPayload},
		Threshold:   cfg.Transcode.Threshold,
		ReadTimeout: cfg.Handler.ReadTimeout,
	})
	srv, err := server.NewServer(handler, server.Options{
		Addr:           cfg.Addr(),
		MaxConnections: cfg.MaxConnections,
		MultipathTCP:   cfg.Server.Multipath,
	})
	if err != nil {
		return err
	}

	serveErr := srv.ListenAndServe(ctx)
	pool.Wait()

	qs, ps := q.Stats(), pool.Stats()
	milog.Infow("server stopped",
		"accepted", qs.Accepted,
		"dropped", qs.Dropped,
		"persisted", ps.Persisted,
		"failed", ps.Failed,
		"unpersisted", q.Count(),
		"reserved", names.Reserved(),
	)
	return serveErr
}
