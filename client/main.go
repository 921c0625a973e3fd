package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/akamensky/argparse"

	"media_ingest/client/comms"
	"media_ingest/client/worker"
	"media_ingest/constants"
	"media_ingest/milog"
)

func main() {
	args := argparse.NewParser("client", constants.Title)

	host := args.String("a", "address", &argparse.Options{Required: true, Help: "Receiver host address"})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Receiver port",
		Default: constants.DEFAULT_PORT})
	dirs := args.StringList("d", "dir", &argparse.Options{Required: true, Help: "Directory to send, one sender per directory (repeatable)"})
	dscp := args.Int("q", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS",
		Default: constants.DEFAULT_DSCP})
	mptcp := args.Flag("m", "mptcp", &argparse.Options{Help: "Enable Multipath TCP"})
	timeout := args.Int("t", "timeout", &argparse.Options{Required: false, Help: "Seconds to wait for each response",
		Default: int(constants.SENDER_READ_TIMEOUT / time.Second)})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	if *port < 1 || *port > 65535 {
		fmt.Println("Invalid port number. Enter a number between 1 and 65535.")
		os.Exit(1)
	}
	for _, dir := range *dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			fmt.Println("Directory does not exist:", dir)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer milog.Sync()

	opts := comms.DefaultOptions()
	opts.DSCP = *dscp
	opts.MultipathTCP = *mptcp
	opts.ReadTimeout = time.Duration(*timeout) * time.Second

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	begin := time.Now()
	summary := worker.SendDirectories(ctx, *dirs, worker.FileSender(addr, opts))

	milog.Infow("all files processed",
		"elapsed", time.Since(begin),
		"sent", summary.Sent,
		"duplicate", summary.Duplicate,
		"dropped", summary.Dropped,
		"failed", summary.Failed,
	)
	if summary.Failed > 0 {
		milog.Sync()
		os.Exit(2)
	}
}
