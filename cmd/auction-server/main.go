package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"proxyauction/auction"
	"proxyauction/build"
	"proxyauction/debug"
	"proxyauction/protocol"
	"proxyauction/server"
	"proxyauction/store"
	"proxyauction/store/memstore"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/time/rate"
)

func main() {
	err := exe(os.Stdout, os.Stderr, os.Args[1:])
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case isSignalError(err):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func exe(stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("auction-server", flag.ContinueOnError)
	var (
		ctx                   = context.Background()
		listenAddr            = fs.String("listen-addr", ":8080", "public auction TCP listen address")
		debugAddr             = fs.String("debug-addr", ":8081", "private debug HTTP server address")
		ioTimeout             = fs.Duration("io-timeout", server.DefaultIOTimeout, "max time to wait on each connection read or write")
		acceptRate            = fs.Float64("accept-rate", server.DefaultAcceptRate, "max new connections accepted per second")
		acceptBurst           = fs.Int("accept-burst", server.DefaultAcceptBurst, "max burst of new connections accepted at once")
		metricsUpdateInterval = fs.Duration("metrics-update-interval", 10*time.Second, "how often to refresh ledger gauges")
		version               = fs.Bool("version", false, "print version information and exit")
		logLevel              = fs.String("log-level", "info", "debug, info, warn, error")
		_                     = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("AUCTION"),
	); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *version {
		fmt.Fprintf(stdout, "auction-server version %s date %s\n", build.Version, build.Date)
		return nil
	}

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))

		level.Info(logger).Log("build_version", build.Version, "build_date", build.Date)
	}

	level.Debug(logger).Log("msg", "creating store")

	var st store.Store
	{
		level.Info(logger).Log("store", "in-memory")
		st = memstore.NewStore()
	}

	level.Debug(logger).Log("msg", "constructing auction service")

	var service auction.Service
	{
		service = auction.NewCoreService(st, log.With(logger, "module", "auction"))
	}

	level.Debug(logger).Log("msg", "constructing protocol handler")

	var handler *protocol.Handler
	{
		handler = protocol.NewHandler(service, log.With(logger, "module", "protocol"))
	}

	level.Debug(logger).Log("msg", "starting up")

	var g run.Group

	{
		logger := log.With(logger, "module", "server")
		ln, err := net.Listen("tcp", *listenAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		s := server.NewServer(handler, server.Config{
			IOTimeout:   *ioTimeout,
			AcceptRate:  rate.Limit(*acceptRate),
			AcceptBurst: *acceptBurst,
			Logger:      logger,
		})
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("listen_addr", ln.Addr(), "io_timeout", *ioTimeout)
			return s.Serve(ctx, ln)
		}, func(error) {
			cancel()
		})
	}

	{
		logger := log.With(logger, "module", "debug")
		debugHandler := debug.NewHandler(service, logger)
		debugServer := &http.Server{Handler: debugHandler, Addr: *debugAddr}
		g.Add(func() error {
			level.Info(logger).Log("debug_addr", *debugAddr)
			return debugServer.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			debugServer.Shutdown(ctx)
		})
	}

	{
		logger := log.With(logger, "module", "store_metrics")
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("interval", *metricsUpdateInterval)
			ticker := time.NewTicker(*metricsUpdateInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := store.UpdateMetrics(ctx, st); err != nil {
						level.Error(logger).Log("err", err)
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	level.Debug(logger).Log("msg", "running")

	return g.Run()
}

func isSignalError(err error) bool {
	var (
		sigErrVal run.SignalError
		sigErrPtr *run.SignalError
	)
	return errors.As(err, &sigErrVal) || errors.As(err, &sigErrPtr)
}
