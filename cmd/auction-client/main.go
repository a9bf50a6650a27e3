package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"proxyauction/agent"
	"proxyauction/build"
	"proxyauction/client"
	"proxyauction/orchestrator"
	"proxyauction/protocol"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/peterbourgon/ff/v3"
)

func main() {
	err := exe(context.Background(), os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func exe(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("auction-client", flag.ContinueOnError)
	var (
		serverAddr = fs.String("server-addr", "127.0.0.1:8080", "auction server TCP address")
		bidders    = fs.Int("bidders", 0, "number of bidders to simulate (0 prompts on stdin)")
		minCeiling = fs.Int64("min-ceiling", orchestrator.MinCeiling, "lowest private ceiling drawn for a bidder")
		maxCeiling = fs.Int64("max-ceiling", orchestrator.MaxCeiling, "highest private ceiling drawn for a bidder")
		maxRounds  = fs.Int("max-rounds", orchestrator.DefaultMaxRounds, "give up bidding after this many rounds")
		seed       = fs.Int64("seed", 0, "random seed (0 seeds from the clock)")
		ioTimeout  = fs.Duration("io-timeout", client.DefaultIOTimeout, "max time for each request round trip")
		version    = fs.Bool("version", false, "print version information and exit")
		logLevel   = fs.String("log-level", "info", "debug, info, warn, error")
		_          = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("AUCTION"),
	); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *version {
		fmt.Fprintf(stdout, "auction-client version %s date %s\n", build.Version, build.Date)
		return nil
	}

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))
	}

	if *bidders == 0 {
		n, err := promptBidders(stdin, stdout)
		if err != nil {
			return err
		}
		*bidders = n
	}

	var o *orchestrator.Orchestrator
	{
		c := client.NewClient(*serverAddr, *ioTimeout)
		oo, err := orchestrator.NewOrchestrator(c, orchestrator.Config{
			Bidders:    *bidders,
			MinCeiling: *minCeiling,
			MaxCeiling: *maxCeiling,
			MaxRounds:  *maxRounds,
			Rand:       agent.NewRandSource(*seed),
			Logger:     log.With(logger, "module", "orchestrator"),
		})
		if err != nil {
			return fmt.Errorf("create orchestrator: %w", err)
		}
		o = oo
	}

	level.Debug(logger).Log("msg", "running auction", "server_addr", *serverAddr, "bidders", *bidders)

	res, err := o.Run(ctx)
	if err != nil {
		return fmt.Errorf("run auction: %w", err)
	}

	if res.Winner == nil {
		fmt.Fprintln(stdout, protocol.RespNoBids)
		return nil
	}

	fmt.Fprintln(stdout, protocol.FormatWinnerResponse(res.Winner))
	return nil
}

func promptBidders(stdin io.Reader, stdout io.Writer) (int, error) {
	fmt.Fprint(stdout, "Enter the number of bidders: ")

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return 0, fmt.Errorf("read number of bidders: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid number of bidders %q", strings.TrimSpace(line))
	}

	return n, nil
}
