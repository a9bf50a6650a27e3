package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"proxyauction/metrics"
	"proxyauction/protocol"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofrs/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultIOTimeout   = 10 * time.Second
	DefaultAcceptRate  = 100
	DefaultAcceptBurst = 20

	// MaxRequestSize bounds how much of a connection is read for one request.
	MaxRequestSize = 64 * 1024
)

// ErrTransportTimeout means a connection stalled past its read or write
// deadline and was dropped without a response.
var ErrTransportTimeout = errors.New("transport timeout")

// RequestHandler turns one encoded request into one response string.
type RequestHandler interface {
	HandleBytes(ctx context.Context, b []byte) string
}

var _ RequestHandler = (*protocol.Handler)(nil)

type Config struct {
	// IOTimeout bounds each read and each write on a connection.
	IOTimeout time.Duration

	// AcceptRate and AcceptBurst limit how quickly new connections are taken
	// off the listener.
	AcceptRate  rate.Limit
	AcceptBurst int

	Logger log.Logger
}

func (c *Config) setDefaults() {
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.AcceptRate <= 0 {
		c.AcceptRate = DefaultAcceptRate
	}
	if c.AcceptBurst <= 0 {
		c.AcceptBurst = DefaultAcceptBurst
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
}

// Server serves one request per TCP connection, each on its own goroutine.
// All connections share the same handler.
type Server struct {
	handler RequestHandler
	timeout time.Duration
	limiter *rate.Limiter
	logger  log.Logger
	wg      sync.WaitGroup
}

func NewServer(handler RequestHandler, cfg Config) *Server {
	cfg.setDefaults()
	return &Server{
		handler: handler,
		timeout: cfg.IOTimeout,
		limiter: rate.NewLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		logger:  cfg.Logger,
	}
}

// Serve accepts connections from ln until ctx is canceled or ln is closed. It
// closes ln, and waits for in-flight connections to finish, before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer s.wg.Wait()

	level.Info(s.logger).Log("msg", "serving", "addr", ln.Addr())

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		conn, err := ln.Accept()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, net.ErrClosed):
			return nil
		case isTimeout(err):
			level.Warn(s.logger).Log("msg", "accept timeout", "err", err)
			continue
		default:
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	metrics.ConnectionsInFlight.Inc()
	defer metrics.ConnectionsInFlight.Dec()

	var (
		id     = uuid.Must(uuid.NewV4())
		logger = log.With(s.logger, "conn", id, "remote", conn.RemoteAddr())
		begin  = time.Now()
	)

	err := s.exchange(ctx, conn)

	var result string
	switch {
	case err == nil:
		result = "success"
		level.Debug(logger).Log("msg", "served", "took", time.Since(begin))
	case errors.Is(err, ErrTransportTimeout):
		result = "timeout"
		level.Warn(logger).Log("msg", "connection dropped", "err", err)
	default:
		result = "error"
		level.Warn(logger).Log("msg", "connection failed", "err", err)
	}
	metrics.ConnectionsTotal.WithLabelValues(result).Inc()
}

// exchange reads exactly one JSON request from conn and writes exactly one
// response. A stalled read or write yields ErrTransportTimeout, and the
// handler is not invoked if the request never fully arrived.
func (s *Server) exchange(ctx context.Context, conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	var (
		raw  json.RawMessage
		dec  = json.NewDecoder(io.LimitReader(conn, MaxRequestSize))
		resp string
	)
	switch err := dec.Decode(&raw); {
	case err == nil:
		resp = s.handler.HandleBytes(ctx, raw)
	case isTimeout(err):
		metrics.TransportTimeoutsTotal.WithLabelValues("read").Inc()
		return fmt.Errorf("read request: %w", ErrTransportTimeout)
	default:
		resp = protocol.FormatErrorResponse(fmt.Errorf("read request: %v", err))
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := io.WriteString(conn, resp); err != nil {
		if isTimeout(err) {
			metrics.TransportTimeoutsTotal.WithLabelValues("write").Inc()
			return fmt.Errorf("write response: %w", ErrTransportTimeout)
		}
		return fmt.Errorf("write response: %w", err)
	}

	return nil
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
