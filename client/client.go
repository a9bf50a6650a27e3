package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"proxyauction/auction"
	"proxyauction/protocol"
)

const (
	DefaultIOTimeout = 10 * time.Second

	maxResponseSize = 4096
)

// Client speaks the auction protocol, one request per round trip. It works
// over TCP (NewClient) or directly against an in-process handler
// (NewLocalClient).
type Client struct {
	roundTrip func(ctx context.Context, req *protocol.Request) (string, error)
}

// NewClient returns a client that opens a new TCP connection to addr for
// every request. Each connection is bounded by timeout.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}

	var dialer net.Dialer

	return &Client{
		roundTrip: func(ctx context.Context, req *protocol.Request) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return "", fmt.Errorf("dial: %w", err)
			}
			defer conn.Close()

			deadline, _ := ctx.Deadline()
			if err := conn.SetDeadline(deadline); err != nil {
				return "", fmt.Errorf("set deadline: %w", err)
			}

			if err := json.NewEncoder(conn).Encode(req); err != nil {
				return "", fmt.Errorf("write request: %w", err)
			}

			if tc, ok := conn.(*net.TCPConn); ok {
				tc.CloseWrite()
			}

			resp, err := io.ReadAll(io.LimitReader(conn, maxResponseSize))
			if err != nil {
				return "", fmt.Errorf("read response: %w", err)
			}

			return string(resp), nil
		},
	}
}

// NewLocalClient returns a client that calls h directly.
func NewLocalClient(h *protocol.Handler) *Client {
	return &Client{
		roundTrip: func(ctx context.Context, req *protocol.Request) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return h.Handle(ctx, req), nil
		},
	}
}

// Do sends req and returns the raw response string.
func (c *Client) Do(ctx context.Context, req *protocol.Request) (string, error) {
	return c.roundTrip(ctx, req)
}

// Register returns the bidder ID assigned by the server.
func (c *Client) Register(ctx context.Context, label string, publicKey []byte) (string, error) {
	resp, err := c.Do(ctx, protocol.NewRegisterRequest(label, publicKey))
	if err != nil {
		return "", err
	}

	return protocol.ParseRegisterResponse(resp)
}

// Bid submits a signed bid and returns the server's verdict, which is one of
// the BID response strings or an error response.
func (c *Client) Bid(ctx context.Context, bidderID string, amount int64, signature []byte) (string, error) {
	return c.Do(ctx, protocol.NewBidRequest(bidderID, amount, signature))
}

func (c *Client) ProxyBid(ctx context.Context, bidderID string, maxAmount int64) (string, error) {
	return c.Do(ctx, protocol.NewProxyBidRequest(bidderID, maxAmount))
}

// Winner returns the current winner, or auction.ErrNoBids.
func (c *Client) Winner(ctx context.Context) (*auction.Winner, error) {
	resp, err := c.Do(ctx, protocol.NewWinnerRequest())
	if err != nil {
		return nil, err
	}

	return protocol.ParseWinnerResponse(resp)
}
