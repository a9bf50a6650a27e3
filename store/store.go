package store

import (
	"context"
)

// Store holds the authoritative auction state: registered bidders, their
// current bids, and their proxy ceilings. Every method is atomic with respect
// to every other method.
type Store interface {
	Ping(ctx context.Context) error

	InsertBidder(ctx context.Context, b *Bidder) error
	SelectBidder(ctx context.Context, id string) (*Bidder, error)
	ListBidders(ctx context.Context) ([]*Bidder, error)

	UpsertBid(ctx context.Context, b *Bid) error
	SelectBid(ctx context.Context, bidderID string) (*Bid, error)
	ListBids(ctx context.Context) ([]*Bid, error)

	UpsertProxyCeiling(ctx context.Context, c *ProxyCeiling) error
	SelectProxyCeiling(ctx context.Context, bidderID string) (*ProxyCeiling, error)
	ListProxyCeilings(ctx context.Context) ([]*ProxyCeiling, error)
}
