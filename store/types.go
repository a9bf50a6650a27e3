package store

import (
	"errors"
	"time"
)

type Bidder struct {
	ID        string // assigned by the store, never by the bidder
	Seq       int64  // registration order, strictly increasing
	Label     string // bidder_num as sent at registration, informational only
	PublicKey []byte // PEM, immutable once registered
	CreatedAt time.Time
}

type Bid struct {
	BidderID  string
	BidderSeq int64 // copied from the bidder by the store
	Amount    int64
	Signature []byte
	UpdatedAt time.Time
}

type ProxyCeiling struct {
	BidderID  string
	MaxAmount int64
	UpdatedAt time.Time
}

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownBidder = errors.New("unknown bidder")
)
