package auction

import (
	"errors"

	"proxyauction/store"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNoBids           = errors.New("no bids")

	// ErrUnknownBidder is shared with the store, which reports it when asked
	// to record state for an unregistered bidder.
	ErrUnknownBidder = store.ErrUnknownBidder
)

type Winner struct {
	BidderID string
	Amount   int64
}

// SelectWinner returns the bid with the strictly greatest amount. Equal
// amounts go to the bidder that registered first. The order of bids does not
// matter, and nil is returned when there are no bids.
func SelectWinner(bids []*Bid) *Winner {
	var best *Bid
	for _, b := range bids {
		switch {
		case best == nil:
			best = b
		case b.Amount > best.Amount:
			best = b
		case b.Amount == best.Amount && b.BidderSeq < best.BidderSeq:
			best = b
		}
	}

	if best == nil {
		return nil
	}

	return &Winner{BidderID: best.BidderID, Amount: best.Amount}
}

func boolString(b bool, ifTrue, ifFalse string) string {
	if b {
		return ifTrue
	}
	return ifFalse
}
