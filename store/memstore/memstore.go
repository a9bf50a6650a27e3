package memstore

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"proxyauction/store"

	"golang.org/x/exp/slices"
)

// FirstBidderSeq is the sequence number, and therefore the ID, given to the
// first registered bidder.
const FirstBidderSeq = 100

type Store struct {
	mu       sync.RWMutex
	nextSeq  int64
	bidders  map[string]*store.Bidder
	bids     map[string]*store.Bid
	ceilings map[string]*store.ProxyCeiling
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		nextSeq:  FirstBidderSeq,
		bidders:  map[string]*store.Bidder{},
		bids:     map[string]*store.Bid{},
		ceilings: map[string]*store.ProxyCeiling{},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

//
// bidders
//

func (s *Store) InsertBidder(ctx context.Context, b *store.Bidder) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq
	id := strconv.FormatInt(seq, 10)
	if _, ok := s.bidders[id]; ok {
		return fmt.Errorf("bidder ID %s already allocated", id) // counter invariant broken
	}
	s.nextSeq++

	b.ID = id
	b.Seq = seq
	b.CreatedAt = now

	newBidder := *b
	newBidder.PublicKey = bytes.Clone(b.PublicKey)
	s.bidders[id] = &newBidder

	return nil
}

func (s *Store) SelectBidder(ctx context.Context, id string) (*store.Bidder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bidders[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	bb := *b
	bb.PublicKey = bytes.Clone(b.PublicKey)
	return &bb, nil
}

func (s *Store) ListBidders(ctx context.Context) ([]*store.Bidder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bidders := make([]*store.Bidder, 0, len(s.bidders))
	for _, b := range s.bidders {
		bb := *b
		bb.PublicKey = bytes.Clone(b.PublicKey)
		bidders = append(bidders, &bb)
	}

	slices.SortFunc(bidders, func(a, b *store.Bidder) int {
		return compareInt64(a.Seq, b.Seq)
	})

	return bidders, nil
}

//
// bids
//

func (s *Store) UpsertBid(ctx context.Context, b *store.Bid) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	bidder, ok := s.bidders[b.BidderID]
	if !ok {
		return fmt.Errorf("bidder %q: %w", b.BidderID, store.ErrUnknownBidder)
	}

	b.BidderSeq = bidder.Seq
	b.UpdatedAt = now

	newBid := *b
	newBid.Signature = bytes.Clone(b.Signature)
	s.bids[b.BidderID] = &newBid // one current bid per bidder, overwritten

	return nil
}

func (s *Store) SelectBid(ctx context.Context, bidderID string) (*store.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[bidderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	bb := *b
	bb.Signature = bytes.Clone(b.Signature)
	return &bb, nil
}

// ListBids returns a consistent snapshot of all current bids, ordered by
// bidder registration.
func (s *Store) ListBids(ctx context.Context) ([]*store.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := make([]*store.Bid, 0, len(s.bids))
	for _, b := range s.bids {
		bb := *b
		bb.Signature = bytes.Clone(b.Signature)
		bids = append(bids, &bb)
	}

	slices.SortFunc(bids, func(a, b *store.Bid) int {
		return compareInt64(a.BidderSeq, b.BidderSeq)
	})

	return bids, nil
}

//
// proxy ceilings
//

func (s *Store) UpsertProxyCeiling(ctx context.Context, c *store.ProxyCeiling) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bidders[c.BidderID]; !ok {
		return fmt.Errorf("bidder %q: %w", c.BidderID, store.ErrUnknownBidder)
	}

	c.UpdatedAt = now

	newCeiling := *c
	s.ceilings[c.BidderID] = &newCeiling

	return nil
}

func (s *Store) SelectProxyCeiling(ctx context.Context, bidderID string) (*store.ProxyCeiling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.ceilings[bidderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	cc := *c
	return &cc, nil
}

func (s *Store) ListProxyCeilings(ctx context.Context) ([]*store.ProxyCeiling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ceilings := make([]*store.ProxyCeiling, 0, len(s.ceilings))
	for _, c := range s.ceilings {
		cc := *c
		ceilings = append(ceilings, &cc)
	}

	slices.SortFunc(ceilings, func(a, b *store.ProxyCeiling) int {
		return compareInt64(s.bidders[a.BidderID].Seq, s.bidders[b.BidderID].Seq)
	})

	return ceilings, nil
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
