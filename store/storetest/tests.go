package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"proxyauction/store"

	"github.com/google/go-cmp/cmp"
)

func TestStore(t *testing.T, makeStore func(*testing.T) store.Store) {
	ctx := context.Background()

	t.Run("InsertBidder", func(t *testing.T) {
		s := makeStore(t)
		b1 := NewBidder(t, s)
		b2 := NewBidder(t, s)

		if b1.ID == "" || b2.ID == "" {
			t.Fatalf("bidder IDs not assigned: %q, %q", b1.ID, b2.ID)
		}
		if b1.ID == b2.ID {
			t.Fatalf("duplicate bidder ID %s", b1.ID)
		}
		if b1.Seq >= b2.Seq {
			t.Fatalf("sequence not increasing: %d then %d", b1.Seq, b2.Seq)
		}
	})

	t.Run("SelectBidder", func(t *testing.T) {
		s := makeStore(t)
		bidder := NewBidder(t, s)

		want := bidder.Bidder
		have, err := s.SelectBidder(ctx, bidder.ID)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		if _, err := s.SelectBidder(ctx, "999"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select bogus bidder: want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("ListBidders", func(t *testing.T) {
		s := makeStore(t)

		have, err := s.ListBidders(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != 0 {
			t.Fatalf("empty store: have %d bidders", len(have))
		}

		want := []*store.Bidder{
			NewBidder(t, s).Bidder,
			NewBidder(t, s).Bidder,
			NewBidder(t, s).Bidder,
		}

		have, err = s.ListBidders(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("UpsertBid", func(t *testing.T) {
		s := makeStore(t)
		bidder := NewBidder(t, s)

		NewBid(t, s, bidder, 300)
		want := NewBid(t, s, bidder, 250) // lower amounts still overwrite

		have, err := s.SelectBid(ctx, bidder.ID)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		bids, err := s.ListBids(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if want, have := 1, len(bids); want != have {
			t.Fatalf("bid count: want %d, have %d", want, have)
		}
	})

	t.Run("UpsertBidUnknownBidder", func(t *testing.T) {
		s := makeStore(t)
		NewBidder(t, s)

		err := s.UpsertBid(ctx, &store.Bid{BidderID: "999", Amount: 500})
		if want, have := store.ErrUnknownBidder, err; !errors.Is(have, want) {
			t.Fatalf("want %v, have %v", want, have)
		}

		bids, err := s.ListBids(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(bids) != 0 {
			t.Fatalf("orphan bid stored: %+v", bids)
		}
	})

	t.Run("ListBids", func(t *testing.T) {
		s := makeStore(t)
		b1 := NewBidder(t, s)
		b2 := NewBidder(t, s)
		b3 := NewBidder(t, s)

		// Insert out of registration order; listing is by registration.
		bid3 := NewBid(t, s, b3, 100)
		bid1 := NewBid(t, s, b1, 300)
		bid2 := NewBid(t, s, b2, 200)

		want := []*store.Bid{bid1, bid2, bid3}
		have, err := s.ListBids(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("ConcurrentUpsertBid", func(t *testing.T) {
		s := makeStore(t)

		const n = 16
		bidders := make([]*TestBidder, n)
		for i := range bidders {
			bidders[i] = NewBidder(t, s)
		}

		var wg sync.WaitGroup
		errc := make(chan error, n)
		for i, b := range bidders {
			wg.Add(1)
			go func(b *TestBidder, amount int64) {
				defer wg.Done()
				errc <- s.UpsertBid(ctx, &store.Bid{BidderID: b.ID, Amount: amount})
			}(b, int64(100*(i+1)))
		}
		wg.Wait()
		close(errc)

		for err := range errc {
			if err != nil {
				t.Errorf("concurrent upsert: %v", err)
			}
		}

		bids, err := s.ListBids(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if want, have := n, len(bids); want != have {
			t.Fatalf("bid count: want %d, have %d", want, have)
		}
		for i, b := range bids {
			if want, have := int64(100*(i+1)), b.Amount; want != have {
				t.Errorf("bid %d (%s): want amount %d, have %d", i, b.BidderID, want, have)
			}
		}
	})

	t.Run("ConcurrentInsertBidder", func(t *testing.T) {
		s := makeStore(t)

		const n = 64
		var wg sync.WaitGroup
		idc := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				b := &store.Bidder{Label: fmt.Sprint(i), PublicKey: []byte("k")}
				if err := s.InsertBidder(ctx, b); err != nil {
					t.Errorf("insert bidder %d: %v", i, err)
					return
				}
				idc <- b.ID
			}(i)
		}
		wg.Wait()
		close(idc)

		seen := map[string]bool{}
		for id := range idc {
			if seen[id] {
				t.Fatalf("duplicate bidder ID %s", id)
			}
			seen[id] = true
		}
		if want, have := n, len(seen); want != have {
			t.Fatalf("distinct IDs: want %d, have %d", want, have)
		}
	})

	t.Run("UpsertProxyCeiling", func(t *testing.T) {
		s := makeStore(t)
		bidder := NewBidder(t, s)

		if _, err := s.SelectProxyCeiling(ctx, bidder.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select absent ceiling: want %v, have %v", store.ErrNotFound, err)
		}

		NewProxyCeiling(t, s, bidder, 600)
		want := NewProxyCeiling(t, s, bidder, 900)

		have, err := s.SelectProxyCeiling(ctx, bidder.ID)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		err = s.UpsertProxyCeiling(ctx, &store.ProxyCeiling{BidderID: "999", MaxAmount: 1})
		if want, have := store.ErrUnknownBidder, err; !errors.Is(have, want) {
			t.Fatalf("orphan ceiling: want %v, have %v", want, have)
		}
	})

	t.Run("ReturnedSlicesAreCopies", func(t *testing.T) {
		s := makeStore(t)
		b := NewBidder(t, s)
		NewBid(t, s, b, 500)

		key := append([]byte(nil), b.PublicKey...)

		bid, err := s.SelectBid(ctx, b.ID)
		if err != nil {
			t.Fatal(err)
		}
		sig := append([]byte(nil), bid.Signature...)
		bid.Signature[0] ^= 0xff

		bids, err := s.ListBids(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(sig, bids[0].Signature); diff != "" {
			t.Fatalf("signature changed through SelectBid result: %s", diff)
		}
		bids[0].Signature[0] ^= 0xff

		bidders, err := s.ListBidders(ctx)
		if err != nil {
			t.Fatal(err)
		}
		bidders[0].PublicKey[0] ^= 0xff

		stored, err := s.SelectBidder(ctx, b.ID)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(key, stored.PublicKey); diff != "" {
			t.Fatalf("public key changed through ListBidders result: %s", diff)
		}

		again, err := s.SelectBid(ctx, b.ID)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(sig, again.Signature); diff != "" {
			t.Fatalf("signature changed through ListBids result: %s", diff)
		}
	})

	t.Run("ListProxyCeilings", func(t *testing.T) {
		s := makeStore(t)
		b1 := NewBidder(t, s)
		b2 := NewBidder(t, s)

		c2 := NewProxyCeiling(t, s, b2, 1000)
		c1 := NewProxyCeiling(t, s, b1, 600)

		want := []*store.ProxyCeiling{c1, c2}
		have, err := s.ListProxyCeilings(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})
}
