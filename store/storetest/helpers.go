package storetest

import (
	"context"
	"crypto/rsa"
	"fmt"
	"math/rand"
	"strconv"
	"testing"

	"proxyauction/cryptoutil"
	"proxyauction/store"
)

// TestBidder is a registered bidder along with the private key that matches
// its registered public key.
type TestBidder struct {
	*store.Bidder
	Key *rsa.PrivateKey
}

func (b *TestBidder) Sign(t *testing.T, amount int64) []byte {
	t.Helper()

	msg := cryptoutil.BidSignBytes(b.ID, strconv.FormatInt(amount, 10))
	sig, err := cryptoutil.SignWithKey(b.Key, msg)
	if err != nil {
		t.Fatalf("sign bid: %v", err)
	}

	return sig
}

func NewBidder(t *testing.T, s store.Store) *TestBidder {
	t.Helper()

	key, pub, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	b := &store.Bidder{
		Label:     getFunName(t),
		PublicKey: pub,
	}

	if err := s.InsertBidder(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	return &TestBidder{Bidder: b, Key: key}
}

func NewBid(t *testing.T, s store.Store, b *TestBidder, amount int64) *store.Bid {
	t.Helper()

	bid := &store.Bid{
		BidderID:  b.ID,
		Amount:    amount,
		Signature: b.Sign(t, amount),
	}

	if err := s.UpsertBid(context.Background(), bid); err != nil {
		t.Fatal(err)
	}

	return bid
}

func NewProxyCeiling(t *testing.T, s store.Store, b *TestBidder, max int64) *store.ProxyCeiling {
	t.Helper()

	c := &store.ProxyCeiling{
		BidderID:  b.ID,
		MaxAmount: max,
	}

	if err := s.UpsertProxyCeiling(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	return c
}

func getFunName(t *testing.T) string {
	t.Helper()

	var (
		adjectives = []string{"brisk", "quiet", "eager", "frugal", "lucky", "patient"}
		nouns      = []string{"heron", "otter", "lynx", "marten", "ibis", "vole"}
	)

	return fmt.Sprintf("%s-%s-%d",
		adjectives[rand.Intn(len(adjectives))],
		nouns[rand.Intn(len(nouns))],
		rand.Intn(1000),
	)
}
